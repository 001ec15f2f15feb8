package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/haikalllp/smoothie-rs-queuer/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished renders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.HistoryList(limit)
				if err != nil {
					return err
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "History is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Source", "Status", "Finished", "Detail"},
					buildHistoryRows(resp.Entries),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show")
	historyCmd.AddCommand(newHistoryClearCommand(ctx))

	return historyCmd
}

func buildHistoryRows(entries []ipc.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		finished := ""
		if entry.FinishedAt != nil {
			finished = entry.FinishedAt.Local().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.TaskID, 10),
			filepath.Base(entry.SourcePath),
			entry.Status,
			finished,
			truncate(entry.ErrorMessage, 60),
		})
	}
	return rows
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the render history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.HistoryClear()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d history entries\n", resp.Removed)
				return nil
			})
		},
	}
}
