package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haikalllp/smoothie-rs-queuer/internal/ipc"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream queue lifecycle events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = 2 * time.Second
			}
			return ctx.withClient(func(client *ipc.Client) error {
				watchCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				out := cmd.OutOrStdout()
				var lastSeen time.Time

				// Seed the cursor so only fresh events print.
				if resp, err := client.Events(); err == nil {
					for _, ev := range resp.Events {
						if ev.At.After(lastSeen) {
							lastSeen = ev.At
						}
					}
				}
				fmt.Fprintln(out, "Watching queue events (Ctrl+C to stop)")

				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-watchCtx.Done():
						return nil
					case <-ticker.C:
					}

					resp, err := client.Events()
					if err != nil {
						return err
					}
					for _, ev := range resp.Events {
						if !ev.At.After(lastSeen) {
							continue
						}
						lastSeen = ev.At
						fmt.Fprintln(out, formatEvent(ev))
					}
				}
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval")
	return cmd
}

func formatEvent(ev ipc.Event) string {
	var sb strings.Builder
	sb.WriteString(ev.At.Local().Format("15:04:05"))
	sb.WriteString("  ")
	sb.WriteString(fmt.Sprintf("%-14s", ev.Kind))
	if ev.TaskID > 0 {
		sb.WriteString(fmt.Sprintf("  task #%d", ev.TaskID))
	}
	if strings.TrimSpace(ev.Reason) != "" {
		sb.WriteString("  ")
		sb.WriteString(ev.Reason)
	}
	return sb.String()
}
