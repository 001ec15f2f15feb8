package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/ipc"
)

func newOutputCommand(ctx *commandContext) *cobra.Command {
	outputCmd := &cobra.Command{
		Use:   "output",
		Short: "Inspect and change the output directory",
	}

	outputCmd.AddCommand(newOutputSetCommand(ctx))

	return outputCmd
}

func newOutputSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <dir>",
		Short: "Set the output directory for new and pending tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve output directory: %w", err)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetOutputDir(dir)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Output directory set to %s\n", dir)
				if resp.Updated > 0 {
					fmt.Fprintf(out, "Retargeted %d pending tasks\n", resp.Updated)
				}
				return nil
			})
		},
	}
}
