package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haikalllp/smoothie-rs-queuer/internal/ipc"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var recipe string

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Add video files to the render queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					absPath, err := filepath.Abs(arg)
					if err != nil {
						return fmt.Errorf("resolve path: %w", err)
					}
					resp, err := client.QueueAdd(absPath, outputDir, recipe)
					if err != nil {
						return err
					}
					if resp == nil {
						return errors.New("empty response from daemon")
					}
					fmt.Fprintf(out, "Queued task #%d (%s)\n", resp.Task.ID, filepath.Base(absPath))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for the rendered files")
	cmd.Flags().StringVarP(&recipe, "recipe", "r", "", "Recipe file to render with")
	return cmd
}
