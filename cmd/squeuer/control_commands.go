package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haikalllp/smoothie-rs-queuer/internal/ipc"
)

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the queue; the current render keeps running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Pause(true); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue paused")
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Pause(false); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue resumed")
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Force-stop the render that is currently running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.StopCurrent(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Stop requested for the current render")
				return nil
			})
		},
	}
}
