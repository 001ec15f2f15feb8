package main

import (
	"github.com/spf13/cobra"

	"github.com/haikalllp/smoothie-rs-queuer/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Run the daemon in the foreground",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel: level,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}
