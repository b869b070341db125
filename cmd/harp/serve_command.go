package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"harp/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the harp daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Diagnostic, "diagnostic", false, "Enable diagnostic mode with separate DEBUG logs")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in log output")
	return cmd
}
