package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"harp/internal/logging"
	"harp/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log (log_dir/harp.log)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.CurrentLogName)
			out := cmd.OutOrStdout()

			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(tail) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No log output at %s\n", path)
				}
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, 0, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new log lines until interrupted")
	return cmd
}
