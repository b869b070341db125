package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"harp/internal/api"
	"harp/internal/deps"
	"harp/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tools and directories the daemon needs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			for _, line := range dependencyLines(statuses, colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return errors.New("required dependencies are missing")
			}
			return nil
		},
	}
}

func apiDependencies(statuses []api.DependencyStatus) []deps.Status {
	out := make([]deps.Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, deps.Status{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Detail:      s.Detail,
		})
	}
	return out
}
