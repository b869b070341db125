package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"harp/internal/history"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs known to the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.newClient()
			if err != nil {
				return err
			}
			list, err := apiClient.Jobs(cmd.Context(), statusFilter)
			if err != nil {
				return wrapAPIError(err, apiClient.BaseURL())
			}
			if jsonOut {
				return writeJSON(cmd, list)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, job := range list {
				rows = append(rows, []string{
					job.ID,
					job.Method,
					titleCaser.String(job.Status),
					optionalRows(job.AudioRows),
					optionalRows(job.HandRows),
					yesNo(job.Combined),
					formatTimestamp(job.CreatedAt),
					job.Message,
				})
			}
			headers := []string{"ID", "Method", "Status", "Audio", "Hand", "Combined", "Created", "Message"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only list jobs with this status (queued, running, done, error)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished jobs from the daemon's ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.newClient()
			if err != nil {
				return err
			}
			entries, err := apiClient.History(cmd.Context(), limit)
			if err != nil {
				return wrapAPIError(err, apiClient.BaseURL())
			}
			if jsonOut {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No finished jobs recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistoryTable(entries))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "Maximum number of entries to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func renderHistoryTable(entries []history.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.ID,
			entry.Method,
			titleCaser.String(entry.Status),
			optionalRows(entry.AudioRows),
			optionalRows(entry.HandRows),
			yesNo(entry.Combined),
			entry.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			formatDuration(entry.Duration()),
			historyProblem(entry),
		})
	}
	headers := []string{"ID", "Method", "Status", "Audio", "Hand", "Combined", "Finished", "Took", "Problem"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft}
	return renderTable(headers, rows, aligns)
}

// historyProblem summarizes whatever went wrong with a finished job, if anything.
func historyProblem(entry history.Entry) string {
	var parts []string
	if entry.Status == "error" && entry.Message != "" {
		parts = append(parts, entry.Message)
	}
	if entry.AudioError != "" {
		parts = append(parts, "audio: "+entry.AudioError)
	}
	if entry.HandError != "" {
		parts = append(parts, "hand: "+entry.HandError)
	}
	if entry.CombinedError != "" {
		parts = append(parts, "combine: "+entry.CombinedError)
	}
	return truncate(strings.Join(parts, "; "), 60)
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the running daemon's status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.newClient()
			if err != nil {
				return err
			}
			status, err := apiClient.Health(cmd.Context())
			if err != nil {
				return wrapAPIError(err, apiClient.BaseURL())
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			daemonKind := statusOK
			daemonMsg := "Running"
			if !status.Running {
				daemonKind = statusError
				daemonMsg = "Not running"
			}
			if status.PID > 0 {
				daemonMsg += " (pid " + strconv.Itoa(status.PID) + ")"
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonMsg, colorize))
			workers := fmt.Sprintf("%d active of %d", status.Workflow.ActiveJobs, status.Workflow.MaxConcurrentJobs)
			fmt.Fprintln(out, renderStatusLine("Workers", statusInfo, workers, colorize))
			if status.Workflow.LastError != "" {
				fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
			}
			for _, state := range []string{"queued", "running", "done", "error"} {
				label := titleCaser.String(state) + " jobs"
				fmt.Fprintln(out, renderStatusLine(label, statusInfo, strconv.Itoa(status.Jobs[state]), colorize))
			}
			for _, line := range dependencyLines(apiDependencies(status.Dependencies), colorize) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}
