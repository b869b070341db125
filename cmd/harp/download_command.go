package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"harp/internal/client"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var req client.DownloadRequest

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download a finished job's predictions or labeled video",
		Long: "Download a finished job's artifacts.\n\n" +
			"--kind selects csv or video. Jobs run with --method both also need\n" +
			"--type audio, hand, or combined (combined is only valid for video).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.newClient()
			if err != nil {
				return err
			}
			req.JobID = strings.TrimSpace(args[0])
			path, n, err := apiClient.Download(cmd.Context(), req)
			if err != nil {
				return wrapAPIError(err, apiClient.BaseURL())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", path, n)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Kind, "kind", "csv", "Artifact to download: csv or video")
	cmd.Flags().StringVar(&req.Type, "type", "", "Pipeline for jobs run with both methods: audio, hand, or combined")
	cmd.Flags().StringVarP(&req.Dest, "output", "o", "", "Destination file or directory (defaults to the server's filename in the current directory)")
	return cmd
}
