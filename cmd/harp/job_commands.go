package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"harp/internal/api"
	"harp/internal/client"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req client.UploadRequest
	var wait bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Upload a video for string detection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.newClient()
			if err != nil {
				return err
			}
			resp, err := apiClient.Upload(cmd.Context(), req)
			if err != nil {
				return wrapAPIError(err, apiClient.BaseURL())
			}
			if !wait {
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s\n", resp.JobID)
				return nil
			}
			if !jsonOut {
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s, waiting for results...\n", resp.JobID)
			}
			return waitAndRender(cmd, apiClient, resp.JobID, jsonOut)
		},
	}

	cmd.Flags().StringVar(&req.Video, "video", "", "Video file to analyze (.mp4, .mov, .mkv, .avi, .webm)")
	cmd.Flags().StringVar(&req.Method, "method", "audio", "Detection method: audio, hand, or both")
	cmd.Flags().StringVar(&req.Model, "model", "", "Keras model file for audio detection")
	cmd.Flags().StringVar(&req.Mode, "mode", "hybrid", "Audio detection mode: default or hybrid")
	cmd.Flags().StringVar(&req.Weights, "weights", "", "YOLO .pt weights for hand detection (defaults to the daemon's weights)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the job to finish")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("video")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.newClient()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			status, err := apiClient.Status(cmd.Context(), id)
			if err != nil {
				if client.IsNotFound(err) {
					return fmt.Errorf("job %s not found", id)
				}
				return wrapAPIError(err, apiClient.BaseURL())
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			printJobStatus(cmd, id, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newWaitCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.newClient()
			if err != nil {
				return err
			}
			return waitAndRender(cmd, apiClient, strings.TrimSpace(args[0]), jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

// waitAndRender polls until the job is terminal and prints the result. A job
// that ends in error is reported as a command failure.
func waitAndRender(cmd *cobra.Command, apiClient *client.Client, id string, jsonOut bool) error {
	out := cmd.OutOrStdout()
	lastMessage := ""
	status, err := apiClient.Wait(cmd.Context(), id, func(update api.StatusResponse) {
		if jsonOut || update.Terminal() {
			return
		}
		if update.Message != "" && update.Message != lastMessage {
			lastMessage = update.Message
			fmt.Fprintf(out, "  %s\n", update.Message)
		}
	})
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("job %s not found", id)
		}
		return wrapAPIError(err, apiClient.BaseURL())
	}
	if jsonOut {
		if err := writeJSON(cmd, status); err != nil {
			return err
		}
	} else {
		printJobStatus(cmd, id, status)
	}
	if status.Status == "error" {
		return errors.New("job failed")
	}
	return nil
}

func printJobStatus(cmd *cobra.Command, id string, status api.StatusResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range jobStatusLines(id, status, colorize) {
		fmt.Fprintln(out, line)
	}
}
