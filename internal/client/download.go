package client

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"harp/internal/fileutil"
	"harp/internal/textutil"
)

// DownloadRequest selects one artifact of a finished job.
type DownloadRequest struct {
	JobID string
	// Kind is "csv" or "video".
	Kind string
	// Type is "audio", "hand", or "combined"; required for both-method jobs.
	Type string
	// Dest is a file path or an existing directory. Empty means the current
	// directory. Directories receive the server-suggested filename.
	Dest string
}

// Download saves an artifact and returns the written path and byte count.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (string, int64, error) {
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind != "csv" && kind != "video" {
		return "", 0, fmt.Errorf("kind must be csv or video, got %q", req.Kind)
	}
	query := url.Values{}
	if t := strings.TrimSpace(req.Type); t != "" {
		query.Set("type", t)
	}
	path := "/api/download/" + kind + "/" + url.PathEscape(req.JobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return "", 0, fmt.Errorf("harp api: new request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("harp api: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, decodeResponse(resp, nil)
	}

	dest, err := resolveDest(req.Dest, suggestedName(resp, kind))
	if err != nil {
		return "", 0, err
	}
	written, err := fileutil.WriteAtomic(dest, resp.Body, 0o644)
	if err != nil {
		return "", written, fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, written, nil
}

func suggestedName(resp *http.Response, kind string) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := textutil.SanitizeFileName(filepath.Base(params["filename"])); name != "" && name != "." && name != "-" {
			return name
		}
	}
	if kind == "csv" {
		return "harp_predictions.csv"
	}
	return "harp_labeled.mp4"
}

func resolveDest(dest, name string) (string, error) {
	if strings.TrimSpace(dest) == "" {
		return name, nil
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return filepath.Join(dest, name), nil
	}
	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create destination directory: %w", err)
		}
	}
	return dest, nil
}
