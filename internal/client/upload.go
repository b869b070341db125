package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"harp/internal/api"
)

// UploadRequest describes a job submission. File fields are local paths;
// empty paths are omitted from the form.
type UploadRequest struct {
	Method  string
	Mode    string
	Video   string
	Model   string
	Weights string
}

// Upload streams the request's files to the daemon and returns the queued job.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (api.UploadResponse, error) {
	var resp api.UploadResponse
	if strings.TrimSpace(req.Video) == "" {
		return resp, errors.New("video path is required")
	}
	files := []struct{ field, path string }{
		{"video", req.Video},
		{"model", req.Model},
		{"weights", req.Weights},
	}
	for _, file := range files {
		if file.path == "" {
			continue
		}
		if info, err := os.Stat(file.path); err != nil {
			return resp, fmt.Errorf("%s: %w", file.field, err)
		} else if info.IsDir() {
			return resp, fmt.Errorf("%s: %s is a directory", file.field, file.path)
		}
	}

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		writer.CloseWithError(writeForm(form, req, files))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/upload", nil), body)
	if err != nil {
		body.Close()
		return resp, fmt.Errorf("harp api: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return resp, fmt.Errorf("harp api: upload: %w", err)
	}
	defer httpResp.Body.Close()
	if err := decodeResponse(httpResp, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func writeForm(form *multipart.Writer, req UploadRequest, files []struct{ field, path string }) error {
	for key, value := range map[string]string{"method": req.Method, "mode": req.Mode} {
		if value == "" {
			continue
		}
		if err := form.WriteField(key, value); err != nil {
			return err
		}
	}
	for _, file := range files {
		if file.path == "" {
			continue
		}
		if err := copyFilePart(form, file.field, file.path); err != nil {
			return err
		}
	}
	return form.Close()
}

func copyFilePart(form *multipart.Writer, field, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	part, err := form.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("stream %s: %w", field, err)
	}
	return nil
}
