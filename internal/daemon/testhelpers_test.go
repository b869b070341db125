package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"harp/internal/api"
	"harp/internal/artifacts"
	"harp/internal/config"
	"harp/internal/daemon"
	"harp/internal/deps"
	"harp/internal/detect"
	"harp/internal/history"
	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/workflow"
)

const audioCSV = "time,string\n0.5,A\n1.0,C\n1.5,E\n"

type stubAudio struct {
	mu      sync.Mutex
	lastReq detect.AudioRequest
}

func (s *stubAudio) Detect(_ context.Context, req detect.AudioRequest) (jobs.Result, error) {
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()
	csvPath := filepath.Join(req.OutputDir, "predictions_"+string(req.Mode)+".csv")
	videoPath := filepath.Join(req.OutputDir, "video_labeled.mp4")
	if err := os.WriteFile(csvPath, []byte(audioCSV), 0o644); err != nil {
		return jobs.Result{}, err
	}
	if err := os.WriteFile(videoPath, []byte("audio-mp4"), 0o644); err != nil {
		return jobs.Result{}, err
	}
	return jobs.Result{Rows: 3, CSVPath: csvPath, VideoPath: videoPath}, nil
}

type stubHand struct {
	err     error
	mu      sync.Mutex
	lastReq detect.HandRequest
}

func (s *stubHand) Detect(_ context.Context, req detect.HandRequest) (jobs.Result, error) {
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()
	if s.err != nil {
		return jobs.Result{}, s.err
	}
	csvPath := filepath.Join(req.OutputDir, "hits.csv")
	videoPath := filepath.Join(req.OutputDir, "hands.mp4")
	if err := os.WriteFile(csvPath, []byte("frame,string\n12,B\n"), 0o644); err != nil {
		return jobs.Result{}, err
	}
	if err := os.WriteFile(videoPath, []byte("hand-mp4"), 0o644); err != nil {
		return jobs.Result{}, err
	}
	return jobs.Result{Rows: 1, CSVPath: csvPath, VideoPath: videoPath}, nil
}

func (s *stubHand) request() detect.HandRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

type stubCombiner struct{}

func (stubCombiner) Combine(_ context.Context, req detect.CombineRequest) (string, error) {
	if err := os.WriteFile(req.Output, []byte("combined-mp4"), 0o644); err != nil {
		return "", err
	}
	return req.Output, nil
}

var errHandModel = errors.New("hand detector: exited with status 1: weights file is corrupt")

type testEnv struct {
	cfg      *config.Config
	registry *jobs.Registry
	store    *artifacts.Store
	daemon   *daemon.Daemon
	server   *httptest.Server
	hand     *stubHand
	ledger   *history.Ledger
}

type envOptions struct {
	configure func(*config.Config)
	hand      *stubHand
	history   bool
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.UploadsDir = filepath.Join(base, "uploads")
	cfg.Paths.OutputsDir = filepath.Join(base, "outputs")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = ""
	cfg.Detectors.DefaultWeights = ""
	cfg.Detectors.FallbackWeights = ""
	cfg.History.Enabled = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &cfg
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	if opts.configure != nil {
		opts.configure(cfg)
	}
	hand := opts.hand
	if hand == nil {
		hand = &stubHand{}
	}

	registry := jobs.NewRegistry()
	store, err := artifacts.NewStore(cfg.Paths.UploadsDir, cfg.Paths.OutputsDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	logger := logging.NewNop()
	managerOpts := []workflow.ManagerOption{
		workflow.WithAudioDetector(&stubAudio{}),
		workflow.WithHandDetector(hand),
		workflow.WithCombiner(stubCombiner{}),
		workflow.WithMaxConcurrentJobs(2),
	}
	daemonOpts := []daemon.Option{
		daemon.WithDependencyCheck(func(context.Context) []deps.Status {
			return []deps.Status{{Name: "FFmpeg", Command: "ffmpeg", Available: true}}
		}),
	}
	var ledger *history.Ledger
	if opts.history {
		ledger, err = history.Open(filepath.Join(cfg.Paths.DataDir, "history.db"))
		if err != nil {
			t.Fatalf("history.Open: %v", err)
		}
		managerOpts = append(managerOpts, workflow.WithHistory(ledger))
		daemonOpts = append(daemonOpts, daemon.WithHistory(ledger))
	}
	manager := workflow.NewManager(registry, store, logger, managerOpts...)

	d, err := daemon.New(cfg, logger, registry, store, manager, daemonOpts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	server := httptest.NewServer(d.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = d.Close()
	})

	return &testEnv{
		cfg:      cfg,
		registry: registry,
		store:    store,
		daemon:   d,
		server:   server,
		hand:     hand,
		ledger:   ledger,
	}
}

type formFile struct {
	field   string
	name    string
	content string
}

func (e *testEnv) upload(t *testing.T, path string, fields map[string]string, files ...formFile) (int, []byte) {
	t.Helper()
	return e.uploadOrdered(t, path, false, fields, files...)
}

// uploadOrdered builds the multipart body with the file parts either after
// (the browser order) or before the plain fields.
func (e *testEnv) uploadOrdered(t *testing.T, path string, filesFirst bool, fields map[string]string, files ...formFile) (int, []byte) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writeFields := func() {
		for key, value := range fields {
			if err := writer.WriteField(key, value); err != nil {
				t.Fatalf("WriteField: %v", err)
			}
		}
	}
	if !filesFirst {
		writeFields()
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.field, file.name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := io.WriteString(part, file.content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if filesFirst {
		writeFields()
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, &body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (e *testEnv) submit(t *testing.T, fields map[string]string, files ...formFile) string {
	t.Helper()
	code, body := e.upload(t, "/api/upload", fields, files...)
	if code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", code, body)
	}
	var resp api.UploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if resp.JobID == "" || resp.Status != "queued" {
		t.Fatalf("unexpected upload response: %+v", resp)
	}
	return resp.JobID
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.server.Client().Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) getJSON(t *testing.T, path string, wantStatus int, out any) {
	t.Helper()
	resp := e.get(t, path)
	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d, want %d (body %s)", path, resp.StatusCode, wantStatus, data)
	}
	if out == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func (e *testEnv) waitTerminal(t *testing.T, id string) api.StatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var status api.StatusResponse
		e.getJSON(t, "/api/status/"+id, http.StatusOK, &status)
		if status.Terminal() {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return api.StatusResponse{}
}

func errorBody(t *testing.T, data []byte) string {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode error body %q: %v", data, err)
	}
	return resp.Error
}

func audioFields() map[string]string {
	return map[string]string{"method": "audio", "mode": "hybrid"}
}

func videoFile() formFile {
	return formFile{field: "video", name: "performance.mp4", content: "mp4 bytes"}
}

func modelFile() formFile {
	return formFile{field: "model", name: "onset.keras", content: "keras bytes"}
}

func uploadDirs(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	entries, err := os.ReadDir(cfg.Paths.UploadsDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names
}

// jobUploads lists the stored input files of one job.
func jobUploads(t *testing.T, cfg *config.Config, jobID string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(cfg.Paths.UploadsDir, jobID))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}
