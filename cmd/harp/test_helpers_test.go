package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	binDir     string
	configPath string
}

// setupCLITestEnv writes a config rooted in a temp dir with fast client
// polling and stub detector binaries.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	writeStub(t, filepath.Join(binDir, "audio-detect"), "exit 0\n")
	writeStub(t, filepath.Join(binDir, "hand-detect"), "exit 0\n")
	writeStub(t, filepath.Join(binDir, "ffprobe"), "exit 0\n")
	writeStub(t, filepath.Join(binDir, "ffmpeg"), "echo ' T.. subtitles         V->V       Render text subtitles onto input video using the libass library.'\n")

	env := &cliTestEnv{
		baseDir:    base,
		binDir:     binDir,
		configPath: filepath.Join(homeDir, ".config", "harp", "config.toml"),
	}
	env.writeConfig(t, "")
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T, extra string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(e.configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	content := fmt.Sprintf(`[paths]
data_dir = %q

[detectors]
audio_command = [%q]
hand_command = [%q]

[ffmpeg]
binary = %q
ffprobe_binary = %q

[history]
enabled = false

[client]
poll_interval_ms = 5
backoff_interval_ms = 10
%s`,
		filepath.Join(e.baseDir, "data"),
		filepath.Join(e.binDir, "audio-detect"),
		filepath.Join(e.binDir, "hand-detect"),
		filepath.Join(e.binDir, "ffmpeg"),
		filepath.Join(e.binDir, "ffprobe"),
		extra,
	)
	if err := os.WriteFile(e.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeStub(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
}

func runCLI(t *testing.T, args []string, apiURL, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiURL != "" {
		flags = append(flags, "--api-url", apiURL)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// fakeAPI serves canned daemon responses and records what it received.
type fakeAPI struct {
	mu       sync.Mutex
	statuses []any
	polls    int
	uploads  []map[string]string
	handlers map[string]http.HandlerFunc
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	fake := &fakeAPI{handlers: make(map[string]http.HandlerFunc)}
	server := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeAPI) handle(path string, fn http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = fn
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	handler, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()
	if ok {
		handler(w, r)
		return
	}
	switch {
	case r.URL.Path == "/api/upload":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		fields := map[string]string{}
		for key, values := range r.MultipartForm.Value {
			fields[key] = values[0]
		}
		for key, files := range r.MultipartForm.File {
			fields[key+"_file"] = files[0].Filename
		}
		f.mu.Lock()
		f.uploads = append(f.uploads, fields)
		f.mu.Unlock()
		respondJSON(w, http.StatusOK, map[string]string{"job_id": "job-1", "status": "queued"})
	case strings.HasPrefix(r.URL.Path, "/api/status/"):
		f.mu.Lock()
		if len(f.statuses) == 0 {
			f.mu.Unlock()
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
			return
		}
		idx := f.polls
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		f.polls++
		payload := f.statuses[idx]
		f.mu.Unlock()
		respondJSON(w, http.StatusOK, payload)
	default:
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
