package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"harp/internal/artifacts"
	"harp/internal/detect"
	"harp/internal/history"
	"harp/internal/jobs"
	"harp/internal/media/ffprobe"
)

// writeOutputs creates a predictions CSV with rows data lines and an empty
// video in dir, the way a real pipeline leaves them.
func writeOutputs(dir, csvName, videoName string, rows int) (jobs.Result, error) {
	content := "time,string\n"
	for i := 0; i < rows; i++ {
		content += "0.5,A\n"
	}
	csvPath := filepath.Join(dir, csvName)
	videoPath := filepath.Join(dir, videoName)
	if err := os.WriteFile(csvPath, []byte(content), 0o644); err != nil {
		return jobs.Result{}, err
	}
	if err := os.WriteFile(videoPath, []byte("mp4"), 0o644); err != nil {
		return jobs.Result{}, err
	}
	return jobs.Result{Rows: rows, CSVPath: csvPath, VideoPath: videoPath}, nil
}

type fakeAudio struct {
	rows     int
	err      error
	panicMsg string
	subtitle bool
	block    chan struct{}
	calls    atomic.Int32
	lastReq  atomic.Pointer[detect.AudioRequest]
}

func (f *fakeAudio) Detect(ctx context.Context, req detect.AudioRequest) (jobs.Result, error) {
	f.calls.Add(1)
	f.lastReq.Store(&req)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return jobs.Result{}, ctx.Err()
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return jobs.Result{}, f.err
	}
	if f.subtitle {
		if err := os.WriteFile(filepath.Join(req.OutputDir, detect.SubtitleFileName), []byte("1\n"), 0o644); err != nil {
			return jobs.Result{}, err
		}
	}
	return writeOutputs(req.OutputDir, "predictions_"+string(req.Mode)+".csv", "video_labeled.mp4", f.rows)
}

type fakeHand struct {
	rows    int
	err     error
	calls   atomic.Int32
	lastReq atomic.Pointer[detect.HandRequest]
}

func (f *fakeHand) Detect(_ context.Context, req detect.HandRequest) (jobs.Result, error) {
	f.calls.Add(1)
	f.lastReq.Store(&req)
	if f.err != nil {
		return jobs.Result{}, f.err
	}
	return writeOutputs(req.OutputDir, "hits.csv", "hands.mp4", f.rows)
}

type fakeCombiner struct {
	err     error
	calls   atomic.Int32
	mu      sync.Mutex
	lastReq detect.CombineRequest
}

func (f *fakeCombiner) Combine(_ context.Context, req detect.CombineRequest) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if err := os.WriteFile(req.Output, []byte("mp4"), 0o644); err != nil {
		return "", err
	}
	return req.Output, nil
}

func (f *fakeCombiner) request() detect.CombineRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type fakeProber struct {
	result ffprobe.Result
	err    error
}

func (f fakeProber) Inspect(context.Context, string) (ffprobe.Result, error) {
	return f.result, f.err
}

type memoryHistory struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (h *memoryHistory) Record(_ context.Context, entry history.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

func (h *memoryHistory) snapshot() []history.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Entry(nil), h.entries...)
}

type harness struct {
	registry *jobs.Registry
	store    *artifacts.Store
	root     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	store, err := artifacts.NewStore(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return &harness{registry: jobs.NewRegistry(), store: store, root: root}
}

func (h *harness) createJob(t *testing.T, method jobs.Method) jobs.Job {
	t.Helper()
	video := filepath.Join(h.root, "input.mp4")
	if err := os.WriteFile(video, []byte("mp4"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	job, err := h.registry.Create(method, jobs.Params{
		Video: video,
		Model: filepath.Join(h.root, "model.keras"),
		Mode:  jobs.ModeHybrid,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

// waitTerminal polls the registry the same way API clients do.
func waitTerminal(t *testing.T, registry *jobs.Registry, id string) jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := registry.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return jobs.Job{}
}

var errMalformedModel = errors.New("audio detector: exited with status 1: OSError: unable to open model file")
