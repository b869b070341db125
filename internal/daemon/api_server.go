package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"harp/internal/api"
	"harp/internal/config"
	"harp/internal/history"
	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/services"
)

const (
	rootMessage     = "Harp String Detection API"
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

type apiServer struct {
	cfg     *config.Config
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		cfg:    cfg,
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	for _, prefix := range []string{"/api", ""} {
		mux.HandleFunc(prefix+"/upload", srv.handleUpload)
		mux.HandleFunc(prefix+"/status/{id}", srv.handleStatus)
		mux.HandleFunc(prefix+"/download/{kind}/{id}", srv.handleDownload)
		mux.HandleFunc(prefix+"/jobs", srv.handleJobs)
		mux.HandleFunc(prefix+"/history", srv.handleHistory)
	}
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/{$}", srv.handleRoot)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		srv.writeError(w, http.StatusNotFound, "not found")
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	srv.handler = srv.withRequestContext(c.Handler(mux))

	// Uploads and downloads stream large videos, so only header reads and
	// idle connections are bounded.
	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil && s.listener != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listener address, or "" when the API is not listening.
func (d *Daemon) Addr() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withRequestContext tags every request with a correlation id and logs it on
// completion.
func (s *apiServer) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := services.WithRequestID(r.Context(), requestID)

		rec := &statusRecorder{ResponseWriter: w}
		started := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if r.URL.Path == "/api/health" || strings.Contains(r.URL.Path, "/status/") {
			level = slog.LevelDebug
		}
		logging.WithContext(ctx, s.logger).Log(ctx, level, "http request", logging.Args(
			logging.String("http_method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Int64("bytes", rec.bytes),
			logging.Duration("duration", time.Since(started)),
		)...)
	})
}

func (s *apiServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.MessageResponse{Message: rootMessage})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.daemon.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	list := s.daemon.registry.List()
	if value := strings.TrimSpace(r.URL.Query().Get("status")); value != "" {
		filtered := list[:0]
		for _, job := range list {
			if string(job.Status) == value {
				filtered = append(filtered, job)
			}
		}
		list = filtered
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.SummariesFromJobs(list)})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ledger := s.daemon.history
	if ledger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "job history is disabled")
		return
	}
	limit := history.DefaultLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	entries, err := ledger.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: entries})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		HistoryPath:  status.HistoryPath,
		Jobs:         status.Jobs,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(status.Dependencies),
	})
}

// writeServiceError maps a classified error onto its HTTP status.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := services.HTTPStatus(err)
	message := services.Describe(err)
	if errors.Is(err, jobs.ErrNotFound) {
		message = "Job not found"
	}
	s.writeError(w, status, message)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
