package api

import "harp/internal/history"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// MessageResponse is the root endpoint greeting.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UploadResponse acknowledges an accepted upload.
type UploadResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// SideResult reports one pipeline's detection count.
type SideResult struct {
	Rows int `json:"rows"`
}

// StatusResponse is the polling view of a job.
type StatusResponse struct {
	Status        string      `json:"status"`
	Message       string      `json:"message,omitempty"`
	Rows          *int        `json:"rows,omitempty"`
	Audio         *SideResult `json:"audio,omitempty"`
	Hand          *SideResult `json:"hand,omitempty"`
	Combined      *bool       `json:"combined,omitempty"`
	AudioError    string      `json:"audio_error,omitempty"`
	HandError     string      `json:"hand_error,omitempty"`
	CombinedError string      `json:"combined_error,omitempty"`
}

// Terminal reports whether the job can no longer change.
func (s StatusResponse) Terminal() bool {
	return s.Status == "done" || s.Status == "error"
}

// JobSummary describes a job in listings.
type JobSummary struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	Mode       string `json:"mode,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	AudioRows  *int   `json:"audio_rows,omitempty"`
	HandRows   *int   `json:"hand_rows,omitempty"`
	Combined   bool   `json:"combined"`
	CreatedAt  string `json:"created_at,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// JobListResponse wraps the registry listing.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// HistoryResponse wraps ledger entries.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// WorkflowStatus summarizes job runner load.
type WorkflowStatus struct {
	Running           bool   `json:"running"`
	ActiveJobs        int    `json:"active_jobs"`
	MaxConcurrentJobs int64  `json:"max_concurrent_jobs"`
	LastError         string `json:"last_error,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockFilePath string             `json:"lock_file_path"`
	HistoryPath  string             `json:"history_path,omitempty"`
	Jobs         map[string]int     `json:"jobs"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}
