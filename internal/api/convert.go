package api

import (
	"time"

	"harp/internal/deps"
	"harp/internal/jobs"
	"harp/internal/workflow"
)

// FromJob projects a job onto the polling view.
func FromJob(job jobs.Job) StatusResponse {
	resp := StatusResponse{
		Status:        string(job.Status),
		Message:       job.Message,
		AudioError:    job.AudioError,
		HandError:     job.HandError,
		CombinedError: job.CombinedError,
	}
	if job.Method == jobs.MethodBoth {
		if job.Audio != nil {
			resp.Audio = &SideResult{Rows: job.Audio.Rows}
		}
		if job.Hand != nil {
			resp.Hand = &SideResult{Rows: job.Hand.Rows}
		}
		if job.Status.IsTerminal() {
			combined := job.CombinedVideoPath != ""
			resp.Combined = &combined
		}
		return resp
	}
	if rows, ok := job.Rows(); ok {
		resp.Rows = &rows
	}
	return resp
}

// SummaryFromJob converts a job for listings.
func SummaryFromJob(job jobs.Job) JobSummary {
	summary := JobSummary{
		ID:         job.ID,
		Method:     string(job.Method),
		Status:     string(job.Status),
		Message:    job.Message,
		Combined:   job.CombinedVideoPath != "",
		CreatedAt:  formatTime(job.CreatedAt),
		StartedAt:  formatTime(job.StartedAt),
		FinishedAt: formatTime(job.FinishedAt),
	}
	if job.Method.NeedsAudio() {
		summary.Mode = string(job.Params.Mode)
	}
	if job.Audio != nil {
		rows := job.Audio.Rows
		summary.AudioRows = &rows
	}
	if job.Hand != nil {
		rows := job.Hand.Rows
		summary.HandRows = &rows
	}
	return summary
}

// SummariesFromJobs converts a registry listing, preserving order.
func SummariesFromJobs(list []jobs.Job) []JobSummary {
	out := make([]JobSummary, 0, len(list))
	for _, job := range list {
		out = append(out, SummaryFromJob(job))
	}
	return out
}

// CountByStatus tallies jobs per status.
func CountByStatus(list []jobs.Job) map[string]int {
	counts := make(map[string]int, 4)
	for _, job := range list {
		counts[string(job.Status)]++
	}
	return counts
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Running:           summary.Running,
		ActiveJobs:        summary.ActiveJobs,
		MaxConcurrentJobs: summary.MaxConcurrent,
		LastError:         summary.LastError,
	}
}

// FromDependencies converts dependency check results.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
