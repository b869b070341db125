// Package api defines the wire-format types shared by the HTTP server and the
// CLI client, plus converters from internal job models.
//
// # Key Types
//
// StatusResponse: the polling projection of one job. Single-method jobs carry
// a top-level rows count; both-method jobs carry per-side rows, per-side error
// strings, and a combined flag once terminal.
//
// UploadResponse: the job id and initial status returned by an upload.
//
// JobSummary/JobListResponse: the registry listing behind "harp jobs".
//
// DaemonStatus: runtime information including workflow load and dependencies.
//
// # Design Notes
//
// Field names are snake_case to match the browser frontend that consumes the
// same endpoints. Internal file paths never appear in any payload.
package api
