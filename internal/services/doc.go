// Package services defines shared utilities consumed by the job workflow,
// the detection adapters, and the HTTP API.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, detection methods, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (validation vs not found vs external tool) without string
//     matching.
//
// Use these helpers when wiring new pipeline logic so error classification and
// observability stay uniform across the daemon.
package services
