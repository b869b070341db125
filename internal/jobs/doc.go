// Package jobs holds the in-memory job registry that every status poll reads
// from.
//
// A Registry is injected into the workflow manager and the API server; there is
// no package-level job table. Reads return deep copies so callers never observe
// a half-applied update, and Update enforces the forward-only state machine
// (queued -> running -> done|error).
package jobs
