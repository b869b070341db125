// Package daemon coordinates the long-running harp process and its HTTP API.
//
// It wires configuration, the job registry, the artifact store, the workflow
// manager, and the optional history ledger into a single lifecycle with
// flock-based locking to prevent multiple instances. The daemon owns the
// upload, status, and download endpoints, a periodic retention sweep of old
// job artifacts, and a cached dependency health summary.
//
// Keep orchestration logic here: detection and combining live in their
// respective packages while the daemon focuses on startup, shutdown, request
// validation, and high level coordination.
package daemon
