// Package client talks to a running harp daemon over its HTTP API. It backs
// the CLI commands that submit uploads, poll job status, and fetch artifacts.
package client
