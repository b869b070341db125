// Package main hosts the harp CLI entrypoint and command graph.
//
// `harp serve` runs the detection daemon in the foreground. Every other
// command talks to a running daemon over its HTTP API through
// internal/client: submitting videos, polling job status, downloading
// predictions and labeled videos, and browsing the job history. Config
// scaffolding and dependency checks run locally without a daemon.
package main
