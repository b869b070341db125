// Package history keeps an audit ledger of finished detection jobs in SQLite.
//
// The in-memory job registry is the source of truth while the daemon runs; the
// ledger only records each job once it reaches a terminal status so operators
// can review past runs after a restart. It is never read back to resume work.
package history
