// Package logs reads the daemon's log files for `harp logs`.
//
// Last returns the trailing lines of a file with bounded memory, and Follow
// polls the file for appended lines until its context ends, restarting from
// the top when the file is truncated or replaced by a new run's log.
package logs
