// Package preflight provides readiness checks for the filesystem paths and
// external tools harp depends on.
//
// The daemon runs RunAll at startup and logs every failed check as a warning;
// "harp deps" prints the same results as a table. Checks never abort startup on
// their own because a missing detector only affects jobs that need it.
package preflight
