// Package workflow runs submitted detection jobs to completion.
//
// The Manager owns one goroutine per job. A weighted semaphore bounds how many
// jobs run detectors at once; the rest stay queued until a slot frees up. Jobs
// with the "both" method fork the audio and hand pipelines with an errgroup and
// always wait for both sides, so one side failing never hides the other's
// result. When both sides succeed the combiner renders a merged video; a
// combiner failure is recorded on the job without failing it.
//
// Every outcome, including recovered panics from a pipeline, lands in the job
// registry as a terminal status. Finished jobs are written to the optional
// history ledger and logged as a job_finished event.
package workflow
