// Package detect runs the external detection pipelines and the ffmpeg
// combiner.
//
// The audio onset model and the hand/string vision pipeline are opaque
// executables configured as argv prefixes. Each adapter appends its inputs as
// flags, waits for the process, then locates the CSV and annotated video it
// produced (either reported as a JSON line on stdout or found by conventional
// file names in the output directory). Failures come back as *ToolError so the
// workflow can record them on the job without inspecting process details.
package detect
