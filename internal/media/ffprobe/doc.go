// Package ffprobe wraps the ffprobe CLI so stored uploads can be checked for
// usable video and audio streams before a detector is launched.
//
// Inspect returns a typed Result with stream and container metadata; Prober
// binds a configured binary so the workflow can depend on a small interface.
package ffprobe
