package preflight

import (
	"context"

	"harp/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks for the given config.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Uploads directory", cfg.Paths.UploadsDir),
		CheckDirectoryAccess("Outputs directory", cfg.Paths.OutputsDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	// Default weights are optional: hand jobs may upload their own.
	if weights := ResolveDefaultWeights(cfg); weights != "" {
		results = append(results, CheckFileReadable("Default weights", weights))
	} else {
		results = append(results, Result{Name: "Default weights", Passed: true, Detail: "none found (hand jobs must upload weights)"})
	}
	return results
}

// Failed filters results down to failed checks.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// ResolveDefaultWeights returns the first configured weights file that exists:
// detectors.default_weights, then detectors.fallback_weights.
func ResolveDefaultWeights(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	for _, candidate := range []string{cfg.Detectors.DefaultWeights, cfg.Detectors.FallbackWeights} {
		if candidate == "" {
			continue
		}
		if CheckFileReadable("weights", candidate).Passed {
			return candidate
		}
	}
	return ""
}
