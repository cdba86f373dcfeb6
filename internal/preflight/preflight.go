package preflight

import (
	"context"

	"spikecurate/internal/config"
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
	dirs := []struct {
		name string
		path string
	}{
		{"Recordings directory", cfg.Paths.RecordingsDir},
		{"Sortings directory", cfg.Paths.SortingsDir},
		{"Waveforms directory", cfg.Paths.WaveformsDir},
		{"Analysis directory", cfg.Paths.AnalysisDir},
		{"Temp directory", cfg.Paths.TempDir},
	}
	results := make([]Result, 0, len(dirs)+1)
	for _, dir := range dirs {
		results = append(results, CheckDirectoryAccess(dir.name, dir.path))
	}
	results = append(results, CheckLedgerPath(cfg.Paths.LedgerPath))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
