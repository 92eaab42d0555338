package preflight

import (
	"context"
	"path/filepath"

	"domin/internal/config"
	"domin/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// MinFreeBytes is the free space required under the dataset root.
const MinFreeBytes uint64 = 1 << 30

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	parent := filepath.Dir(cfg.Paths.DatasetRoot)
	results := []Result{
		CheckDirectoryAccess("Dataset directory", parent),
		CheckFreeSpace("Dataset free space", parent, MinFreeBytes),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDataset(cfg.Paths.DatasetRoot, cfg.Dataset.ResumeRecording),
	}

	if cfg.Dataset.Video {
		for _, status := range CheckSystemDeps(ctx, cfg) {
			results = append(results, fromStatus(status))
		}
	}

	if cfg.Dataset.PushToHub {
		results = append(results, CheckHub(ctx, cfg.Hub.BaseURL, cfg.Hub.Token))
	}
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

func fromStatus(status deps.Status) Result {
	return Result{Name: status.Name, Passed: status.OK(), Detail: status.Detail()}
}
