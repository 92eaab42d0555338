package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"domin/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a finalized config seeded with unique temp directories
// per test and a short episode so end-to-end runs stay fast. Options run
// before Finalize.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DatasetRoot = filepath.Join(base, "datasets", "test")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Dataset.RepoID = "local/test"
	cfgVal.Dataset.FPS = 5
	cfgVal.Dataset.ImageWriterThreadsPerCamera = 1
	cfgVal.Simulation.NumEnvs = 1
	cfgVal.Simulation.NumEpisodes = 1
	cfgVal.Simulation.EpisodeTimeS = 6
	cfgVal.Simulation.ResetTimeS = 0.1
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Finalize(); err != nil {
		t.Fatalf("finalize test config: %v", err)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create test directories: %v", err)
	}
	return builder.cfg
}

// WithNumEnvs sets the batch size and episode budget.
func WithNumEnvs(envs, episodes int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Simulation.NumEnvs = envs
		b.cfg.Simulation.NumEpisodes = episodes
	}
}

// WithMode selects generation or evaluation.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Simulation.Mode = mode
	}
}

// WithEpisodeTime overrides the episode length in seconds.
func WithEpisodeTime(seconds float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Simulation.EpisodeTimeS = seconds
	}
}

// WithResume marks the run as appending to an existing dataset.
func WithResume() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dataset.ResumeRecording = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
