package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"domin/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndDerivesTiming(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DOMIN_HUB_TOKEN", "env-token")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantRoot := filepath.Join(tempHome, ".local", "share", "domin", "datasets", "local__dexsuite_pick")
	if cfg.Paths.DatasetRoot != wantRoot {
		t.Fatalf("unexpected dataset root: got %q want %q", cfg.Paths.DatasetRoot, wantRoot)
	}
	if cfg.Hub.Token != "env-token" {
		t.Fatalf("expected hub token from env, got %q", cfg.Hub.Token)
	}
	if !cfg.Frozen() {
		t.Fatal("expected loaded config to be frozen")
	}

	timing := cfg.Timing()
	if timing.SettleTicks != 50 {
		t.Fatalf("unexpected settle ticks: %d", timing.SettleTicks)
	}
	if timing.MacroStepsPerEpisode != 400 {
		t.Fatalf("unexpected macro steps per episode: %d", timing.MacroStepsPerEpisode)
	}
	if timing.RecordEvery != 3 {
		t.Fatalf("unexpected record stride: %d", timing.RecordEvery)
	}
	if cfg.ImageWriterThreads(4) != 16 {
		t.Fatalf("unexpected writer threads: %d", cfg.ImageWriterThreads(4))
	}
	if cfg.ImageWriterThreads(0) != 0 {
		t.Fatal("expected zero writer threads without cameras")
	}
}

func TestLoadReadsTOMLOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "domin.toml")

	cfg := config.Default()
	cfg.Paths.DatasetRoot = filepath.Join(dir, "ds")
	cfg.Simulation.NumEnvs = 4
	cfg.Simulation.Mode = "Evaluation"
	cfg.Dataset.FPS = 60
	cfg.Dataset.Tags = []string{" sim ", "sim", "", "pick"}
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected file to be found at %q, got %q exists=%v", path, resolved, exists)
	}
	if loaded.Simulation.NumEnvs != 4 {
		t.Fatalf("unexpected num_envs: %d", loaded.Simulation.NumEnvs)
	}
	if loaded.Simulation.Mode != config.ModeEvaluation {
		t.Fatalf("expected normalized mode, got %q", loaded.Simulation.Mode)
	}
	if got := strings.Join(loaded.Dataset.Tags, ","); got != "sim,pick" {
		t.Fatalf("unexpected tags: %q", got)
	}
	if loaded.Timing().RecordEvery != 2 {
		t.Fatalf("unexpected stride for 60 fps: %d", loaded.Timing().RecordEvery)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[simulation]\nnum_env = 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"num envs", func(c *config.Config) { c.Simulation.NumEnvs = 0 }, "simulation.num_envs"},
		{"fps", func(c *config.Config) { c.Dataset.FPS = 0 }, "dataset.fps"},
		{"mode", func(c *config.Config) { c.Simulation.Mode = "replay" }, "simulation.mode"},
		{"close delay", func(c *config.Config) { c.Task.CloseDelayTicks = 100 }, "task.close_delay_ticks"},
		{"offset", func(c *config.Config) { c.Task.ApproachOffset = []float64{1} }, "task.approach_offset"},
		{"push without hub", func(c *config.Config) { c.Dataset.PushToHub = true }, "hub.base_url"},
		{"sampler", func(c *config.Config) { c.Placement.Sampler = "grid" }, "placement.sampler"},
		{"damping", func(c *config.Config) { c.IK.Damping = 0 }, "ik.damping"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Finalize()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
			if cfg.Frozen() {
				t.Fatal("invalid config must not be frozen")
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Task.TargetObject != "object_cube" {
		t.Fatalf("unexpected sample target: %q", cfg.Task.TargetObject)
	}
}

func TestOverrideRevalidatesCopy(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	envs := cfg.Simulation.NumEnvs

	updated, err := cfg.Override(func(c *config.Config) {
		c.Simulation.NumEnvs = envs + 3
		c.Simulation.Mode = " Evaluation "
	})
	if err != nil {
		t.Fatalf("Override returned error: %v", err)
	}
	if updated.Simulation.NumEnvs != envs+3 || updated.Simulation.Mode != config.ModeEvaluation {
		t.Fatalf("override not applied: %+v", updated.Simulation)
	}
	if !updated.Frozen() || updated.Timing() != cfg.Timing() {
		t.Fatalf("expected frozen copy with the same timing, got %+v", updated.Timing())
	}
	if cfg.Simulation.NumEnvs != envs {
		t.Fatal("override mutated the original config")
	}

	if _, err := cfg.Override(func(c *config.Config) { c.Simulation.NumEnvs = 0 }); err == nil {
		t.Fatal("expected invalid override to fail validation")
	}
}
