package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Recording modes.
const (
	ModeGeneration = "generation"
	ModeEvaluation = "evaluation"
)

// Paths contains directory configuration.
type Paths struct {
	DatasetRoot string `toml:"dataset_root"`
	LogDir      string `toml:"log_dir"`
}

// Dataset describes the dataset being recorded.
type Dataset struct {
	RepoID                      string   `toml:"repo_id"`
	RobotType                   string   `toml:"robot_type"`
	DefaultTask                 string   `toml:"default_task"`
	FPS                         int      `toml:"fps"`
	Video                       bool     `toml:"video"`
	ResumeRecording             bool     `toml:"resume_recording"`
	PushToHub                   bool     `toml:"push_to_hub"`
	Private                     bool     `toml:"private"`
	Tags                        []string `toml:"tags"`
	ImageWriterProcesses        int      `toml:"image_writer_processes"`
	ImageWriterThreadsPerCamera int      `toml:"image_writer_threads_per_camera"`
}

// Hub contains the remote dataset store used when pushing.
type Hub struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Simulation controls the batched control loop.
type Simulation struct {
	NumEnvs      int     `toml:"num_envs"`
	NumEpisodes  int     `toml:"num_episodes"`
	Device       string  `toml:"device"`
	PhysicsDT    float64 `toml:"physics_dt"`
	EpisodeTimeS float64 `toml:"episode_time_s"`
	ResetTimeS   float64 `toml:"reset_time_s"`
	ControlTicks int     `toml:"control_ticks"`
	Mode         string  `toml:"mode"`
	Backend      string  `toml:"backend"`
	Seed         int64   `toml:"seed"`
}

// Task holds the pick-and-lift policy parameters.
type Task struct {
	TargetObject    string    `toml:"target_object"`
	ApproachTicks   int       `toml:"approach_ticks"`
	GraspTicks      int       `toml:"grasp_ticks"`
	CloseDelayTicks int       `toml:"close_delay_ticks"`
	HoverHeight     float64   `toml:"hover_height"`
	LiftHeight      float64   `toml:"lift_height"`
	SuccessHeight   float64   `toml:"success_height"`
	ApproachOffset  []float64 `toml:"approach_offset"`
}

// IK configures the differential inverse kinematics controller.
type IK struct {
	Damping float64 `toml:"damping"`
	EEBody  string  `toml:"ee_body"`
}

// Placement selects the object placement sampler used on reset.
type Placement struct {
	Sampler     string    `toml:"sampler"`
	Center      []float64 `toml:"center"`
	Radii       []float64 `toml:"radii"`
	MaxAttempts int       `toml:"max_attempts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Timing holds values derived from Simulation and Dataset during Load.
type Timing struct {
	// SettleTicks is the number of free-running physics ticks after a reset.
	SettleTicks int
	// MacroStepsPerEpisode bounds one episode in Commanding cycles.
	MacroStepsPerEpisode int
	// RecordEvery is the control-tick stride between recorded frames.
	RecordEvery int
}

// Config encapsulates all configuration values for domin.
//
// Configuration sections by subsystem:
//   - Paths: dataset root and log directory
//   - Dataset: schema-relevant recording options and the image writer pool
//   - Hub: remote store used by push_to_hub
//   - Simulation: environment count, episode budget, loop timing
//   - Task: pick-and-lift state machine constants
//   - IK: damped least squares controller settings
//   - Placement: reset-time object placement sampler
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Dataset    Dataset    `toml:"dataset"`
	Hub        Hub        `toml:"hub"`
	Simulation Simulation `toml:"simulation"`
	Task       Task       `toml:"task"`
	IK         IK         `toml:"ik"`
	Placement  Placement  `toml:"placement"`
	Logging    Logging    `toml:"logging"`

	timing Timing
	frozen bool
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/domin/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and derived timing resolved.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Finalize normalizes and validates the configuration, then freezes the
// derived timing values. It is idempotent.
func (c *Config) Finalize() error {
	if c.frozen {
		return nil
	}
	if err := c.normalize(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.timing = c.deriveTiming()
	c.frozen = true
	return nil
}

// Override returns a finalized copy of c with apply run against it. The
// receiver is left untouched.
func (c *Config) Override(apply func(*Config)) (*Config, error) {
	clone := *c
	clone.Dataset.Tags = append([]string(nil), c.Dataset.Tags...)
	clone.frozen = false
	if apply != nil {
		apply(&clone)
	}
	if err := clone.Finalize(); err != nil {
		return nil, err
	}
	return &clone, nil
}

// Timing returns the derived loop timing. It is only meaningful after Finalize.
func (c *Config) Timing() Timing {
	return c.timing
}

// Frozen reports whether Finalize completed.
func (c *Config) Frozen() bool {
	return c.frozen
}

// ImageWriterThreads returns the total writer thread count for the given
// number of cameras.
func (c *Config) ImageWriterThreads(cameras int) int {
	if cameras <= 0 {
		return 0
	}
	return c.Dataset.ImageWriterThreadsPerCamera * cameras
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("domin.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for a recording run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, filepath.Dir(c.Paths.DatasetRoot)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
