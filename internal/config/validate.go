package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDataset(); err != nil {
		return err
	}
	if err := c.validateHub(); err != nil {
		return err
	}
	if err := c.validateSimulation(); err != nil {
		return err
	}
	if err := c.validateTask(); err != nil {
		return err
	}
	if err := c.validateIK(); err != nil {
		return err
	}
	if err := c.validatePlacement(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDataset() error {
	if c.Dataset.RepoID == "" {
		return errors.New("dataset.repo_id must be set")
	}
	if c.Dataset.RobotType == "" {
		return errors.New("dataset.robot_type must be set")
	}
	if c.Dataset.DefaultTask == "" {
		return errors.New("dataset.default_task must be set")
	}
	if c.Dataset.FPS <= 0 {
		return errors.New("dataset.fps must be positive")
	}
	if c.Dataset.ImageWriterProcesses < 0 {
		return errors.New("dataset.image_writer_processes must not be negative")
	}
	if c.Dataset.ImageWriterThreadsPerCamera <= 0 {
		return errors.New("dataset.image_writer_threads_per_camera must be positive")
	}
	return nil
}

func (c *Config) validateHub() error {
	if !c.Dataset.PushToHub {
		return nil
	}
	if c.Hub.BaseURL == "" {
		return errors.New("hub.base_url must be set when dataset.push_to_hub is true")
	}
	if !strings.HasPrefix(c.Hub.BaseURL, "http://") && !strings.HasPrefix(c.Hub.BaseURL, "https://") {
		return fmt.Errorf("hub.base_url must be an http(s) URL, got %q", c.Hub.BaseURL)
	}
	return nil
}

func (c *Config) validateSimulation() error {
	if err := ensurePositiveMap(map[string]int{
		"simulation.num_envs":      c.Simulation.NumEnvs,
		"simulation.num_episodes":  c.Simulation.NumEpisodes,
		"simulation.control_ticks": c.Simulation.ControlTicks,
	}); err != nil {
		return err
	}
	if c.Simulation.PhysicsDT <= 0 {
		return errors.New("simulation.physics_dt must be positive")
	}
	if c.Simulation.EpisodeTimeS <= 0 {
		return errors.New("simulation.episode_time_s must be positive")
	}
	if c.Simulation.ResetTimeS < 0 {
		return errors.New("simulation.reset_time_s must not be negative")
	}
	switch c.Simulation.Mode {
	case ModeGeneration, ModeEvaluation:
	default:
		return fmt.Errorf("simulation.mode: unsupported value %q (want %s or %s)", c.Simulation.Mode, ModeGeneration, ModeEvaluation)
	}
	if c.Simulation.Backend != defaultBackend {
		return fmt.Errorf("simulation.backend: unsupported value %q", c.Simulation.Backend)
	}
	return nil
}

func (c *Config) validateTask() error {
	if strings.TrimSpace(c.Task.TargetObject) == "" {
		return errors.New("task.target_object must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"task.approach_ticks": c.Task.ApproachTicks,
		"task.grasp_ticks":    c.Task.GraspTicks,
	}); err != nil {
		return err
	}
	if c.Task.CloseDelayTicks < 0 || c.Task.CloseDelayTicks >= c.Task.GraspTicks {
		return errors.New("task.close_delay_ticks must be in [0, task.grasp_ticks)")
	}
	if c.Task.SuccessHeight <= 0 {
		return errors.New("task.success_height must be positive")
	}
	if len(c.Task.ApproachOffset) != 3 {
		return fmt.Errorf("task.approach_offset must have 3 components, got %d", len(c.Task.ApproachOffset))
	}
	return nil
}

func (c *Config) validateIK() error {
	if c.IK.Damping <= 0 {
		return errors.New("ik.damping must be positive")
	}
	if strings.TrimSpace(c.IK.EEBody) == "" {
		return errors.New("ik.ee_body must be set")
	}
	return nil
}

func (c *Config) validatePlacement() error {
	switch c.Placement.Sampler {
	case "fixed":
		return nil
	case "ellipsoid":
	default:
		return fmt.Errorf("placement.sampler: unsupported value %q", c.Placement.Sampler)
	}
	if len(c.Placement.Center) != 3 {
		return errors.New("placement.center must have 3 components")
	}
	if len(c.Placement.Radii) != 3 {
		return errors.New("placement.radii must have 3 components")
	}
	for _, r := range c.Placement.Radii {
		if r < 0 {
			return errors.New("placement.radii must not be negative")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
