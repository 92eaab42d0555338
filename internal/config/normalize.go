package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeDataset()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHub()
	c.normalizeSimulation()
	c.normalizePlacement()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeDataset() {
	c.Dataset.RepoID = strings.Trim(strings.TrimSpace(c.Dataset.RepoID), "/")
	c.Dataset.RobotType = strings.TrimSpace(c.Dataset.RobotType)
	c.Dataset.DefaultTask = strings.TrimSpace(c.Dataset.DefaultTask)
	if len(c.Dataset.Tags) > 0 {
		tags := make([]string, 0, len(c.Dataset.Tags))
		seen := make(map[string]struct{}, len(c.Dataset.Tags))
		for _, tag := range c.Dataset.Tags {
			normalized := strings.TrimSpace(tag)
			if normalized == "" {
				continue
			}
			if _, exists := seen[normalized]; exists {
				continue
			}
			seen[normalized] = struct{}{}
			tags = append(tags, normalized)
		}
		c.Dataset.Tags = tags
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DatasetRoot) == "" {
		c.Paths.DatasetRoot = filepath.Join(defaultDatasetsDir, datasetDirName(c.Dataset.RepoID))
	}
	if c.Paths.DatasetRoot, err = expandPath(c.Paths.DatasetRoot); err != nil {
		return fmt.Errorf("paths.dataset_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeHub() {
	c.Hub.BaseURL = strings.TrimRight(strings.TrimSpace(c.Hub.BaseURL), "/")
	c.Hub.Token = strings.TrimSpace(c.Hub.Token)
	if c.Hub.Token == "" {
		if value, ok := os.LookupEnv(defaultHubTokenEnvironment); ok {
			c.Hub.Token = strings.TrimSpace(value)
		}
	}
	if c.Hub.TimeoutSeconds <= 0 {
		c.Hub.TimeoutSeconds = defaultHubTimeoutSeconds
	}
}

func (c *Config) normalizeSimulation() {
	c.Simulation.Mode = strings.ToLower(strings.TrimSpace(c.Simulation.Mode))
	if c.Simulation.Mode == "" {
		c.Simulation.Mode = ModeGeneration
	}
	c.Simulation.Backend = strings.ToLower(strings.TrimSpace(c.Simulation.Backend))
	if c.Simulation.Backend == "" {
		c.Simulation.Backend = defaultBackend
	}
	c.Simulation.Device = strings.TrimSpace(c.Simulation.Device)
	if c.Simulation.Device == "" {
		c.Simulation.Device = defaultDevice
	}
}

func (c *Config) normalizePlacement() {
	c.Placement.Sampler = strings.ToLower(strings.TrimSpace(c.Placement.Sampler))
	if c.Placement.Sampler == "" {
		c.Placement.Sampler = defaultSampler
	}
	if c.Placement.MaxAttempts <= 0 {
		c.Placement.MaxAttempts = defaultPlacementAttempts
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) deriveTiming() Timing {
	dt := c.Simulation.PhysicsDT
	settle := int(math.Round(c.Simulation.ResetTimeS / dt))
	if settle < 1 {
		settle = 1
	}
	macro := int(math.Round(c.Simulation.EpisodeTimeS / (dt * float64(c.Simulation.ControlTicks))))
	if macro < 1 {
		macro = 1
	}
	stride := int(math.Round(1 / (float64(c.Dataset.FPS) * dt)))
	if stride < 1 {
		stride = 1
	}
	return Timing{
		SettleTicks:          settle,
		MacroStepsPerEpisode: macro,
		RecordEvery:          stride,
	}
}

func datasetDirName(repoID string) string {
	name := strings.ReplaceAll(strings.TrimSpace(repoID), "/", "__")
	if name == "" {
		return "dataset"
	}
	return name
}
