package orchestrator

import (
	"fmt"
	"log/slog"
	"sync"

	"domin/internal/config"
	"domin/internal/faults"
	"domin/internal/ik"
	"domin/internal/logging"
	"domin/internal/placement"
	"domin/internal/recorder"
	"domin/internal/scene"
	"domin/internal/task"
)

// State is a control loop state.
type State int

const (
	StateSettling State = iota
	StateCommanding
	StateControlling
)

func (s State) String() string {
	switch s {
	case StateSettling:
		return "settling"
	case StateCommanding:
		return "commanding"
	case StateControlling:
		return "controlling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Settings are the loop parameters taken from configuration.
type Settings struct {
	Mode         string
	EEBody       string
	ControlTicks int
	NumEpisodes  int
	Damping      float64
	Task         string
	Timing       config.Timing
}

// SettingsFromConfig reads Settings from a finalized config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Mode:         cfg.Simulation.Mode,
		EEBody:       cfg.IK.EEBody,
		ControlTicks: cfg.Simulation.ControlTicks,
		NumEpisodes:  cfg.Simulation.NumEpisodes,
		Damping:      cfg.IK.Damping,
		Task:         cfg.Dataset.DefaultTask,
		Timing:       cfg.Timing(),
	}
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithRecorders attaches the recording group. Without one nothing is
// persisted.
func WithRecorders(g *recorder.Group) Option {
	return func(o *Orchestrator) { o.recorders = g }
}

// WithSampler sets the reset-time placement sampler. The default is
// placement.Fixed.
func WithSampler(s placement.Sampler) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sampler = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRunID tags persisted attempts with a run identifier.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// Orchestrator owns the simulator, the per-env task state and the IK
// solver for the duration of a run.
type Orchestrator struct {
	sim       scene.Simulator
	policy    task.Policy
	solver    *ik.Solver
	sampler   placement.Sampler
	recorders *recorder.Group
	settings  Settings
	logger    *slog.Logger
	runID     string

	manifest scene.Manifest
	props    scene.StaticProps
	numEnvs  int
	arm      int
	home     [][]float64

	state   *task.EnvironmentState
	loop    State
	gripper [][]float64
	start   scene.WorldState
	ticks   int
	stats   Stats

	episodeTicks int

	shutdownOnce sync.Once
	shutdownErr  error
}

// New checks its collaborators and builds an orchestrator. A nil policy or
// simulator is a contract violation.
func New(sim scene.Simulator, policy task.Policy, settings Settings, opts ...Option) (*Orchestrator, error) {
	if policy == nil {
		return nil, faults.Wrap(faults.ErrContract, "orchestrator", "new", "task policy is required", nil)
	}
	if sim == nil {
		return nil, faults.Wrap(faults.ErrContract, "orchestrator", "new", "simulator is required", nil)
	}
	if settings.ControlTicks <= 0 || settings.NumEpisodes <= 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, "orchestrator", "new", "control ticks and episode count must be positive", nil)
	}
	if settings.Timing.MacroStepsPerEpisode <= 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, "orchestrator", "new", "episode has no macro-steps", nil)
	}
	switch settings.Mode {
	case "":
		settings.Mode = config.ModeGeneration
	case config.ModeGeneration, config.ModeEvaluation:
	default:
		return nil, faults.Wrap(faults.ErrConfiguration, "orchestrator", "new", fmt.Sprintf("unknown mode %q", settings.Mode), nil)
	}
	settings.Timing.RecordEvery = max(1, settings.Timing.RecordEvery)

	manifest := sim.Manifest()
	if settings.EEBody == "" {
		settings.EEBody = manifest.Robot.EEBody
	}
	numEnvs := sim.NumEnvs()
	solver, err := ik.NewSolver(numEnvs, manifest.NumArmJoints(), settings.Damping)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		sim:      sim,
		policy:   policy,
		solver:   solver,
		sampler:  placement.NewFixed(),
		settings: settings,
		manifest: manifest,
		props:    sim.StaticProps(),
		numEnvs:  numEnvs,
		arm:      manifest.NumArmJoints(),
		home:     sim.JointPositions(),
		state:    task.NewEnvironmentState(numEnvs),
		gripper:  make([][]float64, numEnvs),
		stats:    newStats(settings.Mode, numEnvs),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "orchestrator")
	if o.recorders != nil && o.recorders.Len() != numEnvs {
		return nil, faults.Wrap(faults.ErrContract, "orchestrator", "new",
			fmt.Sprintf("%d recorders for %d environments", o.recorders.Len(), numEnvs), nil)
	}
	return o, nil
}

// EnvironmentState exposes the batched phase and timer state.
func (o *Orchestrator) EnvironmentState() *task.EnvironmentState { return o.state }

// LoopState returns the current loop state.
func (o *Orchestrator) LoopState() State { return o.loop }
