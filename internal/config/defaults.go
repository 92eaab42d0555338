package config

const (
	defaultDatasetsDir         = "~/.local/share/domin/datasets"
	defaultLogDir              = "~/.local/share/domin/logs"
	defaultRepoID              = "local/dexsuite_pick"
	defaultRobotType           = "kuka_allegro"
	defaultTask                = "pick up the cube"
	defaultFPS                 = 30
	defaultWriterThreads       = 4
	defaultHubTimeoutSeconds   = 300
	defaultNumEnvs             = 1
	defaultNumEpisodes         = 50
	defaultDevice              = "cpu"
	defaultPhysicsDT           = 0.01
	defaultEpisodeTimeS        = 8.0
	defaultResetTimeS          = 0.5
	defaultControlTicks        = 2
	defaultBackend             = "kinematic"
	defaultTargetObject        = "object_cube"
	defaultApproachTicks       = 150
	defaultGraspTicks          = 100
	defaultCloseDelayTicks     = 30
	defaultHoverHeight         = 0.2
	defaultLiftHeight          = 0.3
	defaultSuccessHeight       = 0.1
	defaultDamping             = 0.01
	defaultEEBody              = "palm_link"
	defaultSampler             = "fixed"
	defaultPlacementAttempts   = 1000
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	defaultHubTokenEnvironment = "DOMIN_HUB_TOKEN"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Dataset: Dataset{
			RepoID:                      defaultRepoID,
			RobotType:                   defaultRobotType,
			DefaultTask:                 defaultTask,
			FPS:                         defaultFPS,
			Video:                       false,
			Private:                     true,
			ImageWriterThreadsPerCamera: defaultWriterThreads,
		},
		Hub: Hub{
			TimeoutSeconds: defaultHubTimeoutSeconds,
		},
		Simulation: Simulation{
			NumEnvs:      defaultNumEnvs,
			NumEpisodes:  defaultNumEpisodes,
			Device:       defaultDevice,
			PhysicsDT:    defaultPhysicsDT,
			EpisodeTimeS: defaultEpisodeTimeS,
			ResetTimeS:   defaultResetTimeS,
			ControlTicks: defaultControlTicks,
			Mode:         ModeGeneration,
			Backend:      defaultBackend,
		},
		Task: Task{
			TargetObject:    defaultTargetObject,
			ApproachTicks:   defaultApproachTicks,
			GraspTicks:      defaultGraspTicks,
			CloseDelayTicks: defaultCloseDelayTicks,
			HoverHeight:     defaultHoverHeight,
			LiftHeight:      defaultLiftHeight,
			SuccessHeight:   defaultSuccessHeight,
			ApproachOffset:  []float64{0.10, 0.11, -0.02},
		},
		IK: IK{
			Damping: defaultDamping,
			EEBody:  defaultEEBody,
		},
		Placement: Placement{
			Sampler:     defaultSampler,
			Center:      []float64{0.16, 0.16, 0},
			Radii:       []float64{0.14, 0.18, 1e-5},
			MaxAttempts: defaultPlacementAttempts,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
