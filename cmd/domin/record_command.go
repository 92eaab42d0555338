package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"domin/internal/config"
	"domin/internal/deps"
	"domin/internal/hub"
	"domin/internal/logging"
	"domin/internal/orchestrator"
	"domin/internal/placement"
	"domin/internal/preflight"
	"domin/internal/recorder"
	"domin/internal/scene"
	"domin/internal/scene/kinematic"
	"domin/internal/task"
	"domin/internal/videoenc"
)

type recordFlags struct {
	envs          int
	episodes      int
	mode          string
	resume        bool
	seed          int64
	skipPreflight bool
}

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var flags recordFlags

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Run the batched pick-and-lift loop and record demonstrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := applyRecordFlags(cmd, ctx.configValue(), flags)
			if err != nil {
				return err
			}
			stats, err := runRecord(cmd, cfg, flags.skipPreflight)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats))
			return nil
		},
	}

	cmd.Flags().IntVar(&flags.envs, "envs", 0, "Override simulation.num_envs")
	cmd.Flags().IntVar(&flags.episodes, "episodes", 0, "Override simulation.num_episodes")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "Override simulation.mode (generation or evaluation)")
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "Append to an existing dataset")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "Override simulation.seed")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-preflight", false, "Skip environment checks before recording")
	return cmd
}

func applyRecordFlags(cmd *cobra.Command, cfg *config.Config, flags recordFlags) (*config.Config, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	changed := cmd.Flags().Changed
	if !changed("envs") && !changed("episodes") && !changed("mode") && !changed("resume") && !changed("seed") {
		return cfg, nil
	}
	updated, err := cfg.Override(func(c *config.Config) {
		if changed("envs") {
			c.Simulation.NumEnvs = flags.envs
		}
		if changed("episodes") {
			c.Simulation.NumEpisodes = flags.episodes
		}
		if changed("mode") {
			c.Simulation.Mode = flags.mode
		}
		if changed("resume") {
			c.Dataset.ResumeRecording = flags.resume
		}
		if changed("seed") {
			c.Simulation.Seed = flags.seed
		}
	})
	if err != nil {
		return nil, fmt.Errorf("apply flags: %w", err)
	}
	return updated, nil
}

func runRecord(cmd *cobra.Command, cfg *config.Config, skipPreflight bool) (orchestrator.Stats, error) {
	runID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg, runID)
	if err != nil {
		return orchestrator.Stats{}, fmt.Errorf("init logger: %w", err)
	}
	if removed := logging.CleanupRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logging.RunLogPath(cfg.Paths.LogDir, runID)); removed > 0 {
		logger.Debug("old run logs removed", logging.Int("count", removed))
	}

	if !skipPreflight {
		results := preflight.RunAll(cmd.Context(), cfg)
		if failed := preflight.Failed(results); len(failed) > 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), renderPreflight(failed, shouldColorize(cmd.ErrOrStderr())))
			return orchestrator.Stats{}, fmt.Errorf("%d preflight check(s) failed", len(failed))
		}
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
	defer stop()

	orch, err := buildOrchestrator(runCtx, cfg, runID, logger)
	if err != nil {
		return orchestrator.Stats{}, err
	}

	logger.Debug("dataset target", logging.String("dataset_root", cfg.Paths.DatasetRoot))
	return orch.Run(runCtx)
}

func buildOrchestrator(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	sim, err := kinematic.New(kinematic.Options{
		Manifest:  scene.DefaultManifest(cfg.IK.EEBody),
		NumEnvs:   cfg.Simulation.NumEnvs,
		PhysicsDT: cfg.Simulation.PhysicsDT,
	})
	if err != nil {
		return nil, err
	}

	policy, err := task.NewPickLift(task.PickLiftOptionsFromConfig(cfg.Task, sim.Manifest().NumHandJoints()))
	if err != nil {
		_ = sim.Close()
		return nil, err
	}
	sampler, err := placement.FromConfig(cfg.Placement, cfg.Simulation.Seed)
	if err != nil {
		_ = sim.Close()
		return nil, err
	}

	opts := recorder.OptionsFromConfig(cfg, sim.Manifest())
	opts.Publisher = hub.NewPublisher(cfg, logger)
	opts.Logger = logger
	if cfg.Dataset.Video {
		opts.Encoder = videoenc.NewPipeline(videoenc.Options{
			FFmpegBinary: deps.ResolveFFmpegPath(),
			Logger:       logger,
		})
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithSampler(sampler),
		orchestrator.WithLogger(logger),
		orchestrator.WithRunID(runID),
	}
	group, err := recorder.Open(ctx, opts)
	if err != nil {
		_ = sim.Close()
		return nil, err
	}
	orchOpts = append(orchOpts, orchestrator.WithRecorders(group))

	orch, err := orchestrator.New(sim, policy, orchestrator.SettingsFromConfig(cfg), orchOpts...)
	if err != nil {
		_ = group.Close(context.WithoutCancel(ctx))
		_ = sim.Close()
		return nil, err
	}
	return orch, nil
}

func renderStats(stats orchestrator.Stats) string {
	summary := renderTable([]column{{title: "Field"}, {title: "Value"}}, [][]string{
		{"Mode", stats.Mode},
		{"Environments", strconv.Itoa(stats.NumEnvs)},
		{"Rounds", humanize.Comma(int64(stats.Rounds))},
		{"Attempts", humanize.Comma(int64(stats.Attempts))},
		{"Successes", humanize.Comma(int64(stats.Successes))},
		{"Success rate", formatRate(stats.SuccessRate())},
		{"Committed", humanize.Comma(int64(stats.Committed))},
		{"Discarded", humanize.Comma(int64(stats.Discarded))},
		{"Frames", humanize.Comma(int64(stats.Frames))},
		{"Physics ticks", humanize.Comma(int64(stats.Ticks))},
		{"Elapsed", stats.Elapsed.Round(time.Millisecond).String()},
		{"Stopped", stats.StopReason},
	})
	labels := stats.LabelCounts()
	if len(labels) == 0 {
		return summary
	}
	rows := make([][]string, 0, len(labels))
	for _, lc := range labels {
		rows = append(rows, []string{lc.Label, strconv.Itoa(lc.Count)})
	}
	return strings.Join([]string{summary, renderTable([]column{{title: "Outcome"}, {title: "Count", right: true}}, rows)}, "\n")
}
