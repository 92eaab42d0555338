package orchestrator

import (
	"context"
	"slices"

	"domin/internal/config"
	"domin/internal/dataset"
	"domin/internal/logging"
	"domin/internal/scene"
	"domin/internal/task"
)

func (o *Orchestrator) generating() bool { return o.settings.Mode == config.ModeGeneration }

// endEpisode evaluates every environment against the episode's start
// snapshot and keeps or discards its recording.
func (o *Orchestrator) endEpisode(ctx context.Context) error {
	end, err := scene.Snapshot(o.sim)
	if err != nil {
		return err
	}
	outcome, err := o.policy.Evaluate(o.state, o.start, end)
	if err != nil {
		return err
	}
	o.stats.Rounds++
	o.logger.Debug("episode phases",
		logging.Int("approach", o.state.Count(task.PhaseApproach)),
		logging.Int("grasp", o.state.Count(task.PhaseGrasp)),
		logging.Int("lift", o.state.Count(task.PhaseLift)),
	)

	for env := range o.numEnvs {
		success := outcome.Success[env]
		label := outcome.Labels[env]
		o.stats.observe(label, success)

		episode := -1
		if o.generating() {
			keep := success && o.stats.Committed < o.settings.NumEpisodes
			if episode, err = o.finishGeneration(ctx, env, keep); err != nil {
				return err
			}
			if keep {
				o.stats.Committed++
			} else {
				o.stats.Discarded++
			}
		} else {
			o.stats.Committed++
		}

		if o.recorders != nil {
			err := o.recorders.Dataset().RecordAttempt(ctx, dataset.Attempt{
				RunID:   o.runID,
				Env:     env,
				Label:   label,
				Success: success,
				Height:  outcome.Heights[env],
				Episode: episode,
			})
			if err != nil {
				return err
			}
		}

		attrs := []logging.Attr{
			logging.Int(logging.FieldEnvIndex, env),
			logging.String("label", label),
			logging.Bool("success", success),
			logging.Float64("height", outcome.Heights[env]),
			logging.Float64("lifted", outcome.Lifted[env]),
		}
		if episode >= 0 {
			attrs = append(attrs, logging.Int(logging.FieldEpisodeIndex, episode))
		}
		o.logger.Info("episode finished", logging.Args(attrs...)...)
	}
	return nil
}

// finishGeneration commits or discards env's buffered episode and returns
// the committed index or -1.
func (o *Orchestrator) finishGeneration(ctx context.Context, env int, keep bool) (int, error) {
	if o.recorders == nil {
		return -1, nil
	}
	rec := o.recorders.Recorder(env)
	if !keep {
		return -1, rec.Rerecord()
	}
	return rec.NewEpisode(ctx, o.settings.Task)
}

// reset samples new object placements, returns the robots home and lets
// physics settle.
func (o *Orchestrator) reset() error {
	o.loop = StateSettling
	o.state.Reset()
	o.solver.Reset()
	o.episodeTicks = 0
	for i := range o.gripper {
		o.gripper[i] = nil
	}

	placements, err := o.sampler.Sample(o.props, o.numEnvs)
	if err != nil {
		return err
	}
	roots := o.sim.RootPoses()
	names := make([]string, 0, len(placements))
	for name := range placements {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := o.sim.WriteObjectPoses(name, scene.ToWorld(roots, placements[name])); err != nil {
			return err
		}
	}
	if err := o.sim.WriteJointPositions(o.home); err != nil {
		return err
	}
	if err := o.sim.SetJointTargets(o.home); err != nil {
		return err
	}
	for range o.settings.Timing.SettleTicks {
		if !o.sim.Running() {
			break
		}
		if err := o.sim.Step(); err != nil {
			return err
		}
		o.ticks++
	}
	o.stats.Resets++
	return nil
}
