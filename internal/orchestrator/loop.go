package orchestrator

import (
	"context"
	"errors"
	"image"
	"time"

	"domin/internal/geom"
	"domin/internal/logging"
	"domin/internal/recorder"
	"domin/internal/scene"
)

// Stop reasons reported in Stats.
const (
	StopSimulatorClosed = "simulator stopped"
	StopInterrupted     = "interrupted"
	StopBudgetReached   = "episode budget reached"
)

// Run drives the loop until the simulator stops, ctx is cancelled or the
// episode budget is met, then shuts down. Cancellation is observed at the
// start of each Commanding cycle, so the Controlling block in progress
// always completes. An interrupted run is not an error.
func (o *Orchestrator) Run(ctx context.Context) (stats Stats, err error) {
	started := time.Now()
	defer func() {
		if shutdownErr := o.Shutdown(context.WithoutCancel(ctx)); err == nil {
			err = shutdownErr
		}
		o.stats.Ticks = o.ticks
		o.stats.Elapsed = time.Since(started)
		stats = o.stats
	}()

	o.logger.Info("recording started",
		logging.String("mode", o.settings.Mode),
		logging.Int("num_envs", o.numEnvs),
		logging.Int("num_episodes", o.settings.NumEpisodes),
		logging.Int("macro_steps", o.settings.Timing.MacroStepsPerEpisode),
		logging.Int("control_ticks", o.settings.ControlTicks),
		logging.Int("record_every", o.settings.Timing.RecordEvery),
	)

	if err := o.reset(); err != nil {
		return o.stats, err
	}
	progress := logging.NewProgressSampler(10)
	macro := 0
	for {
		o.loop = StateCommanding
		if reason, stop := o.shouldStop(ctx); stop {
			o.stats.StopReason = reason
			o.logger.Info("recording stopped", logging.String("reason", reason))
			return o.stats, nil
		}

		if macro >= o.settings.Timing.MacroStepsPerEpisode {
			if err := o.endEpisode(context.WithoutCancel(ctx)); err != nil {
				return o.stats, err
			}
			if progress.ShouldLog(o.stats.Committed, o.settings.NumEpisodes) {
				o.logger.Info("recording progress",
					logging.Int("committed", o.stats.Committed),
					logging.Int("num_episodes", o.settings.NumEpisodes),
					logging.Int("attempts", o.stats.Attempts),
					logging.Float64("success_rate", o.stats.SuccessRate()),
				)
			}
			if o.stats.Committed >= o.settings.NumEpisodes {
				o.stats.StopReason = StopBudgetReached
				return o.stats, nil
			}
			if err := o.reset(); err != nil {
				return o.stats, err
			}
			macro = 0
			continue
		}

		world, err := scene.Snapshot(o.sim)
		if err != nil {
			return o.stats, err
		}
		if macro == 0 {
			o.start = world.Clone()
		}
		target, err := o.policy.Targets(o.state, world)
		if err != nil {
			return o.stats, err
		}
		if err := o.solver.SetCommand(target.Poses); err != nil {
			return o.stats, err
		}
		o.gripper = target.Gripper

		o.loop = StateControlling
		if err := o.control(); err != nil {
			return o.stats, err
		}
		macro++
	}
}

// Shutdown finalizes recorders, closes and publishes the dataset and
// closes the simulator. Only the first call does work; later calls return
// the first result.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		var errs []error
		if o.recorders != nil {
			if err := o.recorders.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := o.sim.Close(); err != nil {
			errs = append(errs, err)
		}
		o.shutdownErr = errors.Join(errs...)
		if o.shutdownErr != nil {
			logging.ErrorWithContext(o.logger, "shutdown incomplete", "shutdown_failed",
				logging.Error(o.shutdownErr),
				logging.String(logging.FieldErrorHint, "inspect the dataset with 'domin dataset info'"),
			)
			return
		}
		o.logger.Debug("shutdown complete")
	})
	return o.shutdownErr
}

func (o *Orchestrator) shouldStop(ctx context.Context) (string, bool) {
	if !o.sim.Running() {
		return StopSimulatorClosed, true
	}
	if ctx.Err() != nil {
		return StopInterrupted, true
	}
	return "", false
}

// control runs one Controlling block of ControlTicks physics ticks.
func (o *Orchestrator) control() error {
	body := o.settings.EEBody
	for range o.settings.ControlTicks {
		joints := o.sim.JointPositions()
		jacobians, err := o.sim.Jacobians(body)
		if err != nil {
			return err
		}
		ee, err := o.sim.BodyPoses(body)
		if err != nil {
			return err
		}
		roots := o.sim.RootPoses()

		pos := make([]geom.Vec3, o.numEnvs)
		rot := make([]geom.Quat, o.numEnvs)
		arm := make([][]float64, o.numEnvs)
		local := make([][][]float64, o.numEnvs)
		for i := range o.numEnvs {
			pose := geom.Relative(roots[i], ee[i])
			pos[i], rot[i] = pose.Pos, pose.Rot
			arm[i] = joints[i][:o.arm]
			local[i] = rotateJacobian(roots[i].Rot.Conj(), jacobians[i])
		}
		desired := o.solver.Compute(pos, rot, local, arm)

		targets := make([][]float64, o.numEnvs)
		for i := range o.numEnvs {
			targets[i] = make([]float64, len(joints[i]))
			copy(targets[i], desired[i])
			copy(targets[i][o.arm:], joints[i][o.arm:])
		}
		scene.HandTargets(o.manifest, o.props, o.gripper, targets)

		if err := o.sim.SetJointTargets(targets); err != nil {
			return err
		}
		if err := o.sim.Step(); err != nil {
			return err
		}
		o.ticks++
		o.episodeTicks++
		if o.episodeTicks%o.settings.Timing.RecordEvery == 0 {
			if err := o.record(targets); err != nil {
				return err
			}
		}
	}
	return nil
}

// record appends one frame per environment in generation mode.
func (o *Orchestrator) record(actions [][]float64) error {
	if o.recorders == nil || !o.generating() {
		return nil
	}
	joints := o.sim.JointPositions()
	images := make(map[string][]*image.RGBA, len(o.manifest.Cameras))
	for _, cam := range o.manifest.Cameras {
		frames, err := o.sim.CameraImages(cam.Name)
		if err != nil {
			return err
		}
		images[cam.Name] = frames
	}
	for env := range o.numEnvs {
		obs := recorder.Observation{Joints: joints[env], Images: make(map[string]image.Image, len(images))}
		for name, frames := range images {
			obs.Images[name] = frames[env]
		}
		if err := o.recorders.Recorder(env).Step(obs, actions[env]); err != nil {
			return err
		}
	}
	o.stats.Frames += o.numEnvs
	return nil
}

// rotateJacobian re-expresses a 6 x n world-frame Jacobian in the frame
// obtained by applying rot.
func rotateJacobian(rot geom.Quat, jac [][]float64) [][]float64 {
	if len(jac) != 6 {
		return jac
	}
	cols := len(jac[0])
	out := make([][]float64, 6)
	for r := range out {
		out[r] = make([]float64, cols)
	}
	for c := range cols {
		lin := rot.Rotate(geom.Vec3{X: jac[0][c], Y: jac[1][c], Z: jac[2][c]})
		ang := rot.Rotate(geom.Vec3{X: jac[3][c], Y: jac[4][c], Z: jac[5][c]})
		out[0][c], out[1][c], out[2][c] = lin.X, lin.Y, lin.Z
		out[3][c], out[4][c], out[5][c] = ang.X, ang.Y, ang.Z
	}
	return out
}
