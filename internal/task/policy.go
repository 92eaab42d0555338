package task

import (
	"fmt"

	"domin/internal/config"
	"domin/internal/faults"
	"domin/internal/geom"
	"domin/internal/scene"
)

// Policy is the capability set the orchestrator needs from a task.
type Policy interface {
	// Targets advances the state machine one macro-step and returns the
	// command for every env.
	Targets(state *EnvironmentState, world scene.WorldState) (Target, error)
	// Evaluate judges episodes that ran from start to end.
	Evaluate(state *EnvironmentState, start, end scene.WorldState) (Outcome, error)
}

// PickLiftOptions parameterizes PickLift.
type PickLiftOptions struct {
	TargetObject    string
	ApproachTicks   int
	GraspTicks      int
	CloseDelayTicks int
	HoverHeight     float64
	LiftHeight      float64
	SuccessHeight   float64
	ApproachOffset  geom.Vec3
	// Orientation is the end-effector target orientation.
	Orientation geom.Quat
	HandJoints  int
}

// PickLiftOptionsFromConfig maps the [task] section onto options.
func PickLiftOptionsFromConfig(cfg config.Task, handJoints int) PickLiftOptions {
	var offset geom.Vec3
	if len(cfg.ApproachOffset) == 3 {
		offset = geom.Vec3{X: cfg.ApproachOffset[0], Y: cfg.ApproachOffset[1], Z: cfg.ApproachOffset[2]}
	}
	return PickLiftOptions{
		TargetObject:    cfg.TargetObject,
		ApproachTicks:   cfg.ApproachTicks,
		GraspTicks:      cfg.GraspTicks,
		CloseDelayTicks: cfg.CloseDelayTicks,
		HoverHeight:     cfg.HoverHeight,
		LiftHeight:      cfg.LiftHeight,
		SuccessHeight:   cfg.SuccessHeight,
		ApproachOffset:  offset,
		Orientation:     geom.Quat{X: 1},
		HandJoints:      handJoints,
	}
}

// PickLift approaches, grasps and lifts one object.
type PickLift struct {
	opts PickLiftOptions
}

var _ Policy = (*PickLift)(nil)

// NewPickLift validates opts and returns the policy.
func NewPickLift(opts PickLiftOptions) (*PickLift, error) {
	if opts.TargetObject == "" {
		return nil, faults.Wrap(faults.ErrConfiguration, "task", "new pick-lift", "target object not set", nil)
	}
	if opts.ApproachTicks <= 0 || opts.GraspTicks <= 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, "task", "new pick-lift", "phase durations must be positive", nil)
	}
	if opts.HandJoints < 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, "task", "new pick-lift", "negative hand joint count", nil)
	}
	if opts.Orientation == (geom.Quat{}) {
		opts.Orientation = geom.Quat{X: 1}
	}
	opts.Orientation = opts.Orientation.Normalize()
	return &PickLift{opts: opts}, nil
}

// TargetObject returns the object the policy manipulates.
func (p *PickLift) TargetObject() string { return p.opts.TargetObject }

func (p *PickLift) Targets(state *EnvironmentState, world scene.WorldState) (Target, error) {
	objects, err := world.Object(p.opts.TargetObject)
	if err != nil {
		return Target{}, err
	}
	n := state.Len()
	if len(objects) != n {
		return Target{}, faults.Wrap(faults.ErrValidation, "task", "targets",
			fmt.Sprintf("world has %d envs, state has %d", len(objects), n), nil)
	}

	target := Target{Poses: make([]geom.Pose, n), Gripper: make([][]float64, n)}
	for i := range n {
		base := objects[i].Pos.Sub(p.opts.ApproachOffset)
		gripper := make([]float64, p.opts.HandJoints)
		state.Timer[i]++

		// Phases are evaluated in sequence. An env leaving Approach keeps
		// the hover target for this step and only its phase moves on; an
		// env leaving Grasp is commanded as Lift.
		pos := base
		if state.Phase[i] == PhaseApproach {
			pos.Z += p.opts.HoverHeight
			if state.Timer[i] > p.opts.ApproachTicks {
				state.Phase[i] = PhaseGrasp
				state.Timer[i] = 0
			}
		}
		if state.Phase[i] == PhaseGrasp {
			if state.Timer[i] > p.opts.CloseDelayTicks {
				fill(gripper, 1)
			}
			if state.Timer[i] > p.opts.GraspTicks {
				state.Phase[i] = PhaseLift
				state.Timer[i] = 0
			}
		}
		if state.Phase[i] == PhaseLift {
			pos = base
			pos.Z += p.opts.LiftHeight
			fill(gripper, 1)
		}

		target.Poses[i] = geom.Pose{Pos: pos, Rot: p.opts.Orientation}
		target.Gripper[i] = gripper
	}
	return target, nil
}

func (p *PickLift) Evaluate(state *EnvironmentState, start, end scene.WorldState) (Outcome, error) {
	final, err := end.Object(p.opts.TargetObject)
	if err != nil {
		return Outcome{}, err
	}
	initial, err := start.Object(p.opts.TargetObject)
	if err != nil {
		return Outcome{}, err
	}
	n := state.Len()
	if len(final) != n || len(initial) != n {
		return Outcome{}, faults.Wrap(faults.ErrValidation, "task", "evaluate", "snapshot size does not match state", nil)
	}
	out := Outcome{
		Success: make([]bool, n),
		Labels:  make([]string, n),
		Heights: make([]float64, n),
		Lifted:  make([]float64, n),
	}
	for i := range n {
		z := final[i].Pos.Z
		out.Heights[i] = z
		out.Lifted[i] = z - initial[i].Pos.Z
		out.Success[i] = z > p.opts.SuccessHeight
		if out.Success[i] {
			out.Labels[i] = SuccessLabel
		} else {
			out.Labels[i] = state.Phase[i].String()
		}
	}
	return out, nil
}

func fill(values []float64, v float64) {
	for i := range values {
		values[i] = v
	}
}
