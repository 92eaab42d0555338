package task_test

import (
	"errors"
	"math"
	"testing"

	"domin/internal/config"
	"domin/internal/faults"
	"domin/internal/geom"
	"domin/internal/scene"
	"domin/internal/task"
)

func newPolicy(t *testing.T, mutate ...func(*task.PickLiftOptions)) *task.PickLift {
	t.Helper()
	opts := task.PickLiftOptionsFromConfig(config.Default().Task, 16)
	for _, fn := range mutate {
		fn(&opts)
	}
	policy, err := task.NewPickLift(opts)
	if err != nil {
		t.Fatalf("NewPickLift: %v", err)
	}
	return policy
}

func worldWithCube(heights ...float64) scene.WorldState {
	poses := make([]geom.Pose, len(heights))
	for i, z := range heights {
		poses[i] = geom.Pose{Pos: geom.Vec3{X: 0.1, Y: 0.1, Z: z}, Rot: geom.Identity}
	}
	return scene.WorldState{ObjectPoses: map[string][]geom.Pose{"object_cube": poses}}
}

func TestFourEnvsReachGraspAfter151Steps(t *testing.T) {
	policy := newPolicy(t)
	state := task.NewEnvironmentState(4)
	world := worldWithCube(0.025, 0.025, 0.025, 0.025)

	for range 151 {
		if _, err := policy.Targets(state, world); err != nil {
			t.Fatalf("Targets: %v", err)
		}
	}
	for i := range 4 {
		if state.Phase[i] != task.PhaseGrasp || state.Timer[i] != 0 {
			t.Fatalf("env %d: phase=%v timer=%d, want Grasp/0", i, state.Phase[i], state.Timer[i])
		}
	}
}

func TestTimerAndPhaseMonotonic(t *testing.T) {
	policy := newPolicy(t)
	state := task.NewEnvironmentState(3)
	state.Phase[1] = task.PhaseGrasp
	state.Phase[2] = task.PhaseLift
	world := worldWithCube(0.025, 0.025, 0.025)

	prevPhase := append([]task.Phase(nil), state.Phase...)
	prevTimer := append([]int(nil), state.Timer...)
	for step := range 400 {
		if _, err := policy.Targets(state, world); err != nil {
			t.Fatalf("Targets: %v", err)
		}
		for i := range 3 {
			switch {
			case state.Phase[i] < prevPhase[i]:
				t.Fatalf("step %d env %d: phase went backwards", step, i)
			case state.Phase[i] > prevPhase[i]:
				if state.Timer[i] != 0 {
					t.Fatalf("step %d env %d: timer %d after transition", step, i, state.Timer[i])
				}
			default:
				if state.Timer[i] != prevTimer[i]+1 {
					t.Fatalf("step %d env %d: timer %d -> %d", step, i, prevTimer[i], state.Timer[i])
				}
			}
		}
		copy(prevPhase, state.Phase)
		copy(prevTimer, state.Timer)
	}
	if state.Count(task.PhaseLift) != 3 {
		t.Fatalf("expected all envs in Lift, got %v", state.Phase)
	}
}

func TestGripperDuringGraspFollowsCloseDelay(t *testing.T) {
	policy := newPolicy(t)
	state := task.NewEnvironmentState(2)
	state.Phase[0], state.Phase[1] = task.PhaseGrasp, task.PhaseGrasp
	state.Timer[1] = 20
	world := worldWithCube(0.025, 0.025)

	for range 100 {
		target, err := policy.Targets(state, world)
		if err != nil {
			t.Fatalf("Targets: %v", err)
		}
		for i := range 2 {
			if state.Phase[i] != task.PhaseGrasp {
				continue
			}
			want := 0.0
			if state.Timer[i] > 30 {
				want = 1
			}
			for h, g := range target.Gripper[i] {
				if g != want {
					t.Fatalf("env %d timer %d joint %d gripper %v, want %v", i, state.Timer[i], h, g, want)
				}
			}
		}
	}
}

func TestTargetHeightsPerPhase(t *testing.T) {
	cfg := config.Default().Task
	policy := newPolicy(t, func(o *task.PickLiftOptions) { o.ApproachOffset = geom.Vec3{} })
	state := task.NewEnvironmentState(5)
	state.Phase[1] = task.PhaseGrasp
	state.Phase[2] = task.PhaseLift
	// Env 3 leaves Approach and env 4 leaves Grasp on this step.
	state.Timer[3] = cfg.ApproachTicks
	state.Phase[4] = task.PhaseGrasp
	state.Timer[4] = cfg.GraspTicks
	target, err := policy.Targets(state, worldWithCube(0.05, 0.05, 0.05, 0.05, 0.05))
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	want := []float64{0.25, 0.05, 0.35, 0.25, 0.35}
	for i, z := range want {
		if math.Abs(target.Poses[i].Pos.Z-z) > 1e-12 {
			t.Fatalf("env %d target z = %v, want %v", i, target.Poses[i].Pos.Z, z)
		}
		if target.Poses[i].Rot != (geom.Quat{X: 1}) {
			t.Fatalf("env %d target orientation %+v", i, target.Poses[i].Rot)
		}
	}
	wantGripper := []float64{0, 0, 1, 0, 1}
	for i, g := range wantGripper {
		if target.Gripper[i][0] != g {
			t.Fatalf("env %d gripper = %v, want %v", i, target.Gripper[i][0], g)
		}
	}
	if state.Phase[3] != task.PhaseGrasp || state.Timer[3] != 0 {
		t.Fatalf("env 3 should enter Grasp with a zero timer, got %v/%d", state.Phase[3], state.Timer[3])
	}
	if state.Phase[4] != task.PhaseLift || state.Timer[4] != 0 {
		t.Fatalf("env 4 should enter Lift with a zero timer, got %v/%d", state.Phase[4], state.Timer[4])
	}
}

func TestApproachOffsetIsSubtracted(t *testing.T) {
	policy := newPolicy(t)
	state := task.NewEnvironmentState(1)
	state.Phase[0] = task.PhaseGrasp
	target, err := policy.Targets(state, worldWithCube(0.03))
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	got := target.Poses[0].Pos
	want := geom.Vec3{X: 0, Y: -0.01, Z: 0.05}
	if geom.Distance(got, want) > 1e-12 {
		t.Fatalf("target %+v, want %+v", got, want)
	}
}

func TestEvaluateIsPureInFinalHeight(t *testing.T) {
	policy := newPolicy(t)
	state := task.NewEnvironmentState(3)
	state.Phase[0] = task.PhaseLift
	state.Phase[1] = task.PhaseGrasp
	state.Phase[2] = task.PhaseLift
	start := worldWithCube(0.025, 0.025, 0.025)
	end := worldWithCube(0.35, 0.025, 0.1)

	first, err := policy.Evaluate(state, start, end)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, _ := policy.Evaluate(state, start, end)
	wantSuccess := []bool{true, false, false}
	wantLabels := []string{"Success", "Grasp", "Lift"}
	for i := range 3 {
		if first.Success[i] != wantSuccess[i] || first.Labels[i] != wantLabels[i] {
			t.Fatalf("env %d: success=%v label=%q", i, first.Success[i], first.Labels[i])
		}
		if first.Success[i] != second.Success[i] || first.Labels[i] != second.Labels[i] {
			t.Fatalf("env %d: evaluation not repeatable", i)
		}
	}
	if math.Abs(first.Lifted[0]-0.325) > 1e-12 {
		t.Fatalf("unexpected lift delta %v", first.Lifted[0])
	}
}

func TestMissingObjectIsNotFound(t *testing.T) {
	policy := newPolicy(t, func(o *task.PickLiftOptions) { o.TargetObject = "object_sphere" })
	state := task.NewEnvironmentState(1)
	if _, err := policy.Targets(state, worldWithCube(0.025)); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := policy.Evaluate(state, worldWithCube(0.025), worldWithCube(0.025)); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResetReturnsToApproach(t *testing.T) {
	state := task.NewEnvironmentState(3)
	for i := range 3 {
		state.Phase[i] = task.PhaseLift
		state.Timer[i] = 7
	}
	state.Reset()
	if state.Count(task.PhaseApproach) != 3 {
		t.Fatalf("reset left phases %v", state.Phase)
	}
	for i, timer := range state.Timer {
		if timer != 0 {
			t.Fatalf("env %d timer %d after reset", i, timer)
		}
	}
}

func TestPhaseNames(t *testing.T) {
	if task.PhaseLift.String() != "Lift" {
		t.Fatalf("unexpected name %q", task.PhaseLift.String())
	}
	if p, ok := task.ParsePhase(" GRASP "); !ok || p != task.PhaseGrasp {
		t.Fatalf("ParsePhase failed: %v %v", p, ok)
	}
}
