package scene

import (
	"fmt"
	"image"

	"domin/internal/faults"
	"domin/internal/geom"
)

// WorldState is a per-environment snapshot. Poses are in each
// environment's robot root frame.
type WorldState struct {
	RobotJoints [][]float64
	RobotPose   []geom.Pose
	ObjectPoses map[string][]geom.Pose
}

// NumEnvs returns the batch size of the snapshot.
func (w WorldState) NumEnvs() int { return len(w.RobotJoints) }

// Object returns the poses of the named object or ErrNotFound.
func (w WorldState) Object(name string) ([]geom.Pose, error) {
	poses, ok := w.ObjectPoses[name]
	if !ok {
		return nil, faults.Wrap(faults.ErrNotFound, "scene", "lookup object", fmt.Sprintf("no object named %q", name), nil)
	}
	return poses, nil
}

// Clone deep-copies the snapshot.
func (w WorldState) Clone() WorldState {
	out := WorldState{
		RobotJoints: make([][]float64, len(w.RobotJoints)),
		RobotPose:   append([]geom.Pose(nil), w.RobotPose...),
		ObjectPoses: make(map[string][]geom.Pose, len(w.ObjectPoses)),
	}
	for i, joints := range w.RobotJoints {
		out.RobotJoints[i] = append([]float64(nil), joints...)
	}
	for name, poses := range w.ObjectPoses {
		out.ObjectPoses[name] = append([]geom.Pose(nil), poses...)
	}
	return out
}

// StaticProps are fixed at scene construction.
type StaticProps struct {
	// RobotJointLimits is indexed [env][joint] -> [lo, hi].
	RobotJointLimits [][][2]float64
	ObjectSizes      map[string]geom.Vec3
}

// NewStaticProps expands manifest limits and sizes across numEnvs.
func NewStaticProps(m Manifest, numEnvs int) StaticProps {
	props := StaticProps{
		RobotJointLimits: make([][][2]float64, numEnvs),
		ObjectSizes:      make(map[string]geom.Vec3, len(m.Objects)),
	}
	for i := range numEnvs {
		props.RobotJointLimits[i] = append([][2]float64(nil), m.Robot.Limits...)
	}
	for _, obj := range m.Objects {
		props.ObjectSizes[obj.Name] = obj.Size
	}
	return props
}

// Simulator is the physics and rendering collaborator. Unless stated
// otherwise poses are in the world frame and slices are indexed by env.
type Simulator interface {
	Manifest() Manifest
	NumEnvs() int
	PhysicsDT() float64
	StaticProps() StaticProps

	JointPositions() [][]float64
	RootPoses() []geom.Pose
	ObjectPoses(name string) ([]geom.Pose, error)
	BodyPoses(body string) ([]geom.Pose, error)
	// Jacobians returns a 6 x arm-joint matrix per env, linear rows first,
	// expressed in the world frame.
	Jacobians(body string) ([][][]float64, error)

	SetJointTargets(targets [][]float64) error
	// WriteJointPositions teleports the robot, used on reset.
	WriteJointPositions(positions [][]float64) error
	WriteObjectPoses(name string, poses []geom.Pose) error
	CameraImages(camera string) ([]*image.RGBA, error)

	Step() error
	Running() bool
	Close() error
}

// Snapshot reads a WorldState from sim with object poses moved into each
// environment's root frame.
func Snapshot(sim Simulator) (WorldState, error) {
	roots := sim.RootPoses()
	joints := sim.JointPositions()
	world := WorldState{
		RobotJoints: make([][]float64, len(joints)),
		RobotPose:   append([]geom.Pose(nil), roots...),
		ObjectPoses: make(map[string][]geom.Pose),
	}
	for i, q := range joints {
		world.RobotJoints[i] = append([]float64(nil), q...)
	}
	for _, obj := range sim.Manifest().Objects {
		poses, err := sim.ObjectPoses(obj.Name)
		if err != nil {
			return WorldState{}, err
		}
		local := make([]geom.Pose, len(poses))
		for i, pose := range poses {
			local[i] = geom.Relative(roots[i], pose)
		}
		world.ObjectPoses[obj.Name] = local
	}
	return world, nil
}

// ToWorld maps root-frame poses to world poses for every env.
func ToWorld(roots []geom.Pose, local []geom.Pose) []geom.Pose {
	out := make([]geom.Pose, len(local))
	for i, pose := range local {
		out[i] = geom.Compose(roots[i], pose)
	}
	return out
}

// HandTargets maps gripper commands in [0, 1] onto hand joint positions
// between each joint's limits. Arm joints are left untouched.
func HandTargets(m Manifest, props StaticProps, gripper [][]float64, targets [][]float64) {
	arm := m.NumArmJoints()
	for env := range targets {
		for h := range m.NumHandJoints() {
			g := 0.0
			if env < len(gripper) && h < len(gripper[env]) {
				g = min(max(gripper[env][h], 0), 1)
			}
			lim := props.RobotJointLimits[env][arm+h]
			targets[env][arm+h] = lim[0] + g*(lim[1]-lim[0])
		}
	}
}
