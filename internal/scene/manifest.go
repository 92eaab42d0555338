package scene

import (
	"fmt"
	"math"
	"strings"

	"domin/internal/faults"
	"domin/internal/geom"
)

// RobotSpec names the robot joints and the end-effector body.
type RobotSpec struct {
	Name       string
	ArmJoints  []string
	HandJoints []string
	EEBody     string
	// Limits holds [lo, hi] per joint, arm joints first.
	Limits [][2]float64
}

// ObjectSpec is a rigid object placed on the table.
type ObjectSpec struct {
	Name string
	Size geom.Vec3
}

// CameraSpec is an RGB camera channel.
type CameraSpec struct {
	Name   string
	Width  int
	Height int
}

// Manifest lists every entity a scene exposes by name.
type Manifest struct {
	Robot   RobotSpec
	Objects []ObjectSpec
	Cameras []CameraSpec
}

var allegroFingers = []string{"index", "middle", "ring", "thumb"}

// DefaultManifest describes the single-cube pick scene: a six axis arm
// carrying a sixteen joint hand, one cube and two cameras.
func DefaultManifest(eeBody string) Manifest {
	if strings.TrimSpace(eeBody) == "" {
		eeBody = "palm_link"
	}
	arm := []string{"arm_x", "arm_y", "arm_z", "arm_roll", "arm_pitch", "arm_yaw"}
	limits := [][2]float64{
		{-0.6, 0.6}, {-0.6, 0.6}, {0, 0.9},
		{-2 * math.Pi, 2 * math.Pi}, {-2 * math.Pi, 2 * math.Pi}, {-2 * math.Pi, 2 * math.Pi},
	}
	hand := make([]string, 0, 16)
	for _, finger := range allegroFingers {
		for j := range 4 {
			hand = append(hand, fmt.Sprintf("%s_joint_%d", finger, j))
			limits = append(limits, [2]float64{0, 1.6})
		}
	}
	return Manifest{
		Robot: RobotSpec{
			Name:       "robot",
			ArmJoints:  arm,
			HandJoints: hand,
			EEBody:     eeBody,
			Limits:     limits,
		},
		Objects: []ObjectSpec{{Name: "object_cube", Size: geom.Vec3{X: 0.05, Y: 0.05, Z: 0.05}}},
		Cameras: []CameraSpec{
			{Name: "front", Width: 128, Height: 96},
			{Name: "wrist", Width: 64, Height: 48},
		},
	}
}

// Validate checks the registry for empty or duplicate names and bad shapes.
func (m Manifest) Validate() error {
	fail := func(format string, args ...any) error {
		return faults.Wrap(faults.ErrValidation, "scene", "manifest", fmt.Sprintf(format, args...), nil)
	}
	if len(m.Robot.ArmJoints) == 0 {
		return fail("robot has no arm joints")
	}
	if strings.TrimSpace(m.Robot.EEBody) == "" {
		return fail("robot has no end-effector body")
	}
	if len(m.Robot.Limits) != m.NumJoints() {
		return fail("robot has %d joint limits for %d joints", len(m.Robot.Limits), m.NumJoints())
	}
	for i, lim := range m.Robot.Limits {
		if lim[0] > lim[1] {
			return fail("joint %d has inverted limits", i)
		}
	}

	seen := make(map[string]struct{})
	register := func(kind, name string) error {
		if strings.TrimSpace(name) == "" {
			return fail("%s with empty name", kind)
		}
		if _, dup := seen[name]; dup {
			return fail("duplicate name %q", name)
		}
		seen[name] = struct{}{}
		return nil
	}
	for _, name := range m.JointNames() {
		if err := register("joint", name); err != nil {
			return err
		}
	}
	for _, obj := range m.Objects {
		if err := register("object", obj.Name); err != nil {
			return err
		}
		if obj.Size.X <= 0 || obj.Size.Y <= 0 || obj.Size.Z <= 0 {
			return fail("object %q has non-positive size", obj.Name)
		}
	}
	for _, cam := range m.Cameras {
		if err := register("camera", cam.Name); err != nil {
			return err
		}
		if cam.Width <= 0 || cam.Height <= 0 {
			return fail("camera %q has non-positive resolution", cam.Name)
		}
	}
	return nil
}

// JointNames returns arm joints followed by hand joints.
func (m Manifest) JointNames() []string {
	names := make([]string, 0, m.NumJoints())
	names = append(names, m.Robot.ArmJoints...)
	return append(names, m.Robot.HandJoints...)
}

func (m Manifest) NumJoints() int {
	return len(m.Robot.ArmJoints) + len(m.Robot.HandJoints)
}

func (m Manifest) NumArmJoints() int { return len(m.Robot.ArmJoints) }

func (m Manifest) NumHandJoints() int { return len(m.Robot.HandJoints) }

// Object looks up an object by name.
func (m Manifest) Object(name string) (ObjectSpec, bool) {
	for _, obj := range m.Objects {
		if obj.Name == name {
			return obj, true
		}
	}
	return ObjectSpec{}, false
}

// Camera looks up a camera by name.
func (m Manifest) Camera(name string) (CameraSpec, bool) {
	for _, cam := range m.Cameras {
		if cam.Name == name {
			return cam, true
		}
	}
	return CameraSpec{}, false
}
