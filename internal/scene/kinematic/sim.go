package kinematic

import (
	"fmt"
	"math"
	"sync/atomic"

	"domin/internal/faults"
	"domin/internal/geom"
	"domin/internal/scene"
)

// Options configures a Sim. Zero values take defaults.
type Options struct {
	Manifest  scene.Manifest
	NumEnvs   int
	PhysicsDT float64
	// Spacing is the distance between environment origins along x.
	Spacing float64
	// TrackingTau is the joint filter time constant in seconds.
	TrackingTau float64
	// GraspOffset is the world-frame vector from the end effector to the
	// point between the fingertips.
	GraspOffset geom.Vec3
	GraspRadius float64
	// HomeJoints is the initial arm configuration; hand joints start open.
	HomeJoints []float64
}

// Sim implements scene.Simulator.
type Sim struct {
	manifest scene.Manifest
	props    scene.StaticProps
	numEnvs  int
	dt       float64
	alpha    float64
	offset   geom.Vec3
	radius   float64

	origins []geom.Vec3
	home    []float64
	q       [][]float64
	target  [][]float64
	objects map[string][]geom.Pose
	held    map[string][]bool
	holdOff map[string][]geom.Vec3

	steps   int
	running atomic.Bool
	closed  bool
}

var _ scene.Simulator = (*Sim)(nil)

// New builds a simulator with every environment at its home configuration
// and every object resting at its environment origin.
func New(opts Options) (*Sim, error) {
	if opts.NumEnvs <= 0 {
		opts.NumEnvs = 1
	}
	if opts.PhysicsDT <= 0 {
		opts.PhysicsDT = 0.01
	}
	if opts.Spacing <= 0 {
		opts.Spacing = 2
	}
	if opts.TrackingTau <= 0 {
		opts.TrackingTau = 0.05
	}
	if opts.GraspRadius <= 0 {
		opts.GraspRadius = 0.04
	}
	if opts.GraspOffset == (geom.Vec3{}) {
		opts.GraspOffset = geom.Vec3{X: 0.10, Y: 0.11, Z: -0.02}
	}
	if len(opts.Manifest.Robot.ArmJoints) == 0 {
		opts.Manifest = scene.DefaultManifest("")
	}
	if err := opts.Manifest.Validate(); err != nil {
		return nil, err
	}
	arm := opts.Manifest.NumArmJoints()
	if arm != 6 {
		return nil, faults.Wrap(faults.ErrValidation, "kinematic", "new", fmt.Sprintf("gantry arm needs 6 joints, manifest has %d", arm), nil)
	}
	home := opts.HomeJoints
	if len(home) == 0 {
		home = []float64{0, 0, 0.4, math.Pi, 0, 0}
	}
	if len(home) != arm {
		return nil, faults.Wrap(faults.ErrValidation, "kinematic", "new", "home joints must cover the arm", nil)
	}

	s := &Sim{
		manifest: opts.Manifest,
		props:    scene.NewStaticProps(opts.Manifest, opts.NumEnvs),
		numEnvs:  opts.NumEnvs,
		dt:       opts.PhysicsDT,
		alpha:    min(1, opts.PhysicsDT/opts.TrackingTau),
		offset:   opts.GraspOffset,
		radius:   opts.GraspRadius,
		origins:  make([]geom.Vec3, opts.NumEnvs),
		objects:  make(map[string][]geom.Pose),
		held:     make(map[string][]bool),
		holdOff:  make(map[string][]geom.Vec3),
	}
	s.home = make([]float64, opts.Manifest.NumJoints())
	copy(s.home, home)
	for j := arm; j < len(s.home); j++ {
		s.home[j] = opts.Manifest.Robot.Limits[j][0]
	}
	s.q = make([][]float64, s.numEnvs)
	s.target = make([][]float64, s.numEnvs)
	for env := range s.numEnvs {
		s.origins[env] = geom.Vec3{X: float64(env) * opts.Spacing}
		s.q[env] = append([]float64(nil), s.home...)
		s.target[env] = append([]float64(nil), s.home...)
	}
	for _, obj := range s.manifest.Objects {
		poses := make([]geom.Pose, s.numEnvs)
		for env := range poses {
			poses[env] = geom.Pose{Pos: s.origins[env].Add(geom.Vec3{Z: obj.Size.Z / 2}), Rot: geom.Identity}
		}
		s.objects[obj.Name] = poses
		s.held[obj.Name] = make([]bool, s.numEnvs)
		s.holdOff[obj.Name] = make([]geom.Vec3, s.numEnvs)
	}
	s.running.Store(true)
	return s, nil
}

func (s *Sim) Manifest() scene.Manifest { return s.manifest }

func (s *Sim) NumEnvs() int { return s.numEnvs }

func (s *Sim) PhysicsDT() float64 { return s.dt }

func (s *Sim) StaticProps() scene.StaticProps { return s.props }

// Steps returns the number of physics ticks taken so far.
func (s *Sim) Steps() int { return s.steps }

// HomeJoints returns the configuration every environment starts in.
func (s *Sim) HomeJoints() []float64 { return append([]float64(nil), s.home...) }

func (s *Sim) JointPositions() [][]float64 {
	out := make([][]float64, s.numEnvs)
	for env, q := range s.q {
		out[env] = append([]float64(nil), q...)
	}
	return out
}

func (s *Sim) RootPoses() []geom.Pose {
	out := make([]geom.Pose, s.numEnvs)
	for env, origin := range s.origins {
		out[env] = geom.Pose{Pos: origin, Rot: geom.Identity}
	}
	return out
}

func (s *Sim) ObjectPoses(name string) ([]geom.Pose, error) {
	poses, ok := s.objects[name]
	if !ok {
		return nil, s.notFound("object", name)
	}
	return append([]geom.Pose(nil), poses...), nil
}

func (s *Sim) BodyPoses(body string) ([]geom.Pose, error) {
	switch body {
	case s.manifest.Robot.EEBody:
		out := make([]geom.Pose, s.numEnvs)
		for env := range out {
			out[env] = s.eePose(env)
		}
		return out, nil
	case s.manifest.Robot.Name:
		return s.RootPoses(), nil
	}
	return nil, s.notFound("body", body)
}

func (s *Sim) Jacobians(body string) ([][][]float64, error) {
	if body != s.manifest.Robot.EEBody {
		return nil, s.notFound("body", body)
	}
	out := make([][][]float64, s.numEnvs)
	for env, q := range s.q {
		j := make([][]float64, 6)
		for r := range j {
			j[r] = make([]float64, 6)
		}
		j[0][0], j[1][1], j[2][2] = 1, 1, 1

		yaw := geom.FromAxisAngle(geom.Vec3{Z: 1}, q[5])
		pitch := geom.FromAxisAngle(geom.Vec3{Y: 1}, q[4])
		columns := []geom.Vec3{
			yaw.Mul(pitch).Rotate(geom.Vec3{X: 1}),
			yaw.Rotate(geom.Vec3{Y: 1}),
			{Z: 1},
		}
		for c, axis := range columns {
			j[3][3+c], j[4][3+c], j[5][3+c] = axis.X, axis.Y, axis.Z
		}
		out[env] = j
	}
	return out, nil
}

func (s *Sim) SetJointTargets(targets [][]float64) error {
	if err := s.checkJoints("set joint targets", targets); err != nil {
		return err
	}
	for env, row := range targets {
		copy(s.target[env], row)
	}
	return nil
}

func (s *Sim) WriteJointPositions(positions [][]float64) error {
	if err := s.checkJoints("write joint positions", positions); err != nil {
		return err
	}
	for env, row := range positions {
		for j, v := range row {
			v = s.clamp(env, j, v)
			s.q[env][j] = v
			s.target[env][j] = v
		}
	}
	for name := range s.objects {
		for env := range s.numEnvs {
			s.release(name, env)
		}
	}
	return nil
}

// WriteObjectPoses teleports an object. Positions below the table are
// raised so the object rests on it; any grasp is released.
func (s *Sim) WriteObjectPoses(name string, poses []geom.Pose) error {
	current, ok := s.objects[name]
	if !ok {
		return s.notFound("object", name)
	}
	if len(poses) != s.numEnvs {
		return faults.Wrap(faults.ErrValidation, "kinematic", "write object poses", fmt.Sprintf("got %d poses for %d envs", len(poses), s.numEnvs), nil)
	}
	rest := s.props.ObjectSizes[name].Z / 2
	for env, pose := range poses {
		if !pose.Pos.Finite() || !pose.Rot.Finite() {
			return faults.Wrap(faults.ErrValidation, "kinematic", "write object poses", "non-finite pose", nil)
		}
		pose.Rot = pose.Rot.Normalize()
		pose.Pos.Z = max(pose.Pos.Z, s.origins[env].Z+rest)
		current[env] = pose
		s.held[name][env] = false
	}
	return nil
}

// Step advances one physics tick.
func (s *Sim) Step() error {
	if s.closed {
		return faults.Wrap(faults.ErrContract, "kinematic", "step", "simulator closed", nil)
	}
	for env := range s.numEnvs {
		for j := range s.q[env] {
			next := s.q[env][j] + s.alpha*(s.target[env][j]-s.q[env][j])
			s.q[env][j] = s.clamp(env, j, next)
		}
		ee := s.eePose(env).Pos
		closed := s.closure(env) > 0.5
		for name, poses := range s.objects {
			switch {
			case s.held[name][env] && !closed:
				s.release(name, env)
			case s.held[name][env]:
				poses[env].Pos = ee.Add(s.holdOff[name][env])
			case closed && geom.Distance(ee.Add(s.offset), poses[env].Pos) <= s.radius:
				s.held[name][env] = true
				s.holdOff[name][env] = poses[env].Pos.Sub(ee)
			}
		}
	}
	s.steps++
	return nil
}

// Stop makes Running report false, as when the viewer window is closed.
func (s *Sim) Stop() { s.running.Store(false) }

func (s *Sim) Running() bool { return s.running.Load() && !s.closed }

func (s *Sim) Close() error {
	s.running.Store(false)
	s.closed = true
	return nil
}

// Holding reports whether env's hand holds the named object.
func (s *Sim) Holding(name string, env int) bool {
	held, ok := s.held[name]
	return ok && env >= 0 && env < len(held) && held[env]
}

func (s *Sim) eePose(env int) geom.Pose {
	q := s.q[env]
	rot := geom.FromAxisAngle(geom.Vec3{Z: 1}, q[5]).
		Mul(geom.FromAxisAngle(geom.Vec3{Y: 1}, q[4])).
		Mul(geom.FromAxisAngle(geom.Vec3{X: 1}, q[3]))
	return geom.Pose{Pos: s.origins[env].Add(geom.Vec3{X: q[0], Y: q[1], Z: q[2]}), Rot: rot}
}

func (s *Sim) closure(env int) float64 {
	arm := s.manifest.NumArmJoints()
	n := s.manifest.NumHandJoints()
	if n == 0 {
		return 0
	}
	var sum float64
	for h := range n {
		lim := s.props.RobotJointLimits[env][arm+h]
		if span := lim[1] - lim[0]; span > 0 {
			sum += (s.q[env][arm+h] - lim[0]) / span
		}
	}
	return sum / float64(n)
}

func (s *Sim) release(name string, env int) {
	if !s.held[name][env] {
		return
	}
	s.held[name][env] = false
	pose := &s.objects[name][env]
	pose.Pos.Z = s.origins[env].Z + s.props.ObjectSizes[name].Z/2
}

func (s *Sim) clamp(env, joint int, v float64) float64 {
	lim := s.props.RobotJointLimits[env][joint]
	return min(max(v, lim[0]), lim[1])
}

func (s *Sim) checkJoints(op string, rows [][]float64) error {
	if len(rows) != s.numEnvs {
		return faults.Wrap(faults.ErrValidation, "kinematic", op, fmt.Sprintf("got %d rows for %d envs", len(rows), s.numEnvs), nil)
	}
	n := s.manifest.NumJoints()
	for env, row := range rows {
		if len(row) != n {
			return faults.Wrap(faults.ErrValidation, "kinematic", op, fmt.Sprintf("env %d has %d joints, want %d", env, len(row), n), nil)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return faults.Wrap(faults.ErrValidation, "kinematic", op, fmt.Sprintf("env %d has a non-finite joint value", env), nil)
			}
		}
	}
	return nil
}

func (s *Sim) notFound(kind, name string) error {
	return faults.Wrap(faults.ErrNotFound, "kinematic", "lookup "+kind, fmt.Sprintf("no %s named %q", kind, name), nil)
}
