// Package ik converts Cartesian end-effector targets into joint position
// targets with damped least squares, one environment at a time over a batch.
package ik

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"domin/internal/faults"
	"domin/internal/geom"
)

// DefaultDamping is the damping factor λ.
const DefaultDamping = 0.01

// Solver holds the commanded pose across the control ticks of a macro-step.
type Solver struct {
	numEnvs   int
	numJoints int
	damping   float64
	command   []geom.Pose
}

// NewSolver builds a solver for numEnvs environments with numJoints
// controlled joints each.
func NewSolver(numEnvs, numJoints int, damping float64) (*Solver, error) {
	if numEnvs <= 0 || numJoints <= 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, "ik", "new solver", "env and joint counts must be positive", nil)
	}
	if damping <= 0 {
		damping = DefaultDamping
	}
	return &Solver{numEnvs: numEnvs, numJoints: numJoints, damping: damping}, nil
}

// SetCommand stores absolute target poses, one per env, in the robot root
// frame.
func (s *Solver) SetCommand(poses []geom.Pose) error {
	if len(poses) != s.numEnvs {
		return faults.Wrap(faults.ErrValidation, "ik", "set command", fmt.Sprintf("got %d poses for %d envs", len(poses), s.numEnvs), nil)
	}
	s.command = make([]geom.Pose, len(poses))
	for i, pose := range poses {
		s.command[i] = geom.Pose{Pos: pose.Pos, Rot: pose.Rot.Normalize()}
	}
	return nil
}

// Reset drops the current command so Compute holds joints still.
func (s *Solver) Reset() { s.command = nil }

// Compute returns desired joint positions q + Δq with
// Δq = Jᵀ(JJᵀ + λ²I)⁻¹e for every env. It never fails: without a command,
// with malformed or non-finite input, or when the system cannot be
// factorized the env keeps its current joint positions.
func (s *Solver) Compute(eePos []geom.Vec3, eeQuat []geom.Quat, jacobians [][][]float64, jointPos [][]float64) [][]float64 {
	out := make([][]float64, len(jointPos))
	for env, q := range jointPos {
		out[env] = append([]float64(nil), q...)
		if s.command == nil || env >= len(s.command) || env >= len(eePos) || env >= len(eeQuat) || env >= len(jacobians) {
			continue
		}
		dq, ok := s.step(s.command[env], eePos[env], eeQuat[env], jacobians[env], len(q))
		if !ok {
			continue
		}
		for j := range dq {
			out[env][j] += dq[j]
		}
	}
	return out
}

func (s *Solver) step(target geom.Pose, pos geom.Vec3, rot geom.Quat, jac [][]float64, n int) ([]float64, bool) {
	if n != s.numJoints || len(jac) != 6 || !pos.Finite() || !rot.Finite() || rot.Norm() == 0 {
		return nil, false
	}
	data := make([]float64, 0, 6*n)
	for _, row := range jac {
		if len(row) != n {
			return nil, false
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, false
			}
		}
		data = append(data, row...)
	}
	J := mat.NewDense(6, n, data)

	dp := target.Pos.Sub(pos)
	dr := geom.AxisAngleError(target.Rot, rot)
	e := mat.NewVecDense(6, []float64{dp.X, dp.Y, dp.Z, dr.X, dr.Y, dr.Z})

	var jjt mat.SymDense
	jjt.SymOuterK(1, J)
	lambda2 := s.damping * s.damping
	for i := range 6 {
		jjt.SetSym(i, i, jjt.At(i, i)+lambda2)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&jjt); !ok {
		return nil, false
	}
	var y mat.VecDense
	if err := chol.SolveVecTo(&y, e); err != nil {
		return nil, false
	}
	var dq mat.VecDense
	dq.MulVec(J.T(), &y)

	out := make([]float64, n)
	for j := range n {
		v := dq.AtVec(j)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		out[j] = v
	}
	return out, true
}
