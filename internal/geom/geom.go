package geom

import "math"

// Vec3 is a position or direction in metres.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the inner product.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Norm returns the Euclidean length.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Slice returns the components as [x, y, z].
func (v Vec3) Slice() []float64 { return []float64{v.X, v.Y, v.Z} }

// Finite reports whether every component is a finite number.
func (v Vec3) Finite() bool { return finite(v.X) && finite(v.Y) && finite(v.Z) }

// Quat is a rotation quaternion stored as (w, x, y, z).
type Quat struct {
	W, X, Y, Z float64
}

// Identity is the zero rotation.
var Identity = Quat{W: 1}

// Mul returns the Hamilton product q ⊗ o.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

// Conj returns the conjugate, which is the inverse for unit quaternions.
func (q Quat) Conj() Quat { return Quat{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z} }

// Norm returns the quaternion magnitude.
func (q Quat) Norm() float64 { return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z) }

// Normalize returns q scaled to unit length. A zero quaternion maps to Identity.
func (q Quat) Normalize() Quat {
	n := q.Norm()
	if n == 0 || !finite(n) {
		return Identity
	}
	return Quat{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Finite reports whether every component is a finite number.
func (q Quat) Finite() bool { return finite(q.W) && finite(q.X) && finite(q.Y) && finite(q.Z) }

// Slice returns the components as [w, x, y, z].
func (q Quat) Slice() []float64 { return []float64{q.W, q.X, q.Y, q.Z} }

// Pose couples a position with an orientation.
type Pose struct {
	Pos Vec3
	Rot Quat
}

// Slice flattens the pose to [x, y, z, qw, qx, qy, qz].
func (p Pose) Slice() []float64 {
	return append(p.Pos.Slice(), p.Rot.Slice()...)
}

// PoseFromSlice is the inverse of Pose.Slice. Short input yields an identity
// orientation for the missing components.
func PoseFromSlice(v []float64) Pose {
	var p Pose
	p.Rot = Identity
	if len(v) >= 3 {
		p.Pos = Vec3{v[0], v[1], v[2]}
	}
	if len(v) >= 7 {
		p.Rot = Quat{W: v[3], X: v[4], Y: v[5], Z: v[6]}
	}
	return p
}

// Relative expresses child in the frame of parent. This mirrors the
// subtract-frame-transforms operation used to bring a world-frame end
// effector pose into the robot base frame.
func Relative(parent, child Pose) Pose {
	inv := parent.Rot.Conj()
	return Pose{
		Pos: inv.Rotate(child.Pos.Sub(parent.Pos)),
		Rot: inv.Mul(child.Rot),
	}
}

// Compose returns the pose of child (given in parent's frame) in the frame
// parent itself is expressed in.
func Compose(parent, child Pose) Pose {
	return Pose{
		Pos: parent.Pos.Add(parent.Rot.Rotate(child.Pos)),
		Rot: parent.Rot.Mul(child.Rot),
	}
}

// AxisAngleError returns the rotation vector taking current onto target,
// expressed in the frame both are given in. The shortest arc is used.
func AxisAngleError(target, current Quat) Vec3 {
	e := target.Normalize().Mul(current.Normalize().Conj())
	if e.W < 0 {
		e = Quat{W: -e.W, X: -e.X, Y: -e.Y, Z: -e.Z}
	}
	v := Vec3{e.X, e.Y, e.Z}
	s := v.Norm()
	if s < 1e-9 {
		return v.Scale(2)
	}
	angle := 2 * math.Atan2(s, e.W)
	return v.Scale(angle / s)
}

// FromEulerXYZ builds a quaternion from extrinsic x, y, z rotations given in
// degrees.
func FromEulerXYZ(xDeg, yDeg, zDeg float64) Quat {
	qx := axisQuat(Vec3{X: 1}, xDeg*math.Pi/180)
	qy := axisQuat(Vec3{Y: 1}, yDeg*math.Pi/180)
	qz := axisQuat(Vec3{Z: 1}, zDeg*math.Pi/180)
	return qz.Mul(qy).Mul(qx).Normalize()
}

// FromAxisAngle builds a quaternion rotating by angle radians about axis.
func FromAxisAngle(axis Vec3, angle float64) Quat {
	n := axis.Norm()
	if n == 0 {
		return Identity
	}
	return axisQuat(axis.Scale(1/n), angle)
}

func axisQuat(unit Vec3, angle float64) Quat {
	s := math.Sin(angle / 2)
	return Quat{W: math.Cos(angle / 2), X: unit.X * s, Y: unit.Y * s, Z: unit.Z * s}
}

// Distance returns |a - b|.
func Distance(a, b Vec3) float64 { return a.Sub(b).Norm() }

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
