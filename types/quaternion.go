package types

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Quat is a rotation quaternion sharing its layout with mgl32.Quat.
type Quat struct {
	V Vec3
	W float32
}

// Create identity quaternion.
func QuatIdent() Quat {
	return Quat{W: 1.0}
}

// Create a quaternion from an axis vector and an angle in radians.
func QuatFromAxisAngle(axis Vec3, angle float32) Quat {
	return fromMgl(mgl32.QuatRotate(angle, mgl32.Vec3(axis.Normalize())))
}

func (q Quat) mgl() mgl32.Quat {
	return mgl32.Quat{W: q.W, V: mgl32.Vec3(q.V)}
}

func fromMgl(q mgl32.Quat) Quat {
	return Quat{V: Vec3(q.V), W: q.W}
}

// Rotates a vector by the rotation this quaternion represents.
func (q Quat) Rotate(v Vec3) Vec3 {
	cross := q.V.Cross(v)
	// v + 2q_w * (q_v x v) + 2q_v x (q_v x v)
	return v.Add(cross.Mul(2 * q.W)).Add(q.V.Mul(2).Cross(cross))
}

// Multiplies two quaternions. Multiplication is not commutative.
func (q Quat) Mul(q2 Quat) Quat {
	return fromMgl(q.mgl().Mul(q2.mgl()))
}

// Returns the length of the quaternion.
func (q Quat) Len() float32 {
	return float32(math.Sqrt(float64(q.W*q.W + q.V.Dot(q.V))))
}

// Normalizes the quaternion, returning its versor (unit quaternion).
func (q Quat) Normalize() Quat {
	length := q.Len()
	if length == 0 {
		return QuatIdent()
	}
	absDelta := 1 - length
	if absDelta < 0 {
		absDelta = -absDelta
	}
	if absDelta < floatCmpEpsilon {
		return q
	}
	return Quat{q.V.Mul(1 / length), q.W / length}
}

// The inverse of a quaternion.
func (q Quat) Inverse() Quat {
	return fromMgl(q.mgl().Inverse())
}

// Spherical interpolation between q and q2. The endpoints are returned
// unchanged for t <= 0 and t >= 1.
func (q Quat) Slerp(q2 Quat, t float32) Quat {
	if t <= 0 {
		return q
	}
	if t >= 1 {
		return q2
	}
	return fromMgl(mgl32.QuatSlerp(q.mgl(), q2.mgl(), t))
}

// Returns true if both quaternions describe exactly the same components.
func (q Quat) Equal(q2 Quat) bool {
	return q.W == q2.W && q.V == q2.V
}

// Returns the homogeneous 3D rotation matrix corresponding to the quaternion.
func (q Quat) Mat4() Mat4 {
	return Mat4(q.mgl().Mat4())
}
