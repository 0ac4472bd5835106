package geom

import (
	"math"

	"github.com/Kai-Fu/KRender-sub000/simd"
	"github.com/Kai-Fu/KRender-sub000/types"
)

const slabFarScale float32 = 1 + 4e-7

// InvalidID marks an unset instance, node or leaf id.
const InvalidID = ^uint32(0)

// Ray is a traced ray. The reciprocal direction, per-axis sign and lane
// broadcast are derived once by NewRay and shared by every box test along
// a traversal; call NewRay again after changing Origin or Dir.
type Ray struct {
	Origin types.Vec3
	Dir    types.Vec3
	RcpDir types.Vec3

	// Sign[a] is 1 if the direction along axis a is negative.
	Sign [3]int

	Lanes simd.Ray4

	// A ray never reports a hit on this triangle. If only the instance is
	// set the whole instance is skipped.
	ExcludeInstance uint32
	ExcludeTriangle TriangleRef

	// Reject triangles whose geometric normal points along Dir.
	CullBackFace bool
}

// Create a ray with no exclusions.
func NewRay(origin, dir types.Vec3) Ray {
	r := Ray{
		Origin:          origin,
		Dir:             dir,
		RcpDir:          dir.Recip(),
		ExcludeInstance: InvalidID,
		ExcludeTriangle: InvalidTriangleRef,
	}
	for a := 0; a < 3; a++ {
		if math.Signbit(float64(r.RcpDir[a])) {
			r.Sign[a] = 1
		}
	}
	r.Lanes = simd.NewRay4(r.Origin, r.Dir, r.RcpDir)
	return r
}

// Return a copy of the ray moved through m with the same exclusions. The
// direction is not renormalized so hit distances stay comparable.
func (r *Ray) Transform(m types.Mat4) Ray {
	out := NewRay(m.MulPoint(r.Origin), m.MulDir(r.Dir))
	out.ExcludeInstance = r.ExcludeInstance
	out.ExcludeTriangle = r.ExcludeTriangle
	out.CullBackFace = r.CullBackFace
	return out
}

// Point along the ray at distance t.
func (r *Ray) At(t float32) types.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}
