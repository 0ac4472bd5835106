package simd

import "github.com/Kai-Fu/KRender-sub000/types"

// TriRecord is the per-triangle (AoS) layout stored in the geometry buffer.
// VEnd holds the vertex positions at the end of the motion window and equals
// V for static triangles.
type TriRecord struct {
	V    [3]types.Vec3
	VEnd [3]types.Vec3
	ID   uint32

	// 1 if VEnd differs from V.
	Animated uint32
}

// Tri4 holds four triangles in lane-interleaved layout as a base vertex and
// two edges per keyframe.
type Tri4 struct {
	V0, E1, E2          [3]Float4
	V0End, E1End, E2End [3]Float4
	ID                  [Width]uint32
	Animated            bool
}

// IntersectTri4 runs the edge/determinant ray-triangle test against all four
// lanes. For animated groups the vertices are interpolated at time before
// testing. If cull is set, lanes whose geometric normal (e1 x e2) points
// along the ray direction are rejected.
//
// Hit lanes satisfy t > 0, u >= 0, v >= 0 and u + v <= 1 where the hit point
// is (1-u-v)*v0 + u*v1 + v*v2.
func IntersectTri4(r *Ray4, tri *Tri4, time float32, cull bool) (hit Mask4, t, u, v Float4) {
	v0, e1, e2 := tri.V0, tri.E1, tri.E2
	if tri.Animated && time > 0 {
		for a := 0; a < 3; a++ {
			v0[a] = v0[a].Lerp(tri.V0End[a], time)
			e1[a] = e1[a].Lerp(tri.E1End[a], time)
			e2[a] = e2[a].Lerp(tri.E2End[a], time)
		}
	}

	p := Cross3(&r.Dir, &e2)
	det := Dot3(&e1, &p)

	var valid Mask4
	if cull {
		valid = det.Greater(Splat(0))
	} else {
		valid = det.NonZero()
	}
	if !valid.Any() {
		return 0, t, u, v
	}
	invDet := det.Recip()

	s := [3]Float4{r.Origin[0].Sub(v0[0]), r.Origin[1].Sub(v0[1]), r.Origin[2].Sub(v0[2])}
	u = Dot3(&s, &p).Mul(invDet)
	valid &= u.GreaterEq(Splat(0)) & u.LessEq(Splat(1))
	if !valid.Any() {
		return 0, t, u, v
	}

	q := Cross3(&s, &e1)
	v = Dot3(&r.Dir, &q).Mul(invDet)
	valid &= v.GreaterEq(Splat(0)) & u.Add(v).LessEq(Splat(1))
	if !valid.Any() {
		return 0, t, u, v
	}

	t = Dot3(&e2, &q).Mul(invDet)
	valid &= t.Greater(Splat(0))
	return valid, t, u, v
}
