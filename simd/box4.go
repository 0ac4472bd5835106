package simd

import (
	"math"

	"github.com/Kai-Fu/KRender-sub000/types"
)

// Widening factor applied to the far slab distance so that rays grazing a
// box face are not lost to rounding.
const slabFarScale float32 = 1 + 4e-7

// Ray4 is a ray broadcast to all lanes. Sign[a] is 1 when the direction
// along axis a is negative and selects which box plane is entered first.
type Ray4 struct {
	Origin [3]Float4
	Dir    [3]Float4
	Rcp    [3]Float4
	Sign   [3]int
}

// Broadcast a ray with a precomputed reciprocal direction.
func NewRay4(origin, dir, rcp types.Vec3) Ray4 {
	var r Ray4
	for a := 0; a < 3; a++ {
		r.Origin[a] = Splat(origin[a])
		r.Dir[a] = Splat(dir[a])
		r.Rcp[a] = Splat(rcp[a])
		if math.Signbit(float64(rcp[a])) {
			r.Sign[a] = 1
		}
	}
	return r
}

// BBox4 packs up to four boxes. Bounds[0] holds the min corners and
// Bounds[1] the max corners; lanes at or beyond Count are invalid.
type BBox4 struct {
	Bounds [2][3]Float4
	Count  int
}

// An empty packed box with all lanes marked invalid.
func EmptyBBox4() BBox4 {
	inf := float32(math.Inf(1))
	var b BBox4
	for a := 0; a < 3; a++ {
		b.Bounds[0][a] = Splat(inf)
		b.Bounds[1][a] = Splat(-inf)
	}
	return b
}

// Store a box in lane i. Count grows to cover the lane.
func (b *BBox4) SetLane(i int, min, max types.Vec3) {
	for a := 0; a < 3; a++ {
		b.Bounds[0][a][i] = min[a]
		b.Bounds[1][a][i] = max[a]
	}
	if i >= b.Count {
		b.Count = i + 1
	}
}

// Get the box stored in lane i.
func (b *BBox4) Lane(i int) (min, max types.Vec3) {
	for a := 0; a < 3; a++ {
		min[a] = b.Bounds[0][a][i]
		max[a] = b.Bounds[1][a][i]
	}
	return min, max
}

// RayBox4 runs the slab test for all packed boxes at once, clipped to
// [tmin, tmax]. It returns the lanes that were hit together with the entry
// and exit distance of every lane.
func RayBox4(r *Ray4, b *BBox4, tmin, tmax float32) (hit Mask4, near, far Float4) {
	near = Splat(tmin)
	far = Splat(tmax)
	for a := 0; a < 3; a++ {
		s := r.Sign[a]
		tn := b.Bounds[s][a].Sub(r.Origin[a]).Mul(r.Rcp[a])
		tf := b.Bounds[1-s][a].Sub(r.Origin[a]).Mul(r.Rcp[a]).Scale(slabFarScale)
		near = near.MaxNum(tn)
		far = far.MinNum(tf)
	}
	hit = near.LessEq(far) & FirstN(b.Count)
	return hit, near, far
}
