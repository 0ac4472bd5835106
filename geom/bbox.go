package geom

import (
	"math"

	"github.com/Kai-Fu/KRender-sub000/types"
)

const (
	// Degenerate axes are padded by this fraction of the box diagonal...
	padDiagonalScale float32 = 1e-5

	// ...plus this fraction of the largest coordinate magnitude so that
	// padding survives float32 rounding far from the origin.
	padMagnitudeScale float32 = 1e-6

	minPad float32 = 1e-7
)

// BBox is an axis-aligned bounding box.
type BBox struct {
	Min types.Vec3
	Max types.Vec3
}

// An empty box; the union of an empty box and b is b.
func EmptyBBox() BBox {
	return BBox{
		Min: types.Splat3(math.MaxFloat32),
		Max: types.Splat3(-math.MaxFloat32),
	}
}

// Create a box from a set of points.
func BBoxOf(points ...types.Vec3) BBox {
	b := EmptyBBox()
	for _, p := range points {
		b = b.UnionPoint(p)
	}
	return b
}

// IsEmpty returns true if the box is inverted along any axis.
func (b BBox) IsEmpty() bool {
	return b.Max[0] < b.Min[0] || b.Max[1] < b.Min[1] || b.Max[2] < b.Min[2]
}

func (b BBox) Union(o BBox) BBox {
	return BBox{Min: types.MinVec3(b.Min, o.Min), Max: types.MaxVec3(b.Max, o.Max)}
}

func (b BBox) UnionPoint(p types.Vec3) BBox {
	return BBox{Min: types.MinVec3(b.Min, p), Max: types.MaxVec3(b.Max, p)}
}

// Intersection of two boxes; the result may be empty.
func (b BBox) Intersect(o BBox) BBox {
	return BBox{Min: types.MaxVec3(b.Min, o.Min), Max: types.MinVec3(b.Max, o.Max)}
}

// Overlaps returns true if the boxes share at least one point.
func (b BBox) Overlaps(o BBox) bool {
	return !b.Intersect(o).IsEmpty()
}

// Contains returns true if p lies within the box grown by eps.
func (b BBox) Contains(p types.Vec3, eps float32) bool {
	for a := 0; a < 3; a++ {
		if p[a] < b.Min[a]-eps || p[a] > b.Max[a]+eps {
			return false
		}
	}
	return true
}

func (b BBox) Extent() types.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b BBox) Center() types.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Length of the box diagonal.
func (b BBox) Diagonal() float32 {
	if b.IsEmpty() {
		return 0
	}
	return b.Extent().Len()
}

// Axis with the largest extent.
func (b BBox) LongestAxis() int {
	return b.Extent().MaxAxis()
}

// Pad grows every near-zero axis by an epsilon proportional to the box size
// so that flat boxes still produce a usable slab interval.
func (b BBox) Pad() BBox {
	if b.IsEmpty() {
		return b
	}
	var mag float32
	for a := 0; a < 3; a++ {
		mag = max(mag, abs32(b.Min[a]), abs32(b.Max[a]))
	}
	eps := b.Diagonal()*padDiagonalScale + mag*padMagnitudeScale + minPad

	for a := 0; a < 3; a++ {
		if b.Max[a]-b.Min[a] < eps {
			b.Min[a] -= eps
			b.Max[a] += eps
		}
	}
	return b
}

// Split the box with a plane perpendicular to axis at pos.
func (b BBox) Split(axis int, pos float32) (left, right BBox) {
	left, right = b, b
	left.Max[axis] = pos
	right.Min[axis] = pos
	return left, right
}

// Transform all 8 corners of the box and return their bounds.
func (b BBox) Transform(m types.Mat4) BBox {
	if b.IsEmpty() {
		return b
	}
	out := EmptyBBox()
	for corner := 0; corner < 8; corner++ {
		p := b.Min
		for a := 0; a < 3; a++ {
			if corner&(1<<a) != 0 {
				p[a] = b.Max[a]
			}
		}
		out = out.UnionPoint(m.MulPoint(p))
	}
	return out
}

// IntersectRay clips [tmin, tmax] against the box using the ray's
// precomputed reciprocal direction and sign.
func (b BBox) IntersectRay(r *Ray, tmin, tmax float32) (t0, t1 float32, ok bool) {
	bounds := [2]types.Vec3{b.Min, b.Max}
	for a := 0; a < 3; a++ {
		s := r.Sign[a]
		tn := (bounds[s][a] - r.Origin[a]) * r.RcpDir[a]
		tf := (bounds[1-s][a] - r.Origin[a]) * r.RcpDir[a] * slabFarScale
		// NaN distances (origin on a plane of a parallel slab) are skipped.
		if tn > tmin {
			tmin = tn
		}
		if tf < tmax {
			tmax = tf
		}
	}
	return tmin, tmax, tmin <= tmax
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
