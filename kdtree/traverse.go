package kdtree

import (
	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/simd"
)

// Each level pushes at most one far child.
const maxTraversalDepth = config.MaxSupportedDepth

type stackEntry struct {
	ref        uint32
	tmin, tmax float32
}

// IntersectRay finds the nearest triangle hit closer than ctx.T for a ray
// given in the tree's local frame. On success ctx holds the hit, with the
// triangle reference tagged by ctx.CurrentInstance.
func (t *ObjectKDTree) IntersectRay(r *geom.Ray, time float32, ctx *geom.IntersectContext) bool {
	if !t.built || len(t.refs) == 0 {
		return false
	}
	tmin, tmax, ok := t.bbox.IntersectRay(r, 0, ctx.T)
	if !ok {
		return false
	}

	var (
		stack [maxTraversalDepth + 1]stackEntry
		sp    int
		found bool
	)
	ref := t.root
	for {
		for !isLeaf(ref) {
			node := &t.nodes[ref]
			axis := node.Axis
			o, d := r.Origin[axis], r.Dir[axis]

			near, far := node.Left, node.Right
			if o > node.Split || (o == node.Split && d > 0) {
				near, far = far, near
			}

			if d == 0 {
				if o == node.Split && sp < len(stack) {
					// Ray runs inside the split plane.
					stack[sp] = stackEntry{far, tmin, tmax}
					sp++
				}
				ref = near
				continue
			}

			tSplit := (node.Split - o) * r.RcpDir[axis]
			switch {
			case tSplit > tmax || tSplit <= 0:
				ref = near
			case tSplit < tmin:
				ref = far
			default:
				if sp < len(stack) {
					stack[sp] = stackEntry{far, tSplit, tmax}
					sp++
				}
				ref = near
				tmax = tSplit
			}
		}

		if t.intersectLeaf(leafIndex(ref), r, time, ctx) {
			found = true
			if ctx.AnyHit {
				return true
			}
		}

		for {
			if sp == 0 {
				return found
			}
			sp--
			e := stack[sp]
			if e.tmin <= ctx.T {
				ref, tmin, tmax = e.ref, e.tmin, e.tmax
				break
			}
		}
	}
}

// Intersect implements geom.Intersector.
func (t *ObjectKDTree) Intersect(r *geom.Ray, time float32, ctx *geom.IntersectContext) bool {
	return t.IntersectRay(r, time, ctx)
}

func (t *ObjectKDTree) intersectLeaf(li uint32, r *geom.Ray, time float32, ctx *geom.IntersectContext) bool {
	leaf := &t.leaves[li]
	if leaf.Count == 0 {
		return false
	}
	recs := t.records[leaf.First : leaf.First+leaf.Count]

	var groups []simd.Tri4
	if ctx.Cache != nil {
		groups = ctx.Cache.Get(simd.CacheKey(ctx.CurrentInstance, li), t.generation, recs)
	} else {
		groups = simd.SwizzleForSIMD(recs, nil)
	}

	if !leaf.HasAnimation {
		time = 0
	}
	found := false
	for g := range groups {
		mask, tv, u, v := simd.IntersectTri4(&r.Lanes, &groups[g], time, r.CullBackFace)
		if !mask.Any() {
			continue
		}
		for lane := 0; lane < simd.Width; lane++ {
			if !mask.Has(lane) || !(tv[lane] < ctx.T) {
				continue
			}
			ref := t.refs[groups[g].ID[lane]].WithInstance(ctx.CurrentInstance)
			if ctx.Excluded(ref) {
				continue
			}
			ctx.Accept(tv[lane], u[lane], v[lane], ref, li)
			found = true
			if ctx.AnyHit {
				return true
			}
		}
	}
	return found
}
