package bvh

import (
	"math"

	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/simd"
)

var inf = float32(math.Inf(1))

type stackEntry struct {
	ref  uint32
	tmin float32
}

// IntersectRay returns the nearest hit along a world-space ray at the given
// time in [0, 1].
func (s *SceneBVH) IntersectRay(r *geom.Ray, time float32) geom.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := s.contexts.Get().(*geom.IntersectContext)
	ctx.Reset(r, inf)
	s.intersect(r, clampTime(time), ctx)
	hit := ctx.Result(r.Dir.Len())
	s.contexts.Put(ctx)

	instrumentRay(hit.Hit)
	return hit
}

// Occluded reports whether anything blocks the ray before maxT.
func (s *SceneBVH) Occluded(r *geom.Ray, time, maxT float32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := s.contexts.Get().(*geom.IntersectContext)
	ctx.Reset(r, maxT)
	ctx.AnyHit = true
	hit := s.intersect(r, clampTime(time), ctx)
	s.contexts.Put(ctx)

	instrumentRay(hit)
	return hit
}

// Intersect implements geom.Intersector with a caller supplied context.
func (s *SceneBVH) Intersect(r *geom.Ray, time float32, ctx *geom.IntersectContext) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intersect(r, clampTime(time), ctx)
}

func clampTime(t float32) float32 {
	if !(t > 0) {
		return 0
	}
	return min(t, 1)
}

func (s *SceneBVH) intersect(r *geom.Ray, time float32, ctx *geom.IntersectContext) bool {
	if s.root == geom.InvalidID {
		return false
	}
	if _, _, ok := s.bbox.IntersectRay(r, 0, ctx.T); !ok {
		return false
	}

	var buf [64]stackEntry
	stack := append(buf[:0], stackEntry{ref: s.root})
	found := false
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e.tmin > ctx.T {
			continue
		}

		if isLeaf(e.ref) {
			if s.intersectLeaves(leafIndex(e.ref), r, time, ctx) {
				found = true
				if ctx.AnyHit {
					return true
				}
			}
			continue
		}

		node := &s.nodes[e.ref]
		t0, _, hit0 := node.Boxes[0].IntersectRay(r, 0, ctx.T)
		t1, _, hit1 := node.Boxes[1].IntersectRay(r, 0, ctx.T)
		switch {
		case hit0 && hit1:
			// Push the far child first so the near one is visited next.
			near, far := 0, 1
			if t1 < t0 {
				near, far = 1, 0
				t0, t1 = t1, t0
			}
			stack = append(stack,
				stackEntry{node.Children[far], t1},
				stackEntry{node.Children[near], t0},
			)
		case hit0:
			stack = append(stack, stackEntry{node.Children[0], t0})
		case hit1:
			stack = append(stack, stackEntry{node.Children[1], t1})
		}
	}
	return found
}

// intersectLeaves tests a leaf and every leaf chained to it. Instances are
// visited in order of their envelope entry distance.
func (s *SceneBVH) intersectLeaves(li uint32, r *geom.Ray, time float32, ctx *geom.IntersectContext) bool {
	found := false
	for ; li != geom.InvalidID; li = s.leaves[li].Next {
		leaf := &s.leaves[li]
		mask, near, _ := simd.RayBox4(&r.Lanes, &leaf.Boxes, 0, ctx.T)
		if !mask.Any() {
			continue
		}

		var order [simd.Width]int
		n := 0
		for lane := 0; lane < leaf.Boxes.Count; lane++ {
			if !mask.Has(lane) {
				continue
			}
			i := n
			for ; i > 0 && near[order[i-1]] > near[lane]; i-- {
				order[i] = order[i-1]
			}
			order[i] = lane
			n++
		}

		for _, lane := range order[:n] {
			if near[lane] > ctx.T {
				break
			}
			id := leaf.Instances[lane]
			if id == r.ExcludeInstance && !r.ExcludeTriangle.IsValid() {
				continue
			}
			if s.intersectInstance(id, r, time, ctx) {
				found = true
				if ctx.AnyHit {
					return true
				}
			}
		}
	}
	return found
}

func (s *SceneBVH) intersectInstance(id uint32, r *geom.Ray, time float32, ctx *geom.IntersectContext) bool {
	inst := &s.instances[id]
	local := r.Transform(inst.Transform.InverseAt(time))
	ctx.CurrentInstance = id
	return s.trees[inst.Tree].IntersectRay(&local, time, ctx)
}
