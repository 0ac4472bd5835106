package bvh

import (
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/simd"
)

// Build brings the scene up to date: dirty object trees are rebuilt, dirty
// instance envelopes recomputed and the top-level tree rebuilt if anything
// changed or force is set. Reusing an unchanged top level is a successful
// build; use Rebuilt to tell the two apart.
func (s *SceneBVH) Build(force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.build(force)
	return true
}

// BuildDirty marks the listed instances and trees as changed and builds. It
// fails without building if any id is unknown.
func (s *SceneBVH) BuildDirty(instances, trees []uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range trees {
		if int(id) >= len(s.trees) {
			return false, ErrUnknownTree
		}
	}
	for _, id := range instances {
		if int(id) >= len(s.instances) {
			return false, ErrUnknownInstance
		}
	}
	for _, id := range trees {
		s.treeDirty[id] = true
	}
	for _, id := range instances {
		s.instances[id].dirty = true
	}
	s.build(false)
	return true, nil
}

func (s *SceneBVH) build(force bool) {
	start := time.Now()

	treesChanged := false
	for id, tree := range s.trees {
		if !s.treeDirty[id] && tree.Built() {
			continue
		}
		tree.Build()
		s.treeDirty[id] = false
		treesChanged = true
		for i := range s.instances {
			if s.instances[i].Tree == uint32(id) {
				s.instances[i].dirty = true
			}
		}
	}

	dirty := make([]int, 0)
	for i := range s.instances {
		if s.instances[i].dirty {
			dirty = append(dirty, i)
		}
	}

	if !force && !treesChanged && len(dirty) == 0 && s.built {
		s.rebuilt = false
		instrumentBuild(start, false)
		s.logger.Debugf("scene BVH unchanged; reusing %d nodes and %d leaves", len(s.nodes), len(s.leaves))
		return
	}

	s.updateEnvelopes(dirty)
	if treesChanged || !s.built {
		s.consolidate()
	}
	s.buildTopLevel()
	s.built = true
	s.rebuilt = true

	instrumentBuild(start, true)
	s.logger.Debugf(
		"scene BVH build time: %d ms, trees: %d, instances: %d (%d dirty), nodes: %d, leaves: %d",
		time.Since(start).Nanoseconds()/1e6,
		len(s.trees), len(s.instances), len(dirty), len(s.nodes), len(s.leaves),
	)
}

// updateEnvelopes recomputes the world bounds of the listed instances.
func (s *SceneBVH) updateEnvelopes(ids []int) {
	var g errgroup.Group
	if s.workers != nil {
		g.SetLimit(s.workers.Count())
	} else {
		g.SetLimit(1)
	}
	for _, id := range ids {
		inst := &s.instances[id]
		local := s.trees[inst.Tree].Bounds()
		g.Go(func() error {
			inst.BBox = inst.Transform.Envelope(local)
			inst.dirty = false
			return nil
		})
	}
	_ = g.Wait()
}

// consolidate copies the records of every tree into one buffer and points
// the trees at their views.
func (s *SceneBVH) consolidate() {
	total := 0
	for _, tree := range s.trees {
		total += len(tree.Records())
	}
	if uint64(total) > math.MaxUint32 {
		s.logger.Fatalf("scene geometry of %d triangle records exceeds the addressable range", total)
	}

	geometry := make([]simd.TriRecord, total)
	offset := 0
	for _, tree := range s.trees {
		recs := tree.Records()
		view := geometry[offset : offset+len(recs) : offset+len(recs)]
		copy(view, recs)
		tree.SetRecords(view)
		offset += len(recs)
	}
	s.geometry = geometry
	s.generation++
}

// buildTopLevel partitions all instances with a non-empty envelope.
func (s *SceneBVH) buildTopLevel() {
	s.nodes = s.nodes[:0]
	s.leaves = s.leaves[:0]
	s.bbox = geom.EmptyBBox()
	s.root = geom.InvalidID

	items := make([]uint32, 0, len(s.instances))
	for i := range s.instances {
		if box := s.instances[i].BBox; !box.IsEmpty() {
			items = append(items, uint32(i))
			s.bbox = s.bbox.Union(box)
		}
	}
	if len(items) == 0 {
		return
	}
	s.root, _ = s.partition(items)
}

// partition builds the subtree for items and returns its reference and
// bounds.
func (s *SceneBVH) partition(items []uint32) (uint32, geom.BBox) {
	bounds := geom.EmptyBBox()
	centers := geom.EmptyBBox()
	for _, id := range items {
		box := s.instances[id].BBox
		bounds = bounds.Union(box)
		centers = centers.UnionPoint(box.Center())
	}

	if len(items) <= simd.Width {
		return s.chainLeaves(items), bounds
	}

	axis := centers.LongestAxis()
	mid := centers.Center()[axis]
	left := make([]uint32, 0, len(items))
	right := make([]uint32, 0, len(items))
	for _, id := range items {
		if s.instances[id].BBox.Center()[axis] < mid {
			left = append(left, id)
		} else {
			right = append(right, id)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return s.chainLeaves(items), bounds
	}

	idx := uint32(len(s.nodes))
	s.nodes = append(s.nodes, Node{})
	leftRef, leftBox := s.partition(left)
	rightRef, rightBox := s.partition(right)
	s.nodes[idx] = Node{
		Boxes:    [2]geom.BBox{leftBox, rightBox},
		Children: [2]uint32{leftRef, rightRef},
	}
	return idx, bounds
}

// chainLeaves packs items four at a time into linked leaves and returns a
// reference to the first one.
func (s *SceneBVH) chainLeaves(items []uint32) uint32 {
	first := uint32(len(s.leaves))
	for start := 0; start < len(items); start += simd.Width {
		end := min(start+simd.Width, len(items))
		leaf := Leaf{Boxes: simd.EmptyBBox4(), Next: geom.InvalidID}
		for lane, id := range items[start:end] {
			box := s.instances[id].BBox
			leaf.Boxes.SetLane(lane, box.Min, box.Max)
			leaf.Instances[lane] = id
		}
		for lane := end - start; lane < simd.Width; lane++ {
			leaf.Instances[lane] = geom.InvalidID
		}
		if end < len(items) {
			leaf.Next = uint32(len(s.leaves)) + 1
		}
		s.leaves = append(s.leaves, leaf)
	}
	return leafRef(first)
}
