// Package bvh implements the scene level of the acceleration structure: a
// bounding volume hierarchy over animated instances of object kd-trees.
package bvh

import (
	"errors"
	"sync"

	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/kdtree"
	"github.com/Kai-Fu/KRender-sub000/log"
	"github.com/Kai-Fu/KRender-sub000/sched"
	"github.com/Kai-Fu/KRender-sub000/simd"
)

var (
	ErrUnknownTree       = errors.New("bvh: unknown object tree")
	ErrUnknownInstance   = errors.New("bvh: unknown instance")
	ErrTooManyInstances  = errors.New("bvh: instance limit reached")
	ErrNotBuilt          = errors.New("bvh: scene has not been built")
	ErrSnapshotMismatch  = errors.New("bvh: snapshot does not match registered instances")
	ErrSnapshotCorrupt   = errors.New("bvh: snapshot references out of range")
	ErrTreeNotRestorable = errors.New("bvh: object tree must be built before restoring the scene")
)

// Child references with this bit set point into the leaf list.
const leafFlag uint32 = 1 << 31

func isLeaf(ref uint32) bool      { return ref&leafFlag != 0 }
func leafIndex(ref uint32) uint32 { return ref &^ leafFlag }
func leafRef(index uint32) uint32 { return index | leafFlag }

// Node is an interior node holding the bounds of both children.
type Node struct {
	Boxes    [2]geom.BBox
	Children [2]uint32
}

// Leaf packs up to four instance envelopes for a single 4-wide box test.
// Next links to another leaf holding instances that could not be separated,
// or is geom.InvalidID.
type Leaf struct {
	Boxes     simd.BBox4
	Instances [simd.Width]uint32
	Next      uint32
}

// Instance places an object tree in the world.
type Instance struct {
	Tree      uint32
	Transform geom.AnimatedTransform

	// World-space envelope over the motion window.
	BBox geom.BBox

	dirty bool
}

// SceneBVH indexes instances of object trees. Structural changes and
// builds take an exclusive lock; ray queries may run concurrently with each
// other.
type SceneBVH struct {
	logger  log.Logger
	opts    config.Options
	workers *sched.Workers

	mu sync.RWMutex

	trees     []*kdtree.ObjectKDTree
	treeDirty []bool
	instances []Instance

	root   uint32
	bbox   geom.BBox
	nodes  []Node
	leaves []Leaf

	// All object tree records in one buffer. Trees reference views into it.
	geometry   []simd.TriRecord
	generation uint64
	built      bool

	// Whether the last build rebuilt the top level rather than reusing it.
	rebuilt bool

	contexts sync.Pool
}

// Create an empty scene BVH. If workers is nil builds run on the calling
// goroutine.
func New(opts config.Options, workers *sched.Workers) *SceneBVH {
	s := &SceneBVH{
		logger:  log.New("bvh"),
		opts:    opts,
		workers: workers,
		root:    geom.InvalidID,
		bbox:    geom.EmptyBBox(),
	}
	entries := opts.TriCacheEntries
	s.contexts.New = func() interface{} {
		return geom.NewIntersectContext(entries)
	}
	return s
}

// AddTree registers an object tree and returns its id. The tree is built on
// the next Build if it has not been already.
func (s *SceneBVH) AddTree(tree *kdtree.ObjectKDTree) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trees = append(s.trees, tree)
	s.treeDirty = append(s.treeDirty, !tree.Built())
	return uint32(len(s.trees) - 1)
}

// Tree returns a registered object tree.
func (s *SceneBVH) Tree(id uint32) (*kdtree.ObjectKDTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(id) >= len(s.trees) {
		return nil, ErrUnknownTree
	}
	return s.trees[id], nil
}

// Number of registered object trees.
func (s *SceneBVH) TreeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trees)
}

// MarkTreeDirty schedules a tree rebuild, for instance after its meshes
// were edited.
func (s *SceneBVH) MarkTreeDirty(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(id) >= len(s.trees) {
		return ErrUnknownTree
	}
	s.treeDirty[id] = true
	return nil
}

// CreateInstance places tree id in the scene and returns the instance id.
func (s *SceneBVH) CreateInstance(tree uint32, transform geom.AnimatedTransform) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(tree) >= len(s.trees) {
		return geom.InvalidID, ErrUnknownTree
	}
	if len(s.instances) > geom.MaxInstanceIndex {
		return geom.InvalidID, ErrTooManyInstances
	}
	s.instances = append(s.instances, Instance{
		Tree:      tree,
		Transform: transform,
		BBox:      geom.EmptyBBox(),
		dirty:     true,
	})
	return uint32(len(s.instances) - 1), nil
}

// SetInstanceTransform replaces the transform of an instance. The change is
// picked up by the next Build.
func (s *SceneBVH) SetInstanceTransform(id uint32, transform geom.AnimatedTransform) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(id) >= len(s.instances) {
		return ErrUnknownInstance
	}
	inst := &s.instances[id]
	inst.Transform = transform
	inst.dirty = true
	return nil
}

// Instance returns a copy of an instance.
func (s *SceneBVH) Instance(id uint32) (Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(id) >= len(s.instances) {
		return Instance{}, ErrUnknownInstance
	}
	return s.instances[id], nil
}

// Number of instances.
func (s *SceneBVH) InstanceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

// Bounds of all instance envelopes.
func (s *SceneBVH) Bounds() geom.BBox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bbox
}

// Size returns the node and leaf counts of the top-level tree.
func (s *SceneBVH) Size() (nodes, leaves int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.leaves)
}

// Number of triangle records in the consolidated geometry buffer.
func (s *SceneBVH) GeometrySize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.geometry)
}

// Rebuilt reports whether the last Build or BuildDirty rebuilt the top
// level. It is false after a build that found nothing to do and after
// Restore.
func (s *SceneBVH) Rebuilt() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rebuilt
}

// Snapshot is the persisted form of the top-level tree.
type Snapshot struct {
	Root          uint32
	BBox          geom.BBox
	Nodes         []Node
	Leaves        []Leaf
	InstanceBoxes []geom.BBox
}

// Snapshot returns the top-level layout. Node and leaf slices are shared
// with the scene.
func (s *SceneBVH) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.built {
		return Snapshot{}, ErrNotBuilt
	}
	boxes := make([]geom.BBox, len(s.instances))
	for i, inst := range s.instances {
		boxes[i] = inst.BBox
	}
	return Snapshot{
		Root:          s.root,
		BBox:          s.bbox,
		Nodes:         s.nodes,
		Leaves:        s.leaves,
		InstanceBoxes: boxes,
	}, nil
}

// Restore installs a persisted top-level layout. All trees and instances
// must already be registered and every tree built or restored.
func (s *SceneBVH) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(snap.InstanceBoxes) != len(s.instances) {
		return ErrSnapshotMismatch
	}
	for _, tree := range s.trees {
		if !tree.Built() {
			return ErrTreeNotRestorable
		}
	}

	checkRef := func(ref uint32) bool {
		if isLeaf(ref) {
			return leafIndex(ref) < uint32(len(snap.Leaves))
		}
		return ref < uint32(len(snap.Nodes))
	}
	if snap.Root != geom.InvalidID && !checkRef(snap.Root) {
		return ErrSnapshotCorrupt
	}
	for _, node := range snap.Nodes {
		if !checkRef(node.Children[0]) || !checkRef(node.Children[1]) {
			return ErrSnapshotCorrupt
		}
	}
	for _, leaf := range snap.Leaves {
		if leaf.Next != geom.InvalidID && leaf.Next >= uint32(len(snap.Leaves)) {
			return ErrSnapshotCorrupt
		}
		for lane := 0; lane < leaf.Boxes.Count; lane++ {
			if leaf.Instances[lane] >= uint32(len(s.instances)) {
				return ErrSnapshotCorrupt
			}
		}
	}

	s.root = snap.Root
	s.bbox = snap.BBox
	s.nodes = append([]Node(nil), snap.Nodes...)
	s.leaves = append([]Leaf(nil), snap.Leaves...)
	for i := range s.instances {
		s.instances[i].BBox = snap.InstanceBoxes[i]
		s.instances[i].dirty = false
	}
	for i := range s.treeDirty {
		s.treeDirty[i] = false
	}
	s.consolidate()
	s.built = true
	s.rebuilt = false
	return nil
}
