// Package kdtree implements the per-object acceleration structure: a kd-tree
// over the triangles of one or more meshes sharing a local frame.
package kdtree

import (
	"errors"
	"sync/atomic"

	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/log"
	"github.com/Kai-Fu/KRender-sub000/mesh"
	"github.com/Kai-Fu/KRender-sub000/sched"
	"github.com/Kai-Fu/KRender-sub000/simd"
)

var (
	ErrNotBuilt         = errors.New("kdtree: tree has not been built")
	ErrSnapshotMismatch = errors.New("kdtree: snapshot does not match tree triangles")
	ErrSnapshotCorrupt  = errors.New("kdtree: snapshot references out of range")
)

// Child references with this bit set point into the leaf list.
const leafFlag uint32 = 1 << 31

// Every build draws a fresh generation so cached swizzled leaves from an
// older build, or from another tree, are never reused.
var generationCounter atomic.Uint64

func isLeaf(ref uint32) bool      { return ref&leafFlag != 0 }
func leafIndex(ref uint32) uint32 { return ref &^ leafFlag }
func leafRef(index uint32) uint32 { return index | leafFlag }

// Node is an interior node. Left holds everything below Split along Axis.
type Node struct {
	Axis  uint32
	Split float32
	Left  uint32
	Right uint32
	BBox  geom.BBox
}

// Leaf references a contiguous run of triangle ids. BBox is the union of
// the unclipped triangle boxes, padded.
type Leaf struct {
	BBox         geom.BBox
	First        uint32
	Count        uint32
	HasAnimation bool
}

type stats struct {
	partitionedItems int64
	totalItems       int64
	nodes            int64
	leaves           int64
	forcedLeaves     int64
	maxDepth         int64
}

// ObjectKDTree indexes the triangles of one or more meshes. A tree must not
// be rebuilt while it is being traversed.
type ObjectKDTree struct {
	logger  log.Logger
	opts    config.Options
	workers *sched.Workers

	meshes []*mesh.TriangleMesh

	// Tree-local triangle id -> (mesh slot, triangle). The instance field
	// is left at 0 and filled in during traversal.
	refs     []geom.TriangleRef
	triBoxes []geom.BBox

	root   uint32
	bbox   geom.BBox
	nodes  []Node
	leaves []Leaf

	// Per-leaf triangle ids and the matching geometry records, laid out
	// so that leaf l covers [First, First+Count) in both.
	leafTris []uint32
	records  []simd.TriRecord

	generation uint64
	built      bool
	stats      stats
}

// Create an unbuilt tree over meshes. If workers is nil the tree is built on
// the calling goroutine.
func New(meshes []*mesh.TriangleMesh, opts config.Options, workers *sched.Workers) *ObjectKDTree {
	return &ObjectKDTree{
		logger:  log.New("kdtree"),
		opts:    opts,
		workers: workers,
		meshes:  meshes,
		bbox:    geom.EmptyBBox(),
	}
}

// Meshes indexed by the tree in mesh slot order.
func (t *ObjectKDTree) Meshes() []*mesh.TriangleMesh {
	return t.meshes
}

// Built returns true once Build or Restore has completed.
func (t *ObjectKDTree) Built() bool {
	return t.built
}

// Bounds of all indexed triangles over the whole motion window.
func (t *ObjectKDTree) Bounds() geom.BBox {
	return t.bbox
}

// Number of indexed triangles.
func (t *ObjectKDTree) TriangleCount() int {
	return len(t.refs)
}

// GetTriangleRef maps a tree-local triangle id to its mesh and triangle.
func (t *ObjectKDTree) GetTriangleRef(id uint32) geom.TriangleRef {
	if int(id) >= len(t.refs) {
		return geom.InvalidTriangleRef
	}
	return t.refs[id]
}

// Generation of the geometry currently referenced by the leaves.
func (t *ObjectKDTree) Generation() uint64 {
	return t.generation
}

// Records returns the geometry records in leaf order.
func (t *ObjectKDTree) Records() []simd.TriRecord {
	return t.records
}

// SetRecords re-points the tree at an equivalent copy of its records, such
// as a view into a consolidated scene buffer.
func (t *ObjectKDTree) SetRecords(view []simd.TriRecord) {
	if len(view) == len(t.records) {
		t.records = view
	}
}

// VisitLeaves calls fn for each leaf in index order with the triangle ids it
// holds. The slice must not be retained.
func (t *ObjectKDTree) VisitLeaves(fn func(index uint32, leaf *Leaf, tris []uint32)) {
	for i := range t.leaves {
		l := &t.leaves[i]
		fn(uint32(i), l, t.leafTris[l.First:l.First+l.Count])
	}
}

// Number of interior nodes and leaves.
func (t *ObjectKDTree) Size() (nodes, leaves int) {
	return len(t.nodes), len(t.leaves)
}

// Depth of the deepest leaf produced by the last build.
func (t *ObjectKDTree) MaxDepth() int {
	return int(t.stats.maxDepth)
}

// collectTriangles fills refs and triBoxes from the meshes.
func (t *ObjectKDTree) collectTriangles() {
	total := 0
	for _, m := range t.meshes {
		total += m.TriangleCount()
	}
	if uint64(total) >= uint64(leafFlag) {
		t.logger.Fatalf("triangle count %d exceeds the addressable range", total)
	}

	t.refs = t.refs[:0]
	for slot, m := range t.meshes {
		for tri := 0; tri < m.TriangleCount(); tri++ {
			t.refs = append(t.refs, geom.MakeTriangleRef(0, uint32(slot), uint32(tri)))
		}
	}

	if cap(t.triBoxes) < total {
		t.triBoxes = make([]geom.BBox, total)
	}
	t.triBoxes = t.triBoxes[:total]
	fill := func(start, end int) {
		for id := start; id < end; id++ {
			ref := t.refs[id]
			t.triBoxes[id] = t.meshes[ref.Mesh()].TriangleBBox(int(ref.Triangle()))
		}
	}
	if t.workers != nil && t.workers.Count() > 1 && total >= parallelMinTriangles {
		t.workers.Bucket.Run(func(slot, slots int) {
			fill(sched.Split(total, slot, slots))
		})
	} else {
		fill(0, total)
	}
}

func (t *ObjectKDTree) record(id uint32) simd.TriRecord {
	ref := t.refs[id]
	m := t.meshes[ref.Mesh()]
	tri := int(ref.Triangle())
	rec := simd.TriRecord{
		V:    m.StartVertices(tri),
		VEnd: m.EndVertices(tri),
		ID:   id,
	}
	if rec.V != rec.VEnd {
		rec.Animated = 1
	}
	return rec
}

// finalize lays out leaf triangle lists and geometry records contiguously.
func (t *ObjectKDTree) finalize(lists [][]uint32) {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	if uint64(total) >= uint64(leafFlag) {
		t.logger.Fatalf("leaf triangle references %d exceed the addressable range", total)
	}

	t.leafTris = make([]uint32, 0, total)
	t.records = make([]simd.TriRecord, 0, total)
	for i, tris := range lists {
		l := &t.leaves[i]
		l.First = uint32(len(t.leafTris))
		l.Count = uint32(len(tris))
		t.leafTris = append(t.leafTris, tris...)
		for _, id := range tris {
			rec := t.record(id)
			if rec.Animated != 0 {
				l.HasAnimation = true
			}
			t.records = append(t.records, rec)
		}
	}
	t.generation = generationCounter.Add(1)
	t.built = true
}

// Snapshot is the persisted form of a built tree.
type Snapshot struct {
	Root     uint32
	BBox     geom.BBox
	Nodes    []Node
	Leaves   []Leaf
	LeafTris []uint32
}

// Snapshot returns the tree layout. The slices are shared with the tree.
func (t *ObjectKDTree) Snapshot() (Snapshot, error) {
	if !t.built {
		return Snapshot{}, ErrNotBuilt
	}
	return Snapshot{
		Root:     t.root,
		BBox:     t.bbox,
		Nodes:    t.nodes,
		Leaves:   t.leaves,
		LeafTris: t.leafTris,
	}, nil
}

// Restore installs a previously built layout without rebuilding. The
// geometry records are regenerated from the meshes.
func (t *ObjectKDTree) Restore(s Snapshot) error {
	t.collectTriangles()
	n := uint32(len(t.refs))

	for _, id := range s.LeafTris {
		if id >= n {
			return ErrSnapshotMismatch
		}
	}
	checkRef := func(ref uint32) bool {
		if isLeaf(ref) {
			return leafIndex(ref) < uint32(len(s.Leaves))
		}
		return ref < uint32(len(s.Nodes))
	}
	if !checkRef(s.Root) {
		return ErrSnapshotCorrupt
	}
	for _, node := range s.Nodes {
		if node.Axis > 2 || !checkRef(node.Left) || !checkRef(node.Right) {
			return ErrSnapshotCorrupt
		}
	}
	lists := make([][]uint32, len(s.Leaves))
	for i, l := range s.Leaves {
		end := uint64(l.First) + uint64(l.Count)
		if end > uint64(len(s.LeafTris)) {
			return ErrSnapshotCorrupt
		}
		lists[i] = s.LeafTris[l.First:end]
	}

	t.root = s.Root
	t.bbox = s.BBox
	t.nodes = append([]Node(nil), s.Nodes...)
	t.leaves = make([]Leaf, len(s.Leaves))
	for i, l := range s.Leaves {
		t.leaves[i] = Leaf{BBox: l.BBox}
	}
	t.finalize(lists)
	t.stats = stats{
		totalItems:       int64(n),
		partitionedItems: int64(len(t.leafTris)),
		nodes:            int64(len(t.nodes)),
		leaves:           int64(len(t.leaves)),
	}
	return nil
}
