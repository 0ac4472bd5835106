package kdtree

import (
	"math"
	"math/bits"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/sched"
)

const (
	// Nodes with fewer triangles are split at the spatial midpoint instead
	// of evaluating the histogram cost.
	histogramMinTriangles = 128
	minBins               = 4
	maxBins               = 1024

	maxSplitAttempts = 3

	// A straddle-heavy node with at most this many leaf thresholds worth of
	// triangles becomes a leaf instead of being retried.
	smallNodeFactor = 4

	// Only subtrees with more than this many leaf thresholds worth of
	// triangles are handed to idle workers.
	spawnFactor = 5

	// Nodes above this depth filter their triangles across the bucket;
	// nodes at or below it may be dispatched to the pool.
	splitPointDepth = 2

	// Below this many triangles a parallel pass is not worth the handoff.
	parallelMinTriangles = 4096

	arenaBlockSize = 1 << 16
)

// indexArena hands out leaf index lists from large shared blocks.
type indexArena struct {
	lock  sched.SpinLock
	block []uint32
	used  int
}

func (a *indexArena) alloc(n int) []uint32 {
	if n == 0 {
		return nil
	}
	if n > arenaBlockSize/4 {
		return make([]uint32, n)
	}

	a.lock.Lock()
	if a.used+n > len(a.block) {
		a.block = make([]uint32, arenaBlockSize)
		a.used = 0
	}
	out := a.block[a.used : a.used+n : a.used+n]
	a.used += n
	a.lock.Unlock()
	return out
}

type splitCandidate struct {
	axis        int
	pos         float32
	left, right []uint32
	straddle    int
}

type builder struct {
	tree    *ObjectKDTree
	workers *sched.Workers

	leafThreshold int
	maxDepth      int
	straddleRatio float32
	threadDepth   int

	nodeLock sched.SpinLock
	leafLock sched.SpinLock
	leaves   []Leaf
	lists    [][]uint32
	arena    indexArena

	stats stats
}

// Build partitions the triangles of all meshes, discarding any previous
// layout. An empty tree is valid and still reports success; the only build
// failure is an address range overflow, which terminates the process.
func (t *ObjectKDTree) Build() bool {
	start := time.Now()
	t.collectTriangles()

	b := &builder{
		tree:          t,
		workers:       t.workers,
		leafThreshold: max(t.opts.LeafTriangles, 1),
		maxDepth:      min(max(t.opts.MaxDepth, 1), maxTraversalDepth),
		straddleRatio: t.opts.StraddleRatio,
		threadDepth:   splitPointDepth,
		stats:         stats{totalItems: int64(len(t.refs))},
	}
	if b.straddleRatio <= 0 {
		b.straddleRatio = 1
	}
	if b.workers != nil {
		b.threadDepth = threadLimit(b.workers.Count())
	}

	t.nodes = t.nodes[:0]
	t.built = false

	n := len(t.refs)
	all := make([]uint32, n)
	for i := range all {
		all[i] = uint32(i)
	}
	t.bbox = geom.EmptyBBox()
	for _, box := range t.triBoxes {
		t.bbox = t.bbox.Union(box)
	}
	t.bbox = t.bbox.Pad()

	if n == 0 {
		t.root = b.emitLeaf(nil, false)
	} else {
		t.root = b.split(all, t.bbox, 0)
	}
	if b.workers != nil {
		b.workers.Pool.WaitForAll()
	}

	t.leaves = b.leaves
	t.finalize(b.lists)
	t.stats = b.stats
	t.triBoxes = nil

	instrumentBuild(start, t.stats)
	t.logger.Debugf(
		"kd-tree build time: %d ms, triangles: %d, partitioned: %d, maxDepth: %d, nodes: %d, leaves: %d, forced leaves: %d",
		time.Since(start).Nanoseconds()/1e6,
		t.stats.totalItems, t.stats.partitionedItems, t.stats.maxDepth,
		t.stats.nodes, t.stats.leaves, t.stats.forcedLeaves,
	)
	return true
}

// split builds the subtree holding the triangles of tris that overlap clamp
// and returns its child reference.
func (b *builder) split(tris []uint32, clamp geom.BBox, depth int) uint32 {
	b.noteDepth(depth)

	kept, tight := b.filter(tris, clamp, depth)
	if len(kept) <= b.leafThreshold || depth >= b.maxDepth {
		return b.emitLeaf(kept, false)
	}
	tight = tight.Pad()

	cand, ok := b.chooseSplit(kept, clamp, tight)
	if !ok {
		return b.emitLeaf(kept, true)
	}

	b.nodeLock.Lock()
	idx := uint32(len(b.tree.nodes))
	if idx >= leafFlag {
		b.tree.logger.Fatalf("kd-tree node count exceeds the addressable range")
	}
	b.tree.nodes = append(b.tree.nodes, Node{
		Axis:  uint32(cand.axis),
		Split: cand.pos,
		Left:  geom.InvalidID,
		Right: geom.InvalidID,
		BBox:  tight,
	})
	b.nodeLock.Unlock()
	atomic.AddInt64(&b.stats.nodes, 1)

	leftClamp, rightClamp := tight.Split(cand.axis, cand.pos)

	spawned := false
	if b.canSpawn(len(cand.left), depth) {
		if slot, ok := b.workers.Pool.PopIdleThreadIndex(); ok {
			left := cand.left
			b.workers.Pool.KickIdleThread(slot, func() {
				b.setChild(idx, false, b.split(left, leftClamp, depth+1))
			})
			spawned = true
		}
	}
	if !spawned {
		b.setChild(idx, false, b.split(cand.left, leftClamp, depth+1))
	}
	b.setChild(idx, true, b.split(cand.right, rightClamp, depth+1))
	return idx
}

// threadLimit is the depth below which subtrees may be handed to idle pool
// slots: log2(workers/4) levels, at least one, past splitPointDepth.
func threadLimit(workers int) int {
	return splitPointDepth + max(bits.Len(uint(workers/4))-1, 1)
}

func (b *builder) canSpawn(n, depth int) bool {
	return b.workers != nil &&
		b.workers.Pool.Size() > 0 &&
		depth >= splitPointDepth &&
		depth < b.threadDepth &&
		n > b.leafThreshold*spawnFactor
}

func (b *builder) setChild(node uint32, right bool, ref uint32) {
	b.nodeLock.Lock()
	if right {
		b.tree.nodes[node].Right = ref
	} else {
		b.tree.nodes[node].Left = ref
	}
	b.nodeLock.Unlock()
}

func (b *builder) noteDepth(depth int) {
	d := int64(depth)
	for {
		cur := atomic.LoadInt64(&b.stats.maxDepth)
		if d <= cur || atomic.CompareAndSwapInt64(&b.stats.maxDepth, cur, d) {
			return
		}
	}
}

// filter drops triangles whose box does not overlap clamp and returns the
// survivors with the union of their clipped boxes.
func (b *builder) filter(tris []uint32, clamp geom.BBox, depth int) ([]uint32, geom.BBox) {
	if b.workers == nil || b.workers.Count() < 2 || depth >= splitPointDepth || len(tris) < parallelMinTriangles {
		return b.filterRange(tris, clamp, make([]uint32, 0, len(tris)))
	}

	type part struct {
		kept []uint32
		box  geom.BBox
	}
	parts := make([]part, b.workers.Count())
	b.workers.Bucket.Run(func(slot, slots int) {
		start, end := sched.Split(len(tris), slot, slots)
		kept, box := b.filterRange(tris[start:end], clamp, make([]uint32, 0, end-start))
		parts[slot] = part{kept: kept, box: box}
	})

	total := 0
	for _, p := range parts {
		total += len(p.kept)
	}
	kept := make([]uint32, 0, total)
	box := geom.EmptyBBox()
	for _, p := range parts {
		kept = append(kept, p.kept...)
		box = box.Union(p.box)
	}
	return kept, box
}

func (b *builder) filterRange(tris []uint32, clamp geom.BBox, dst []uint32) ([]uint32, geom.BBox) {
	box := geom.EmptyBBox()
	for _, id := range tris {
		clipped := b.tree.triBoxes[id].Intersect(clamp)
		if clipped.IsEmpty() {
			continue
		}
		dst = append(dst, id)
		box = box.Union(clipped)
	}
	return dst, box
}

// chooseSplit picks a split plane for tris. It returns false if the node
// should become a leaf: either it is small enough, or every attempt left one
// side empty or straddled more than the configured ratio.
func (b *builder) chooseSplit(tris []uint32, clamp, tight geom.BBox) (splitCandidate, bool) {
	n := len(tris)
	longest := tight.LongestAxis()

	for attempt := 0; attempt < maxSplitAttempts; attempt++ {
		axis := longest
		if attempt == 1 {
			axis = (longest + 1) % 3
		}
		lo, hi := tight.Min[axis], tight.Max[axis]
		if !(hi > lo) {
			continue
		}

		var pos float32
		if n < histogramMinTriangles || attempt == maxSplitAttempts-1 {
			pos = lo + (hi-lo)*0.5
		} else {
			pos = b.histogramSplit(tris, clamp, tight, axis)
		}
		if !(pos > lo && pos < hi) {
			continue
		}

		cand := b.partition(tris, clamp, axis, pos)
		degenerate := len(cand.left) == 0 || len(cand.right) == 0 ||
			(len(cand.left) == n && len(cand.right) == n)
		if !degenerate && float32(cand.straddle) <= b.straddleRatio*float32(n) {
			return cand, true
		}
		if n <= b.leafThreshold*smallNodeFactor {
			return splitCandidate{}, false
		}
	}
	return splitCandidate{}, false
}

// histogramSplit bins the clipped triangle extents along axis and returns
// the bin boundary with the lowest cost.
func (b *builder) histogramSplit(tris []uint32, clamp, tight geom.BBox, axis int) float32 {
	n := len(tris)
	binCount := min(max(int(math.Sqrt(float64(n))), minBins), maxBins)

	lo, hi := tight.Min[axis], tight.Max[axis]
	scale := float32(binCount) / (hi - lo)
	binOf := func(x float32) int {
		i := int((x - lo) * scale)
		return min(max(i, 0), binCount-1)
	}

	minBinCounts := make([]int, binCount)
	maxBinCounts := make([]int, binCount)
	for _, id := range tris {
		clipped := b.tree.triBoxes[id].Intersect(clamp)
		minBinCounts[binOf(clipped.Min[axis])]++
		maxBinCounts[binOf(clipped.Max[axis])]++
	}

	// Fraction of the node surface contributed by the two faces
	// perpendicular to the split axis.
	e := tight.Extent()
	ba, ca := (axis+1)%3, (axis+2)%3
	var bottomRatio float32
	if side := e[axis] * (e[ba] + e[ca]); side > 0 {
		bottomRatio = e[ba] * e[ca] / side
	}

	// Suffix counts of triangles ending at or after each boundary.
	right := make([]int, binCount+1)
	for i := binCount - 1; i >= 0; i-- {
		right[i] = right[i+1] + maxBinCounts[i]
	}

	bestBin := binCount / 2
	bestCost := float32(math.MaxFloat32)
	left := minBinCounts[0]
	for i := 1; i < binCount; i++ {
		leftCount, rightCount := left, right[i]
		left += minBinCounts[i]
		if leftCount == 0 || rightCount == 0 {
			continue
		}
		ratio := float32(i) / float32(binCount)
		cost := (bottomRatio+ratio)*float32(leftCount) + (bottomRatio+1-ratio)*float32(rightCount)
		if cost < bestCost {
			bestCost = cost
			bestBin = i
		}
	}
	return lo + (hi-lo)*float32(bestBin)/float32(binCount)
}

// partition assigns each triangle to the side(s) its clipped box touches.
// Boxes ending exactly on the plane go left; boxes starting on it go right.
func (b *builder) partition(tris []uint32, clamp geom.BBox, axis int, pos float32) splitCandidate {
	cand := splitCandidate{
		axis:  axis,
		pos:   pos,
		left:  make([]uint32, 0, len(tris)/2+1),
		right: make([]uint32, 0, len(tris)/2+1),
	}
	for _, id := range tris {
		clipped := b.tree.triBoxes[id].Intersect(clamp)
		switch {
		case clipped.Max[axis] <= pos:
			cand.left = append(cand.left, id)
		case clipped.Min[axis] >= pos:
			cand.right = append(cand.right, id)
		default:
			cand.left = append(cand.left, id)
			cand.right = append(cand.right, id)
			cand.straddle++
		}
	}
	return cand
}

// emitLeaf records a leaf holding tris in ascending id order.
func (b *builder) emitLeaf(tris []uint32, forced bool) uint32 {
	list := b.arena.alloc(len(tris))
	copy(list, tris)
	slices.Sort(list)

	box := geom.EmptyBBox()
	for _, id := range list {
		box = box.Union(b.tree.triBoxes[id])
	}
	box = box.Pad()

	b.leafLock.Lock()
	idx := uint32(len(b.leaves))
	b.leaves = append(b.leaves, Leaf{BBox: box})
	b.lists = append(b.lists, list)
	b.leafLock.Unlock()

	atomic.AddInt64(&b.stats.leaves, 1)
	atomic.AddInt64(&b.stats.partitionedItems, int64(len(list)))
	if forced {
		atomic.AddInt64(&b.stats.forcedLeaves, 1)
	}
	return leafRef(idx)
}
