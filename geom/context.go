package geom

import (
	"math"

	"github.com/Kai-Fu/KRender-sub000/simd"
)

// Hit is the result of a nearest-hit query.
type Hit struct {
	Hit      bool
	T        float32
	U, V, W  float32
	Triangle TriangleRef
	Instance uint32
}

// IntersectContext carries the running nearest hit and per-thread scratch
// through a traversal. T only ever decreases while a query runs, so nested
// structures use it as the pruning bound. A context may be reused for many
// queries from the same goroutine; its triangle cache then amortizes the
// swizzle cost across coherent rays.
type IntersectContext struct {
	T        float32
	U, V, W  float32
	Triangle TriangleRef
	Instance uint32
	Leaf     uint32
	Hit      bool

	// Distance covered along the ray (T * |Dir|) once the query completes.
	Traveled float32

	ExcludeInstance uint32
	ExcludeTriangle TriangleRef

	// The instance being traversed by a nested intersector.
	CurrentInstance uint32

	// Terminate on the first accepted hit.
	AnyHit bool

	Cache *simd.TriCache
}

// Create a context whose triangle cache holds cacheEntries leaves.
func NewIntersectContext(cacheEntries int) *IntersectContext {
	ctx := &IntersectContext{Cache: simd.NewTriCache(cacheEntries)}
	ctx.Reset(nil, float32(math.Inf(1)))
	return ctx
}

// Reset prepares the context for a new query bounded by maxT, taking the
// exclusion ids from r if given.
func (ctx *IntersectContext) Reset(r *Ray, maxT float32) {
	ctx.T = maxT
	ctx.U, ctx.V, ctx.W = 0, 0, 0
	ctx.Triangle = InvalidTriangleRef
	ctx.Instance = InvalidID
	ctx.Leaf = InvalidID
	ctx.Hit = false
	ctx.Traveled = 0
	ctx.CurrentInstance = 0
	ctx.AnyHit = false
	ctx.ExcludeInstance = InvalidID
	ctx.ExcludeTriangle = InvalidTriangleRef
	if r != nil {
		ctx.ExcludeInstance = r.ExcludeInstance
		ctx.ExcludeTriangle = r.ExcludeTriangle
	}
}

// Excluded returns true if ref must not be reported.
func (ctx *IntersectContext) Excluded(ref TriangleRef) bool {
	return ctx.ExcludeTriangle.IsValid() && ref == ctx.ExcludeTriangle
}

// Record a hit closer than the current one.
func (ctx *IntersectContext) Accept(t, u, v float32, ref TriangleRef, leaf uint32) {
	ctx.T = t
	ctx.U = u
	ctx.V = v
	ctx.W = 1 - u - v
	ctx.Triangle = ref
	ctx.Instance = ctx.CurrentInstance
	ctx.Leaf = leaf
	ctx.Hit = true
}

// Result converts the context into a Hit for a ray with direction length
// dirLen.
func (ctx *IntersectContext) Result(dirLen float32) Hit {
	if !ctx.Hit {
		return Hit{Triangle: InvalidTriangleRef, Instance: InvalidID}
	}
	ctx.Traveled = ctx.T * dirLen
	return Hit{
		Hit:      true,
		T:        ctx.T,
		U:        ctx.U,
		V:        ctx.V,
		W:        ctx.W,
		Triangle: ctx.Triangle,
		Instance: ctx.Instance,
	}
}

// Intersector is implemented by both levels of the acceleration structure.
type Intersector interface {
	// Intersect updates ctx with the nearest hit closer than ctx.T and
	// reports whether one was found.
	Intersect(r *Ray, time float32, ctx *IntersectContext) bool

	// Bounds of everything the intersector can report.
	Bounds() BBox
}
