package config

import (
	"errors"
	"os"
	"runtime"

	"github.com/segmentio/encoding/json"
)

var (
	ErrInvalidLeafThreshold = errors.New("config: leaf triangle threshold must be > 0")
	ErrInvalidMaxDepth      = errors.New("config: max tree depth must be in [1, 64]")
	ErrInvalidStraddleRatio = errors.New("config: straddle ratio must be in (0, 1]")
	ErrInvalidWorkers       = errors.New("config: worker count must be >= 0")
	ErrInvalidCacheSize     = errors.New("config: triangle cache entries must be > 0")
)

// The deepest tree the traversal stacks are sized for.
const MaxSupportedDepth = 64

// Options control how acceleration structures are built and traversed.
type Options struct {
	// Stop splitting once a node holds this many triangles or fewer.
	LeafTriangles int `json:"leaf_triangles"`

	// Stop splitting at this depth regardless of the triangle count.
	MaxDepth int `json:"max_depth"`

	// If more than this fraction of a node's triangles straddle the split
	// plane the builder retries with another axis.
	StraddleRatio float32 `json:"straddle_ratio"`

	// Number of build workers; 0 selects the detected CPU count.
	Workers int `json:"workers"`

	// Number of swizzled leaves kept per traversal context.
	TriCacheEntries int `json:"tri_cache_entries"`

	// Skip triangles whose geometric normal faces along the ray direction.
	CullBackFaces bool `json:"cull_back_faces"`
}

// Default returns the options used when no configuration is supplied.
func Default() Options {
	return Options{
		LeafTriangles:   8,
		MaxDepth:        40,
		StraddleRatio:   0.6,
		Workers:         runtime.NumCPU(),
		TriCacheEntries: 64,
	}
}

// Validate checks that all options are within range.
func (o Options) Validate() error {
	if o.LeafTriangles <= 0 {
		return ErrInvalidLeafThreshold
	}
	if o.MaxDepth < 1 || o.MaxDepth > MaxSupportedDepth {
		return ErrInvalidMaxDepth
	}
	if o.StraddleRatio <= 0 || o.StraddleRatio > 1 {
		return ErrInvalidStraddleRatio
	}
	if o.Workers < 0 {
		return ErrInvalidWorkers
	}
	if o.TriCacheEntries <= 0 {
		return ErrInvalidCacheSize
	}
	return nil
}

// WorkerCount returns the effective number of build workers.
func (o Options) WorkerCount() int {
	if o.Workers <= 0 {
		return runtime.NumCPU()
	}
	return o.Workers
}

// Load reads a JSON options document from path. Fields missing from the
// document keep their default value.
func Load(path string) (Options, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}

	if err = json.Unmarshal(data, &opts); err != nil {
		return opts, err
	}

	return opts, opts.Validate()
}
