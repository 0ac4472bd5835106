package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default options to be valid; got %v", err)
	}
}

func TestValidate(t *testing.T) {
	type spec struct {
		mutate func(*Options)
		exp    error
	}
	specs := []spec{
		{func(o *Options) { o.LeafTriangles = 0 }, ErrInvalidLeafThreshold},
		{func(o *Options) { o.MaxDepth = 0 }, ErrInvalidMaxDepth},
		{func(o *Options) { o.MaxDepth = MaxSupportedDepth + 1 }, ErrInvalidMaxDepth},
		{func(o *Options) { o.StraddleRatio = 0 }, ErrInvalidStraddleRatio},
		{func(o *Options) { o.StraddleRatio = 1.5 }, ErrInvalidStraddleRatio},
		{func(o *Options) { o.Workers = -1 }, ErrInvalidWorkers},
		{func(o *Options) { o.TriCacheEntries = 0 }, ErrInvalidCacheSize},
	}

	for index, s := range specs {
		opts := Default()
		s.mutate(&opts)
		if err := opts.Validate(); err != s.exp {
			t.Fatalf("[spec %d] expected error %v; got %v", index, s.exp, err)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opts.json")
	err := os.WriteFile(path, []byte(`{"leaf_triangles": 4, "straddle_ratio": 0.5}`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if opts.LeafTriangles != 4 {
		t.Fatalf("expected leaf triangles to be 4; got %d", opts.LeafTriangles)
	}
	if opts.StraddleRatio != 0.5 {
		t.Fatalf("expected straddle ratio to be 0.5; got %f", opts.StraddleRatio)
	}
	if exp := Default().MaxDepth; opts.MaxDepth != exp {
		t.Fatalf("expected max depth to keep its default %d; got %d", exp, opts.MaxDepth)
	}
}

func TestLoadRejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opts.json")
	if err := os.WriteFile(path, []byte(`{"max_depth": 0}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err != ErrInvalidMaxDepth {
		t.Fatalf("expected error %v; got %v", ErrInvalidMaxDepth, err)
	}
}
