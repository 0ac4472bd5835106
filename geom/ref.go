package geom

import "fmt"

// TriangleRef packs (instance, mesh, triangle) indices into 64 bits:
// 16 bits instance, 16 bits mesh slot and 32 bits triangle index.
type TriangleRef uint64

const (
	// The largest instance or mesh slot index that can be packed.
	MaxInstanceIndex = 1<<16 - 2
	MaxMeshIndex     = 1<<16 - 1

	InvalidTriangleRef TriangleRef = ^TriangleRef(0)
)

func MakeTriangleRef(instance, mesh, triangle uint32) TriangleRef {
	return TriangleRef(uint64(instance&0xffff)<<48 | uint64(mesh&0xffff)<<32 | uint64(triangle))
}

func (r TriangleRef) Instance() uint32 {
	return uint32(r >> 48)
}

func (r TriangleRef) Mesh() uint32 {
	return uint32(r>>32) & 0xffff
}

func (r TriangleRef) Triangle() uint32 {
	return uint32(r)
}

// Replace the instance part of the reference.
func (r TriangleRef) WithInstance(instance uint32) TriangleRef {
	return MakeTriangleRef(instance, r.Mesh(), r.Triangle())
}

func (r TriangleRef) IsValid() bool {
	return r != InvalidTriangleRef
}

func (r TriangleRef) String() string {
	if !r.IsValid() {
		return "tri(invalid)"
	}
	return fmt.Sprintf("tri(%d/%d/%d)", r.Instance(), r.Mesh(), r.Triangle())
}
