package mesh

import (
	"fmt"
	"math/rand"

	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/types"
)

// RandomSoup creates count unconnected triangles with corners scattered
// around random centers inside bounds. Each corner lies within size of its
// triangle center.
func RandomSoup(rng *rand.Rand, count int, bounds geom.BBox, size float32) *TriangleMesh {
	ext := bounds.Extent()
	point := func(center types.Vec3, spread types.Vec3) types.Vec3 {
		return types.XYZ(
			center[0]+(rng.Float32()*2-1)*spread[0],
			center[1]+(rng.Float32()*2-1)*spread[1],
			center[2]+(rng.Float32()*2-1)*spread[2],
		)
	}

	m := &TriangleMesh{
		Name:      fmt.Sprintf("soup-%d", count),
		Positions: make([]types.Vec3, 0, count*3),
		Indices:   make([]uint32, 0, count*3),
	}
	half := ext.Mul(0.5)
	center := bounds.Center()
	spread := types.Splat3(size)
	for i := 0; i < count; i++ {
		c := point(center, half)
		for k := 0; k < 3; k++ {
			m.Indices = append(m.Indices, uint32(len(m.Positions)))
			m.Positions = append(m.Positions, point(c, spread))
		}
	}
	return m
}

// Grid creates a flat n x n grid of quads spanning [0, size] on the XY plane
// at z = 0, with normals along +Z and UVs in [0, 1].
func Grid(n int, size float32) *TriangleMesh {
	if n < 1 {
		n = 1
	}
	m := &TriangleMesh{Name: fmt.Sprintf("grid-%d", n)}
	step := size / float32(n)
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			m.Positions = append(m.Positions, types.XYZ(float32(x)*step, float32(y)*step, 0))
			m.Normals = append(m.Normals, types.XYZ(0, 0, 1))
			m.UVs = append(m.UVs, types.XY(float32(x)/float32(n), float32(y)/float32(n)))
		}
	}
	row := uint32(n + 1)
	for y := uint32(0); y < uint32(n); y++ {
		for x := uint32(0); x < uint32(n); x++ {
			i := y*row + x
			m.Indices = append(m.Indices, i, i+1, i+row+1, i, i+row+1, i+row)
		}
	}
	return m
}

// WithMotion returns a copy of m whose end keyframe is translated by delta.
func WithMotion(m *TriangleMesh, delta types.Vec3) *TriangleMesh {
	out := *m
	out.EndPositions = make([]types.Vec3, len(m.Positions))
	for i, p := range m.Positions {
		out.EndPositions[i] = p.Add(delta)
	}
	return &out
}
