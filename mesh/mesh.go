// Package mesh holds the triangle geometry consumed by the object trees.
package mesh

import (
	"errors"
	"fmt"

	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/types"
)

var (
	ErrNoPositions      = errors.New("mesh: no vertex positions")
	ErrKeyframeMismatch = errors.New("mesh: end keyframe vertex count differs from start")
	ErrAttribMismatch   = errors.New("mesh: normal/uv count differs from vertex count")
)

// TriangleMesh is an indexed triangle list. EndPositions, when present,
// holds the vertex positions at the end of the motion window and enables
// per-vertex motion blur.
type TriangleMesh struct {
	Name string

	Positions    []types.Vec3
	EndPositions []types.Vec3
	Normals      []types.Vec3
	UVs          []types.Vec2

	// Three vertex indices per triangle.
	Indices []uint32
}

// Create a static mesh.
func New(name string, positions []types.Vec3, indices []uint32) *TriangleMesh {
	return &TriangleMesh{
		Name:      name,
		Positions: positions,
		Indices:   indices,
	}
}

// Validate checks attribute counts and index ranges.
func (m *TriangleMesh) Validate() error {
	if len(m.Positions) == 0 {
		return ErrNoPositions
	}
	if m.EndPositions != nil && len(m.EndPositions) != len(m.Positions) {
		return ErrKeyframeMismatch
	}
	if (m.Normals != nil && len(m.Normals) != len(m.Positions)) ||
		(m.UVs != nil && len(m.UVs) != len(m.Positions)) {
		return ErrAttribMismatch
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh %q: index count %d is not a multiple of 3", m.Name, len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Positions) {
			return fmt.Errorf("mesh %q: index %d at %d out of range", m.Name, idx, i)
		}
	}
	return nil
}

// Number of triangles.
func (m *TriangleMesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Returns true if the mesh carries an end-of-window keyframe.
func (m *TriangleMesh) IsAnimated() bool {
	return len(m.EndPositions) != 0
}

func (m *TriangleMesh) corners(tri int) (i0, i1, i2 uint32) {
	return m.Indices[3*tri], m.Indices[3*tri+1], m.Indices[3*tri+2]
}

// Vertex positions of triangle tri at the start of the motion window.
func (m *TriangleMesh) StartVertices(tri int) [3]types.Vec3 {
	i0, i1, i2 := m.corners(tri)
	return [3]types.Vec3{m.Positions[i0], m.Positions[i1], m.Positions[i2]}
}

// Vertex positions of triangle tri at the end of the motion window.
func (m *TriangleMesh) EndVertices(tri int) [3]types.Vec3 {
	if !m.IsAnimated() {
		return m.StartVertices(tri)
	}
	i0, i1, i2 := m.corners(tri)
	return [3]types.Vec3{m.EndPositions[i0], m.EndPositions[i1], m.EndPositions[i2]}
}

// Vertex positions of triangle tri at time t in [0, 1].
func (m *TriangleMesh) TriangleVertices(tri int, t float32) [3]types.Vec3 {
	v := m.StartVertices(tri)
	if !m.IsAnimated() || t <= 0 {
		return v
	}
	e := m.EndVertices(tri)
	return [3]types.Vec3{v[0].Lerp(e[0], t), v[1].Lerp(e[1], t), v[2].Lerp(e[2], t)}
}

// Vertex normals of triangle tri. Meshes without normals report the
// geometric normal (at time t) on all three vertices.
func (m *TriangleMesh) TriangleNormals(tri int, t float32) [3]types.Vec3 {
	if len(m.Normals) == 0 {
		v := m.TriangleVertices(tri, t)
		n := v[1].Sub(v[0]).Cross(v[2].Sub(v[0])).Normalize()
		return [3]types.Vec3{n, n, n}
	}
	i0, i1, i2 := m.corners(tri)
	return [3]types.Vec3{m.Normals[i0], m.Normals[i1], m.Normals[i2]}
}

// Texture coordinates of triangle tri. Meshes without UVs report the
// barycentric corner coordinates.
func (m *TriangleMesh) TriangleUVs(tri int) [3]types.Vec2 {
	if len(m.UVs) == 0 {
		return [3]types.Vec2{{0, 0}, {1, 0}, {0, 1}}
	}
	i0, i1, i2 := m.corners(tri)
	return [3]types.Vec2{m.UVs[i0], m.UVs[i1], m.UVs[i2]}
}

// Bounds of triangle tri across both keyframes.
func (m *TriangleMesh) TriangleBBox(tri int) geom.BBox {
	s := m.StartVertices(tri)
	b := geom.BBoxOf(s[0], s[1], s[2])
	if m.IsAnimated() {
		e := m.EndVertices(tri)
		b = b.UnionPoint(e[0]).UnionPoint(e[1]).UnionPoint(e[2])
	}
	return b
}

// Bounds of the whole mesh across both keyframes.
func (m *TriangleMesh) BBox() geom.BBox {
	b := geom.BBoxOf(m.Positions...)
	if m.IsAnimated() {
		b = b.Union(geom.BBoxOf(m.EndPositions...))
	}
	return b
}
