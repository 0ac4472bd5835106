// Package scene is the entry point used by the scene assembly and shading
// layers: it owns the object trees, their instances and the scene BVH.
package scene

import (
	"errors"

	"github.com/google/uuid"

	"github.com/Kai-Fu/KRender-sub000/bvh"
	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/kdtree"
	"github.com/Kai-Fu/KRender-sub000/log"
	"github.com/Kai-Fu/KRender-sub000/mesh"
	"github.com/Kai-Fu/KRender-sub000/sched"
	"github.com/Kai-Fu/KRender-sub000/types"
)

var (
	ErrNoMeshes        = errors.New("scene: object tree needs at least one mesh")
	ErrTooManyMeshes   = errors.New("scene: object tree mesh limit reached")
	ErrUnknownTree     = errors.New("scene: unknown object tree")
	ErrUnknownInstance = errors.New("scene: unknown instance")
	ErrUnknownTriangle = errors.New("scene: triangle reference out of range")
)

// InstanceUpdate replaces the transform keyframes of one instance.
type InstanceUpdate struct {
	Instance uint32
	Start    geom.LocalTRSFrame
	End      geom.LocalTRSFrame
}

// Scene is a collection of instanced object trees that can be ray traced.
type Scene struct {
	// Identifies the scene in saved files and update records.
	ID uuid.UUID

	logger  log.Logger
	opts    config.Options
	workers *sched.Workers
	accel   *bvh.SceneBVH
}

// Create an empty scene. The options are validated and a worker set sized to
// opts.WorkerCount() is started; call Close to stop it.
func New(opts config.Options) (*Scene, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	workers := sched.NewWorkers(opts.WorkerCount())
	return &Scene{
		ID:      uuid.New(),
		logger:  log.New("scene"),
		opts:    opts,
		workers: workers,
		accel:   bvh.New(opts, workers),
	}, nil
}

// Close stops the build workers.
func (sc *Scene) Close() {
	sc.workers.Close()
}

// Options the scene was created with.
func (sc *Scene) Options() config.Options {
	return sc.opts
}

// Workers shared by all builds of this scene.
func (sc *Scene) Workers() *sched.Workers {
	return sc.workers
}

// BVH returns the scene level acceleration structure.
func (sc *Scene) BVH() *bvh.SceneBVH {
	return sc.accel
}

// CreateObjectTree registers the meshes as one object tree and returns its
// id. The tree is built by the next Build.
func (sc *Scene) CreateObjectTree(meshes []*mesh.TriangleMesh) (uint32, error) {
	if len(meshes) == 0 {
		return geom.InvalidID, ErrNoMeshes
	}
	if len(meshes) > geom.MaxMeshIndex {
		return geom.InvalidID, ErrTooManyMeshes
	}
	for _, m := range meshes {
		if err := m.Validate(); err != nil {
			return geom.InvalidID, err
		}
	}
	return sc.AddObjectTree(kdtree.New(meshes, sc.opts, sc.workers)), nil
}

// AddObjectTree registers an already constructed tree, for example one
// restored from a saved scene.
func (sc *Scene) AddObjectTree(tree *kdtree.ObjectKDTree) uint32 {
	return sc.accel.AddTree(tree)
}

// CreateInstance places an object tree in the scene at the identity
// transform.
func (sc *Scene) CreateInstance(tree uint32) (uint32, error) {
	id, err := sc.accel.CreateInstance(tree, geom.NewStaticTransform(geom.IdentityFrame()))
	if err == bvh.ErrUnknownTree {
		return id, ErrUnknownTree
	}
	return id, err
}

// SetInstanceTransform sets the placement of an instance. If end is nil the
// instance is static; otherwise it moves from start at time 0 to end at
// time 1.
func (sc *Scene) SetInstanceTransform(instance uint32, start geom.LocalTRSFrame, end *geom.LocalTRSFrame) error {
	xform := geom.NewStaticTransform(start)
	if end != nil {
		xform = geom.NewAnimatedTransform(start, *end)
	}
	if err := sc.accel.SetInstanceTransform(instance, xform); err != nil {
		return ErrUnknownInstance
	}
	return nil
}

// Apply a batch of transform updates.
func (sc *Scene) ApplyUpdates(updates []InstanceUpdate) error {
	n := uint32(sc.accel.InstanceCount())
	for _, u := range updates {
		if u.Instance >= n {
			return ErrUnknownInstance
		}
	}
	for _, u := range updates {
		end := u.End
		if err := sc.SetInstanceTransform(u.Instance, u.Start, &end); err != nil {
			return err
		}
	}
	return nil
}

// Build rebuilds whatever changed since the last build and reports success.
func (sc *Scene) Build(force bool) bool {
	return sc.accel.Build(force)
}

// Rebuilt reports whether the last build rebuilt the top level.
func (sc *Scene) Rebuilt() bool {
	return sc.accel.Rebuilt()
}

// BuildDirty marks the listed instances and trees as changed and builds.
func (sc *Scene) BuildDirty(instances, trees []uint32) (bool, error) {
	ok, err := sc.accel.BuildDirty(instances, trees)
	switch err {
	case bvh.ErrUnknownTree:
		return false, ErrUnknownTree
	case bvh.ErrUnknownInstance:
		return false, ErrUnknownInstance
	}
	return ok, err
}

// IntersectRay returns the nearest hit at the given time in [0, 1].
func (sc *Scene) IntersectRay(r geom.Ray, time float32) geom.Hit {
	if sc.opts.CullBackFaces {
		r.CullBackFace = true
	}
	return sc.accel.IntersectRay(&r, time)
}

// Occluded reports whether anything blocks the ray before maxT.
func (sc *Scene) Occluded(r geom.Ray, time, maxT float32) bool {
	if sc.opts.CullBackFaces {
		r.CullBackFace = true
	}
	return sc.accel.Occluded(&r, time, maxT)
}

// Bounds of the scene over the whole motion window.
func (sc *Scene) Bounds() geom.BBox {
	return sc.accel.Bounds()
}

// GetNode returns the object tree id and transform of an instance.
func (sc *Scene) GetNode(instance uint32) (uint32, geom.AnimatedTransform, error) {
	inst, err := sc.accel.Instance(instance)
	if err != nil {
		return geom.InvalidID, geom.AnimatedTransform{}, ErrUnknownInstance
	}
	return inst.Tree, inst.Transform, nil
}

// GetMesh returns the mesh holding the referenced triangle.
func (sc *Scene) GetMesh(ref geom.TriangleRef) (*mesh.TriangleMesh, error) {
	m, _, err := sc.resolve(ref)
	return m, err
}

func (sc *Scene) resolve(ref geom.TriangleRef) (*mesh.TriangleMesh, geom.AnimatedTransform, error) {
	treeID, xform, err := sc.GetNode(ref.Instance())
	if err != nil || !ref.IsValid() {
		return nil, xform, ErrUnknownInstance
	}
	tree, err := sc.accel.Tree(treeID)
	if err != nil {
		return nil, xform, ErrUnknownTree
	}
	meshes := tree.Meshes()
	if int(ref.Mesh()) >= len(meshes) || int(ref.Triangle()) >= meshes[ref.Mesh()].TriangleCount() {
		return nil, xform, ErrUnknownTriangle
	}
	return meshes[ref.Mesh()], xform, nil
}

// GetTrianglePositions returns the world-space corners of a triangle at the
// given time.
func (sc *Scene) GetTrianglePositions(ref geom.TriangleRef, time float32) ([3]types.Vec3, error) {
	m, xform, err := sc.resolve(ref)
	if err != nil {
		return [3]types.Vec3{}, err
	}
	mat := xform.MatrixAt(time)
	out := m.TriangleVertices(int(ref.Triangle()), time)
	for i := range out {
		out[i] = mat.MulPoint(out[i])
	}
	return out, nil
}

// GetTriangleNormals returns the world-space corner normals of a triangle at
// the given time.
func (sc *Scene) GetTriangleNormals(ref geom.TriangleRef, time float32) ([3]types.Vec3, error) {
	m, xform, err := sc.resolve(ref)
	if err != nil {
		return [3]types.Vec3{}, err
	}
	mat := xform.InverseAt(time)
	out := m.TriangleNormals(int(ref.Triangle()), time)
	for i := range out {
		out[i] = mat.MulNormal(out[i]).Normalize()
	}
	return out, nil
}

// GetTriangleUV returns the texture coordinates at the corners of a
// triangle. The time parameter is accepted for symmetry and ignored.
func (sc *Scene) GetTriangleUV(ref geom.TriangleRef, _ float32) ([3]types.Vec2, error) {
	m, _, err := sc.resolve(ref)
	if err != nil {
		return [3]types.Vec2{}, err
	}
	return m.TriangleUVs(int(ref.Triangle())), nil
}
