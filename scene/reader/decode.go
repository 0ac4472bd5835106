package reader

import (
	"github.com/google/uuid"

	"github.com/Kai-Fu/KRender-sub000/bvh"
	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/kdtree"
	"github.com/Kai-Fu/KRender-sub000/mesh"
	"github.com/Kai-Fu/KRender-sub000/scene"
	"github.com/Kai-Fu/KRender-sub000/scene/stream"
	"github.com/Kai-Fu/KRender-sub000/types"
)

const (
	maxElements = 1 << 31
	maxTrees    = 1 << 20
)

// Decode reads a scene written by writer.Encode. The scene is created with
// opts; on failure it is closed and nil is returned.
func Decode(dec *stream.Decoder, opts config.Options) (*scene.Scene, error) {
	sc, err := scene.New(opts)
	if err != nil {
		return nil, err
	}
	if err = decodeInto(dec, sc); err != nil {
		sc.Close()
		return nil, err
	}
	return sc, nil
}

func decodeInto(dec *stream.Decoder, sc *scene.Scene) error {
	if err := dec.ExpectTag(scene.TagScene); err != nil {
		return err
	}
	var version uint32
	if err := dec.Value(&version); err != nil {
		return err
	}
	if version != scene.FormatVersion {
		return ErrUnsupportedVersion
	}
	var id uuid.UUID
	if err := dec.Value(&id); err != nil {
		return err
	}

	var treeCount uint32
	if err := dec.Value(&treeCount); err != nil {
		return err
	}
	if treeCount > maxTrees {
		return stream.ErrLengthOverflow
	}
	for i := uint32(0); i < treeCount; i++ {
		tree, err := decodeTree(dec, sc)
		if err != nil {
			return err
		}
		sc.AddObjectTree(tree)
	}

	if err := dec.ExpectTag(scene.TagInstances); err != nil {
		return err
	}
	instances, err := stream.ReadSlice[scene.InstanceRecord](dec, geom.MaxInstanceIndex+1)
	if err != nil {
		return err
	}
	for _, rec := range instances {
		inst, err := sc.CreateInstance(rec.Tree)
		if err != nil {
			return err
		}
		end := rec.End
		if err = sc.SetInstanceTransform(inst, rec.Start, &end); err != nil {
			return err
		}
	}

	if err = dec.ExpectTag(scene.TagSceneBVH); err != nil {
		return err
	}
	var top bvh.Snapshot
	if err = dec.Value(&top.Root); err != nil {
		return err
	}
	if err = dec.Value(&top.BBox); err != nil {
		return err
	}
	if top.Nodes, err = stream.ReadSlice[bvh.Node](dec, maxElements); err != nil {
		return err
	}
	leaves, err := stream.ReadSlice[scene.LeafRecord](dec, maxElements)
	if err != nil {
		return err
	}
	top.Leaves = make([]bvh.Leaf, len(leaves))
	for i := range leaves {
		top.Leaves[i] = leaves[i].Leaf()
	}
	if top.InstanceBoxes, err = stream.ReadSlice[geom.BBox](dec, geom.MaxInstanceIndex+1); err != nil {
		return err
	}
	if err = dec.ExpectTag(scene.TagEnd); err != nil {
		return err
	}
	if err = sc.BVH().Restore(top); err != nil {
		return err
	}

	sc.ID = id
	return nil
}

func decodeTree(dec *stream.Decoder, sc *scene.Scene) (*kdtree.ObjectKDTree, error) {
	if err := dec.ExpectTag(scene.TagObjectTree); err != nil {
		return nil, err
	}
	var meshCount uint32
	if err := dec.Value(&meshCount); err != nil {
		return nil, err
	}
	if meshCount > geom.MaxMeshIndex {
		return nil, stream.ErrLengthOverflow
	}

	meshes := make([]*mesh.TriangleMesh, 0, meshCount)
	for i := uint32(0); i < meshCount; i++ {
		m, err := decodeMesh(dec)
		if err != nil {
			return nil, err
		}
		meshes = append(meshes, m)
	}

	var (
		snap kdtree.Snapshot
		err  error
	)
	if err = dec.Value(&snap.Root); err != nil {
		return nil, err
	}
	if err = dec.Value(&snap.BBox); err != nil {
		return nil, err
	}
	if snap.Nodes, err = stream.ReadSlice[kdtree.Node](dec, maxElements); err != nil {
		return nil, err
	}
	if snap.Leaves, err = stream.ReadSlice[kdtree.Leaf](dec, maxElements); err != nil {
		return nil, err
	}
	if snap.LeafTris, err = stream.ReadSlice[uint32](dec, maxElements); err != nil {
		return nil, err
	}

	tree := kdtree.New(meshes, sc.Options(), sc.Workers())
	if err = tree.Restore(snap); err != nil {
		return nil, err
	}
	return tree, nil
}

func decodeMesh(dec *stream.Decoder) (*mesh.TriangleMesh, error) {
	if err := dec.ExpectTag(scene.TagMesh); err != nil {
		return nil, err
	}
	var (
		m   = &mesh.TriangleMesh{}
		err error
	)
	if m.Name, err = dec.String(); err != nil {
		return nil, err
	}
	if m.Positions, err = stream.ReadSlice[types.Vec3](dec, maxElements); err != nil {
		return nil, err
	}
	if m.EndPositions, err = stream.ReadSlice[types.Vec3](dec, maxElements); err != nil {
		return nil, err
	}
	if m.Normals, err = stream.ReadSlice[types.Vec3](dec, maxElements); err != nil {
		return nil, err
	}
	if m.UVs, err = stream.ReadSlice[types.Vec2](dec, maxElements); err != nil {
		return nil, err
	}
	if m.Indices, err = stream.ReadSlice[uint32](dec, maxElements); err != nil {
		return nil, err
	}
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
