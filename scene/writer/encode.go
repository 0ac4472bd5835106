package writer

import (
	"github.com/Kai-Fu/KRender-sub000/scene"
	"github.com/Kai-Fu/KRender-sub000/scene/stream"
)

// Encode writes a built scene to enc and flushes it.
func Encode(enc *stream.Encoder, sc *scene.Scene) error {
	accel := sc.BVH()
	top, err := accel.Snapshot()
	if err != nil {
		return err
	}

	enc.Tag(scene.TagScene)
	enc.Value(scene.FormatVersion)
	enc.Value(sc.ID)

	enc.Value(uint32(accel.TreeCount()))
	for id := 0; id < accel.TreeCount(); id++ {
		tree, err := accel.Tree(uint32(id))
		if err != nil {
			return err
		}
		snap, err := tree.Snapshot()
		if err != nil {
			return err
		}

		enc.Tag(scene.TagObjectTree)
		enc.Value(uint32(len(tree.Meshes())))
		for _, m := range tree.Meshes() {
			enc.Tag(scene.TagMesh)
			enc.String(m.Name)
			stream.WriteSlice(enc, m.Positions)
			stream.WriteSlice(enc, m.EndPositions)
			stream.WriteSlice(enc, m.Normals)
			stream.WriteSlice(enc, m.UVs)
			stream.WriteSlice(enc, m.Indices)
		}
		enc.Value(snap.Root)
		enc.Value(snap.BBox)
		stream.WriteSlice(enc, snap.Nodes)
		stream.WriteSlice(enc, snap.Leaves)
		stream.WriteSlice(enc, snap.LeafTris)
	}

	instances := make([]scene.InstanceRecord, accel.InstanceCount())
	for id := range instances {
		inst, err := accel.Instance(uint32(id))
		if err != nil {
			return err
		}
		instances[id] = scene.InstanceRecord{
			Tree:  inst.Tree,
			Start: inst.Transform.Start,
			End:   inst.Transform.End,
		}
	}
	enc.Tag(scene.TagInstances)
	stream.WriteSlice(enc, instances)

	leaves := make([]scene.LeafRecord, len(top.Leaves))
	for i := range top.Leaves {
		leaves[i] = scene.NewLeafRecord(&top.Leaves[i])
	}
	enc.Tag(scene.TagSceneBVH)
	enc.Value(top.Root)
	enc.Value(top.BBox)
	stream.WriteSlice(enc, top.Nodes)
	stream.WriteSlice(enc, leaves)
	stream.WriteSlice(enc, top.InstanceBoxes)

	enc.Tag(scene.TagEnd)
	return enc.Flush()
}
