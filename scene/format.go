package scene

import (
	"github.com/Kai-Fu/KRender-sub000/bvh"
	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/simd"
	"github.com/Kai-Fu/KRender-sub000/types"
)

// Saved scene layout shared by the reader and writer packages.
const (
	FormatVersion uint32 = 1

	TagScene      = "KRenderScene"
	TagObjectTree = "ObjectKDTree"
	TagMesh       = "TriangleMesh"
	TagInstances  = "Instances"
	TagSceneBVH   = "SceneBVH"
	TagEnd        = "End"
	TagUpdate     = "InstanceUpdate"
)

// InstanceRecord is the persisted form of an instance.
type InstanceRecord struct {
	Tree  uint32
	Start geom.LocalTRSFrame
	End   geom.LocalTRSFrame
}

// LeafRecord is the persisted form of a scene BVH leaf.
type LeafRecord struct {
	Min, Max  [simd.Width]types.Vec3
	Instances [simd.Width]uint32
	Count     uint32
	Next      uint32
}

func NewLeafRecord(l *bvh.Leaf) LeafRecord {
	rec := LeafRecord{
		Instances: l.Instances,
		Count:     uint32(l.Boxes.Count),
		Next:      l.Next,
	}
	for lane := 0; lane < l.Boxes.Count; lane++ {
		rec.Min[lane], rec.Max[lane] = l.Boxes.Lane(lane)
	}
	return rec
}

// Leaf unpacks the record. Lanes past Count are left empty.
func (rec *LeafRecord) Leaf() bvh.Leaf {
	l := bvh.Leaf{
		Boxes:     simd.EmptyBBox4(),
		Instances: rec.Instances,
		Next:      rec.Next,
	}
	for lane := 0; lane < int(min(rec.Count, simd.Width)); lane++ {
		l.Boxes.SetLane(lane, rec.Min[lane], rec.Max[lane])
	}
	return l
}
