package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Stats summarizes the scene contents and the memory used by each part of
// the acceleration structure.
func (sc *Scene) Stats() string {
	var (
		meshes, triangles                    int
		positions, normals, uvs, indices     []interface{}
		kdNodes, kdLeaves, kdRefs, kdRecords []interface{}
		kdNodeCount, kdLeafCount             int
	)
	for id := 0; id < sc.accel.TreeCount(); id++ {
		tree, _ := sc.accel.Tree(uint32(id))
		for _, m := range tree.Meshes() {
			meshes++
			triangles += m.TriangleCount()
			positions = append(positions, m.Positions, m.EndPositions)
			normals = append(normals, m.Normals)
			uvs = append(uvs, m.UVs)
			indices = append(indices, m.Indices)
		}
		snap, err := tree.Snapshot()
		if err != nil {
			continue
		}
		kdNodes = append(kdNodes, snap.Nodes)
		kdLeaves = append(kdLeaves, snap.Leaves)
		kdRefs = append(kdRefs, snap.LeafTris)
		kdRecords = append(kdRecords, tree.Records())
		kdNodeCount += len(snap.Nodes)
		kdLeafCount += len(snap.Leaves)
	}

	var bvhNodes, bvhLeaves []interface{}
	bvhNodeCount, bvhLeafCount := sc.accel.Size()
	if snap, err := sc.accel.Snapshot(); err == nil {
		bvhNodes = append(bvhNodes, snap.Nodes, snap.InstanceBoxes)
		bvhLeaves = append(bvhLeaves, snap.Leaves)
	}

	geometry := concat(positions, normals, uvs, indices)
	kd := concat(kdNodes, kdLeaves, kdRefs, kdRecords)
	top := concat(bvhNodes, bvhLeaves)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Part", "Item", "Count", "Size"})
	table.Append([]string{"Geometry", "---", " ", fmtSize(geometry...)})
	table.Append([]string{"", "Meshes", strconv.Itoa(meshes), " "})
	table.Append([]string{"", "Triangles", strconv.Itoa(triangles), fmtSize(indices...)})
	table.Append([]string{"", "Positions", " ", fmtSize(positions...)})
	table.Append([]string{"", "Normals", " ", fmtSize(normals...)})
	table.Append([]string{"", "UVs", " ", fmtSize(uvs...)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Object trees", "---", strconv.Itoa(sc.accel.TreeCount()), fmtSize(kd...)})
	table.Append([]string{"", "Nodes", strconv.Itoa(kdNodeCount), fmtSize(kdNodes...)})
	table.Append([]string{"", "Leaves", strconv.Itoa(kdLeafCount), fmtSize(kdLeaves...)})
	table.Append([]string{"", "Leaf refs", " ", fmtSize(kdRefs...)})
	table.Append([]string{"", "Triangle records", strconv.Itoa(sc.accel.GeometrySize()), fmtSize(kdRecords...)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Scene BVH", "---", " ", fmtSize(top...)})
	table.Append([]string{"", "Instances", strconv.Itoa(sc.accel.InstanceCount()), " "})
	table.Append([]string{"", "Nodes", strconv.Itoa(bvhNodeCount), fmtSize(bvhNodes...)})
	table.Append([]string{"", "Leaves", strconv.Itoa(bvhLeafCount), fmtSize(bvhLeaves...)})
	table.SetFooter([]string{"Total", " ", " ", strings.TrimLeft(fmtSize(concat(geometry, kd, top)...), " ")})

	table.Render()
	return buf.String()
}

func concat(lists ...[]interface{}) []interface{} {
	var out []interface{}
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
