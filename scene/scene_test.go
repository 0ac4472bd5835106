package scene

import (
	"math"
	"strings"
	"testing"

	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/mesh"
	"github.com/Kai-Fu/KRender-sub000/types"
)

func newScene(t *testing.T, opts config.Options) *Scene {
	t.Helper()
	opts.Workers = 2
	sc, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sc.Close)
	return sc
}

func triangle() *mesh.TriangleMesh {
	return mesh.New("tri",
		[]types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]uint32{0, 1, 2},
	)
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestIntersectScenario(t *testing.T) {
	sc := newScene(t, config.Default())
	tree, err := sc.CreateObjectTree([]*mesh.TriangleMesh{triangle()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err = sc.CreateInstance(tree); err != nil {
		t.Fatal(err)
	}
	sc.Build(false)

	hit := sc.IntersectRay(geom.NewRay(types.XYZ(0.2, 0.2, -1), types.XYZ(0, 0, 1)), 0)
	if !hit.Hit {
		t.Fatal("expected ray to hit the triangle")
	}
	if !near(hit.T, 1) {
		t.Fatalf("expected hit distance 1; got %f", hit.T)
	}
	if !near(hit.U+hit.V+hit.W, 1) {
		t.Fatalf("expected barycentrics to sum to 1; got %f", hit.U+hit.V+hit.W)
	}

	if hit = sc.IntersectRay(geom.NewRay(types.XYZ(5, 5, -1), types.XYZ(0, 0, 1)), 0); hit.Hit {
		t.Fatalf("expected ray to miss; got hit at %f", hit.T)
	}
}

func TestBuildErrors(t *testing.T) {
	sc := newScene(t, config.Default())
	if _, err := sc.CreateObjectTree(nil); err != ErrNoMeshes {
		t.Fatalf("expected error %v; got %v", ErrNoMeshes, err)
	}
	bad := triangle()
	bad.Indices = []uint32{0, 1, 7}
	if _, err := sc.CreateObjectTree([]*mesh.TriangleMesh{bad}); err == nil {
		t.Fatal("expected invalid mesh to be rejected")
	}
	if _, err := sc.CreateInstance(3); err != ErrUnknownTree {
		t.Fatalf("expected error %v; got %v", ErrUnknownTree, err)
	}
	if err := sc.SetInstanceTransform(3, geom.IdentityFrame(), nil); err != ErrUnknownInstance {
		t.Fatalf("expected error %v; got %v", ErrUnknownInstance, err)
	}
	if _, err := sc.BuildDirty([]uint32{3}, nil); err != ErrUnknownInstance {
		t.Fatalf("expected error %v; got %v", ErrUnknownInstance, err)
	}
	if err := sc.ApplyUpdates([]InstanceUpdate{{Instance: 3}}); err != ErrUnknownInstance {
		t.Fatalf("expected error %v; got %v", ErrUnknownInstance, err)
	}

	opts := config.Default()
	opts.LeafTriangles = 0
	if _, err := New(opts); err != config.ErrInvalidLeafThreshold {
		t.Fatalf("expected error %v; got %v", config.ErrInvalidLeafThreshold, err)
	}
}

func TestTriangleAccessors(t *testing.T) {
	sc := newScene(t, config.Default())
	tree, _ := sc.CreateObjectTree([]*mesh.TriangleMesh{triangle(), mesh.Grid(1, 2)})
	inst, _ := sc.CreateInstance(tree)
	end := geom.TranslationFrame(types.XYZ(0, 0, 4))
	if err := sc.SetInstanceTransform(inst, geom.TranslationFrame(types.XYZ(10, 0, 0)), &end); err != nil {
		t.Fatal(err)
	}
	sc.Build(false)

	treeID, xform, err := sc.GetNode(inst)
	if err != nil || treeID != tree || !xform.Animated {
		t.Fatalf("expected animated instance of tree %d; got tree %d animated=%t (%v)", tree, treeID, xform.Animated, err)
	}

	// Grid triangle 0 spans (0,0)-(2,0)-(2,2) in its local frame
	ref := geom.MakeTriangleRef(inst, 1, 0)
	m, err := sc.GetMesh(ref)
	if err != nil || m.Name != "grid-1" {
		t.Fatalf("expected grid mesh; got %v (%v)", m, err)
	}

	pos, err := sc.GetTrianglePositions(ref, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	exp := [3]types.Vec3{{5, 0, 2}, {7, 0, 2}, {7, 2, 2}}
	for i := range exp {
		if !pos[i].ApproxEqual(exp[i], 1e-5) {
			t.Fatalf("expected corner %d at %v; got %v", i, exp[i], pos[i])
		}
	}

	normals, err := sc.GetTriangleNormals(ref, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !normals[0].ApproxEqual(types.XYZ(0, 0, 1), 1e-5) {
		t.Fatalf("expected +Z normal; got %v", normals[0])
	}

	uvs, err := sc.GetTriangleUV(ref, 0)
	if err != nil {
		t.Fatal(err)
	}
	if uvs[1] != types.XY(1, 0) {
		t.Fatalf("expected uv (1, 0) at corner 1; got %v", uvs[1])
	}

	specs := []geom.TriangleRef{
		geom.MakeTriangleRef(inst, 2, 0),
		geom.MakeTriangleRef(inst, 0, 5),
		geom.MakeTriangleRef(inst+1, 0, 0),
		geom.InvalidTriangleRef,
	}
	for i, spec := range specs {
		if _, err := sc.GetTrianglePositions(spec, 0); err == nil {
			t.Errorf("[spec %d] expected lookup of %v to fail", i, spec)
		}
	}
}

func TestCullBackFacesOption(t *testing.T) {
	opts := config.Default()
	opts.CullBackFaces = true
	sc := newScene(t, opts)
	tree, _ := sc.CreateObjectTree([]*mesh.TriangleMesh{triangle()})
	sc.CreateInstance(tree)
	sc.Build(false)

	if sc.IntersectRay(geom.NewRay(types.XYZ(0.2, 0.2, -1), types.XYZ(0, 0, 1)), 0).Hit {
		t.Fatal("expected back face to be culled")
	}
	if !sc.IntersectRay(geom.NewRay(types.XYZ(0.2, 0.2, 1), types.XYZ(0, 0, -1)), 0).Hit {
		t.Fatal("expected front face to be hit")
	}
	if !sc.Occluded(geom.NewRay(types.XYZ(0.2, 0.2, 1), types.XYZ(0, 0, -1)), 0, 10) {
		t.Fatal("expected front face to occlude")
	}
}

func TestApplyUpdates(t *testing.T) {
	sc := newScene(t, config.Default())
	tree, _ := sc.CreateObjectTree([]*mesh.TriangleMesh{triangle()})
	inst, _ := sc.CreateInstance(tree)
	sc.Build(false)

	moved := geom.TranslationFrame(types.XYZ(3, 0, 0))
	if err := sc.ApplyUpdates([]InstanceUpdate{{Instance: inst, Start: moved, End: moved}}); err != nil {
		t.Fatal(err)
	}
	if !sc.Build(false) || !sc.Rebuilt() {
		t.Fatal("expected update to trigger a rebuild")
	}
	if !sc.IntersectRay(geom.NewRay(types.XYZ(3.2, 0.2, -1), types.XYZ(0, 0, 1)), 0).Hit {
		t.Fatal("expected ray to hit the moved instance")
	}
	if _, xform, _ := sc.GetNode(inst); xform.Animated {
		t.Fatal("expected identical keyframes to produce a static transform")
	}
}

func TestStats(t *testing.T) {
	sc := newScene(t, config.Default())
	tree, _ := sc.CreateObjectTree([]*mesh.TriangleMesh{mesh.Grid(4, 1)})
	sc.CreateInstance(tree)
	sc.CreateInstance(tree)
	sc.Build(false)

	stats := sc.Stats()
	for _, exp := range []string{"Geometry", "Object trees", "Scene BVH", "Triangles", "32", "Total"} {
		if !strings.Contains(stats, exp) {
			t.Fatalf("expected stats to mention %q; got:\n%s", exp, stats)
		}
	}
}
