package bvh

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/kdtree"
	"github.com/Kai-Fu/KRender-sub000/mesh"
	"github.com/Kai-Fu/KRender-sub000/sched"
	"github.com/Kai-Fu/KRender-sub000/types"
)

func triangleTree() *kdtree.ObjectKDTree {
	m := mesh.New("tri",
		[]types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]uint32{0, 1, 2},
	)
	return kdtree.New([]*mesh.TriangleMesh{m}, config.Default(), nil)
}

func static(t types.Vec3) geom.AnimatedTransform {
	return geom.NewStaticTransform(geom.TranslationFrame(t))
}

func zRay(x, y float32) geom.Ray {
	return geom.NewRay(types.XYZ(x, y, -1), types.XYZ(0, 0, 1))
}

func mustInstance(t *testing.T, s *SceneBVH, tree uint32, xform geom.AnimatedTransform) uint32 {
	t.Helper()
	id, err := s.CreateInstance(tree, xform)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestSingleInstance(t *testing.T) {
	s := New(config.Default(), nil)
	tree := s.AddTree(triangleTree())
	inst := mustInstance(t, s, tree, static(types.Vec3{}))
	if !s.Build(false) {
		t.Fatal("expected first build to build the top level")
	}

	r := zRay(0.25, 0.25)
	hit := s.IntersectRay(&r, 0)
	if !hit.Hit {
		t.Fatal("expected ray to hit the instance")
	}
	if math.Abs(float64(hit.T-1)) > 1e-5 {
		t.Fatalf("expected hit distance 1; got %f", hit.T)
	}
	if hit.Instance != inst || hit.Triangle.Instance() != inst || hit.Triangle.Triangle() != 0 {
		t.Fatalf("expected hit on instance %d triangle 0; got instance %d ref %v", inst, hit.Instance, hit.Triangle)
	}
	if math.Abs(float64(hit.W-0.5)) > 1e-5 {
		t.Fatalf("expected w barycentric 0.5; got %f", hit.W)
	}

	r = zRay(5, 5)
	if hit = s.IntersectRay(&r, 0); hit.Hit {
		t.Fatalf("expected ray to miss; got hit at %f", hit.T)
	}
	if hit.Triangle.IsValid() || hit.Instance != geom.InvalidID {
		t.Fatal("expected miss to carry invalid ids")
	}
}

func TestEmptyScene(t *testing.T) {
	s := New(config.Default(), nil)
	if !s.Build(false) {
		t.Fatal("expected empty scene build to succeed")
	}
	r := zRay(0, 0)
	if hit := s.IntersectRay(&r, 0); hit.Hit {
		t.Fatal("expected empty scene to report a miss")
	}
	if s.Occluded(&r, 0, 100) {
		t.Fatal("expected empty scene to be unoccluded")
	}
}

func TestOverlappingEnvelopesMiss(t *testing.T) {
	s := New(config.Default(), nil)
	tree := s.AddTree(triangleTree())
	mustInstance(t, s, tree, static(types.Vec3{}))
	mustInstance(t, s, tree, static(types.XYZ(0.5, 0, 0)))
	s.Build(false)

	// Inside both envelopes but outside both triangles
	r := zRay(0.9, 0.9)
	if hit := s.IntersectRay(&r, 0); hit.Hit {
		t.Fatalf("expected miss inside overlapping envelopes; got hit on instance %d", hit.Instance)
	}

	r = zRay(1.2, 0.1)
	if hit := s.IntersectRay(&r, 0); !hit.Hit || hit.Instance != 1 {
		t.Fatalf("expected hit on instance 1; got %+v", hit)
	}
}

func TestLeafChains(t *testing.T) {
	s := New(config.Default(), nil)
	tree := s.AddTree(triangleTree())
	for i := 0; i < 10; i++ {
		mustInstance(t, s, tree, static(types.Vec3{}))
	}
	s.Build(false)

	nodes, leaves := s.Size()
	if nodes != 0 || leaves != 3 {
		t.Fatalf("expected coincident instances to form a chain of 3 leaves; got %d nodes and %d leaves", nodes, leaves)
	}

	r := zRay(0.25, 0.25)
	if hit := s.IntersectRay(&r, 0); !hit.Hit {
		t.Fatal("expected ray to hit a chained instance")
	}

	r.ExcludeInstance = 0
	if hit := s.IntersectRay(&r, 0); !hit.Hit || hit.Instance == 0 {
		t.Fatalf("expected excluded instance to be skipped; got %+v", hit)
	}
}

func TestMatchesPerInstanceBruteForce(t *testing.T) {
	workers := sched.NewWorkers(4)
	defer workers.Close()

	rng := rand.New(rand.NewSource(11))
	bounds := geom.BBoxOf(types.XYZ(-1, -1, -1), types.XYZ(1, 1, 1))
	s := New(config.Default(), workers)
	trees := []uint32{
		s.AddTree(kdtree.New([]*mesh.TriangleMesh{mesh.RandomSoup(rng, 300, bounds, 0.3)}, config.Default(), workers)),
		s.AddTree(kdtree.New([]*mesh.TriangleMesh{mesh.Grid(3, 1)}, config.Default(), workers)),
	}

	for i := 0; i < 60; i++ {
		start := geom.IdentityFrame()
		start.Translation = types.XYZ(rng.Float32()*40-20, rng.Float32()*40-20, rng.Float32()*40-20)
		start.Rotation = types.QuatFromAxisAngle(types.XYZ(rng.Float32(), rng.Float32(), 1), rng.Float32()*3)
		start.Scale = types.Splat3(0.5 + rng.Float32())
		end := start
		if i%3 == 0 {
			end.Translation = start.Translation.Add(types.XYZ(2, 0, 0))
		}
		mustInstance(t, s, trees[i%2], geom.NewAnimatedTransform(start, end))
	}
	s.Build(false)

	ctx := geom.NewIntersectContext(8)
	hits := 0
	for i := 0; i < 300; i++ {
		origin := types.XYZ(rng.Float32()*60-30, rng.Float32()*60-30, rng.Float32()*60-30)
		target := types.XYZ(rng.Float32()*40-20, rng.Float32()*40-20, rng.Float32()*40-20)
		r := geom.NewRay(origin, target.Sub(origin).Normalize())
		time := rng.Float32()

		expT, expInst := inf, geom.InvalidID
		for id := 0; id < s.InstanceCount(); id++ {
			inst, _ := s.Instance(uint32(id))
			tree, _ := s.Tree(inst.Tree)
			local := r.Transform(inst.Transform.InverseAt(time))
			ctx.Reset(&local, expT)
			ctx.CurrentInstance = uint32(id)
			if tree.IntersectRay(&local, time, ctx) {
				expT, expInst = ctx.T, uint32(id)
			}
		}

		hit := s.IntersectRay(&r, time)
		if hit.Hit != (expInst != geom.InvalidID) {
			t.Fatalf("ray %d: expected hit=%t; got %t", i, expInst != geom.InvalidID, hit.Hit)
		}
		if !hit.Hit {
			continue
		}
		hits++
		if math.Abs(float64(hit.T-expT)) > 1e-4*float64(max(1, expT)) {
			t.Fatalf("ray %d: expected nearest hit at %f on instance %d; got %f on instance %d", i, expT, expInst, hit.T, hit.Instance)
		}
	}
	if hits == 0 {
		t.Fatal("expected some rays to hit the scene")
	}
}

func TestAnimatedInstance(t *testing.T) {
	s := New(config.Default(), nil)
	tree := s.AddTree(triangleTree())
	inst := mustInstance(t, s, tree, geom.NewAnimatedTransform(
		geom.IdentityFrame(),
		geom.TranslationFrame(types.XYZ(5, 0, 0)),
	))
	s.Build(false)

	env, _ := s.Instance(inst)
	for _, p := range []types.Vec3{{0, 0, 0}, {1, 1, 0}, {5, 0, 0}, {6, 1, 0}} {
		if !env.BBox.Contains(p, 0) {
			t.Fatalf("expected envelope %v to contain %v", env.BBox, p)
		}
	}

	specs := []struct {
		x    float32
		time float32
		hit  bool
	}{
		{0.25, 0, true},
		{5.25, 0, false},
		{5.25, 1, true},
		{2.75, 0.5, true},
		{0.25, 1, false},
		// Times outside the window are clamped
		{5.25, 3, true},
		{0.25, -1, true},
	}
	for i, spec := range specs {
		r := zRay(spec.x, 0.25)
		if got := s.IntersectRay(&r, spec.time).Hit; got != spec.hit {
			t.Errorf("[spec %d] expected hit=%t at x=%f time=%f; got %t", i, spec.hit, spec.x, spec.time, got)
		}
	}
}

func TestRotatingInstance(t *testing.T) {
	s := New(config.Default(), nil)
	tree := s.AddTree(triangleTree())
	end := geom.IdentityFrame()
	end.Rotation = types.QuatFromAxisAngle(types.XYZ(0, 0, 1), math.Pi/2)
	mustInstance(t, s, tree, geom.NewAnimatedTransform(geom.IdentityFrame(), end))
	s.Build(false)

	specs := []struct {
		time float32
		hit  bool
	}{
		{0, false},
		{0.5, true},
		{1, true},
	}
	for i, spec := range specs {
		r := zRay(-0.1, 0.3)
		if got := s.IntersectRay(&r, spec.time).Hit; got != spec.hit {
			t.Errorf("[spec %d] expected hit=%t at time %f; got %t", i, spec.hit, spec.time, got)
		}
	}
}

func TestOccluded(t *testing.T) {
	s := New(config.Default(), nil)
	tree := s.AddTree(triangleTree())
	mustInstance(t, s, tree, static(types.Vec3{}))
	mustInstance(t, s, tree, static(types.XYZ(0, 0, 2)))
	s.Build(false)

	r := zRay(0.25, 0.25)
	if s.Occluded(&r, 0, 0.5) {
		t.Fatal("expected nothing before t=0.5")
	}
	if !s.Occluded(&r, 0, 1.5) {
		t.Fatal("expected the first instance to occlude the ray")
	}

	r.ExcludeTriangle = geom.MakeTriangleRef(0, 0, 0)
	hit := s.IntersectRay(&r, 0)
	if !hit.Hit || hit.Instance != 1 || math.Abs(float64(hit.T-3)) > 1e-5 {
		t.Fatalf("expected excluded triangle to reveal instance 1 at t=3; got %+v", hit)
	}
}

func TestRebuildTracking(t *testing.T) {
	s := New(config.Default(), nil)
	tree := s.AddTree(triangleTree())
	inst := mustInstance(t, s, tree, static(types.Vec3{}))

	type spec struct {
		force   bool
		rebuilt bool
	}
	for index, step := range []spec{{false, true}, {false, false}, {true, true}} {
		if !s.Build(step.force) {
			t.Fatalf("[spec %d] expected build to succeed", index)
		}
		if s.Rebuilt() != step.rebuilt {
			t.Fatalf("[spec %d] expected rebuilt to be %t; got %t", index, step.rebuilt, s.Rebuilt())
		}
	}

	if err := s.SetInstanceTransform(inst, static(types.XYZ(10, 0, 0))); err != nil {
		t.Fatal(err)
	}
	if !s.Build(false) || !s.Rebuilt() {
		t.Fatal("expected moved instance to trigger a rebuild")
	}
	r := zRay(10.25, 0.25)
	if !s.IntersectRay(&r, 0).Hit {
		t.Fatal("expected ray to hit the moved instance")
	}

	if err := s.MarkTreeDirty(tree); err != nil {
		t.Fatal(err)
	}
	if !s.Build(false) || !s.Rebuilt() {
		t.Fatal("expected dirty tree to trigger a rebuild")
	}

	ok, err := s.BuildDirty([]uint32{inst}, nil)
	if err != nil || !ok || !s.Rebuilt() {
		t.Fatalf("expected BuildDirty to succeed and rebuild; got %t, %t, %v", ok, s.Rebuilt(), err)
	}
	if ok, err = s.BuildDirty(nil, nil); err != nil || !ok || s.Rebuilt() {
		t.Fatalf("expected clean BuildDirty to succeed without rebuilding; got %t, %t, %v", ok, s.Rebuilt(), err)
	}
	if ok, err = s.BuildDirty([]uint32{42}, nil); err != ErrUnknownInstance || ok {
		t.Fatalf("expected failed build with error %v; got %t, %v", ErrUnknownInstance, ok, err)
	}
	if _, err = s.BuildDirty(nil, []uint32{42}); err != ErrUnknownTree {
		t.Fatalf("expected error %v; got %v", ErrUnknownTree, err)
	}
	if _, err = s.CreateInstance(42, static(types.Vec3{})); err != ErrUnknownTree {
		t.Fatalf("expected error %v; got %v", ErrUnknownTree, err)
	}
	if err = s.SetInstanceTransform(42, static(types.Vec3{})); err != ErrUnknownInstance {
		t.Fatalf("expected error %v; got %v", ErrUnknownInstance, err)
	}
}

func TestConsolidatedGeometry(t *testing.T) {
	s := New(config.Default(), nil)
	a := s.AddTree(triangleTree())
	b := s.AddTree(kdtree.New([]*mesh.TriangleMesh{mesh.Grid(2, 1)}, config.Default(), nil))
	mustInstance(t, s, a, static(types.Vec3{}))
	mustInstance(t, s, b, static(types.XYZ(3, 0, 0)))
	s.Build(false)

	want := 0
	for id := uint32(0); id < uint32(s.TreeCount()); id++ {
		tree, _ := s.Tree(id)
		want += len(tree.Records())
	}
	if got := s.GeometrySize(); got != want {
		t.Fatalf("expected consolidated buffer to hold %d records; got %d", want, got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	build := func() *SceneBVH {
		s := New(config.Default(), nil)
		tree := s.AddTree(triangleTree())
		for i := 0; i < 12; i++ {
			mustInstance(t, s, tree, static(types.XYZ(float32(i)*1.5, float32(i%3), 0)))
		}
		return s
	}

	s := build()
	s.Build(false)
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	restored := build()
	if err = restored.Restore(snap); err != ErrTreeNotRestorable {
		t.Fatalf("expected error %v; got %v", ErrTreeNotRestorable, err)
	}
	tree, _ := restored.Tree(0)
	tree.Build()
	if err = restored.Restore(snap); err != nil {
		t.Fatal(err)
	}

	got, _ := restored.Snapshot()
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("restored snapshot differs (-want +got):\n%s", diff)
	}
	if !restored.Build(false) || restored.Rebuilt() {
		t.Fatal("expected restored scene to build without a rebuild")
	}

	for i := 0; i < 12; i++ {
		r := zRay(float32(i)*1.5+0.2, float32(i%3)+0.2)
		if a, b := s.IntersectRay(&r, 0), restored.IntersectRay(&r, 0); a != b {
			t.Fatalf("ray %d: built scene reports %+v; restored reports %+v", i, a, b)
		}
	}

	bad := snap
	bad.InstanceBoxes = bad.InstanceBoxes[:3]
	if err = restored.Restore(bad); err != ErrSnapshotMismatch {
		t.Fatalf("expected error %v; got %v", ErrSnapshotMismatch, err)
	}
}

func TestConcurrentQueries(t *testing.T) {
	s := New(config.Default(), nil)
	tree := s.AddTree(triangleTree())
	mustInstance(t, s, tree, static(types.Vec3{}))
	s.Build(false)

	var wg sync.WaitGroup
	errCh := make(chan string, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r := zRay(0.25, 0.25)
				if !s.IntersectRay(&r, 0).Hit {
					errCh <- "expected concurrent query to hit"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for msg := range errCh {
		t.Fatal(msg)
	}
}
