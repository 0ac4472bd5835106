package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/mesh"
	"github.com/Kai-Fu/KRender-sub000/scene"
	"github.com/Kai-Fu/KRender-sub000/scene/writer"
	"github.com/Kai-Fu/KRender-sub000/types"
)

// BenchFlags lists the flags accepted by Bench.
var BenchFlags = append([]cli.Flag{
	cli.IntFlag{
		Name:  "trees",
		Value: 4,
		Usage: "number of object trees",
	},
	cli.IntFlag{
		Name:  "triangles",
		Value: 20000,
		Usage: "triangles per object tree",
	},
	cli.IntFlag{
		Name:  "instances",
		Value: 64,
		Usage: "number of instances spread over the object trees",
	},
	cli.IntFlag{
		Name:  "rays",
		Value: 200000,
		Usage: "number of random rays to trace",
	},
	cli.BoolFlag{
		Name:  "motion",
		Usage: "animate every other instance",
	},
	cli.Int64Flag{
		Name:  "seed",
		Value: 1,
		Usage: "random seed for the generated scene and rays",
	},
	cli.StringFlag{
		Name:  "out, o",
		Usage: "save the built scene to this zip file",
	},
	cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "serve prometheus metrics on this address while benchmarking",
	},
}, buildFlags...)

// Bench builds a procedural scene, traces random rays against it and
// reports timings.
func Bench(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	opts, err := loadOptions(ctx)
	if err != nil {
		return err
	}
	if ctx.Int("trees") < 1 || ctx.Int("instances") < 1 || ctx.Int("triangles") < 1 {
		return errors.New("trees, triangles and instances must be positive")
	}

	if addr := ctx.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Noticef("serving metrics on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Errorf("metrics server: %s", err)
			}
		}()
	}

	sc, err := scene.New(opts)
	if err != nil {
		return err
	}
	defer sc.Close()

	rng := rand.New(rand.NewSource(ctx.Int64("seed")))
	spread := float32(math.Cbrt(float64(ctx.Int("instances")))) * 6
	if err = populate(sc, rng, ctx.Int("trees"), ctx.Int("triangles"), ctx.Int("instances"), spread, ctx.Bool("motion")); err != nil {
		return err
	}

	start := time.Now()
	sc.Build(true)
	buildTime := time.Since(start)
	logger.Noticef("scene information:\n%s", sc.Stats())

	rays := makeRays(rng, ctx.Int("rays"), spread)
	start = time.Now()
	hits := trace(sc, rays, opts.WorkerCount())
	traceTime := time.Since(start)

	logger.Noticef("benchmark results:\n%s", benchReport(buildTime, traceTime, len(rays), hits))

	if out := ctx.String("out"); out != "" {
		return writer.WriteScene(sc, out)
	}
	return nil
}

func populate(sc *scene.Scene, rng *rand.Rand, trees, triangles, instances int, spread float32, motion bool) error {
	bounds := geom.BBoxOf(types.XYZ(-2, -2, -2), types.XYZ(2, 2, 2))
	ids := make([]uint32, trees)
	for i := range ids {
		id, err := sc.CreateObjectTree([]*mesh.TriangleMesh{mesh.RandomSoup(rng, triangles, bounds, 0.2)})
		if err != nil {
			return err
		}
		ids[i] = id
	}

	for i := 0; i < instances; i++ {
		inst, err := sc.CreateInstance(ids[i%trees])
		if err != nil {
			return err
		}
		start := geom.IdentityFrame()
		start.Translation = types.XYZ(
			(rng.Float32()*2-1)*spread,
			(rng.Float32()*2-1)*spread,
			(rng.Float32()*2-1)*spread,
		)
		start.Rotation = types.QuatFromAxisAngle(types.XYZ(rng.Float32(), rng.Float32(), rng.Float32()+0.1), rng.Float32()*math.Pi)

		var end *geom.LocalTRSFrame
		if motion && i%2 == 1 {
			f := start
			f.Translation = f.Translation.Add(types.XYZ(rng.Float32(), rng.Float32(), 0))
			f.Rotation = types.QuatFromAxisAngle(types.XYZ(0, 0, 1), rng.Float32()).Mul(start.Rotation)
			end = &f
		}
		if err = sc.SetInstanceTransform(inst, start, end); err != nil {
			return err
		}
	}
	return nil
}

type benchRay struct {
	ray  geom.Ray
	time float32
}

func makeRays(rng *rand.Rand, n int, spread float32) []benchRay {
	rays := make([]benchRay, n)
	for i := range rays {
		origin := types.XYZ(
			(rng.Float32()*2-1)*spread*1.5,
			(rng.Float32()*2-1)*spread*1.5,
			(rng.Float32()*2-1)*spread*1.5,
		)
		target := types.XYZ(
			(rng.Float32()*2-1)*spread,
			(rng.Float32()*2-1)*spread,
			(rng.Float32()*2-1)*spread,
		)
		rays[i] = benchRay{
			ray:  geom.NewRay(origin, target.Sub(origin).Normalize()),
			time: rng.Float32(),
		}
	}
	return rays
}

// trace splits the rays into one batch per worker and returns the hit count.
func trace(sc *scene.Scene, rays []benchRay, workers int) int64 {
	var (
		hits  atomic.Int64
		g     errgroup.Group
		batch = (len(rays) + workers - 1) / workers
	)
	for start := 0; start < len(rays); start += batch {
		part := rays[start:min(start+batch, len(rays))]
		g.Go(func() error {
			var n int64
			for _, r := range part {
				if sc.IntersectRay(r.ray, r.time).Hit {
					n++
				}
			}
			hits.Add(n)
			return nil
		})
	}
	_ = g.Wait()
	return hits.Load()
}

func benchReport(buildTime, traceTime time.Duration, rays int, hits int64) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Phase", "Time", "Rays", "Hits", "Rays/sec"})

	raysPerSec := "-"
	if traceTime > 0 {
		raysPerSec = fmt.Sprintf("%.0f", float64(rays)/traceTime.Seconds())
	}
	table.Append([]string{"Build", fmt.Sprintf("%d ms", buildTime.Milliseconds()), " ", " ", " "})
	table.Append([]string{"Trace", fmt.Sprintf("%d ms", traceTime.Milliseconds()), strconv.Itoa(rays), strconv.FormatInt(hits, 10), raysPerSec})
	table.Render()
	return buf.String()
}
