package bvh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeLabel   = "mode"
	resultLabel = "result"
)

var (
	sceneBuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_bvh_build_seconds",
		Help:    "The time to bring the scene BVH up to date.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	sceneRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_bvh_builds_total",
		Help: "The number of scene BVH builds by whether the top level was rebuilt or reused.",
	}, []string{
		modeLabel,
	})

	raysTraced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_bvh_rays_total",
		Help: "The number of rays traced against the scene BVH.",
	}, []string{
		resultLabel,
	})

	rayHits   = raysTraced.WithLabelValues("hit")
	rayMisses = raysTraced.WithLabelValues("miss")
)

func instrumentBuild(start time.Time, rebuilt bool) {
	sceneBuildLatency.Observe(time.Since(start).Seconds())
	mode := "reuse"
	if rebuilt {
		mode = "full"
	}
	sceneRebuilds.With(prometheus.Labels{modeLabel: mode}).Inc()
}

func instrumentRay(hit bool) {
	if hit {
		rayHits.Inc()
		return
	}
	rayMisses.Inc()
}
