package kdtree

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	treeBuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kdtree_build_seconds",
		Help:    "The time to build an object kd-tree.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	treeLeaves = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kdtree_last_build_leaves",
		Help: "The number of leaves produced by the most recent kd-tree build.",
	})

	treeNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kdtree_last_build_nodes",
		Help: "The number of interior nodes produced by the most recent kd-tree build.",
	})
)

func instrumentBuild(start time.Time, st stats) {
	treeBuildLatency.Observe(time.Since(start).Seconds())
	treeLeaves.Set(float64(st.leaves))
	treeNodes.Set(float64(st.nodes))
}
