package spatial

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	worldLabel  = "world"
	shapeLabel  = "shape"
	resultLabel = "result"

	resultHit        = "hit"
	resultMiss       = "miss"
	resultDegenerate = "degenerate"
	resultUncached   = "uncached"

	shapeNearest = "nearest"
)

var (
	queryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatial_queries_total",
		Help: "The total number of spatial queries.",
	}, []string{worldLabel, shapeLabel, resultLabel})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spatial_query_duration_seconds",
		Help:    "The duration of spatial queries.",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
	}, []string{worldLabel, shapeLabel})

	entityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spatial_entities",
		Help: "The number of indexed entities.",
	}, []string{worldLabel})

	nodeCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spatial_tree_nodes",
		Help: "The number of octree nodes.",
	}, []string{worldLabel})

	cacheInvalidationCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatial_cache_invalidations_total",
		Help: "The total number of cached queries removed by entity updates.",
	}, []string{worldLabel})

	capacityExceededCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatial_capacity_exceeded_total",
		Help: "The total number of entities added to a full leaf that could not be subdivided.",
	}, []string{worldLabel})
)

func instrumentQuery(world, shape, result string, d time.Duration) {
	queryCount.
		With(prometheus.Labels{
			worldLabel:  world,
			shapeLabel:  shape,
			resultLabel: result,
		}).
		Inc()

	queryDuration.
		With(prometheus.Labels{
			worldLabel: world,
			shapeLabel: shape,
		}).
		Observe(d.Seconds())
}

func instrumentTreeSize(world string, entities, nodes int) {
	entityCount.
		With(prometheus.Labels{worldLabel: world}).
		Set(float64(entities))

	nodeCount.
		With(prometheus.Labels{worldLabel: world}).
		Set(float64(nodes))
}

func instrumentCacheInvalidations(world string, n int) {
	if n == 0 {
		return
	}
	cacheInvalidationCount.
		With(prometheus.Labels{worldLabel: world}).
		Add(float64(n))
}

func instrumentCapacityExceeded(world string) {
	capacityExceededCount.
		With(prometheus.Labels{worldLabel: world}).
		Inc()
}
