package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	worldLabel    = "world"
	behaviorLabel = "behavior"
)

var (
	entityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_entities",
		Help: "The number of simulated entities.",
	}, []string{worldLabel, behaviorLabel})
)

func instrumentEntityGauge(world string, b SpatialBehavior, delta float64) {
	entityCount.
		With(prometheus.Labels{
			worldLabel:    world,
			behaviorLabel: b.String(),
		}).
		Add(delta)
}
