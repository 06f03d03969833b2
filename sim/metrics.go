package sim

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	worldLabel    = "world"
	phaseLabel    = "phase"
	scenarioLabel = "scenario"
	resultLabel   = "result"

	phaseWrite = "write"
	phaseRead  = "read"
)

var (
	frameDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_frame_duration_seconds",
		Help:    "The duration of the phases of a simulated frame.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
	}, []string{worldLabel, phaseLabel})

	throttledQueryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_throttled_queries_total",
		Help: "The total number of creature detections skipped by throttling.",
	}, []string{worldLabel})

	stressRunCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_stress_runs_total",
		Help: "The total number of stress scenarios run.",
	}, []string{scenarioLabel, resultLabel})
)

func instrumentFrame(world string, write, read time.Duration) {
	frameDuration.
		With(prometheus.Labels{
			worldLabel: world,
			phaseLabel: phaseWrite,
		}).
		Observe(write.Seconds())

	frameDuration.
		With(prometheus.Labels{
			worldLabel: world,
			phaseLabel: phaseRead,
		}).
		Observe(read.Seconds())
}

func instrumentThrottledQueries(world string, n int) {
	if n == 0 {
		return
	}
	throttledQueryCount.
		With(prometheus.Labels{worldLabel: world}).
		Add(float64(n))
}

func instrumentStressRun(scenario string, passed bool) {
	result := "failed"
	if passed {
		result = "passed"
	}

	stressRunCount.
		With(prometheus.Labels{
			scenarioLabel: scenario,
			resultLabel:   result,
		}).
		Inc()
}
