package sim

import (
	"context"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	var names []string
	for _, s := range Scenarios() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"baseline_50", "standard_200", "heavy_500", "extreme_1000", "mixed_load"}, names)

	s, err := ScenarioByName("heavy_500")
	require.NoError(t, err)
	require.Equal(t, 500, s.EntityCount)
	require.Equal(t, float32(15), s.QueryRadius)
	require.True(t, s.Movement)

	_, err = ScenarioByName("concurrent_queries")
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeScenarioUnknown))
}

func TestRunnerRun(t *testing.T) {
	r := Runner{Frames: 10, Seed: 42}

	s, err := ScenarioByName("baseline_50")
	require.NoError(t, err)

	before := testutil.ToFloat64(stressRunCount.With(prometheus.Labels{scenarioLabel: s.Name, resultLabel: "passed"})) +
		testutil.ToFloat64(stressRunCount.With(prometheus.Labels{scenarioLabel: s.Name, resultLabel: "failed"}))

	res, err := r.Run(context.Background(), s)
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	require.Equal(t, "baseline_50", res.Scenario)
	require.Equal(t, 10, res.Frames)
	require.Equal(t, res.Passed, res.FailureReason == "")

	m := res.Metrics
	require.Equal(t, 50, m.Entities)
	require.Equal(t, 10*(5+stressRegionQueries+1), m.TotalQueries)
	require.GreaterOrEqual(t, m.TreeDepth, 1)
	require.Greater(t, m.AvgEntitiesPerLeaf, float64(0))
	require.LessOrEqual(t, m.MinQueryTime, m.P50QueryTime)
	require.LessOrEqual(t, m.P50QueryTime, m.P95QueryTime)
	require.LessOrEqual(t, m.P95QueryTime, m.P99QueryTime)
	require.LessOrEqual(t, m.P99QueryTime, m.MaxQueryTime)
	require.LessOrEqual(t, m.AvgFrameTime, m.PeakFrameTime)

	after := testutil.ToFloat64(stressRunCount.With(prometheus.Labels{scenarioLabel: s.Name, resultLabel: "passed"})) +
		testutil.ToFloat64(stressRunCount.With(prometheus.Labels{scenarioLabel: s.Name, resultLabel: "failed"}))
	require.Equal(t, before+1, after)
}

func TestRunnerMixedLoad(t *testing.T) {
	r := Runner{Frames: mixedLoadPeriod + 1}

	s, err := ScenarioByName("mixed_load")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 150, res.Metrics.Entities)

	r.Frames = 2 * mixedLoadPeriod
	res, err = r.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 200, res.Metrics.Entities)
}

func TestRunnerRunAll(t *testing.T) {
	r := Runner{Frames: 2}

	results, err := r.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, name := range []string{"baseline_50", "standard_200", "heavy_500", "extreme_1000"} {
		require.Equal(t, name, results[i].Scenario)
		require.Equal(t, 2, results[i].Frames)
	}
	require.Equal(t, 1000, results[3].Metrics.Entities)
}

func TestRunnerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := Runner{Frames: 10}
	res, err := r.Run(ctx, Scenarios()[0])
	require.Error(t, err)
	require.Zero(t, res.Frames)
}

func TestEvaluate(t *testing.T) {
	s := Scenarios()[0]

	passed, reason := evaluate(s, Metrics{AvgQueryTime: s.MaxAvgQuery, AvgFrameTime: s.MaxFrame})
	require.True(t, passed)
	require.Empty(t, reason)

	passed, reason = evaluate(s, Metrics{AvgQueryTime: s.MaxAvgQuery + 1})
	require.False(t, passed)
	require.Equal(t, "average query time exceeded", reason)

	passed, reason = evaluate(s, Metrics{AvgFrameTime: s.MaxFrame + 1})
	require.False(t, passed)
	require.Equal(t, "average frame time exceeded", reason)
}
