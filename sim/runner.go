package sim

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octant/config"
	"github.com/aukilabs/octant/featureflag"
	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/models"
	"github.com/aukilabs/octant/spatial"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

const (
	ErrTypeScenarioUnknown = "scenario_unknown"

	DefaultStressFrames     = 300
	DefaultStressFrameDelta = time.Second / 60

	// Region queries issued per frame.
	stressRegionQueries = 3

	// The share of entities issuing a radius query every frame.
	stressRadiusQueryRatio = 10

	// Frames between two population changes of a mixed load.
	mixedLoadPeriod = 60
)

// Scenario is a stress load applied to a fresh index.
type Scenario struct {
	Name        string        `json:"name"`
	EntityCount int           `json:"entity_count"`
	QueryRadius float32       `json:"query_radius"`
	Movement    bool          `json:"movement"`
	MixedLoad   bool          `json:"mixed_load"`
	MaxAvgQuery time.Duration `json:"max_avg_query"`
	MaxFrame    time.Duration `json:"max_frame"`
}

var scenarios = []Scenario{
	{
		Name:        "baseline_50",
		EntityCount: 50,
		QueryRadius: 10,
		MaxAvgQuery: 50 * time.Microsecond,
		MaxFrame:    10 * time.Millisecond,
	},
	{
		Name:        "standard_200",
		EntityCount: 200,
		QueryRadius: 10,
		Movement:    true,
		MaxAvgQuery: 100 * time.Microsecond,
		MaxFrame:    16670 * time.Microsecond,
	},
	{
		Name:        "heavy_500",
		EntityCount: 500,
		QueryRadius: 15,
		Movement:    true,
		MaxAvgQuery: 200 * time.Microsecond,
		MaxFrame:    20 * time.Millisecond,
	},
	{
		Name:        "extreme_1000",
		EntityCount: 1000,
		QueryRadius: 20,
		Movement:    true,
		MaxAvgQuery: 500 * time.Microsecond,
		MaxFrame:    30 * time.Millisecond,
	},
	{
		Name:        "mixed_load",
		EntityCount: 200,
		QueryRadius: 10,
		Movement:    true,
		MixedLoad:   true,
		MaxAvgQuery: 100 * time.Microsecond,
		MaxFrame:    16670 * time.Microsecond,
	},
}

// Scenarios returns the available stress scenarios.
func Scenarios() []Scenario {
	return slices.Clone(scenarios)
}

// ScenarioByName returns the stress scenario with the given name.
func ScenarioByName(name string) (Scenario, error) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, nil
		}
	}

	return Scenario{}, errors.New("unknown stress scenario").
		WithType(ErrTypeScenarioUnknown).
		WithTag("scenario", name)
}

// StressWorld returns the world stress scenarios run in: a 200 meter wide
// cube centered on the origin.
func StressWorld() config.World {
	w := config.DefaultWorld()
	w.Name = "stress"
	w.Min = mgl32.Vec3{-100, -100, -100}
	w.Max = mgl32.Vec3{100, 100, 100}
	return w
}

// Metrics describes the performance of a stress run.
type Metrics struct {
	Entities           int           `json:"entities"`
	TotalQueries       int           `json:"total_queries"`
	AvgQueryTime       time.Duration `json:"avg_query_time"`
	MinQueryTime       time.Duration `json:"min_query_time"`
	MaxQueryTime       time.Duration `json:"max_query_time"`
	P50QueryTime       time.Duration `json:"p50_query_time"`
	P95QueryTime       time.Duration `json:"p95_query_time"`
	P99QueryTime       time.Duration `json:"p99_query_time"`
	AvgFrameTime       time.Duration `json:"avg_frame_time"`
	PeakFrameTime      time.Duration `json:"peak_frame_time"`
	AvgSpatialTime     time.Duration `json:"avg_spatial_time"`
	CacheHitRate       float64       `json:"cache_hit_rate"`
	CacheSize          int           `json:"cache_size"`
	TreeDepth          int           `json:"tree_depth"`
	AvgEntitiesPerLeaf float64       `json:"avg_entities_per_leaf"`
}

// Result is the outcome of a stress run.
type Result struct {
	ID            string        `json:"id"`
	Scenario      string        `json:"scenario"`
	Passed        bool          `json:"passed"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Frames        int           `json:"frames"`
	Duration      time.Duration `json:"duration"`
	Metrics       Metrics       `json:"metrics"`
}

// Runner runs stress scenarios, each against a new index.
type Runner struct {
	// The world the scenarios run in. Defaults to StressWorld.
	World config.World

	// The number of frames per scenario. Defaults to DefaultStressFrames.
	Frames int

	// The simulated time between two frames. Defaults to
	// DefaultStressFrameDelta.
	FrameDelta time.Duration

	Seed         int64
	FeatureFlags featureflag.FeatureFlag
}

// RunAll runs the fixed population scenarios one after the other.
func (r *Runner) RunAll(ctx context.Context) ([]Result, error) {
	var results []Result

	for _, s := range scenarios {
		if s.MixedLoad {
			continue
		}

		res, err := r.Run(ctx, s)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Run runs a stress scenario.
func (r *Runner) Run(ctx context.Context, s Scenario) (Result, error) {
	conf := r.withDefaults()

	idx, err := spatial.New(spatial.Options{
		World:        conf.World,
		FeatureFlags: conf.FeatureFlags,
	})
	if err != nil {
		return Result{}, errors.New("creating stress index failed").
			WithTag("scenario", s.Name).
			Wrap(err)
	}

	run := stressRun{
		scenario: s,
		world: NewWorld(Options{
			Index: idx,
			Seed:  conf.Seed,
		}),
		minQuery: time.Duration(math.MaxInt64),
	}

	res := Result{
		ID:       uuid.New().String(),
		Scenario: s.Name,
	}

	logger := logs.WithTag("run_id", res.ID).
		WithTag("scenario", s.Name).
		WithTag("entity_count", s.EntityCount)
	logger.Info("stress test started")

	start := time.Now()
	run.spawn(s.EntityCount)

	for frame := 1; frame <= conf.Frames; frame++ {
		if err := ctx.Err(); err != nil {
			return res, errors.New("stress test interrupted").
				WithTag("scenario", s.Name).
				WithTag("frame", frame).
				Wrap(err)
		}

		if s.MixedLoad && frame%mixedLoadPeriod == 0 {
			run.changePopulation(frame / mixedLoadPeriod)
		}
		run.frame(conf.FrameDelta)
	}

	res.Frames = conf.Frames
	res.Duration = time.Since(start)
	res.Metrics = run.metrics()
	res.Passed, res.FailureReason = evaluate(s, res.Metrics)

	instrumentStressRun(s.Name, res.Passed)

	logger.
		WithTag("passed", res.Passed).
		WithTag("duration", res.Duration).
		WithTag("total_queries", res.Metrics.TotalQueries).
		WithTag("avg_query_time", res.Metrics.AvgQueryTime).
		WithTag("p99_query_time", res.Metrics.P99QueryTime).
		WithTag("avg_frame_time", res.Metrics.AvgFrameTime).
		WithTag("cache_hit_rate", res.Metrics.CacheHitRate).
		WithTag("tree_depth", res.Metrics.TreeDepth).
		Info("stress test completed")
	return res, nil
}

func (r *Runner) withDefaults() Runner {
	conf := *r
	if conf.World.Name == "" {
		conf.World = StressWorld()
	}
	if conf.Frames <= 0 {
		conf.Frames = DefaultStressFrames
	}
	if conf.FrameDelta <= 0 {
		conf.FrameDelta = DefaultStressFrameDelta
	}
	return conf
}

func evaluate(s Scenario, m Metrics) (bool, string) {
	switch {
	case m.AvgQueryTime > s.MaxAvgQuery:
		return false, "average query time exceeded"

	case m.AvgFrameTime > s.MaxFrame:
		return false, "average frame time exceeded"

	default:
		return true, ""
	}
}

type stressRun struct {
	scenario Scenario
	world    *World

	queryTimes  []time.Duration
	minQuery    time.Duration
	maxQuery    time.Duration
	frameTime   time.Duration
	peakFrame   time.Duration
	spatialTime time.Duration
	frames      int
}

func (r *stressRun) spawn(n int) {
	behavior := models.Static
	if r.scenario.Movement {
		behavior = models.Dynamic
	}

	for _, c := range r.world.SpawnCreatures(n, r.region(1), models.Neutral, behavior) {
		c.DetectionRadius = r.scenario.QueryRadius
	}
}

// changePopulation alternately removes a quarter of the creatures and
// spawns them back.
func (r *stressRun) changePopulation(step int) {
	if step%2 == 0 {
		r.spawn(r.scenario.EntityCount - r.world.Entities().Len())
		return
	}

	creatures := r.world.Entities().Creatures()
	for _, c := range creatures[:len(creatures)/4] {
		r.world.Despawn(c.ID)
	}
}

func (r *stressRun) region(scale float32) geometry.AABB {
	bounds := r.world.Index().Bounds()
	return geometry.AABBFromCenter(bounds.Center(), bounds.HalfExtents().Mul(scale))
}

func (r *stressRun) frame(dt time.Duration) {
	start := time.Now()
	r.world.Write(dt)

	spatialStart := time.Now()
	r.radiusQueries()
	r.regionQueries()
	r.frustumQuery()
	now := time.Now()

	r.spatialTime += now.Sub(spatialStart)
	frameTime := now.Sub(start)
	r.frameTime += frameTime
	r.peakFrame = max(r.peakFrame, frameTime)
	r.frames++

	if frameTime > r.scenario.MaxFrame {
		logs.WithTag("scenario", r.scenario.Name).
			WithTag("frame_time", frameTime).
			WithTag("threshold", r.scenario.MaxFrame).
			Debug("stress frame time threshold exceeded")
	}
}

func (r *stressRun) radiusQueries() {
	creatures := r.world.Entities().Creatures()
	if len(creatures) == 0 {
		return
	}

	n := max(1, len(creatures)/stressRadiusQueryRatio)
	for i := 0; i < n; i++ {
		c := creatures[r.world.rng.Intn(len(creatures))]
		position := c.Position()

		r.track(func() {
			r.world.Index().QueryRadius(position, r.scenario.QueryRadius, layers.Creatures)
		})
	}
}

func (r *stressRun) regionQueries() {
	region := r.region(0.8)
	size := region.Size()

	for i := 0; i < stressRegionQueries; i++ {
		center := mgl32.Vec3{
			region.Min[0] + r.world.rng.Float32()*size[0],
			0,
			region.Min[2] + r.world.rng.Float32()*size[2],
		}
		half := 5 + r.world.rng.Float32()*15
		lo := center.Sub(mgl32.Vec3{half, half, half})
		hi := center.Add(mgl32.Vec3{half, half, half})

		r.track(func() {
			r.world.Index().QueryRegion(lo, hi, layers.Creatures)
		})
	}
}

func (r *stressRun) frustumQuery() {
	angle := r.world.rng.Float64() * 2 * math.Pi
	target := mgl32.Vec3{
		float32(20 * math.Cos(angle)),
		0,
		float32(20 * math.Sin(angle)),
	}
	f := r.world.camera.Frustum(target)

	r.track(func() {
		r.world.Index().FindVisibleCreatures(f)
	})
}

func (r *stressRun) track(query func()) {
	start := time.Now()
	query()
	d := time.Since(start)

	r.queryTimes = append(r.queryTimes, d)
	r.minQuery = min(r.minQuery, d)
	r.maxQuery = max(r.maxQuery, d)
}

func (r *stressRun) metrics() Metrics {
	stats := r.world.Index().Stats()

	m := Metrics{
		Entities:      r.world.Entities().Len(),
		TotalQueries:  len(r.queryTimes),
		MaxQueryTime:  r.maxQuery,
		PeakFrameTime: r.peakFrame,
		CacheHitRate:  stats.Cache.HitRate,
		CacheSize:     stats.Cache.Size,
		TreeDepth:     stats.Tree.MaxDepth,
	}

	if stats.Tree.LeafCount > 0 {
		m.AvgEntitiesPerLeaf = float64(stats.Tree.EntityCount) / float64(stats.Tree.LeafCount)
	}

	if r.frames > 0 {
		m.AvgFrameTime = r.frameTime / time.Duration(r.frames)
		m.AvgSpatialTime = r.spatialTime / time.Duration(r.frames)
	}

	if len(r.queryTimes) == 0 {
		return m
	}

	var total time.Duration
	for _, d := range r.queryTimes {
		total += d
	}
	m.AvgQueryTime = total / time.Duration(len(r.queryTimes))
	m.MinQueryTime = r.minQuery

	sorted := slices.Clone(r.queryTimes)
	slices.Sort(sorted)
	m.P50QueryTime = percentile(sorted, 0.50)
	m.P95QueryTime = percentile(sorted, 0.95)
	m.P99QueryTime = percentile(sorted, 0.99)
	return m
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}
