package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	worldconfig "github.com/aukilabs/octant/config"
	"github.com/aukilabs/octant/featureflag"
	octanthttp "github.com/aukilabs/octant/http"
	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/models"
	"github.com/aukilabs/octant/sim"
	"github.com/aukilabs/octant/spatial"
	"github.com/aukilabs/octant/stresstest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The Octant version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "octant_info",
		Help:        "Octant information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr           string           `cli:""        env:"OCTANT_ADDR"            help:"Listening address for the stats endpoints."`
	AdminAddr      string           `cli:""        env:"OCTANT_ADMIN_ADDR"      help:"Admin listening address."`
	World          string           `cli:""        env:"OCTANT_WORLD"           help:"World preset (default|pokemon|test)."`
	WorldFile      string           `cli:""        env:"OCTANT_WORLD_FILE"      help:"YAML file describing the world. Overrides the world preset."`
	LogLevel       string           `cli:""        env:"OCTANT_LOG_LEVEL"       help:"Log level (debug|info|warning|error)."`
	LogIndent      bool             `cli:""        env:"OCTANT_LOG_INDENT"      help:"Indent logs."`
	FrameDuration  time.Duration    `cli:",hidden" env:"OCTANT_FRAME_DURATION"  help:"The duration of a simulated frame."`
	StreamInterval time.Duration    `cli:",hidden" env:"OCTANT_STREAM_INTERVAL" help:"The duration between two stats sent on the debug stream."`
	Population     populationConfig `cli:",hidden" env:"-"                      help:"Simulated population."`
	Events         eventsConfig     `cli:",hidden" env:"-"                      help:"Event pusher configuration."`
	FeatureFlags   []string         `cli:",hidden" env:"OCTANT_FEATURE_FLAGS"   help:"Comma separated feature flags"`
	Version        bool             `cli:""        env:"-"                      help:"Show version."`
	Help           bool             `cli:""        env:"-"                      help:"Show help."`
}

type populationConfig struct {
	Peaceful    int           `cli:",hidden" env:"OCTANT_POPULATION_PEACEFUL"     help:"The number of peaceful creatures."`
	Hostile     int           `cli:",hidden" env:"OCTANT_POPULATION_HOSTILE"      help:"The number of hostile creatures."`
	Neutral     int           `cli:",hidden" env:"OCTANT_POPULATION_NEUTRAL"      help:"The number of neutral creatures."`
	Buildings   int           `cli:",hidden" env:"OCTANT_POPULATION_BUILDINGS"    help:"The number of static buildings."`
	Items       int           `cli:",hidden" env:"OCTANT_POPULATION_ITEMS"        help:"The number of occasionally moving items."`
	PlayerOrbit int           `cli:",hidden" env:"OCTANT_POPULATION_PLAYER_ORBIT" help:"The radius of the circle the player walks. The player stays still when 0."`
	Seed        int           `cli:",hidden" env:"OCTANT_POPULATION_SEED"         help:"The seed of entity placement and wandering."`
	Parallelism int           `cli:",hidden" env:"OCTANT_POPULATION_PARALLELISM"  help:"The number of goroutines running creature detection."`
	Warmup      time.Duration `cli:",hidden" env:"OCTANT_POPULATION_WARMUP"       help:"The simulated time before the world is reported ready."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"OCTANT_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. Events are not pushed when empty."`
	FlushInterval time.Duration `cli:",hidden" env:"OCTANT_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"OCTANT_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"OCTANT_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:           ":4000",
		AdminAddr:      ":18190",
		World:          "pokemon",
		LogLevel:       logs.InfoLevel.String(),
		FrameDuration:  time.Second / 60,
		StreamInterval: octanthttp.DefaultStreamInterval,
		Population: populationConfig{
			Peaceful:    120,
			Hostile:     40,
			Neutral:     40,
			Buildings:   30,
			Items:       60,
			PlayerOrbit: 40,
			Seed:        1,
			Warmup:      time.Second,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Runs a simulated world against an octree spatial index.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	world, err := loadWorld(conf)
	if err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "octant",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	flags := featureflag.New(conf.FeatureFlags)

	idx, err := spatial.New(spatial.Options{
		World:        world,
		FeatureFlags: flags,
	})
	if err != nil {
		logs.Fatal(err)
	}

	simWorld := sim.NewWorld(sim.Options{
		Index:       idx,
		Seed:        int64(conf.Population.Seed),
		Parallelism: conf.Population.Parallelism,
		PlayerOrbit: float32(conf.Population.PlayerOrbit),
	})
	populate(simWorld, conf.Population)

	frames := sim.NewFrames(conf.FrameDuration)
	defer frames.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		simWorld.Run(ctx, frames)
	}()

	warmupFrames := uint64(conf.Population.Warmup / conf.FrameDuration)
	readinessCheck := func() bool {
		return simWorld.Snapshot().Frame.Number > warmupFrames
	}
	snapshot := func() any {
		return simWorld.Snapshot()
	}

	var service http.ServeMux
	service.Handle("/health", octanthttp.HandleWithCORS(http.HandlerFunc(octanthttp.HandleHealthCheck)))
	service.Handle("/ready", octanthttp.HandleWithCORS(octanthttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", octanthttp.HandleWithCORS(octanthttp.HandleVersion(version)))
	service.Handle("/stats", octanthttp.HandleWithCORS(octanthttp.HandleStats(snapshot)))
	service.Handle("/debug/stream", octanthttp.HandleStream(ctx, octanthttp.StreamOptions{
		Interval: conf.StreamInterval,
		Snapshot: snapshot,
	}))

	var lastStressResult atomic.Pointer[sim.Result]

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", octanthttp.HandleHealthCheck)
	admin.HandleFunc("/ready", octanthttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/stress-test", stresstest.HandleStressTest(ctx, stresstest.Options{
		Runner: &sim.Runner{FeatureFlags: flags},
		SendResult: func(ctx context.Context, res sim.Result) error {
			lastStressResult.Store(&res)
			return nil
		},
	}))
	admin.HandleFunc("/stress-test/last", octanthttp.HandleStats(func() any {
		return lastStressResult.Load()
	}))
	admin.HandleFunc(octanthttp.PprofPath, pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("world", world.Name).
		WithTag("entities", simWorld.Entities().Len()).
		WithTag("feature_flags", flags.List()).
		Info("starting octant server")

	octanthttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			octanthttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: metrics.HTTPHandler(&admin,
			octanthttp.MetricsPathFormatter)},
	)

	frames.Close()
	wg.Wait()
}

func validateConfig(conf config) error {
	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	p := conf.Population
	if p.Peaceful < 0 || p.Hostile < 0 || p.Neutral < 0 || p.Buildings < 0 || p.Items < 0 {
		return errors.New("population counts can't be negative")
	}

	if p.PlayerOrbit < 0 {
		return errors.New("player orbit can't be negative").
			WithTag("player_orbit", p.PlayerOrbit)
	}

	return nil
}

func loadWorld(conf config) (worldconfig.World, error) {
	if conf.WorldFile != "" {
		return worldconfig.Load(conf.WorldFile)
	}

	w, ok := worldconfig.Preset(conf.World)
	if !ok {
		return w, errors.New("unknown world preset").
			WithType(worldconfig.ErrTypeInvalidWorld).
			WithTag("world", conf.World)
	}
	return w, nil
}

// populate spawns the player at the world center, creatures near the ground
// and scattered buildings and items.
func populate(w *sim.World, conf populationConfig) {
	bounds := w.Index().Bounds()
	ground := bounds
	ground.Max[1] = bounds.Min[1] + min(bounds.Size()[1], 10)

	w.SpawnPlayer(mgl32.Vec3{bounds.Center()[0], ground.Min[1] + 1, bounds.Center()[2]})
	w.SpawnCreatures(conf.Peaceful, ground, models.Peaceful, models.Dynamic)
	w.SpawnCreatures(conf.Hostile, ground, models.Hostile, models.Dynamic)
	w.SpawnCreatures(conf.Neutral, ground, models.Neutral, models.Static)
	w.SpawnEntities(conf.Buildings, ground, 4, layers.Buildings, models.Static)
	w.SpawnEntities(conf.Items, ground, 0.5, layers.Items, models.Occasional)
}
