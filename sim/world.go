// Package sim drives a spatial index the way a game loop does. Every frame,
// entities are moved and written to the index, then creature detection and
// camera culling query it in parallel.
package sim

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/models"
	"github.com/aukilabs/octant/octree"
	"github.com/aukilabs/octant/spatial"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultOccasionalPeriod = 60

	playerRadius     = 1
	playerOrbitSpeed = 0.2
	occasionalStep   = 1
)

type Options struct {
	Index *spatial.Index

	// Seeds entity placement and wandering.
	Seed int64

	Camera Camera

	// The number of goroutines running creature detection. Defaults to
	// GOMAXPROCS.
	Parallelism int

	// The number of frames between two moves of occasional entities.
	OccasionalPeriod int

	// The radius of the circle the player walks around the world center. The
	// player stays still when 0.
	PlayerOrbit float32
}

// Frame describes a simulated frame.
type Frame struct {
	Number     uint64        `json:"number"`
	Write      time.Duration `json:"write"`
	Read       time.Duration `json:"read"`
	Updated    int           `json:"updated"`
	Detections int           `json:"detections"`
	Throttled  int           `json:"throttled"`
	Reactions  int           `json:"reactions"`
	Visible    int           `json:"visible"`
}

// Snapshot is the state of a world at the end of a frame.
type Snapshot struct {
	Frame    Frame         `json:"frame"`
	Entities int           `json:"entities"`
	Index    spatial.Stats `json:"index"`
}

// World is a set of simulated entities indexed in a spatial index. Spawn,
// Despawn, Write and Step must be called from a single goroutine.
type World struct {
	index            *spatial.Index
	camera           Camera
	parallelism      int
	occasionalPeriod uint64
	playerOrbit      float32

	entities models.EntityStore
	player   *models.Entity
	rng      *rand.Rand
	frame    uint64
	elapsed  time.Duration

	snapshotMutex sync.RWMutex
	snapshot      Snapshot
}

func NewWorld(opts Options) *World {
	if opts.Camera.FOV == 0 {
		opts.Camera = DefaultCamera()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	if opts.OccasionalPeriod <= 0 {
		opts.OccasionalPeriod = DefaultOccasionalPeriod
	}

	w := &World{
		index:            opts.Index,
		camera:           opts.Camera,
		parallelism:      opts.Parallelism,
		occasionalPeriod: uint64(opts.OccasionalPeriod),
		playerOrbit:      opts.PlayerOrbit,
		entities:         models.EntityStore{World: opts.Index.World().Name},
		rng:              rand.New(rand.NewSource(opts.Seed)),
	}

	logs.WithTag("index_id", opts.Index.ID).
		WithTag("world", opts.Index.World().Name).
		WithTag("parallelism", w.parallelism).
		Info("simulated world created")
	return w
}

func (w *World) Index() *spatial.Index {
	return w.index
}

func (w *World) Entities() *models.EntityStore {
	return &w.entities
}

// Player returns the player entity, nil when none was spawned.
func (w *World) Player() *models.Entity {
	return w.player
}

// Snapshot returns the state of the world at the end of the last frame. It is
// safe to call from any goroutine.
func (w *World) Snapshot() Snapshot {
	w.snapshotMutex.RLock()
	defer w.snapshotMutex.RUnlock()

	return w.snapshot
}

// Spawn adds an entity to the world. It is indexed on the next frame.
func (w *World) Spawn(position mgl32.Vec3, radius float32, mask layers.Mask, behavior models.SpatialBehavior) *models.Entity {
	position = w.index.Bounds().ClampPoint(position)
	e := models.NewEntity(w.entities.NewID(), position, radius, mask, behavior)
	w.entities.Add(e)
	return e
}

// SpawnPlayer adds the player to the world. The camera follows it.
func (w *World) SpawnPlayer(position mgl32.Vec3) *models.Entity {
	w.player = w.Spawn(position, playerRadius, layers.Player, models.Dynamic)
	return w.player
}

func (w *World) SpawnCreature(position mgl32.Vec3, radius float32, t models.CreatureType, behavior models.SpatialBehavior) *models.Creature {
	position = w.index.Bounds().ClampPoint(position)
	c := models.NewCreature(models.NewEntity(w.entities.NewID(), position, radius, layers.Creatures, behavior), t)
	w.entities.AddCreature(c)
	return c
}

// SpawnEntities adds n entities on mask at random positions within region,
// with a bounding radius of radius.
func (w *World) SpawnEntities(n int, region geometry.AABB, radius float32, mask layers.Mask, behavior models.SpatialBehavior) []*models.Entity {
	entities := make([]*models.Entity, n)
	for i := range entities {
		entities[i] = w.Spawn(w.randomPosition(region), radius, mask, behavior)
	}
	return entities
}

// SpawnCreatures adds n creatures at random positions within region, with a
// bounding radius between 0.5 and 2.
func (w *World) SpawnCreatures(n int, region geometry.AABB, t models.CreatureType, behavior models.SpatialBehavior) []*models.Creature {
	creatures := make([]*models.Creature, n)
	for i := range creatures {
		creatures[i] = w.SpawnCreature(w.randomPosition(region), 0.5+w.rng.Float32()*1.5, t, behavior)
	}
	return creatures
}

func (w *World) randomPosition(region geometry.AABB) mgl32.Vec3 {
	size := region.Size()
	return mgl32.Vec3{
		region.Min[0] + w.rng.Float32()*size[0],
		region.Min[1] + w.rng.Float32()*size[1],
		region.Min[2] + w.rng.Float32()*size[2],
	}
}

// Despawn removes an entity from the world and the index.
func (w *World) Despawn(id octree.EntityID) bool {
	if _, ok := w.entities.Remove(id); !ok {
		return false
	}

	w.index.RemoveEntity(id)
	if w.player != nil && w.player.ID == id {
		w.player = nil
	}
	return true
}

// Step runs a frame: the write phase then the read phase.
func (w *World) Step(ctx context.Context, dt time.Duration) (Frame, error) {
	start := time.Now()
	f := Frame{Updated: w.Write(dt)}
	f.Number = w.frame
	f.Write = time.Since(start)

	start = time.Now()
	if err := w.read(ctx, dt, &f); err != nil {
		return f, err
	}
	f.Read = time.Since(start)

	instrumentFrame(w.index.World().Name, f.Write, f.Read)
	instrumentThrottledQueries(w.index.World().Name, f.Throttled)

	w.snapshotMutex.Lock()
	w.snapshot = Snapshot{
		Frame:    f,
		Entities: w.entities.Len(),
		Index:    w.index.Stats(),
	}
	w.snapshotMutex.Unlock()
	return f, nil
}

// Run steps the world on every frame dispatched by frames until ctx is done
// or frames is closed.
func (w *World) Run(ctx context.Context, frames *Frames) {
	cancel := frames.HandleFrame(func(dt time.Duration) {
		if _, err := w.Step(ctx, dt); err != nil && ctx.Err() == nil {
			logs.Warn(err)
		}
	})
	defer cancel()

	frames.StartDispatchFrames(ctx)
}

// Write moves the entities and writes the ones that changed to the index. It
// returns the number of index updates.
func (w *World) Write(dt time.Duration) int {
	w.frame++
	w.elapsed += dt

	w.movePlayer()
	for _, c := range w.entities.Creatures() {
		w.moveCreature(c, dt)
	}

	entities := w.entities.Entities()
	if w.frame%w.occasionalPeriod == 0 {
		for _, e := range entities {
			if e.Behavior == models.Occasional {
				w.moveOccasional(e)
			}
		}
	}

	updated := 0
	for _, e := range entities {
		if !e.TakeDirty() {
			continue
		}
		w.index.UpdateEntity(e.ID, e.Bounds(), e.Layers())
		updated++
	}

	w.index.CleanupCache()
	return updated
}

func (w *World) movePlayer() {
	if w.player == nil || w.playerOrbit == 0 {
		return
	}

	angle := w.elapsed.Seconds() * playerOrbitSpeed
	center := w.index.Bounds().Center()
	w.player.SetPosition(w.index.Bounds().ClampPoint(mgl32.Vec3{
		center[0] + w.playerOrbit*float32(math.Cos(angle)),
		w.player.Position()[1],
		center[2] + w.playerOrbit*float32(math.Sin(angle)),
	}))
}

func (w *World) moveCreature(c *models.Creature, dt time.Duration) {
	if c.Behavior == models.Static {
		return
	}

	position := c.Position()
	var direction mgl32.Vec3
	var speed float32

	switch c.State() {
	case models.Wandering:
		direction = mgl32.Vec3{w.rng.Float32()*2 - 1, 0, w.rng.Float32()*2 - 1}
		speed = models.DefaultWanderSpeed

	case models.Fleeing:
		target, ok := w.targetPosition(c)
		if !ok {
			return
		}
		direction = position.Sub(target)
		speed = models.DefaultFleeSpeed

	case models.Aggressive:
		target, ok := w.targetPosition(c)
		if !ok {
			return
		}
		direction = target.Sub(position)
		speed = models.DefaultAlertSpeed

	default:
		return
	}

	direction[1] = 0
	if direction.Len() < 1e-6 {
		return
	}

	step := direction.Normalize().Mul(speed * float32(dt.Seconds()))
	c.SetPosition(w.index.Bounds().ClampPoint(position.Add(step)))
}

func (w *World) moveOccasional(e *models.Entity) {
	step := mgl32.Vec3{
		(w.rng.Float32()*2 - 1) * occasionalStep,
		0,
		(w.rng.Float32()*2 - 1) * occasionalStep,
	}
	e.SetPosition(w.index.Bounds().ClampPoint(e.Position().Add(step)))
}

func (w *World) targetPosition(c *models.Creature) (mgl32.Vec3, bool) {
	id, ok := c.Target()
	if !ok {
		return mgl32.Vec3{}, false
	}

	e, ok := w.entities.EntityByID(id)
	if !ok {
		return mgl32.Vec3{}, false
	}
	return e.Position(), true
}

// read runs creature detection and camera culling against the index. The
// index is not written while it runs.
func (w *World) read(ctx context.Context, dt time.Duration, f *Frame) error {
	creatures := w.entities.Creatures()

	var detections, throttled, reactions atomic.Int64
	g, ctx := errgroup.WithContext(ctx)

	chunk := (len(creatures) + w.parallelism - 1) / w.parallelism
	for start := 0; start < len(creatures); start += chunk {
		part := creatures[start:min(start+chunk, len(creatures))]

		g.Go(func() error {
			for _, c := range part {
				if err := ctx.Err(); err != nil {
					return err
				}

				c.Calm(dt)
				if !c.Throttle.Advance(dt) {
					throttled.Add(1)
					continue
				}

				detections.Add(1)
				if w.detect(c) {
					reactions.Add(1)
				}
			}
			return nil
		})
	}

	var visible int
	if w.player != nil {
		target := w.player.Position()

		g.Go(func() error {
			visible = len(w.index.FindVisibleCreatures(w.camera.Frustum(target)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	f.Detections = int(detections.Load())
	f.Throttled = int(throttled.Load())
	f.Reactions = int(reactions.Load())
	f.Visible = visible
	return nil
}

// detect looks for the closest player within the detection radius of c and
// reacts to it. It reports whether a player was found.
func (w *World) detect(c *models.Creature) bool {
	position := c.Position()

	var closest octree.EntityID
	best := c.DetectionRadius

	for _, id := range w.index.QueryRadius(position, c.DetectionRadius, layers.Player|layers.Creatures) {
		if id == c.ID {
			continue
		}

		e, ok := w.entities.EntityByID(id)
		if !ok || !e.Layers().Has(layers.Player) {
			continue
		}

		if d := e.Position().Sub(position).Len(); d <= best {
			closest, best = id, d
		}
	}

	if closest == 0 {
		return false
	}

	switch c.Type {
	case models.Peaceful:
		if best <= c.FleeRadius {
			c.React(models.Fleeing, closest)
		} else {
			c.React(models.Alert, closest)
		}

	case models.Hostile:
		c.React(models.Aggressive, closest)
	}
	return true
}
