package sim

import (
	"context"
	"testing"
	"time"

	"github.com/aukilabs/octant/config"
	"github.com/aukilabs/octant/featureflag"
	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/models"
	"github.com/aukilabs/octant/spatial"
	"github.com/aukilabs/octant/throttle"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestWorld(t *testing.T, name string) *World {
	w := config.DefaultWorld()
	w.Name = name

	idx, err := spatial.New(spatial.Options{
		World:        w,
		FeatureFlags: featureflag.New([]string{string(featureflag.FlagDebugAssertions)}),
	})
	require.NoError(t, err)

	return NewWorld(Options{
		Index:       idx,
		Seed:        1,
		Parallelism: 4,
	})
}

func TestWorldStepIndexesEntities(t *testing.T) {
	w := newTestWorld(t, "sim_index")
	w.SpawnCreatures(20, geometry.NewAABB(mgl32.Vec3{-40, -40, -40}, mgl32.Vec3{40, 40, 40}), models.Neutral, models.Static)
	w.Spawn(mgl32.Vec3{5, 5, 5}, 3, layers.Buildings, models.Static)

	f, err := w.Step(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, uint64(1), f.Number)
	require.Equal(t, 21, f.Updated)
	require.Equal(t, 21, w.Index().Len())
	require.Len(t, w.Index().QueryRadius(mgl32.Vec3{5, 5, 5}, 0.5, layers.Buildings), 1)

	f, err = w.Step(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 0, f.Updated)

	snapshot := w.Snapshot()
	require.Equal(t, f, snapshot.Frame)
	require.Equal(t, 21, snapshot.Entities)
	require.Equal(t, 21, snapshot.Index.Entities)
	require.NoError(t, w.Index().CheckInvariants())
}

func TestWorldSpawnEntities(t *testing.T) {
	w := newTestWorld(t, "sim_spawn_entities")
	region := geometry.NewAABB(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{10, 1, 10})

	items := w.SpawnEntities(12, region, 0.5, layers.Items, models.Occasional)
	require.Len(t, items, 12)

	_, err := w.Step(context.Background(), time.Millisecond)
	require.NoError(t, err)

	for _, e := range items {
		require.True(t, region.ContainsPoint(e.Position()))
		require.Equal(t, models.Occasional, e.Behavior)
	}
	require.Len(t, w.Index().QueryRegion(region.Min, region.Max, layers.Items), 12)
	require.Empty(t, w.Index().QueryRegion(region.Min, region.Max, layers.Creatures))
}

func TestWorldSpawnClampsPosition(t *testing.T) {
	w := newTestWorld(t, "sim_spawn_clamp")
	e := w.Spawn(mgl32.Vec3{500, 0, 0}, 1, layers.Items, models.Static)
	require.Equal(t, mgl32.Vec3{50, 0, 0}, e.Position())
}

func TestWorldPeacefulCreatureFlees(t *testing.T) {
	w := newTestWorld(t, "sim_flee")
	player := w.SpawnPlayer(mgl32.Vec3{0, 0, 0})
	c := w.SpawnCreature(mgl32.Vec3{3, 0, 0}, 0.5, models.Peaceful, models.Dynamic)

	f, err := w.Step(context.Background(), throttle.DefaultInterval)
	require.NoError(t, err)
	require.Equal(t, 1, f.Detections)
	require.Equal(t, 1, f.Reactions)
	require.Equal(t, models.Fleeing, c.State())

	target, ok := c.Target()
	require.True(t, ok)
	require.Equal(t, player.ID, target)

	before := c.Position().Sub(player.Position()).Len()
	_, err = w.Step(context.Background(), throttle.DefaultInterval)
	require.NoError(t, err)
	require.Greater(t, c.Position().Sub(player.Position()).Len(), before)
}

func TestWorldPeacefulCreatureIsAlerted(t *testing.T) {
	w := newTestWorld(t, "sim_alert")
	w.SpawnPlayer(mgl32.Vec3{0, 0, 0})
	c := w.SpawnCreature(mgl32.Vec3{12, 0, 0}, 0.5, models.Peaceful, models.Static)

	_, err := w.Step(context.Background(), throttle.DefaultInterval)
	require.NoError(t, err)
	require.Equal(t, models.Alert, c.State())
	require.Equal(t, mgl32.Vec3{12, 0, 0}, c.Position())
}

func TestWorldHostileCreatureApproaches(t *testing.T) {
	w := newTestWorld(t, "sim_hostile")
	player := w.SpawnPlayer(mgl32.Vec3{0, 0, 0})
	c := w.SpawnCreature(mgl32.Vec3{10, 0, 0}, 0.5, models.Hostile, models.Dynamic)

	_, err := w.Step(context.Background(), throttle.DefaultInterval)
	require.NoError(t, err)
	require.Equal(t, models.Aggressive, c.State())

	before := c.Position().Sub(player.Position()).Len()
	_, err = w.Step(context.Background(), throttle.DefaultInterval)
	require.NoError(t, err)
	require.Less(t, c.Position().Sub(player.Position()).Len(), before)
}

func TestWorldNeutralCreatureIgnoresPlayer(t *testing.T) {
	w := newTestWorld(t, "sim_neutral")
	w.SpawnPlayer(mgl32.Vec3{0, 0, 0})
	c := w.SpawnCreature(mgl32.Vec3{3, 0, 0}, 0.5, models.Neutral, models.Static)

	f, err := w.Step(context.Background(), throttle.DefaultInterval)
	require.NoError(t, err)
	require.Equal(t, 1, f.Reactions)
	require.Equal(t, models.Wandering, c.State())
}

func TestWorldCreatureOutOfRange(t *testing.T) {
	w := newTestWorld(t, "sim_out_of_range")
	w.SpawnPlayer(mgl32.Vec3{0, 0, 0})
	c := w.SpawnCreature(mgl32.Vec3{30, 0, 0}, 0.5, models.Hostile, models.Static)

	f, err := w.Step(context.Background(), throttle.DefaultInterval)
	require.NoError(t, err)
	require.Equal(t, 1, f.Detections)
	require.Equal(t, 0, f.Reactions)
	require.Equal(t, models.Wandering, c.State())
}

func TestWorldThrottlesDetection(t *testing.T) {
	w := newTestWorld(t, "sim_throttle")
	w.SpawnCreatures(throttle.Slots, geometry.NewAABB(mgl32.Vec3{-10, 0, -10}, mgl32.Vec3{10, 0, 10}), models.Neutral, models.Static)

	// Creatures are spread over the slots of the detection interval.
	step := throttle.DefaultInterval / throttle.Slots
	detections := 0
	for i := 0; i < throttle.Slots; i++ {
		f, err := w.Step(context.Background(), step)
		require.NoError(t, err)
		require.Equal(t, throttle.Slots, f.Detections+f.Throttled)
		detections += f.Detections
	}
	require.Equal(t, throttle.Slots, detections)

	throttled := testutil.ToFloat64(throttledQueryCount.With(prometheus.Labels{worldLabel: "sim_throttle"}))
	require.Equal(t, float64(throttle.Slots*throttle.Slots-throttle.Slots), throttled)
}

func TestWorldCameraCulling(t *testing.T) {
	w := newTestWorld(t, "sim_camera")
	w.SpawnPlayer(mgl32.Vec3{0, 0, 0})
	w.SpawnCreature(mgl32.Vec3{2, 0, -2}, 0.5, models.Neutral, models.Static)
	w.SpawnCreature(mgl32.Vec3{-1, 0, -5}, 0.5, models.Neutral, models.Static)
	w.SpawnCreature(mgl32.Vec3{0, 0, 45}, 0.5, models.Neutral, models.Static)

	f, err := w.Step(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 2, f.Visible)
}

func TestWorldOccasionalEntities(t *testing.T) {
	idx, err := spatial.New(spatial.Options{World: config.DefaultWorld()})
	require.NoError(t, err)

	w := NewWorld(Options{
		Index:            idx,
		Seed:             3,
		OccasionalPeriod: 2,
	})
	npc := w.Spawn(mgl32.Vec3{0, 0, 0}, 1, layers.NPCs, models.Occasional)
	rock := w.Spawn(mgl32.Vec3{5, 0, 0}, 1, layers.Terrain, models.Static)

	f, err := w.Step(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 2, f.Updated)
	require.Equal(t, mgl32.Vec3{0, 0, 0}, npc.Position())

	f, err = w.Step(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, f.Updated)
	require.NotEqual(t, mgl32.Vec3{0, 0, 0}, npc.Position())
	require.Equal(t, mgl32.Vec3{5, 0, 0}, rock.Position())
}

func TestWorldPlayerOrbit(t *testing.T) {
	idx, err := spatial.New(spatial.Options{World: config.DefaultWorld()})
	require.NoError(t, err)

	w := NewWorld(Options{
		Index:       idx,
		PlayerOrbit: 20,
	})
	player := w.SpawnPlayer(mgl32.Vec3{0, 0, 0})

	for i := 0; i < 3; i++ {
		_, err := w.Step(context.Background(), time.Second)
		require.NoError(t, err)
		require.InDelta(t, 20, player.Position().Len(), 1e-3)
	}

	bounds, _, ok := idx.Entity(player.ID)
	require.True(t, ok)
	require.InDelta(t, 0, bounds.Center().Sub(player.Position()).Len(), 1e-3)
}

func TestWorldDespawn(t *testing.T) {
	w := newTestWorld(t, "sim_despawn")
	player := w.SpawnPlayer(mgl32.Vec3{0, 0, 0})
	c := w.SpawnCreature(mgl32.Vec3{3, 0, 0}, 0.5, models.Neutral, models.Static)

	_, err := w.Step(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 2, w.Index().Len())

	require.True(t, w.Despawn(c.ID))
	require.True(t, w.Despawn(player.ID))
	require.False(t, w.Despawn(c.ID))
	require.Nil(t, w.Player())
	require.Equal(t, 0, w.Index().Len())
	require.Equal(t, 0, w.Entities().Len())
}

func TestWorldStepCanceled(t *testing.T) {
	w := newTestWorld(t, "sim_canceled")
	w.SpawnCreature(mgl32.Vec3{3, 0, 0}, 0.5, models.Neutral, models.Static)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Step(ctx, time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorldRun(t *testing.T) {
	w := newTestWorld(t, "sim_run")
	w.SpawnPlayer(mgl32.Vec3{0, 0, 0})
	w.SpawnCreatures(10, geometry.NewAABB(mgl32.Vec3{-20, 0, -20}, mgl32.Vec3{20, 0, 20}), models.Peaceful, models.Dynamic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := NewFrames(time.Millisecond)
	defer frames.Close()

	done := make(chan struct{})
	go func() {
		w.Run(ctx, frames)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return w.Snapshot().Frame.Number >= 3
	}, time.Second*5, time.Millisecond)

	cancel()
	<-done
	require.Equal(t, 11, w.Snapshot().Entities)
}
