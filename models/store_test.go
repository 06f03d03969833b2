package models

import (
	"testing"

	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/octree"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestEntityStoreNewID(t *testing.T) {
	var store EntityStore
	require.NotZero(t, store.NewID())
}

func TestEntityStoreAdd(t *testing.T) {
	store := EntityStore{World: "store_add"}

	e := NewEntity(store.NewID(), mgl32.Vec3{}, 1, layers.Terrain, Static)
	store.Add(e)
	store.Add(e)
	require.Equal(t, 1, store.Len())

	res, ok := store.EntityByID(e.ID)
	require.True(t, ok)
	require.Equal(t, e, res)

	_, ok = store.CreatureByID(e.ID)
	require.False(t, ok)

	gauge := entityCount.With(prometheus.Labels{worldLabel: "store_add", behaviorLabel: "static"})
	require.Equal(t, float64(1), testutil.ToFloat64(gauge))
}

func TestEntityStoreAddCreature(t *testing.T) {
	var store EntityStore

	c := NewCreature(NewEntity(store.NewID(), mgl32.Vec3{}, 1, layers.Creatures, Dynamic), Neutral)
	store.AddCreature(c)
	require.Equal(t, 1, store.Len())

	res, ok := store.CreatureByID(c.ID)
	require.True(t, ok)
	require.Equal(t, c, res)

	e, ok := store.EntityByID(c.ID)
	require.True(t, ok)
	require.Equal(t, c.Entity, e)
}

func TestEntityStoreRemove(t *testing.T) {
	t.Run("entity is removed", func(t *testing.T) {
		store := EntityStore{World: "store_remove"}

		c := NewCreature(NewEntity(store.NewID(), mgl32.Vec3{}, 1, layers.Creatures, Dynamic), Neutral)
		store.AddCreature(c)

		e, ok := store.Remove(c.ID)
		require.True(t, ok)
		require.Equal(t, c.Entity, e)
		require.Equal(t, 0, store.Len())
		require.Empty(t, store.Creatures())

		gauge := entityCount.With(prometheus.Labels{worldLabel: "store_remove", behaviorLabel: "dynamic"})
		require.Equal(t, float64(0), testutil.ToFloat64(gauge))
	})

	t.Run("unknown entity", func(t *testing.T) {
		var store EntityStore

		e, ok := store.Remove(42)
		require.False(t, ok)
		require.Nil(t, e)
	})

	t.Run("entity id is reused", func(t *testing.T) {
		var store EntityStore

		id := store.NewID()
		store.Add(NewEntity(id, mgl32.Vec3{}, 1, layers.Creatures, Dynamic))
		store.Remove(id)
		require.Equal(t, id, store.NewID())
	})
}

func TestEntityStoreEntities(t *testing.T) {
	var store EntityStore

	for _, id := range []octree.EntityID{5, 2, 9} {
		store.Add(NewEntity(id, mgl32.Vec3{}, 1, layers.Terrain, Static))
	}
	store.AddCreature(NewCreature(NewEntity(7, mgl32.Vec3{}, 1, layers.Creatures, Dynamic), Peaceful))
	store.AddCreature(NewCreature(NewEntity(1, mgl32.Vec3{}, 1, layers.Creatures, Dynamic), Peaceful))

	var ids []octree.EntityID
	for _, e := range store.Entities() {
		ids = append(ids, e.ID)
	}
	require.Equal(t, []octree.EntityID{1, 2, 5, 7, 9}, ids)

	creatures := store.Creatures()
	require.Len(t, creatures, 2)
	require.EqualValues(t, 1, creatures[0].ID)
	require.EqualValues(t, 7, creatures[1].ID)
}
