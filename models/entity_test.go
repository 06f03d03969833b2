package models

import (
	"testing"

	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestEntityPosition(t *testing.T) {
	e := NewEntity(1, mgl32.Vec3{1, 2, 3}, 1, layers.Creatures, Dynamic)
	require.True(t, e.TakeDirty())
	require.False(t, e.TakeDirty())

	e.SetPosition(mgl32.Vec3{1, 2, 3})
	require.False(t, e.TakeDirty())

	e.SetPosition(mgl32.Vec3{4, 5, 6})
	require.True(t, e.TakeDirty())
	require.Equal(t, mgl32.Vec3{4, 5, 6}, e.Position())
	require.Equal(t, mgl32.Vec3{1, 2, 3}, e.Home())
}

func TestEntityBounds(t *testing.T) {
	e := NewEntity(1, mgl32.Vec3{1, 2, 3}, 0.5, layers.Creatures, Dynamic)
	require.Equal(t, geometry.NewAABB(mgl32.Vec3{0.5, 1.5, 2.5}, mgl32.Vec3{1.5, 2.5, 3.5}), e.Bounds())

	e.TakeDirty()
	e.SetRadius(1)
	require.True(t, e.TakeDirty())
	require.Equal(t, float32(1), e.Radius())
	require.Equal(t, geometry.NewAABB(mgl32.Vec3{0, 1, 2}, mgl32.Vec3{2, 3, 4}), e.Bounds())
}

func TestEntityLayers(t *testing.T) {
	e := NewEntity(1, mgl32.Vec3{}, 1, layers.Creatures, Dynamic)
	e.TakeDirty()

	e.SetLayers(layers.NPCs)
	require.True(t, e.TakeDirty())
	require.Equal(t, layers.NPCs, e.Layers())
}

func TestEntityIsNearHome(t *testing.T) {
	e := NewEntity(1, mgl32.Vec3{10, 0, 0}, 1, layers.Creatures, Dynamic)
	require.True(t, e.IsNearHome(5))

	e.SetPosition(mgl32.Vec3{14, 0, 0})
	require.True(t, e.IsNearHome(5))

	e.SetPosition(mgl32.Vec3{16, 0, 0})
	require.False(t, e.IsNearHome(5))
}

func TestSpatialBehaviorString(t *testing.T) {
	require.Equal(t, "static", Static.String())
	require.Equal(t, "dynamic", Dynamic.String())
	require.Equal(t, "occasional", Occasional.String())
	require.Equal(t, "unknown", SpatialBehavior(42).String())
}
