package models

import (
	"testing"
	"time"

	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/throttle"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestNewCreature(t *testing.T) {
	c := NewCreature(NewEntity(3, mgl32.Vec3{}, 1, layers.Creatures, Dynamic), Peaceful)
	require.Equal(t, Wandering, c.State())
	require.Equal(t, float32(DefaultDetectionRadius), c.DetectionRadius)

	_, ok := c.Target()
	require.False(t, ok)

	// Detection is delayed by the phase of the creature.
	phase := throttle.Phase(throttle.DefaultInterval, 3)
	require.False(t, c.Throttle.Advance(phase-time.Millisecond))
	require.True(t, c.Throttle.Advance(time.Millisecond))
}

func TestCreatureReactAndCalm(t *testing.T) {
	c := NewCreature(NewEntity(1, mgl32.Vec3{}, 1, layers.Creatures, Dynamic), Hostile)
	require.False(t, c.Calm(time.Hour))

	c.React(Aggressive, 42)
	require.Equal(t, Aggressive, c.State())
	target, ok := c.Target()
	require.True(t, ok)
	require.EqualValues(t, 42, target)

	require.False(t, c.Calm(4*time.Second))
	c.React(Aggressive, 42)
	require.False(t, c.Calm(4*time.Second))
	require.True(t, c.Calm(time.Second))
	require.Equal(t, Wandering, c.State())

	_, ok = c.Target()
	require.False(t, ok)
}

func TestCreatureStateString(t *testing.T) {
	require.Equal(t, "idle", Idle.String())
	require.Equal(t, "wandering", Wandering.String())
	require.Equal(t, "alert", Alert.String())
	require.Equal(t, "fleeing", Fleeing.String())
	require.Equal(t, "aggressive", Aggressive.String())
	require.Equal(t, "unknown", CreatureState(42).String())
}
