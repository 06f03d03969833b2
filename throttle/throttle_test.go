package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottleAdvance(t *testing.T) {
	th := New(200 * time.Millisecond)
	require.True(t, th.Ready())

	require.True(t, th.Advance(0))
	require.False(t, th.Advance(100*time.Millisecond))
	require.False(t, th.Advance(99*time.Millisecond))
	require.True(t, th.Advance(time.Millisecond))
	require.False(t, th.Ready())

	th.Reset()
	require.True(t, th.Advance(0))
}

func TestThrottleAllow(t *testing.T) {
	th := New(100 * time.Millisecond)
	start := time.Unix(1000, 0)

	require.True(t, th.Allow(start))
	require.Equal(t, start, th.LastQuery())

	require.False(t, th.Allow(start.Add(50*time.Millisecond)))
	require.True(t, th.Allow(start.Add(100*time.Millisecond)))
	require.Equal(t, start.Add(100*time.Millisecond), th.LastQuery())

	// Time going backward never allows an extra action.
	require.False(t, th.Allow(start))
}

func TestThrottleStaggered(t *testing.T) {
	interval := 80 * time.Millisecond
	require.Equal(t, time.Duration(0), Phase(interval, 0))
	require.Equal(t, 10*time.Millisecond, Phase(interval, 1))
	require.Equal(t, Phase(interval, 3), Phase(interval, 3+Slots))

	first := make(map[time.Duration]int)
	for id := uint32(0); id < Slots; id++ {
		th := NewStaggered(interval, id)

		var at time.Duration
		allowed := th.Advance(0)
		for !allowed {
			at += time.Millisecond
			allowed = th.Advance(time.Millisecond)
		}
		first[at]++
	}

	// Every phase fires on its own frame.
	require.Len(t, first, Slots)
}
