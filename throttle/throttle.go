// Package throttle limits how often a single entity issues spatial queries.
package throttle

import (
	"time"
)

const (
	// DefaultInterval is the detection interval used by creature AI.
	DefaultInterval = 200 * time.Millisecond

	// Slots is the number of phases staggered throttles are spread over.
	Slots = 8
)

// Throttle allows an action at most once per interval. It is driven either
// by frame deltas with Advance or by timestamps with Allow. A Throttle is not
// safe for concurrent use; it lives with the entity that owns it.
type Throttle struct {
	interval time.Duration
	elapsed  time.Duration

	lastTick  time.Time
	lastQuery time.Time
}

// New returns a throttle that allows its first action immediately.
func New(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		elapsed:  interval,
	}
}

// NewStaggered returns a throttle whose first action is delayed by a phase
// derived from id, so that entities created together do not all query on the
// same frame.
func NewStaggered(interval time.Duration, id uint32) *Throttle {
	t := New(interval)
	t.elapsed = interval - Phase(interval, id)
	return t
}

// Phase returns the delay applied to the first action of a staggered
// throttle.
func Phase(interval time.Duration, id uint32) time.Duration {
	return interval * time.Duration(id%Slots) / Slots
}

func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// LastQuery returns the time of the last action allowed by Allow.
func (t *Throttle) LastQuery() time.Time {
	return t.lastQuery
}

// Ready reports whether the next call to Advance(0) would allow an action.
func (t *Throttle) Ready() bool {
	return t.elapsed >= t.interval
}

// Advance moves the throttle forward by dt and reports whether an action is
// allowed. The elapsed time is reset when it is.
func (t *Throttle) Advance(dt time.Duration) bool {
	if dt > 0 {
		t.elapsed += dt
	}
	if t.elapsed < t.interval {
		return false
	}

	t.elapsed = 0
	return true
}

// Allow reports whether an action is allowed at now. The first call is
// measured from now itself.
func (t *Throttle) Allow(now time.Time) bool {
	var dt time.Duration
	if !t.lastTick.IsZero() {
		dt = now.Sub(t.lastTick)
	}
	t.lastTick = now

	if !t.Advance(dt) {
		return false
	}
	t.lastQuery = now
	return true
}

// Reset makes the next action allowed immediately.
func (t *Throttle) Reset() {
	t.elapsed = t.interval
}
