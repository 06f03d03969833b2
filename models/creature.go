package models

import (
	"sync"
	"time"

	"github.com/aukilabs/octant/octree"
	"github.com/aukilabs/octant/throttle"
)

type CreatureState uint8

const (
	Idle CreatureState = iota
	Wandering
	Alert
	Fleeing
	Aggressive
)

func (s CreatureState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Wandering:
		return "wandering"
	case Alert:
		return "alert"
	case Fleeing:
		return "fleeing"
	case Aggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// CreatureType selects how a creature reacts to a detected player.
type CreatureType uint8

const (
	// Runs away from the player.
	Peaceful CreatureType = iota

	// Ignores the player.
	Neutral

	// Approaches the player.
	Hostile
)

const (
	DefaultDetectionRadius = 15
	DefaultFleeRadius      = 8
	DefaultAlertDuration   = 5 * time.Second

	DefaultWanderSpeed = 2
	DefaultAlertSpeed  = 4
	DefaultFleeSpeed   = 8
)

// Creature is an entity driven by the detection AI.
type Creature struct {
	*Entity
	Type CreatureType

	DetectionRadius float32
	FleeRadius      float32
	AlertDuration   time.Duration

	// Limits how often the creature looks around. Only the goroutine
	// updating the creature uses it.
	Throttle *throttle.Throttle

	mutex      sync.RWMutex
	state      CreatureState
	target     octree.EntityID
	alertTimer time.Duration
}

// NewCreature wraps e with the default detection parameters. Creature
// detection is staggered by id.
func NewCreature(e *Entity, t CreatureType) *Creature {
	return &Creature{
		Entity:          e,
		Type:            t,
		DetectionRadius: DefaultDetectionRadius,
		FleeRadius:      DefaultFleeRadius,
		AlertDuration:   DefaultAlertDuration,
		Throttle:        throttle.NewStaggered(throttle.DefaultInterval, uint32(e.ID)),
		state:           Wandering,
	}
}

func (c *Creature) State() CreatureState {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.state
}

// Target returns the entity the creature reacts to.
func (c *Creature) Target() (octree.EntityID, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.target, c.target != 0
}

// React sets the state of the creature toward a detected target and restarts
// its alert timer.
func (c *Creature) React(state CreatureState, target octree.EntityID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.state = state
	c.target = target
	c.alertTimer = 0
}

// Calm advances the alert timer by dt. A creature that stayed alert for its
// alert duration goes back to wandering. It reports whether the state
// changed.
func (c *Creature) Calm(dt time.Duration) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state == Idle || c.state == Wandering {
		return false
	}

	c.alertTimer += dt
	if c.alertTimer < c.AlertDuration {
		return false
	}

	c.state = Wandering
	c.target = 0
	c.alertTimer = 0
	return true
}
