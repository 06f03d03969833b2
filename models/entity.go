package models

import (
	"sync"

	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/octree"
	"github.com/go-gl/mathgl/mgl32"
)

// SpatialBehavior describes how often an entity moves.
type SpatialBehavior uint8

const (
	// Never moves: trees, rocks, buildings.
	Static SpatialBehavior = iota

	// Moves frequently: creatures, player.
	Dynamic

	// Moves rarely: NPCs, some environmental objects.
	Occasional
)

func (b SpatialBehavior) String() string {
	switch b {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	case Occasional:
		return "occasional"
	default:
		return "unknown"
	}
}

// Entity is an object of the simulated world with a position, a bounding
// radius and the layers it is indexed on.
type Entity struct {
	ID       octree.EntityID
	Behavior SpatialBehavior

	mutex    sync.RWMutex
	position mgl32.Vec3
	home     mgl32.Vec3
	radius   float32
	mask     layers.Mask
	dirty    bool
}

// NewEntity returns an entity spawned at position. The spawn position is its
// home.
func NewEntity(id octree.EntityID, position mgl32.Vec3, radius float32, mask layers.Mask, behavior SpatialBehavior) *Entity {
	return &Entity{
		ID:       id,
		Behavior: behavior,
		position: position,
		home:     position,
		radius:   radius,
		mask:     mask,
		dirty:    true,
	}
}

func (e *Entity) SetPosition(v mgl32.Vec3) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.position == v {
		return
	}
	e.position = v
	e.dirty = true
}

func (e *Entity) Position() mgl32.Vec3 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.position
}

func (e *Entity) Home() mgl32.Vec3 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.home
}

func (e *Entity) SetRadius(v float32) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.radius = v
	e.dirty = true
}

func (e *Entity) Radius() float32 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.radius
}

func (e *Entity) SetLayers(v layers.Mask) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.mask = v
	e.dirty = true
}

func (e *Entity) Layers() layers.Mask {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.mask
}

// Bounds returns the box enclosing the bounding sphere of the entity.
func (e *Entity) Bounds() geometry.AABB {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return geometry.AABBFromSphere(e.position, e.radius)
}

// IsNearHome reports whether the entity is at most threshold away from its
// spawn position.
func (e *Entity) IsNearHome(threshold float32) bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.position.Sub(e.home).Len() <= threshold
}

// TakeDirty reports whether the entity changed since the last call and clears
// the flag.
func (e *Entity) TakeDirty() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	dirty := e.dirty
	e.dirty = false
	return dirty
}
