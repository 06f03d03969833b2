package models

import (
	"cmp"
	"slices"
	"sync"

	"github.com/aukilabs/octant/octree"
)

// EntityStore holds the entities of a simulated world.
type EntityStore struct {
	// The world name used to label metrics.
	World string

	initOnce  sync.Once
	mutex     sync.RWMutex
	entities  map[octree.EntityID]*Entity
	creatures map[octree.EntityID]*Creature
	ids       SequentialIDGenerator[octree.EntityID]
}

func (s *EntityStore) init() {
	s.entities = make(map[octree.EntityID]*Entity)
	s.creatures = make(map[octree.EntityID]*Creature)
}

func (s *EntityStore) NewID() octree.EntityID {
	return s.ids.New()
}

func (s *EntityStore) Add(e *Entity) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.entities[e.ID]; !ok {
		instrumentEntityGauge(s.World, e.Behavior, 1)
	}
	s.entities[e.ID] = e
}

func (s *EntityStore) AddCreature(c *Creature) {
	s.Add(c.Entity)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.creatures[c.ID] = c
}

// Remove removes the entity and makes its id reusable.
func (s *EntityStore) Remove(id octree.EntityID) (*Entity, bool) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, false
	}

	delete(s.entities, id)
	delete(s.creatures, id)
	s.ids.Reuse(id)

	instrumentEntityGauge(s.World, e.Behavior, -1)
	return e, true
}

func (s *EntityStore) EntityByID(id octree.EntityID) (*Entity, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.entities[id]
	return e, ok
}

func (s *EntityStore) CreatureByID(id octree.EntityID) (*Creature, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	c, ok := s.creatures[id]
	return c, ok
}

// Entities returns the entities sorted by id.
func (s *EntityStore) Entities() []*Entity {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	slices.SortFunc(entities, func(a, b *Entity) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return entities
}

// Creatures returns the creatures sorted by id.
func (s *EntityStore) Creatures() []*Creature {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	creatures := make([]*Creature, 0, len(s.creatures))
	for _, c := range s.creatures {
		creatures = append(creatures, c)
	}
	slices.SortFunc(creatures, func(a, b *Creature) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return creatures
}

func (s *EntityStore) Len() int {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.entities)
}
