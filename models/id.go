package models

import (
	"sync"
)

// A sequential id generator.
type SequentialIDGenerator[ID ~uint32] struct {
	mutex       sync.Mutex
	currentID   ID
	reusableIDs map[ID]struct{}
}

// New returns a sequential id.
func (g *SequentialIDGenerator[ID]) New() ID {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for id := range g.reusableIDs {
		delete(g.reusableIDs, id)
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Reusable ids are returned in priority
// when using New.
func (g *SequentialIDGenerator[ID]) Reuse(id ID) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.reusableIDs == nil {
		g.reusableIDs = make(map[ID]struct{})
	}

	g.reusableIDs[id] = struct{}{}
}
