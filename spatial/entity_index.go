package spatial

import (
	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/octree"
)

// record is the last known state of an indexed entity.
type record struct {
	bounds geometry.AABB
	mask   layers.Mask
	node   octree.Handle
}

// entityIndex maps entity ids to their bounds and the tree node holding
// them, so updates and removals never search the tree.
type entityIndex struct {
	records map[octree.EntityID]record
}

func newEntityIndex() entityIndex {
	return entityIndex{
		records: make(map[octree.EntityID]record),
	}
}

func (idx *entityIndex) get(id octree.EntityID) (record, bool) {
	r, ok := idx.records[id]
	return r, ok
}

func (idx *entityIndex) set(id octree.EntityID, r record) {
	idx.records[id] = r
}

func (idx *entityIndex) delete(id octree.EntityID) {
	delete(idx.records, id)
}

// relocate updates the node of an entity moved by a subdivision.
func (idx *entityIndex) relocate(id octree.EntityID, h octree.Handle) {
	r, ok := idx.records[id]
	if !ok {
		return
	}
	r.node = h
	idx.records[id] = r
}

func (idx *entityIndex) len() int {
	return len(idx.records)
}

func (idx *entityIndex) clear() {
	clear(idx.records)
}
