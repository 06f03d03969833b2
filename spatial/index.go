// Package spatial indexes the bounds of moving entities and answers radius,
// frustum and region queries against them.
//
// An Index has a single writer: UpdateEntity, UpdateEntityLayers,
// RemoveEntity and Clear must not run concurrently with each other nor with
// queries. Once the writes of a frame are done, any number of goroutines can
// query the index at the same time.
package spatial

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octant/cache"
	"github.com/aukilabs/octant/config"
	"github.com/aukilabs/octant/featureflag"
	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/octree"
	"github.com/google/uuid"
)

type Options struct {
	World        config.World
	FeatureFlags featureflag.FeatureFlag

	// Returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Index is the entry point to the spatial partitioning of a world. It owns
// the octree, the entity index and the query cache.
type Index struct {
	ID string

	world  config.World
	bounds geometry.AABB
	now    func() time.Time

	debugAssertions bool
	cacheDisabled   bool
	inPlaceDisabled bool

	tree     *octree.Tree
	entities entityIndex
	cache    *cache.QueryCache
	stats    queryStats
}

// New creates an index for the given world.
func New(opts Options) (*Index, error) {
	if err := opts.World.Validate(); err != nil {
		return nil, errors.New("creating spatial index failed").Wrap(err)
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	idx := &Index{
		ID:              uuid.New().String(),
		world:           opts.World,
		bounds:          opts.World.Bounds(),
		now:             opts.Now,
		debugAssertions: opts.FeatureFlags.IsSet(featureflag.FlagDebugAssertions),
		cacheDisabled:   opts.FeatureFlags.IsSet(featureflag.FlagDisableQueryCache),
		inPlaceDisabled: opts.FeatureFlags.IsSet(featureflag.FlagDisableInPlaceUpdate),
		entities:        newEntityIndex(),
		cache: cache.New(cache.Options{
			MaxEntries: opts.World.CacheMaxEntries,
			TTL:        opts.World.CacheTTL,
			Now:        opts.Now,
		}),
	}

	idx.tree = octree.New(idx.bounds, octree.Options{
		MaxEntitiesPerNode: opts.World.MaxEntitiesPerNode,
		MaxDepth:           opts.World.MaxDepth,
		MinNodeSize:        opts.World.MinNodeSize,
		OnRelocate:         idx.entities.relocate,
		OnCapacityExceeded: idx.onCapacityExceeded,
	})

	idx.logger().
		WithTag("min", idx.world.Min).
		WithTag("max", idx.world.Max).
		WithTag("max_depth", idx.world.MaxDepth).
		WithTag("max_entities_per_node", idx.world.MaxEntitiesPerNode).
		Info("spatial index created")

	instrumentTreeSize(idx.world.Name, 0, idx.tree.NodeCount())
	return idx, nil
}

func (idx *Index) logger() logs.Entry {
	return logs.WithTag("index_id", idx.ID).
		WithTag("world", idx.world.Name)
}

// World returns the configuration the index was created with.
func (idx *Index) World() config.World {
	return idx.world
}

func (idx *Index) Bounds() geometry.AABB {
	return idx.bounds
}

// Len returns the number of indexed entities.
func (idx *Index) Len() int {
	return idx.entities.len()
}

// Entity returns the indexed bounds and mask of an entity. Bounds are
// returned as stored, after clamping.
func (idx *Index) Entity(id octree.EntityID) (geometry.AABB, layers.Mask, bool) {
	r, ok := idx.entities.get(id)
	return r.bounds, r.mask, ok
}

// UpdateEntity inserts the entity or moves it to its new bounds. Bounds whose
// center is outside of the world are moved inside. Cached queries touching
// the old or new bounds are invalidated.
func (idx *Index) UpdateEntity(id octree.EntityID, bounds geometry.AABB, mask layers.Mask) {
	if bounds.IsEmpty() {
		idx.logger().
			WithTag("entity_id", id).
			WithTag("min", bounds.Min).
			WithTag("max", bounds.Max).
			Debug("ignoring entity update with empty bounds")
		return
	}

	bounds = idx.bounds.ClampBox(bounds)
	entry := octree.Entry{ID: id, Bounds: bounds, Mask: mask}

	r, ok := idx.entities.get(id)
	if !ok {
		h := idx.tree.Insert(entry)
		idx.entities.set(id, record{bounds: bounds, mask: mask, node: h})
		idx.invalidate(bounds)
		idx.afterWrite()
		return
	}

	if r.bounds == bounds && r.mask == mask {
		return
	}

	if !idx.inPlaceDisabled && idx.tree.UpdateInPlace(r.node, entry) {
		idx.entities.set(id, record{bounds: bounds, mask: mask, node: r.node})
	} else {
		if !idx.tree.Remove(id, r.node) {
			idx.fail(errors.New("indexed entity not found in its node").
				WithType(octree.ErrTypeCorrupted).
				WithTag("entity_id", id).
				WithTag("node", r.node))
		}
		h := idx.tree.Insert(entry)
		idx.entities.set(id, record{bounds: bounds, mask: mask, node: h})
	}

	idx.invalidate(r.bounds.Union(bounds))
	idx.afterWrite()
}

// UpdateEntityLayers changes the mask of an indexed entity. It returns false
// when the entity is unknown.
func (idx *Index) UpdateEntityLayers(id octree.EntityID, mask layers.Mask) bool {
	r, ok := idx.entities.get(id)
	if !ok {
		idx.logger().
			WithTag("entity_id", id).
			Debug("layer update of unknown entity")
		return false
	}

	idx.UpdateEntity(id, r.bounds, mask)
	return true
}

// RemoveEntity removes the entity from the index. Removing an unknown entity
// does nothing.
func (idx *Index) RemoveEntity(id octree.EntityID) {
	r, ok := idx.entities.get(id)
	if !ok {
		idx.logger().
			WithTag("entity_id", id).
			Debug("removal of unknown entity")
		return
	}

	if !idx.tree.Remove(id, r.node) {
		idx.fail(errors.New("indexed entity not found in its node").
			WithType(octree.ErrTypeCorrupted).
			WithTag("entity_id", id).
			WithTag("node", r.node))
	}
	idx.entities.delete(id)

	idx.invalidate(r.bounds)
	idx.afterWrite()
}

// Clear removes every entity, cached query and statistic. It is meant for
// world reloads.
func (idx *Index) Clear() {
	idx.tree.Clear()
	idx.entities.clear()
	idx.cache.Clear()
	idx.cache.ResetStats()
	idx.stats.reset()

	instrumentTreeSize(idx.world.Name, 0, idx.tree.NodeCount())
	idx.logger().Info("spatial index cleared")
}

// ClearCache drops every cached query.
func (idx *Index) ClearCache() {
	idx.cache.Clear()
}

// CleanupCache drops expired cached queries and evicts the least recently
// used ones over the cache size limit.
func (idx *Index) CleanupCache() {
	idx.cache.Cleanup()
}

// Stats returns a snapshot of the tree, query and cache statistics.
func (idx *Index) Stats() Stats {
	return Stats{
		ID:       idx.ID,
		World:    idx.world.Name,
		Entities: idx.entities.len(),
		Tree:     idx.tree.Stats(),
		Queries:  idx.stats.snapshot(),
		Cache:    idx.cache.Stats(),
	}
}

func (idx *Index) DebugInfo() octree.DebugInfo {
	return idx.tree.DebugInfo()
}

// CheckInvariants verifies the tree structure and that every entity is held
// by the node recorded in the entity index.
func (idx *Index) CheckInvariants() error {
	if err := idx.tree.CheckInvariants(); err != nil {
		return err
	}

	if idx.tree.Len() != idx.entities.len() {
		return errors.New("entity index and tree sizes differ").
			WithType(octree.ErrTypeCorrupted).
			WithTag("tree", idx.tree.Len()).
			WithTag("entities", idx.entities.len())
	}

	var err error
	idx.tree.Each(func(h octree.Handle, e octree.Entry) {
		if err != nil {
			return
		}

		r, ok := idx.entities.get(e.ID)
		switch {
		case !ok:
			err = errors.New("tree entry missing from entity index").
				WithType(octree.ErrTypeCorrupted).
				WithTag("entity_id", e.ID)

		case r.node != h || r.bounds != e.Bounds || r.mask != e.Mask:
			err = errors.New("entity index out of sync with tree").
				WithType(octree.ErrTypeCorrupted).
				WithTag("entity_id", e.ID).
				WithTag("indexed_node", r.node).
				WithTag("node", h)
		}
	})
	return err
}

func (idx *Index) invalidate(region geometry.AABB) {
	if idx.cacheDisabled {
		return
	}
	instrumentCacheInvalidations(idx.world.Name, idx.cache.InvalidateOverlapping(region))
}

func (idx *Index) afterWrite() {
	instrumentTreeSize(idx.world.Name, idx.entities.len(), idx.tree.NodeCount())

	if idx.debugAssertions {
		if err := idx.CheckInvariants(); err != nil {
			idx.fail(err)
		}
	}
}

func (idx *Index) onCapacityExceeded(h octree.Handle, depth int, count int) {
	instrumentCapacityExceeded(idx.world.Name)
	idx.logger().
		WithTag("node", h).
		WithTag("depth", depth).
		WithTag("count", count).
		Debug("node capacity exceeded")
}

// fail reports a broken index. It panics when debug assertions are enabled.
func (idx *Index) fail(err error) {
	if idx.debugAssertions {
		panic(err)
	}
	idx.logger().Error(err)
}
