package spatial

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/aukilabs/octant/cache"
	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
	"github.com/aukilabs/octant/octree"
	"github.com/go-gl/mathgl/mgl32"
)

// The radius a nearest entity search starts with, as a fraction of the world
// diagonal.
const nearestStartFraction = 1.0 / 64

// QueryRadius returns the sorted ids of the entities on mask whose center is
// at most radius away from center. A radius that is not positive returns no
// entities.
func (idx *Index) QueryRadius(center mgl32.Vec3, radius float32, mask layers.Mask) []octree.EntityID {
	start := idx.now()
	if !geometry.IsFinite(center) || math.IsNaN(float64(radius)) || radius <= 0 {
		idx.recordDegenerate(cache.KindRadius.String(), start)
		return nil
	}

	key := cache.RadiusKey(center, radius, mask)
	if ids, ok := idx.cached(key); ok {
		idx.recordQuery(cache.KindRadius.String(), resultHit, start, len(ids))
		return ids
	}

	region := geometry.AABBFromSphere(center, radius)
	ids := idx.withinRadius(center, radius, mask)

	idx.store(key, ids, region)
	idx.recordQuery(cache.KindRadius.String(), idx.missResult(), start, len(ids))
	return ids
}

// QueryFrustum returns the sorted ids of the entities on mask whose center is
// inside f. A degenerate frustum returns no entities.
func (idx *Index) QueryFrustum(f geometry.Frustum, mask layers.Mask) []octree.EntityID {
	start := idx.now()
	region, ok := f.Bounds()
	if !ok {
		idx.recordDegenerate(cache.KindFrustum.String(), start)
		return nil
	}

	key := cache.FrustumKey(f, mask)
	if ids, ok := idx.cached(key); ok {
		idx.recordQuery(cache.KindFrustum.String(), resultHit, start, len(ids))
		return ids
	}

	candidates := idx.tree.QueryFrustum(f, mask, nil)

	// Candidates are entities whose bounds touch f. Like radius queries,
	// membership is decided by the entity center, which also keeps results
	// within the region used for cache invalidation.
	ids := candidates[:0]
	for _, id := range candidates {
		if r, ok := idx.entities.get(id); ok && f.ContainsPoint(r.bounds.Center()) {
			ids = append(ids, id)
		}
	}
	ids = sortIDs(ids)

	idx.store(key, ids, region)
	idx.recordQuery(cache.KindFrustum.String(), idx.missResult(), start, len(ids))
	return ids
}

// QueryRegion returns the sorted ids of the entities on mask whose bounds
// intersect the box between min and max. An inverted box returns no
// entities.
func (idx *Index) QueryRegion(min, max mgl32.Vec3, mask layers.Mask) []octree.EntityID {
	start := idx.now()
	region := geometry.NewAABB(min, max)
	if region.IsEmpty() {
		idx.recordDegenerate(cache.KindRegion.String(), start)
		return nil
	}

	key := cache.RegionKey(region, mask)
	if ids, ok := idx.cached(key); ok {
		idx.recordQuery(cache.KindRegion.String(), resultHit, start, len(ids))
		return ids
	}

	ids := sortIDs(idx.tree.QueryBounds(region, mask, nil))

	idx.store(key, ids, region)
	idx.recordQuery(cache.KindRegion.String(), idx.missResult(), start, len(ids))
	return ids
}

// FindNearestEntity returns the entity on mask whose center is the closest
// to point. Ties are broken by the lowest id. ok is false when no entity is on
// mask.
func (idx *Index) FindNearestEntity(point mgl32.Vec3, mask layers.Mask) (id octree.EntityID, ok bool) {
	start := idx.now()
	if !geometry.IsFinite(point) {
		idx.recordDegenerate(shapeNearest, start)
		return 0, false
	}

	reach := idx.reach(point)
	radius := float32(math.Max(float64(idx.bounds.Diagonal()*nearestStartFraction), 1))

	for {
		if radius > reach {
			radius = reach
		}

		var best float64
		for _, candidate := range idx.tree.QueryBounds(geometry.AABBFromSphere(point, radius), mask, nil) {
			d, inside := idx.centerDistance(candidate, point, radius)
			if !inside {
				continue
			}
			if !ok || d < best || (d == best && candidate < id) {
				id, best, ok = candidate, d, true
			}
		}

		if ok || radius >= reach {
			break
		}
		radius *= 2
	}

	returned := 0
	if ok {
		returned = 1
	}
	idx.recordQuery(shapeNearest, resultUncached, start, returned)
	return id, ok
}

// FindNearestEntities returns up to count entities on mask whose center is at
// most maxDistance away from point, closest first. A maxDistance that is not
// positive searches the whole world.
func (idx *Index) FindNearestEntities(point mgl32.Vec3, count int, maxDistance float32, mask layers.Mask) []octree.EntityID {
	start := idx.now()
	if !geometry.IsFinite(point) || count <= 0 || math.IsNaN(float64(maxDistance)) {
		idx.recordDegenerate(shapeNearest, start)
		return nil
	}
	if maxDistance <= 0 {
		maxDistance = idx.reach(point)
	}

	type candidate struct {
		id       octree.EntityID
		distance float64
	}

	var candidates []candidate
	for _, id := range idx.tree.QueryBounds(geometry.AABBFromSphere(point, maxDistance), mask, nil) {
		if d, inside := idx.centerDistance(id, point, maxDistance); inside {
			candidates = append(candidates, candidate{id: id, distance: d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) > count {
		candidates = candidates[:count]
	}

	ids := make([]octree.EntityID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}

	idx.recordQuery(shapeNearest, resultUncached, start, len(ids))
	return ids
}

// FindCreaturesInRadius returns the creatures whose center is at most radius
// away from center.
func (idx *Index) FindCreaturesInRadius(center mgl32.Vec3, radius float32) []octree.EntityID {
	return idx.QueryRadius(center, radius, layers.Creatures)
}

// FindVisibleCreatures returns the creatures at least partially inside f.
func (idx *Index) FindVisibleCreatures(f geometry.Frustum) []octree.EntityID {
	return idx.QueryFrustum(f, layers.Creatures)
}

func (idx *Index) withinRadius(center mgl32.Vec3, radius float32, mask layers.Mask) []octree.EntityID {
	candidates := idx.tree.QueryBounds(geometry.AABBFromSphere(center, radius), mask, nil)

	ids := candidates[:0]
	for _, id := range candidates {
		if _, inside := idx.centerDistance(id, center, radius); inside {
			ids = append(ids, id)
		}
	}
	return sortIDs(ids)
}

// centerDistance returns the squared distance between the center of an
// entity and p, and whether it is within radius. Distances are computed in
// float64 so that an entity is never reported past radius due to rounding.
func (idx *Index) centerDistance(id octree.EntityID, p mgl32.Vec3, radius float32) (float64, bool) {
	r, ok := idx.entities.get(id)
	if !ok {
		return 0, false
	}

	c := r.bounds.Center()
	var d float64
	for axis := 0; axis < 3; axis++ {
		delta := float64(c[axis]) - float64(p[axis])
		d += delta * delta
	}
	return d, d <= float64(radius)*float64(radius)
}

// reach returns the distance from p to the farthest corner of the world,
// rounded up. Every entity center is within it.
func (idx *Index) reach(p mgl32.Vec3) float32 {
	var sum float64
	for axis := 0; axis < 3; axis++ {
		d := math.Max(
			math.Abs(float64(p[axis])-float64(idx.bounds.Min[axis])),
			math.Abs(float64(p[axis])-float64(idx.bounds.Max[axis])),
		)
		sum += d * d
	}
	return float32(math.Sqrt(sum)*(1+1e-6) + 1e-4)
}

func (idx *Index) cached(key cache.Key) ([]octree.EntityID, bool) {
	if idx.cacheDisabled {
		return nil, false
	}
	return idx.cache.TryGet(key)
}

func (idx *Index) store(key cache.Key, ids []octree.EntityID, touched geometry.AABB) {
	if idx.cacheDisabled {
		return
	}
	idx.cache.Put(key, ids, touched)
}

func (idx *Index) missResult() string {
	if idx.cacheDisabled {
		return resultUncached
	}
	return resultMiss
}

func (idx *Index) recordQuery(shape string, result string, start time.Time, returned int) {
	d := idx.now().Sub(start)
	idx.stats.record(d, returned)
	instrumentQuery(idx.world.Name, shape, result, d)
}

func (idx *Index) recordDegenerate(shape string, start time.Time) {
	idx.stats.recordDegenerate()
	instrumentQuery(idx.world.Name, shape, resultDegenerate, idx.now().Sub(start))
}

func sortIDs(ids []octree.EntityID) []octree.EntityID {
	slices.Sort(ids)
	return slices.Compact(ids)
}
