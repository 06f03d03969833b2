package octree

import (
	"github.com/aukilabs/octant/geometry"
	"github.com/aukilabs/octant/layers"
)

// Octree
//
// An octree stored in an arena of nodes addressed by integer handles.
// The particularities are:
//   - a node is subdivided once it holds MaxEntitiesPerNode entities and a new
//     one has to be added, unless it sits at MaxDepth or its octants would be
//     smaller than MinNodeSize. Overflowing leaves keep every entity.
//   - the 8 children of a node are allocated next to each other, so a node only
//     stores the handle of its first child.
//   - an entity goes to the first octant, in index order, that fully contains
//     its bounds. Entities straddling octants stay in the parent.
//   - nodes are never merged back after removals.

const (
	DefaultMaxEntitiesPerNode = 8
	DefaultMaxDepth           = 10
)

// EntityID is the opaque identifier of an indexed entity.
type EntityID uint32

// Handle identifies a node of a tree. Handles stay valid until Clear is
// called since nodes are never freed.
type Handle int32

const (
	NilHandle  Handle = -1
	RootHandle Handle = 0
)

// Entry is the copy of an entity stored in a node.
type Entry struct {
	ID     EntityID
	Bounds geometry.AABB
	Mask   layers.Mask
}

type Options struct {
	MaxEntitiesPerNode int
	MaxDepth           int

	// The minimum edge length of a node. Nodes whose octants would be smaller
	// are not subdivided. Zero disables the limit.
	MinNodeSize float32

	// OnRelocate is called for every entry moved into a child node by a
	// subdivision.
	OnRelocate func(id EntityID, h Handle)

	// OnCapacityExceeded is called when an entry is added to a leaf that is
	// full and cannot be subdivided.
	OnCapacityExceeded func(h Handle, depth int, count int)
}

type node struct {
	bounds     geometry.AABB
	depth      int
	firstChild Handle
	entries    []Entry
}

func (n *node) isLeaf() bool {
	return n.firstChild == NilHandle
}

type Tree struct {
	opts  Options
	nodes []node
	count int
}

// New creates a tree covering the given bounds.
func New(bounds geometry.AABB, opts Options) *Tree {
	if opts.MaxEntitiesPerNode <= 0 {
		opts.MaxEntitiesPerNode = DefaultMaxEntitiesPerNode
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	t := &Tree{opts: opts}
	t.reset(bounds)
	return t
}

func (t *Tree) reset(bounds geometry.AABB) {
	t.nodes = []node{{
		bounds:     bounds,
		firstChild: NilHandle,
	}}
	t.count = 0
}

// Clear removes every entry and node but the root.
func (t *Tree) Clear() {
	t.reset(t.nodes[RootHandle].bounds)
}

func (t *Tree) Bounds() geometry.AABB {
	return t.nodes[RootHandle].bounds
}

// Len returns the number of stored entries.
func (t *Tree) Len() int {
	return t.count
}

// NodeCount returns the number of allocated nodes.
func (t *Tree) NodeCount() int {
	return len(t.nodes)
}

func (t *Tree) Valid(h Handle) bool {
	return h >= 0 && int(h) < len(t.nodes)
}

// NodeBounds returns the bounds of the node identified by h.
func (t *Tree) NodeBounds(h Handle) geometry.AABB {
	return t.nodes[h].bounds
}

func (t *Tree) NodeDepth(h Handle) int {
	return t.nodes[h].depth
}

func (t *Tree) IsLeaf(h Handle) bool {
	return t.nodes[h].isLeaf()
}

// Insert adds the entry to the deepest node containing its bounds and
// returns the handle of that node.
func (t *Tree) Insert(e Entry) Handle {
	h := RootHandle

	for {
		if !t.nodes[h].isLeaf() {
			child := t.childFor(h, e.Bounds)
			if child == NilHandle {
				break
			}
			h = child
			continue
		}

		if len(t.nodes[h].entries) < t.opts.MaxEntitiesPerNode {
			break
		}
		if !t.canSubdivide(h) {
			if t.opts.OnCapacityExceeded != nil {
				t.opts.OnCapacityExceeded(h, t.nodes[h].depth, len(t.nodes[h].entries)+1)
			}
			break
		}
		t.subdivide(h)
	}

	t.nodes[h].entries = append(t.nodes[h].entries, e)
	t.count++
	return h
}

// Remove removes the entry with the given id from the node identified by h.
// It returns false when the node does not hold it.
func (t *Tree) Remove(id EntityID, h Handle) bool {
	if !t.Valid(h) {
		return false
	}

	n := &t.nodes[h]
	for i := range n.entries {
		if n.entries[i].ID != id {
			continue
		}

		last := len(n.entries) - 1
		n.entries[i] = n.entries[last]
		n.entries[last] = Entry{}
		n.entries = n.entries[:last]
		t.count--
		return true
	}
	return false
}

// Fits reports whether an entry with the given bounds can stay in the node
// identified by h: the node contains the bounds and none of its children does.
func (t *Tree) Fits(h Handle, bounds geometry.AABB) bool {
	if !t.Valid(h) {
		return false
	}

	n := &t.nodes[h]
	if h != RootHandle && !n.bounds.Contains(bounds) {
		return false
	}
	return n.isLeaf() || t.childFor(h, bounds) == NilHandle
}

// UpdateInPlace replaces the entry stored in h when its new bounds still fit
// the node. It returns false when the entry has to be reinserted.
func (t *Tree) UpdateInPlace(h Handle, e Entry) bool {
	if !t.Fits(h, e.Bounds) {
		return false
	}

	n := &t.nodes[h]
	for i := range n.entries {
		if n.entries[i].ID == e.ID {
			n.entries[i] = e
			return true
		}
	}
	return false
}

// QueryBounds appends to out the ids of the entries whose bounds intersect
// region and whose mask overlaps mask.
func (t *Tree) QueryBounds(region geometry.AABB, mask layers.Mask, out []EntityID) []EntityID {
	stack := make([]Handle, 1, 64)
	stack[0] = RootHandle

	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[h]

		// Root entries can overhang the world bounds, so the root is never
		// pruned nor treated as fully covered.
		if h != RootHandle {
			if !n.bounds.Intersects(region) {
				continue
			}
			if region.Contains(n.bounds) {
				out = t.collect(h, mask, out)
				continue
			}
		}

		for _, e := range n.entries {
			if e.Mask.Overlaps(mask) && e.Bounds.Intersects(region) {
				out = append(out, e.ID)
			}
		}
		stack = t.pushChildren(stack, h)
	}

	return out
}

// QueryFrustum appends to out the ids of the entries whose bounds are at
// least partially inside f and whose mask overlaps mask.
func (t *Tree) QueryFrustum(f geometry.Frustum, mask layers.Mask, out []EntityID) []EntityID {
	stack := make([]Handle, 1, 64)
	stack[0] = RootHandle

	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[h]

		if h != RootHandle {
			switch f.ClassifyAABB(n.bounds) {
			case geometry.Outside:
				continue
			case geometry.Inside:
				out = t.collect(h, mask, out)
				continue
			}
		}

		for _, e := range n.entries {
			if e.Mask.Overlaps(mask) && f.IntersectsAABB(e.Bounds) {
				out = append(out, e.ID)
			}
		}
		stack = t.pushChildren(stack, h)
	}

	return out
}

// collect appends every entry of the subtree rooted at h that matches mask.
// Entries below the root are contained in their node bounds so no shape test
// is needed.
func (t *Tree) collect(h Handle, mask layers.Mask, out []EntityID) []EntityID {
	stack := make([]Handle, 1, 32)
	stack[0] = h

	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, e := range t.nodes[h].entries {
			if e.Mask.Overlaps(mask) {
				out = append(out, e.ID)
			}
		}
		stack = t.pushChildren(stack, h)
	}
	return out
}

func (t *Tree) pushChildren(stack []Handle, h Handle) []Handle {
	first := t.nodes[h].firstChild
	if first == NilHandle {
		return stack
	}
	for i := Handle(7); i >= 0; i-- {
		stack = append(stack, first+i)
	}
	return stack
}

// childFor returns the first child of h fully containing bounds, or NilHandle.
func (t *Tree) childFor(h Handle, bounds geometry.AABB) Handle {
	first := t.nodes[h].firstChild
	if first == NilHandle {
		return NilHandle
	}
	for i := Handle(0); i < 8; i++ {
		if t.nodes[first+i].bounds.Contains(bounds) {
			return first + i
		}
	}
	return NilHandle
}

func (t *Tree) canSubdivide(h Handle) bool {
	n := &t.nodes[h]
	if n.depth >= t.opts.MaxDepth {
		return false
	}
	if t.opts.MinNodeSize > 0 {
		size := n.bounds.Size()
		half := t.opts.MinNodeSize * 2
		if size[0] < half || size[1] < half || size[2] < half {
			return false
		}
	}
	return true
}

func (t *Tree) subdivide(h Handle) {
	first := Handle(len(t.nodes))
	parentBounds := t.nodes[h].bounds
	depth := t.nodes[h].depth + 1

	for i := 0; i < 8; i++ {
		t.nodes = append(t.nodes, node{
			bounds:     parentBounds.Octant(i),
			depth:      depth,
			firstChild: NilHandle,
		})
	}
	t.nodes[h].firstChild = first

	entries := t.nodes[h].entries
	kept := entries[:0]
	for _, e := range entries {
		child := t.childFor(h, e.Bounds)
		if child == NilHandle {
			kept = append(kept, e)
			continue
		}

		t.nodes[child].entries = append(t.nodes[child].entries, e)
		if t.opts.OnRelocate != nil {
			t.opts.OnRelocate(e.ID, child)
		}
	}
	for i := len(kept); i < len(entries); i++ {
		entries[i] = Entry{}
	}
	t.nodes[h].entries = kept
}
