package octree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/octant/geometry"
)

const (
	// ErrTypeCorrupted is the error type returned when a tree breaks one of
	// its structural rules.
	ErrTypeCorrupted = "index_corrupted"
)

type Stats struct {
	NodeCount       int `json:"node_count"`
	LeafCount       int `json:"leaf_count"`
	MaxDepth        int `json:"max_depth"`
	EntityCount     int `json:"entity_count"`
	OverflowLeaves  int `json:"overflow_leaves"`
	StraddlingCount int `json:"straddling_count"`
}

type DebugInfo struct {
	MaxEntitiesPerNode int           `json:"max_entities_per_node"`
	MaxDepth           int           `json:"max_depth"`
	Bounds             geometry.AABB `json:"bounds"`

	// Node and entity counts indexed by depth.
	NodesPerDepth    []uint32 `json:"nodes_per_depth"`
	EntitiesPerDepth []uint32 `json:"entities_per_depth"`
}

// Stats walks the tree and returns its shape.
func (t *Tree) Stats() Stats {
	var s Stats

	t.walk(func(h Handle, n *node) {
		s.NodeCount++
		s.EntityCount += len(n.entries)
		if n.depth > s.MaxDepth {
			s.MaxDepth = n.depth
		}

		if n.isLeaf() {
			s.LeafCount++
			if len(n.entries) > t.opts.MaxEntitiesPerNode {
				s.OverflowLeaves++
			}
		} else {
			s.StraddlingCount += len(n.entries)
		}
	})

	return s
}

func (t *Tree) DebugInfo() DebugInfo {
	info := DebugInfo{
		MaxEntitiesPerNode: t.opts.MaxEntitiesPerNode,
		MaxDepth:           t.opts.MaxDepth,
		Bounds:             t.Bounds(),
	}

	t.walk(func(h Handle, n *node) {
		for len(info.NodesPerDepth) <= n.depth {
			info.NodesPerDepth = append(info.NodesPerDepth, 0)
			info.EntitiesPerDepth = append(info.EntitiesPerDepth, 0)
		}
		info.NodesPerDepth[n.depth]++
		info.EntitiesPerDepth[n.depth] += uint32(len(n.entries))
	})

	return info
}

// Each calls fn with every stored entry and the handle of its node.
func (t *Tree) Each(fn func(h Handle, e Entry)) {
	t.walk(func(h Handle, n *node) {
		for _, e := range n.entries {
			fn(h, e)
		}
	})
}

// CheckInvariants verifies the structure of the tree and returns an error
// describing the first violation found.
func (t *Tree) CheckInvariants() error {
	var err error
	count := 0

	t.walk(func(h Handle, n *node) {
		if err != nil {
			return
		}
		count += len(n.entries)

		if n.depth > t.opts.MaxDepth {
			err = corruptedError("node deeper than max depth", h, n)
			return
		}

		if n.isLeaf() {
			if len(n.entries) > t.opts.MaxEntitiesPerNode && t.canSubdivide(h) {
				err = corruptedError("leaf over capacity", h, n)
			}
		} else {
			for i := Handle(0); i < 8; i++ {
				c := &t.nodes[n.firstChild+i]
				if c.depth != n.depth+1 || c.bounds != n.bounds.Octant(int(i)) {
					err = corruptedError("child does not match its parent octant", n.firstChild+i, c)
					return
				}
			}
		}

		for _, e := range n.entries {
			if h != RootHandle && !n.bounds.Contains(e.Bounds) {
				err = entryCorruptedError("entry outside of its node", h, n, e)
				return
			}
			if !n.isLeaf() && t.childFor(h, e.Bounds) != NilHandle {
				err = entryCorruptedError("entry kept in a parent while a child contains it", h, n, e)
				return
			}
		}
	})
	if err != nil {
		return err
	}

	if count != t.count {
		return errors.New("entry count mismatch").
			WithType(ErrTypeCorrupted).
			WithTag("counted", count).
			WithTag("expected", t.count)
	}
	return nil
}

func corruptedError(msg string, h Handle, n *node) error {
	return errors.New(msg).
		WithType(ErrTypeCorrupted).
		WithTag("node", h).
		WithTag("depth", n.depth).
		WithTag("entries", len(n.entries))
}

func entryCorruptedError(msg string, h Handle, n *node, e Entry) error {
	return errors.New(msg).
		WithType(ErrTypeCorrupted).
		WithTag("node", h).
		WithTag("depth", n.depth).
		WithTag("entity_id", e.ID)
}

// walk visits every node reachable from the root, parents first.
func (t *Tree) walk(fn func(h Handle, n *node)) {
	stack := []Handle{RootHandle}
	for len(stack) != 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fn(h, &t.nodes[h])
		stack = t.pushChildren(stack, h)
	}
}
