// Package tree holds the in-memory model of a listing tree: subdivisions
// partitioning by exactly one facet per level, terminated by leaves carrying
// include/exclude decisions, with a mandatory catch-all remainder under every
// subdivision.
//
// The tree is owned top-down from the root; parent pointers exist for
// traversal only. Mutation primitives fail fast on structural violations;
// remainder completeness is only required at batch boundaries and is checked
// separately by Validate.
package tree

import (
	"fmt"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/treetypes"
)

// Node is one tree node. Exactly one of ResourceID and PendingRef is set
// once the node participates in a plan: ResourceID after the remote service
// committed it, PendingRef while it only exists as a planned create.
type Node struct {
	// Kind is subdivision or leaf
	Kind treetypes.NodeKind

	// Case is the matched value on the parent's partition facet; nil for
	// the root
	Case *treetypes.CaseValue

	// Decision is the targeting decision; meaningful only for leaves
	Decision treetypes.Decision

	// Children are the child nodes; present only for subdivisions
	Children []*Node

	// Parent is the back-reference for traversal; never an ownership edge
	Parent *Node

	// ResourceID is the stable remote identifier once committed
	ResourceID string

	// PendingRef is the placeholder reference within the current run
	PendingRef string
}

// Ref returns the reference later operations should use for this node: the
// committed resource identifier when available, the placeholder otherwise.
func (n *Node) Ref() string {
	if n.ResourceID != "" {
		return n.ResourceID
	}
	return n.PendingRef
}

// IsRoot reports whether the node is the tree root.
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

// IsRemainder reports whether the node is a catch-all remainder case.
func (n *Node) IsRemainder() bool {
	return n.Case != nil && n.Case.Remainder
}

// PartitionFacet returns the facet this subdivision partitions its children
// on. The second return is false when the node has no children yet.
func (n *Node) PartitionFacet() (treetypes.Facet, bool) {
	for _, c := range n.Children {
		if c.Case != nil {
			return c.Case.Facet, true
		}
	}
	return treetypes.Facet{}, false
}

// Remainder returns the catch-all child of a subdivision, or nil when it
// does not exist yet.
func (n *Node) Remainder() *Node {
	for _, c := range n.Children {
		if c.IsRemainder() {
			return c
		}
	}
	return nil
}

// FindChild returns the non-remainder child matching the facet value,
// compared case-insensitively, or nil.
func (n *Node) FindChild(value string) *Node {
	want := treetypes.NormalizeValue(value)
	for _, c := range n.Children {
		if c.Case == nil || c.Case.Remainder {
			continue
		}
		if treetypes.NormalizeValue(c.Case.Value) == want {
			return c
		}
	}
	return nil
}

// Tree is the listing tree for one targeting scope: a single root
// subdivision owning every other node.
type Tree struct {
	// Root is the root subdivision; nil for an empty tree
	Root *Node

	byRef map[string]*Node
}

// New returns an empty tree, the starting point for a scope that has no
// remote tree yet.
func New() *Tree {
	return &Tree{byRef: make(map[string]*Node)}
}

// Empty reports whether the tree has no nodes.
func (t *Tree) Empty() bool {
	return t.Root == nil
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	n := 0
	_ = t.Walk(func(*Node) error {
		n++
		return nil
	})
	return n
}

// NodeByRef returns the node with the given committed or placeholder
// reference, or nil.
func (t *Tree) NodeByRef(ref string) *Node {
	return t.byRef[ref]
}

// Walk traverses the tree depth-first, visiting every parent before its
// children. Traversal stops at the first error, which is returned.
func (t *Tree) Walk(fn func(*Node) error) error {
	if t.Root == nil {
		return nil
	}
	return walk(t.Root, fn)
}

func walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Lookup descends from the root through the given facet values, compared
// case-insensitively, and returns the node at the end of the path or nil.
func (t *Tree) Lookup(values ...string) *Node {
	cur := t.Root
	for _, v := range values {
		if cur == nil {
			return nil
		}
		cur = cur.FindChild(v)
	}
	return cur
}

// Build constructs a tree from the flat node records returned by the remote
// query interface. It fails with a structural error on multiple roots,
// dangling parent references, children under leaves, mixed sibling facets,
// or duplicate remainders.
func Build(records []treetypes.NodeRecord) (*Tree, error) {
	t := New()
	if len(records) == 0 {
		return t, nil
	}

	nodes := make(map[string]*Node, len(records))
	for _, rec := range records {
		if rec.ResourceID == "" {
			return nil, structuralErr("record without resource identifier")
		}
		if _, ok := nodes[rec.ResourceID]; ok {
			return nil, structuralErr("duplicate resource identifier %q", rec.ResourceID)
		}
		nodes[rec.ResourceID] = &Node{
			Kind:       rec.Kind,
			Case:       rec.Case,
			Decision:   rec.Decision,
			ResourceID: rec.ResourceID,
		}
	}

	for _, rec := range records {
		n := nodes[rec.ResourceID]
		if rec.ParentID == "" {
			if t.Root != nil {
				return nil, structuralErr("multiple roots: %q and %q", t.Root.ResourceID, rec.ResourceID)
			}
			if rec.Kind != treetypes.NodeSubdivision {
				return nil, structuralErr("root %q is not a subdivision", rec.ResourceID)
			}
			t.Root = n
			t.byRef[n.ResourceID] = n
			continue
		}

		parent, ok := nodes[rec.ParentID]
		if !ok {
			return nil, structuralErr("node %q references unknown parent %q", rec.ResourceID, rec.ParentID)
		}
		if err := t.AddChild(parent, n); err != nil {
			return nil, err
		}
	}

	if t.Root == nil {
		return nil, structuralErr("no root node among %d records", len(records))
	}

	// Every node must be reachable from the root (no cycles, no islands).
	if got := t.Len(); got != len(records) {
		return nil, structuralErr("%d of %d records unreachable from root", len(records)-got, len(records))
	}

	return t, nil
}

// Validate checks the committed-tree invariants: every subdivision has
// exactly one remainder child, siblings share one partition facet, and
// leaves have no children. Planners call this after applying a plan to the
// model; tests call it on simulated remote state.
func (t *Tree) Validate() error {
	return t.Walk(func(n *Node) error {
		switch n.Kind {
		case treetypes.NodeLeaf:
			if len(n.Children) != 0 {
				return structuralErr("leaf %q has children", n.Ref())
			}
			return nil
		case treetypes.NodeSubdivision:
			if len(n.Children) == 0 {
				return structuralErr("subdivision %q has no children", n.Ref())
			}
			facet, _ := n.PartitionFacet()
			remainders := 0
			for _, c := range n.Children {
				if c.Case == nil {
					return structuralErr("non-root node %q without case value", c.Ref())
				}
				if c.Case.Facet != facet {
					return structuralErr("subdivision %q mixes partition facets %s and %s",
						n.Ref(), facet, c.Case.Facet)
				}
				if c.Case.Remainder {
					remainders++
				}
			}
			if remainders != 1 {
				return structuralErr("subdivision %q has %d remainder children, want exactly 1", n.Ref(), remainders)
			}
			return nil
		default:
			return structuralErr("node %q has unknown kind %q", n.Ref(), n.Kind)
		}
	})
}

func structuralErr(format string, args ...any) error {
	return lserrors.New("tree", lserrors.CodeInvalid, fmt.Errorf(format, args...))
}
