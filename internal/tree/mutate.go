package tree

import (
	"github.com/feedops/listingsync/treetypes"
)

// AddChild attaches child under parent, enforcing the single-partition-facet
// invariant and at most one remainder per subdivision. Remainder
// completeness is deliberately not enforced here: a subdivision may be
// incomplete mid-batch, and Validate checks completeness at batch
// boundaries.
func (t *Tree) AddChild(parent, child *Node) error {
	if parent.Kind != treetypes.NodeSubdivision {
		return structuralErr("cannot add child under leaf %q", parent.Ref())
	}
	if child.Case == nil {
		return structuralErr("child of %q has no case value", parent.Ref())
	}
	if facet, ok := parent.PartitionFacet(); ok && child.Case.Facet != facet {
		return structuralErr("child facet %s conflicts with sibling facet %s under %q",
			child.Case.Facet, facet, parent.Ref())
	}
	if child.Case.Remainder && parent.Remainder() != nil {
		return structuralErr("subdivision %q already has a remainder child", parent.Ref())
	}
	if !child.Case.Remainder && parent.FindChild(child.Case.Value) != nil {
		return structuralErr("subdivision %q already has a child for value %q", parent.Ref(), child.Case.Value)
	}

	child.Parent = parent
	parent.Children = append(parent.Children, child)
	if ref := child.Ref(); ref != "" {
		t.byRef[ref] = child
	}
	return nil
}

// SetRoot installs the root subdivision of an empty tree.
func (t *Tree) SetRoot(root *Node) error {
	if t.Root != nil {
		return structuralErr("tree already has root %q", t.Root.Ref())
	}
	if root.Kind != treetypes.NodeSubdivision {
		return structuralErr("root must be a subdivision")
	}
	if root.Case != nil {
		return structuralErr("root cannot carry a case value")
	}
	t.Root = root
	if ref := root.Ref(); ref != "" {
		t.byRef[ref] = root
	}
	return nil
}

// PromoteLeafToSubdivision converts a terminal leaf into a subdivision
// partitioning by childFacet. The leaf's original decision is preserved as
// the new level's remainder default rather than discarded: the returned
// remainder leaf carries the original bid or exclusion exactly.
//
// The promoted node loses its committed identity (the remote service models
// promotion as remove-and-recreate), so the caller must assign fresh
// placeholder references to both returned nodes.
func (t *Tree) PromoteLeafToSubdivision(leaf *Node, childFacet treetypes.Facet) (*Node, error) {
	if leaf.Kind != treetypes.NodeLeaf {
		return nil, structuralErr("cannot promote %q: not a leaf", leaf.Ref())
	}
	if leaf.IsRemainder() {
		return nil, structuralErr("cannot promote remainder leaf under %q", leaf.Parent.Ref())
	}

	if old := leaf.Ref(); old != "" {
		delete(t.byRef, old)
	}

	remainder := &Node{
		Kind: treetypes.NodeLeaf,
		Case: &treetypes.CaseValue{
			Facet:     childFacet,
			Remainder: true,
		},
		Decision: leaf.Decision,
		Parent:   leaf,
	}

	leaf.Kind = treetypes.NodeSubdivision
	leaf.Decision = treetypes.Decision{}
	leaf.ResourceID = ""
	leaf.PendingRef = ""
	leaf.Children = []*Node{remainder}

	return remainder, nil
}

// MarkExcluded turns a leaf's decision into an exclusion.
func (t *Tree) MarkExcluded(n *Node) error {
	if n.Kind != treetypes.NodeLeaf {
		return structuralErr("cannot exclude %q: not a leaf", n.Ref())
	}
	n.Decision = treetypes.Exclude()
	return nil
}

// MarkIncluded turns a leaf's decision into an inclusion with the given bid.
func (t *Tree) MarkIncluded(n *Node, bidMicros int64) error {
	if n.Kind != treetypes.NodeLeaf {
		return structuralErr("cannot include %q: not a leaf", n.Ref())
	}
	n.Decision = treetypes.Include(bidMicros)
	return nil
}

// SetPendingRef records a placeholder reference for a planned node and
// indexes it for later resolution.
func (t *Tree) SetPendingRef(n *Node, ref string) {
	n.PendingRef = ref
	t.byRef[ref] = n
}

// Commit replaces a node's placeholder reference with its real committed
// identifier.
func (t *Tree) Commit(n *Node, resourceID string) {
	if n.PendingRef != "" {
		delete(t.byRef, n.PendingRef)
		n.PendingRef = ""
	}
	n.ResourceID = resourceID
	t.byRef[resourceID] = n
}

// RemoveNode detaches a node (and transitively its children) from the tree.
func (t *Tree) RemoveNode(n *Node) error {
	if n.IsRoot() {
		t.Root = nil
		t.byRef = make(map[string]*Node)
		return nil
	}
	parent := n.Parent
	for i, c := range parent.Children {
		if c == n {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			n.Parent = nil
			_ = walk(n, func(d *Node) error {
				if ref := d.Ref(); ref != "" {
					delete(t.byRef, ref)
				}
				return nil
			})
			return nil
		}
	}
	return structuralErr("node %q not attached to its parent", n.Ref())
}
