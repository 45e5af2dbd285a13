// Package planner computes the minimal ordered batches of structural
// operations that reconcile a remote listing tree with a target set.
//
// The planner walks the desired path depth-first, creating missing
// subdivisions (always together with their remainder, in the same batch),
// promoting terminal leaves when a deeper facet is introduced below them,
// and finally emitting one batch of pure leaf creates/updates for the
// target values. It mutates the in-memory tree model as it plans, so the
// model's fail-fast structural checks guard every emitted operation and the
// resulting model mirrors the remote tree a successful execution produces.
package planner

import (
	"fmt"
	"sort"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/internal/reconcile/resolver"
	"github.com/feedops/listingsync/internal/tree"
	"github.com/feedops/listingsync/treetypes"
)

// Planner computes reconciliation plans. One planner serves one unit of
// work; placeholder references come from the shared allocator so they stay
// unique across every batch of the plan.
type Planner struct {
	alloc *resolver.Allocator
}

// New creates a planner drawing placeholders from alloc.
func New(alloc *resolver.Allocator) *Planner {
	return &Planner{alloc: alloc}
}

// Plan is an ordered sequence of batches plus summary counts. Batches must
// be submitted strictly in order: later batches reference placeholders
// resolved by earlier ones.
type Plan struct {
	// Batches are the planned batches in submission order
	Batches []treetypes.Batch

	// Created, Removed and Updated count the node operations planned
	Created int
	Removed int
	Updated int
}

// Empty reports whether the plan contains no operations.
func (p *Plan) Empty() bool {
	return len(p.Batches) == 0
}

// Plan computes the batches that bring t in line with target. The tree is
// mutated to its post-execution shape; callers needing the original must
// re-read the snapshot.
func (p *Planner) Plan(t *tree.Tree, target treetypes.TargetSet) (*Plan, error) {
	plan := &Plan{}
	var structural []treetypes.Batch
	current := treetypes.Batch{}

	flush := func() {
		if len(current.Ops) > 0 {
			structural = append(structural, current)
			current = treetypes.Batch{}
		}
	}

	if target.Rebuild && !t.Empty() {
		// Removing the root cascades to the whole tree remotely.
		plan.Removed += t.Len()
		structural = append(structural, treetypes.Batch{Ops: []treetypes.Operation{{
			Type:       treetypes.OpRemove,
			ResourceID: t.Root.ResourceID,
		}}})
		if err := t.RemoveNode(t.Root); err != nil {
			return nil, err
		}
	}

	node := t.Root
	if t.Empty() {
		root := &tree.Node{Kind: treetypes.NodeSubdivision}
		if err := t.SetRoot(root); err != nil {
			return nil, err
		}
		t.SetPendingRef(root, p.alloc.Next())
		current.Ops = append(current.Ops, treetypes.Operation{
			Type:    treetypes.OpCreate,
			TempRef: root.PendingRef,
			Kind:    treetypes.NodeSubdivision,
		})
		plan.Created++

		facet, remainder := levelBelow(target, -1)
		if err := p.addLeaf(t, &current, plan, root, treetypes.CaseValue{Facet: facet, Remainder: true}, remainder); err != nil {
			return nil, err
		}
		node = root
	}

	for i, step := range target.Path {
		if facet, ok := node.PartitionFacet(); ok && facet != step.Facet {
			return nil, invalidErr("level under %q partitions by %s, target path expects %s",
				node.Ref(), facet, step.Facet)
		}

		child := node.FindChild(step.Value)
		switch {
		case child == nil:
			sub := &tree.Node{
				Kind: treetypes.NodeSubdivision,
				Case: &treetypes.CaseValue{Facet: step.Facet, Value: step.Value},
			}
			if err := t.AddChild(node, sub); err != nil {
				return nil, err
			}
			t.SetPendingRef(sub, p.alloc.Next())
			current.Ops = append(current.Ops, treetypes.Operation{
				Type:      treetypes.OpCreate,
				TempRef:   sub.PendingRef,
				ParentRef: node.Ref(),
				Kind:      treetypes.NodeSubdivision,
				Case:      sub.Case,
			})
			plan.Created++

			facet, remainder := levelBelow(target, i)
			if err := p.addLeaf(t, &current, plan, sub, treetypes.CaseValue{Facet: facet, Remainder: true}, remainder); err != nil {
				return nil, err
			}
			node = sub

		case child.Kind == treetypes.NodeLeaf:
			// A deeper facet below a terminal leaf: promote it, keeping
			// the original decision as the new level's remainder default.
			// The remote service needs the promoted structure committed
			// before deeper children reference it, so the promotion gets
			// its own batch.
			oldID := child.ResourceID
			if oldID == "" {
				return nil, invalidErr("path value %q planned twice in one run", step.Value)
			}
			flush()

			facet, _ := levelBelow(target, i)
			remainder, err := t.PromoteLeafToSubdivision(child, facet)
			if err != nil {
				return nil, err
			}
			t.SetPendingRef(child, p.alloc.Next())
			t.SetPendingRef(remainder, p.alloc.Next())

			structural = append(structural, treetypes.Batch{Ops: []treetypes.Operation{
				{
					Type:       treetypes.OpRemove,
					ResourceID: oldID,
				},
				{
					Type:      treetypes.OpCreate,
					TempRef:   child.PendingRef,
					ParentRef: node.Ref(),
					Kind:      treetypes.NodeSubdivision,
					Case:      child.Case,
				},
				{
					Type:      treetypes.OpCreate,
					TempRef:   remainder.PendingRef,
					ParentRef: child.PendingRef,
					Kind:      treetypes.NodeLeaf,
					Case:      remainder.Case,
					Decision:  remainder.Decision,
				},
			}})
			plan.Removed++
			plan.Created += 2
			node = child

		default:
			node = child
		}
	}
	flush()

	if facet, ok := node.PartitionFacet(); ok && facet != target.Facet {
		return nil, invalidErr("level under %q partitions by %s, target expects %s",
			node.Ref(), facet, target.Facet)
	}

	leaves, err := p.planLeaves(t, plan, node, target)
	if err != nil {
		return nil, err
	}

	plan.Batches = structural
	if len(leaves.Ops) > 0 {
		plan.Batches = append(plan.Batches, leaves)
	}
	return plan, nil
}

// planLeaves emits the final batch of pure leaf creates, removes and
// updates for the target's include/exclude values under parent.
func (p *Planner) planLeaves(t *tree.Tree, plan *Plan, parent *tree.Node, target treetypes.TargetSet) (treetypes.Batch, error) {
	batch := treetypes.Batch{}

	targets, err := mergeTargets(target)
	if err != nil {
		return batch, err
	}

	for _, tg := range targets {
		existing := parent.FindChild(tg.value)
		switch {
		case existing == nil:
			leaf := &tree.Node{
				Kind:     treetypes.NodeLeaf,
				Case:     &treetypes.CaseValue{Facet: target.Facet, Value: tg.value},
				Decision: tg.decision,
			}
			if err := t.AddChild(parent, leaf); err != nil {
				return batch, err
			}
			t.SetPendingRef(leaf, p.alloc.Next())
			batch.Ops = append(batch.Ops, treetypes.Operation{
				Type:      treetypes.OpCreate,
				TempRef:   leaf.PendingRef,
				ParentRef: parent.Ref(),
				Kind:      treetypes.NodeLeaf,
				Case:      leaf.Case,
				Decision:  tg.decision,
			})
			plan.Created++

		case existing.Kind == treetypes.NodeSubdivision:
			return batch, invalidErr("value %q under %q is subdivided; cannot set a terminal decision",
				tg.value, parent.Ref())

		case existing.Decision.Equal(tg.decision):
			// Already in the desired state, including differently-cased
			// duplicates. Do not re-emit.

		case existing.Decision.Negative != tg.decision.Negative:
			// Flipping include/exclude is a remove plus create among
			// siblings of one facet: no structural change, same batch.
			if existing.ResourceID == "" {
				return batch, invalidErr("value %q flipped within one plan", tg.value)
			}
			batch.Ops = append(batch.Ops, treetypes.Operation{
				Type:       treetypes.OpRemove,
				ResourceID: existing.ResourceID,
			})
			if err := t.RemoveNode(existing); err != nil {
				return batch, err
			}
			plan.Removed++

			leaf := &tree.Node{
				Kind:     treetypes.NodeLeaf,
				Case:     &treetypes.CaseValue{Facet: target.Facet, Value: tg.value},
				Decision: tg.decision,
			}
			if err := t.AddChild(parent, leaf); err != nil {
				return batch, err
			}
			t.SetPendingRef(leaf, p.alloc.Next())
			batch.Ops = append(batch.Ops, treetypes.Operation{
				Type:      treetypes.OpCreate,
				TempRef:   leaf.PendingRef,
				ParentRef: parent.Ref(),
				Kind:      treetypes.NodeLeaf,
				Case:      leaf.Case,
				Decision:  tg.decision,
			})
			plan.Created++

		default:
			// Both inclusions with different bids: update in place.
			if existing.ResourceID == "" {
				return batch, invalidErr("value %q re-bid within one plan", tg.value)
			}
			if err := t.MarkIncluded(existing, tg.decision.BidMicros); err != nil {
				return batch, err
			}
			batch.Ops = append(batch.Ops, treetypes.Operation{
				Type:       treetypes.OpUpdate,
				ResourceID: existing.ResourceID,
				Decision:   tg.decision,
			})
			plan.Updated++
		}
	}

	return batch, nil
}

// addLeaf creates a leaf in the model and appends its create operation to
// the batch.
func (p *Planner) addLeaf(t *tree.Tree, batch *treetypes.Batch, plan *Plan, parent *tree.Node, cv treetypes.CaseValue, d treetypes.Decision) error {
	leaf := &tree.Node{
		Kind:     treetypes.NodeLeaf,
		Case:     &cv,
		Decision: d,
	}
	if err := t.AddChild(parent, leaf); err != nil {
		return err
	}
	t.SetPendingRef(leaf, p.alloc.Next())
	batch.Ops = append(batch.Ops, treetypes.Operation{
		Type:      treetypes.OpCreate,
		TempRef:   leaf.PendingRef,
		ParentRef: parent.Ref(),
		Kind:      treetypes.NodeLeaf,
		Case:      leaf.Case,
		Decision:  d,
	})
	plan.Created++
	return nil
}

// levelBelow returns the partition facet and fresh-remainder decision of
// the level below path index i. Index -1 means below the root.
func levelBelow(target treetypes.TargetSet, i int) (treetypes.Facet, treetypes.Decision) {
	if i+1 < len(target.Path) {
		return target.Path[i+1].Facet, target.Path[i+1].Remainder
	}
	return target.Facet, target.Remainder
}

type leafTarget struct {
	value    string
	decision treetypes.Decision
}

// mergeTargets normalizes, deduplicates and orders the target's include and
// exclude values. Ordering is lexicographic by lower-cased value so plans
// are deterministic and diffable. A value that is both included and
// excluded, or included twice with different bids, is rejected.
func mergeTargets(target treetypes.TargetSet) ([]leafTarget, error) {
	byNorm := make(map[string]leafTarget)

	for _, v := range target.Exclude {
		norm := treetypes.NormalizeValue(v)
		if prev, ok := byNorm[norm]; ok {
			if !prev.decision.Negative {
				return nil, invalidErr("value %q both included and excluded", v)
			}
			continue
		}
		byNorm[norm] = leafTarget{value: v, decision: treetypes.Exclude()}
	}

	for _, inc := range target.Include {
		norm := treetypes.NormalizeValue(inc.Value)
		if prev, ok := byNorm[norm]; ok {
			if prev.decision.Negative {
				return nil, invalidErr("value %q both included and excluded", inc.Value)
			}
			if prev.decision.BidMicros != inc.BidMicros {
				return nil, invalidErr("value %q included twice with different bids", inc.Value)
			}
			continue
		}
		byNorm[norm] = leafTarget{value: inc.Value, decision: treetypes.Include(inc.BidMicros)}
	}

	norms := make([]string, 0, len(byNorm))
	for norm := range byNorm {
		norms = append(norms, norm)
	}
	sort.Strings(norms)

	targets := make([]leafTarget, 0, len(norms))
	for _, norm := range norms {
		targets = append(targets, byNorm[norm])
	}
	return targets, nil
}

func invalidErr(format string, args ...any) error {
	return lserrors.New("plan", lserrors.CodeInvalid, fmt.Errorf(format, args...))
}
