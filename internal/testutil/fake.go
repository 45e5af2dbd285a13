// Package testutil provides an in-memory TreeService fake that enforces
// the remote service's structural rules, so every planner/driver test also
// verifies that planned batches would commit against the real service.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/internal/tree"
	"github.com/feedops/listingsync/treetypes"
)

type fakeNode struct {
	id       string
	parentID string
	kind     treetypes.NodeKind
	caseVal  *treetypes.CaseValue
	decision treetypes.Decision
}

// FakeTreeService is an in-memory treeapi.TreeService. Mutate is atomic:
// the batch is validated and applied against a staged copy, and nothing is
// committed unless every operation succeeds and the resulting tree holds
// the structural invariants (single root, complete remainders, one
// partition facet per level).
//
// Error injection: queued errors are popped one per call; a non-nil entry
// is returned instead of performing the call, a nil entry lets the call
// through. Zero value is not usable; use New.
type FakeTreeService struct {
	mu     sync.Mutex
	nextID int
	scopes map[string]map[string]*fakeNode

	// SearchErrs and MutateErrs are injected error queues
	SearchErrs []error
	MutateErrs []error

	// SearchCalls and MutateCalls count invocations, including injected
	// failures
	SearchCalls int
	MutateCalls int
}

// New returns an empty fake service.
func New() *FakeTreeService {
	return &FakeTreeService{scopes: make(map[string]map[string]*fakeNode)}
}

// Seed installs committed nodes for a scope, bypassing validation.
func (f *FakeTreeService) Seed(scope string, records []treetypes.NodeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nodes := make(map[string]*fakeNode, len(records))
	for _, rec := range records {
		nodes[rec.ResourceID] = &fakeNode{
			id:       rec.ResourceID,
			parentID: rec.ParentID,
			kind:     rec.Kind,
			caseVal:  copyCase(rec.Case),
			decision: rec.Decision,
		}
	}
	f.scopes[scope] = nodes
}

// Records returns the scope's committed nodes as flat records, ordered by
// identifier for determinism.
func (f *FakeTreeService) Records(scope string) []treetypes.NodeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recordsOf(f.scopes[scope])
}

// NodeCount returns the number of committed nodes in the scope.
func (f *FakeTreeService) NodeCount(scope string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scopes[scope])
}

// Search implements treeapi.TreeService.
func (f *FakeTreeService) Search(ctx context.Context, scope string) ([]treetypes.NodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SearchCalls++
	if len(f.SearchErrs) > 0 {
		err := f.SearchErrs[0]
		f.SearchErrs = f.SearchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return recordsOf(f.scopes[scope]), nil
}

// Mutate implements treeapi.TreeService.
func (f *FakeTreeService) Mutate(ctx context.Context, scope string, ops []treetypes.Operation) (*treetypes.MutateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MutateCalls++
	if len(f.MutateErrs) > 0 {
		err := f.MutateErrs[0]
		f.MutateErrs = f.MutateErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	staged := make(map[string]*fakeNode, len(f.scopes[scope]))
	for id, n := range f.scopes[scope] {
		cp := *n
		cp.caseVal = copyCase(n.caseVal)
		staged[id] = &cp
	}

	temps := make(map[string]string)
	var created []string
	for i, op := range ops {
		switch op.Type {
		case treetypes.OpCreate:
			id, err := f.applyCreate(staged, temps, op)
			if err != nil {
				return nil, fmt.Errorf("op %d: %w", i, err)
			}
			created = append(created, id)
		case treetypes.OpUpdate:
			n, ok := staged[op.ResourceID]
			if !ok {
				return nil, invalid("op %d: update of unknown node %q", i, op.ResourceID)
			}
			if n.kind != treetypes.NodeLeaf {
				return nil, invalid("op %d: update of non-leaf %q", i, op.ResourceID)
			}
			n.decision = op.Decision
		case treetypes.OpRemove:
			if _, ok := staged[op.ResourceID]; !ok {
				return nil, invalid("op %d: remove of unknown node %q", i, op.ResourceID)
			}
			removeCascade(staged, op.ResourceID)
		default:
			return nil, invalid("op %d: unknown type %q", i, op.Type)
		}
	}

	// The committed tree must hold the full structural invariants after
	// every batch.
	if len(staged) > 0 {
		t, err := tree.Build(recordsOf(staged))
		if err != nil {
			return nil, fmt.Errorf("batch leaves malformed tree: %w", err)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("batch violates tree invariants: %w", err)
		}
	}

	f.scopes[scope] = staged
	return &treetypes.MutateResult{Created: created}, nil
}

func (f *FakeTreeService) applyCreate(staged map[string]*fakeNode, temps map[string]string, op treetypes.Operation) (string, error) {
	parentID := op.ParentRef
	if strings.HasPrefix(parentID, "-") {
		real, ok := temps[parentID]
		if !ok {
			return "", invalid("create references unresolved placeholder parent %q", parentID)
		}
		parentID = real
	}

	if parentID == "" {
		if hasRoot(staged) {
			return "", invalid("root create but scope already has a tree")
		}
		if op.Kind != treetypes.NodeSubdivision || op.Case != nil {
			return "", invalid("root create must be a caseless subdivision")
		}
	} else {
		parent, ok := staged[parentID]
		if !ok {
			return "", invalid("create references unknown parent %q", parentID)
		}
		if parent.kind != treetypes.NodeSubdivision {
			return "", invalid("create under leaf %q", parentID)
		}
		if op.Case == nil {
			return "", invalid("non-root create without case value")
		}
		if !op.Case.Remainder {
			want := treetypes.NormalizeValue(op.Case.Value)
			for _, n := range staged {
				if n.parentID == parentID && n.caseVal != nil && !n.caseVal.Remainder &&
					treetypes.NormalizeValue(n.caseVal.Value) == want {
					return "", lserrors.New("mutate", lserrors.CodeConflict,
						fmt.Errorf("duplicate value %q under %q: %w",
							op.Case.Value, parentID, lserrors.ErrConflict))
				}
			}
		}
	}

	f.nextID++
	id := fmt.Sprintf("crit-%d", f.nextID)
	staged[id] = &fakeNode{
		id:       id,
		parentID: parentID,
		kind:     op.Kind,
		caseVal:  copyCase(op.Case),
		decision: op.Decision,
	}
	if op.TempRef != "" {
		if _, dup := temps[op.TempRef]; dup {
			return "", invalid("duplicate placeholder %q within batch", op.TempRef)
		}
		temps[op.TempRef] = id
	}
	return id, nil
}

func removeCascade(staged map[string]*fakeNode, id string) {
	delete(staged, id)
	for childID, n := range staged {
		if n.parentID == id {
			removeCascade(staged, childID)
		}
	}
}

func hasRoot(staged map[string]*fakeNode) bool {
	for _, n := range staged {
		if n.parentID == "" {
			return true
		}
	}
	return false
}

func recordsOf(nodes map[string]*fakeNode) []treetypes.NodeRecord {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]treetypes.NodeRecord, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, treetypes.NodeRecord{
			ResourceID: n.id,
			ParentID:   n.parentID,
			Kind:       n.kind,
			Case:       copyCase(n.caseVal),
			Decision:   n.decision,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

func copyCase(c *treetypes.CaseValue) *treetypes.CaseValue {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func invalid(format string, args ...any) error {
	args = append(args, lserrors.ErrInvalid)
	return lserrors.New("mutate", lserrors.CodeInvalid,
		fmt.Errorf(format+": %w", args...))
}
