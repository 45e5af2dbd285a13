// Package resolver manages placeholder identifiers for nodes that are
// planned but not yet committed. Placeholders are negative integers rendered
// as strings, assigned at plan time; after each batch commits, the remote
// service's returned identifiers are recorded and substituted into every
// later batch before submission.
package resolver

import (
	"fmt"
	"strings"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/treetypes"
)

// Allocator hands out locally unique placeholder references for one plan.
// References are negative integers counting down from -1, matching the
// remote service's temporary-identifier convention.
type Allocator struct {
	next int64
}

// NewAllocator returns an allocator whose first reference is "-1".
func NewAllocator() *Allocator {
	return &Allocator{next: -1}
}

// Next returns the next placeholder reference.
func (a *Allocator) Next() string {
	ref := fmt.Sprintf("%d", a.next)
	a.next--
	return ref
}

// IsPlaceholder reports whether a reference is a plan-local placeholder
// rather than a committed resource identifier.
func IsPlaceholder(ref string) bool {
	return strings.HasPrefix(ref, "-")
}

// Resolver substitutes placeholders with committed identifiers across the
// batches of one plan. It is valid for exactly one reconciliation run.
type Resolver struct {
	ids map[string]string
}

// New returns an empty resolver.
func New() *Resolver {
	return &Resolver{ids: make(map[string]string)}
}

// Resolved returns the committed identifier recorded for a placeholder.
func (r *Resolver) Resolved(ref string) (string, bool) {
	id, ok := r.ids[ref]
	return id, ok
}

// Record pairs the create operations of a committed batch with the
// identifiers the remote service returned, in request order. A result that
// does not cover every create is a planner/remote mismatch and aborts the
// remaining plan for this unit.
func (r *Resolver) Record(ops []treetypes.Operation, res *treetypes.MutateResult) error {
	creates := 0
	for _, op := range ops {
		if op.Type == treetypes.OpCreate {
			creates++
		}
	}
	if res == nil || len(res.Created) < creates {
		got := 0
		if res != nil {
			got = len(res.Created)
		}
		return lserrors.New("resolve", lserrors.CodePlannerMismatch,
			fmt.Errorf("commit result has %d identifiers for %d creates: %w",
				got, creates, lserrors.ErrPlannerMismatch))
	}

	i := 0
	for _, op := range ops {
		if op.Type != treetypes.OpCreate {
			continue
		}
		r.ids[op.TempRef] = res.Created[i]
		i++
	}
	return nil
}

// Patch rewrites placeholder parent references in a not-yet-submitted batch
// with the committed identifiers recorded so far. Placeholders assigned to
// nodes created within the same batch are left alone: the remote service
// resolves those itself. A placeholder that is neither recorded nor defined
// in-batch is a planner/remote mismatch.
func (r *Resolver) Patch(ops []treetypes.Operation) error {
	local := make(map[string]bool, len(ops))
	for _, op := range ops {
		if op.Type == treetypes.OpCreate && op.TempRef != "" {
			local[op.TempRef] = true
		}
	}

	for i := range ops {
		ref := ops[i].ParentRef
		if ref == "" || !IsPlaceholder(ref) || local[ref] {
			continue
		}
		id, ok := r.ids[ref]
		if !ok {
			return lserrors.New("resolve", lserrors.CodePlannerMismatch,
				fmt.Errorf("no committed identifier for placeholder %q: %w",
					ref, lserrors.ErrPlannerMismatch))
		}
		ops[i].ParentRef = id
	}
	return nil
}
