package listingsync

import (
	"context"

	"github.com/feedops/listingsync/treetypes"
)

// Reconcile converges a single scope's remote tree on its target set and
// returns the outcome. A scope without a tree is built from empty. The
// outcome is terminal: committed with operation counts, or failed with a
// classification.
func (c *Client) Reconcile(ctx context.Context, unit treetypes.Unit) treetypes.UnitOutcome {
	return c.driver.RunUnit(ctx, unit)
}

// ReconcileAll processes the units in order, isolating failures to their
// unit. With a checkpoint store configured the run resumes after a crash
// or cancellation from the first unprocessed unit.
//
// The returned error is non-nil only when the run itself could not
// proceed (checkpoint load failure or context cancellation); per-unit
// failures are reported in the result.
func (c *Client) ReconcileAll(ctx context.Context, units []treetypes.Unit) (*treetypes.RunResult, error) {
	return c.driver.Run(ctx, units)
}

// PlanOnly computes the batches that Reconcile would submit for the unit,
// without mutating anything remotely. Placeholder references in the
// returned batches are unresolved.
func (c *Client) PlanOnly(ctx context.Context, unit treetypes.Unit) (*treetypes.PlanSummary, error) {
	return c.driver.PlanUnit(ctx, unit)
}

// Audit reads a scope's tree and verifies the committed-tree invariants,
// returning the node count.
func (c *Client) Audit(ctx context.Context, scope string) (int, error) {
	return c.reader.Audit(ctx, scope)
}
