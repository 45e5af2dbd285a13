package driver

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedops/listingsync/checkpoint"
	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/internal/reconcile/executor"
	"github.com/feedops/listingsync/internal/reconcile/reader"
	"github.com/feedops/listingsync/internal/testutil"
	"github.com/feedops/listingsync/internal/tree"
	"github.com/feedops/listingsync/treetypes"
)

var shopFacet = treetypes.Facet{Kind: treetypes.FacetShopID, Index: 0}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDriver(svc *testutil.FakeTreeService, cfg Config) *Driver {
	cfg.Logger = testLogger()
	rd := reader.New(svc, 0, testLogger())
	exec := executor.New(svc, executor.Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Logger:         testLogger(),
	})
	return New(rd, exec, cfg)
}

func shopUnit(scope string) treetypes.Unit {
	return treetypes.Unit{
		Scope: scope,
		Target: treetypes.TargetSet{
			Facet:     shopFacet,
			Include:   []treetypes.IncludeTarget{{Value: "Shop A", BidMicros: 100_000}},
			Exclude:   []string{"Shop B"},
			Remainder: treetypes.Exclude(),
		},
	}
}

func TestRunUnitBuildsFromEmpty(t *testing.T) {
	svc := testutil.New()
	drv := newDriver(svc, Config{})

	outcome := drv.RunUnit(context.Background(), shopUnit("scope-1"))
	require.True(t, outcome.Committed(), "detail: %s", outcome.Detail)
	assert.Equal(t, 2, outcome.Batches)
	assert.Equal(t, 4, outcome.Created)
	assert.Zero(t, outcome.Retries)

	// The committed remote tree holds the structural invariants and the
	// requested decisions.
	tr, err := tree.Build(svc.Records("scope-1"))
	require.NoError(t, err)
	require.NoError(t, tr.Validate())
	leaf := tr.Lookup("shop a")
	require.NotNil(t, leaf)
	assert.Equal(t, treetypes.Include(100_000), leaf.Decision)
	leaf = tr.Lookup("shop b")
	require.NotNil(t, leaf)
	assert.True(t, leaf.Decision.Negative)
}

func TestRunUnitIdempotent(t *testing.T) {
	svc := testutil.New()
	drv := newDriver(svc, Config{})
	unit := shopUnit("scope-1")

	first := drv.RunUnit(context.Background(), unit)
	require.True(t, first.Committed())
	mutates := svc.MutateCalls

	second := drv.RunUnit(context.Background(), unit)
	require.True(t, second.Committed())
	assert.Zero(t, second.Batches, "second run must be a no-op")
	assert.Equal(t, mutates, svc.MutateCalls)
}

func TestRunUnitRecoversFromConflict(t *testing.T) {
	svc := testutil.New()
	svc.MutateErrs = []error{lserrors.ErrConflict}
	drv := newDriver(svc, Config{})

	outcome := drv.RunUnit(context.Background(), shopUnit("scope-1"))
	require.True(t, outcome.Committed())
	assert.Equal(t, 1, outcome.Retries)
}

func TestRunUnitFailsOnInvalidTarget(t *testing.T) {
	svc := testutil.New()
	drv := newDriver(svc, Config{})

	unit := treetypes.Unit{
		Scope: "scope-1",
		Target: treetypes.TargetSet{
			Facet:   shopFacet,
			Include: []treetypes.IncludeTarget{{Value: "shop a", BidMicros: 1}},
			Exclude: []string{"shop a"},
		},
	}
	outcome := drv.RunUnit(context.Background(), unit)
	assert.Equal(t, treetypes.UnitFailed, outcome.State)
	assert.Equal(t, string(lserrors.CodeInvalid), outcome.Reason)
	assert.NotEmpty(t, outcome.Detail)
}

func TestRunIsolatesUnitFailures(t *testing.T) {
	svc := testutil.New()
	drv := newDriver(svc, Config{})

	bad := treetypes.Unit{
		Scope: "scope-bad",
		Target: treetypes.TargetSet{
			Facet:   shopFacet,
			Include: []treetypes.IncludeTarget{{Value: "x", BidMicros: 1}},
			Exclude: []string{"x"},
		},
	}
	result, err := drv.Run(context.Background(), []treetypes.Unit{bad, shopUnit("scope-good")})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Committed)
	assert.True(t, result.Outcomes[1].Committed())
	assert.NotEmpty(t, result.RunID)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	store := checkpoint.NewMemory()
	require.NoError(t, store.Save(&treetypes.Checkpoint{
		RunID:    "run-1",
		NextUnit: 1,
		Outcomes: []treetypes.UnitOutcome{
			{Scope: "scope-1", State: treetypes.UnitCommitted},
		},
	}))

	svc := testutil.New()
	drv := newDriver(svc, Config{Store: store})

	units := []treetypes.Unit{shopUnit("scope-1"), shopUnit("scope-2")}
	result, err := drv.Run(context.Background(), units)
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, result.Committed)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "scope-2", result.Outcomes[1].Scope)

	// Only the second unit was actually processed.
	assert.Equal(t, 1, svc.SearchCalls)
	assert.Zero(t, svc.NodeCount("scope-1"))

	// The final checkpoint covers the whole run.
	cp, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 2, cp.NextUnit)
	assert.Len(t, cp.Outcomes, 2)
}

func TestRunSavesFinalCheckpoint(t *testing.T) {
	store := checkpoint.NewMemory()
	svc := testutil.New()
	drv := newDriver(svc, Config{Store: store, CheckpointInterval: 100})

	_, err := drv.Run(context.Background(), []treetypes.Unit{shopUnit("scope-1")})
	require.NoError(t, err)

	cp, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 1, cp.NextUnit)
}

func TestRunHonorsCancellation(t *testing.T) {
	svc := testutil.New()
	drv := newDriver(svc, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := drv.Run(ctx, []treetypes.Unit{shopUnit("scope-1")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Outcomes)
}

func TestPlanUnitDoesNotMutate(t *testing.T) {
	svc := testutil.New()
	drv := newDriver(svc, Config{})

	summary, err := drv.PlanUnit(context.Background(), shopUnit("scope-1"))
	require.NoError(t, err)
	assert.Len(t, summary.Batches, 2)
	assert.Equal(t, 4, summary.Created)
	assert.Zero(t, svc.MutateCalls)
	assert.Zero(t, svc.NodeCount("scope-1"))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(treetypes.UnitPending, treetypes.UnitReading))
	assert.True(t, CanTransition(treetypes.UnitReading, treetypes.UnitPlanning))
	assert.True(t, CanTransition(treetypes.UnitPlanning, treetypes.UnitCommitted))
	assert.True(t, CanTransition(treetypes.UnitExecuting, treetypes.UnitFailed))
	assert.True(t, CanTransition(treetypes.UnitReading, treetypes.UnitReading))

	assert.False(t, CanTransition(treetypes.UnitPending, treetypes.UnitExecuting))
	assert.False(t, CanTransition(treetypes.UnitCommitted, treetypes.UnitReading))
	assert.False(t, CanTransition(treetypes.UnitFailed, treetypes.UnitExecuting))
}
