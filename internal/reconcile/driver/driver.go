// Package driver runs reconciliation units through their lifecycle:
// read the remote snapshot, plan the delta, execute the batches in order,
// and record the outcome. A run over many units checkpoints its progress at
// unit boundaries so a crashed or canceled run resumes where it stopped.
//
// A unit failure never stops the run. The failed unit is recorded with its
// classification and the driver moves to the next unit; the remote tree is
// left in whatever consistent state the last committed batch produced.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/internal/metrics"
	"github.com/feedops/listingsync/internal/reconcile/executor"
	"github.com/feedops/listingsync/internal/reconcile/planner"
	"github.com/feedops/listingsync/internal/reconcile/reader"
	"github.com/feedops/listingsync/internal/reconcile/resolver"
	"github.com/feedops/listingsync/internal/tree"
	"github.com/feedops/listingsync/treetypes"
)

// DefaultCheckpointInterval is the number of processed units between
// checkpoint saves when the config leaves it zero.
const DefaultCheckpointInterval = 25

// Config holds driver settings.
type Config struct {
	// Logger receives run and unit logs; nil falls back to slog.Default
	Logger *slog.Logger

	// Metrics records run counters; nil disables recording
	Metrics *metrics.Metrics

	// Store persists run progress; nil disables checkpointing
	Store treetypes.CheckpointStore

	// CheckpointInterval is the number of processed units between saves
	CheckpointInterval int

	// UnitDelay is the pause between units
	UnitDelay time.Duration
}

// Driver coordinates reader, planner, resolver and executor for whole runs.
type Driver struct {
	reader *reader.Reader
	exec   *executor.Executor
	cfg    Config
}

// New creates a driver, filling config defaults.
func New(rd *reader.Reader, exec *executor.Executor, cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	return &Driver{reader: rd, exec: exec, cfg: cfg}
}

// Run processes the units in order. When a checkpoint store is configured
// and holds a checkpoint, the run resumes from its NextUnit with the saved
// outcomes intact; already-processed units are counted as skipped.
//
// Cancellation is honored between units: the unit in flight completes, a
// final checkpoint is saved, and the partial result is returned together
// with the context error.
func (d *Driver) Run(ctx context.Context, units []treetypes.Unit) (*treetypes.RunResult, error) {
	start := time.Now()
	result := &treetypes.RunResult{RunID: uuid.NewString()}

	next := 0
	if d.cfg.Store != nil {
		cp, err := d.cfg.Store.Load()
		if err != nil {
			return nil, lserrors.New("run", lserrors.CodeUnknown,
				fmt.Errorf("load checkpoint: %w", err))
		}
		if cp != nil {
			result.RunID = cp.RunID
			result.Outcomes = cp.Outcomes
			next = cp.NextUnit
			if next > len(units) {
				next = len(units)
			}
			result.Skipped = next
			for range next {
				d.cfg.Metrics.UnitSkipped()
			}
			d.cfg.Logger.Info("resuming run from checkpoint",
				"run_id", cp.RunID,
				"next_unit", next,
				"units", len(units),
			)
		}
	}
	for _, o := range result.Outcomes {
		if o.Committed() {
			result.Committed++
		} else {
			result.Failed++
		}
	}

	var runErr error
	for i := next; i < len(units); i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if i > next {
			if err := sleep(ctx, d.cfg.UnitDelay); err != nil {
				runErr = err
				break
			}
		}

		outcome := d.runUnit(ctx, units[i])
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Committed() {
			result.Committed++
			d.cfg.Metrics.UnitCommitted()
		} else {
			result.Failed++
			d.cfg.Metrics.UnitFailed()
		}

		// Both terminal states advance the run; a failed unit is recorded,
		// not reprocessed on resume.
		processed := i + 1
		if d.cfg.Store != nil && (processed-next)%d.cfg.CheckpointInterval == 0 {
			d.saveCheckpoint(result, processed)
		}
	}

	if d.cfg.Store != nil {
		d.saveCheckpoint(result, next+len(result.Outcomes)-result.Skipped)
	}

	result.Duration = time.Since(start)
	d.cfg.Logger.Info("run finished",
		"run_id", result.RunID,
		"committed", result.Committed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration", result.Duration,
	)
	return result, runErr
}

// RunUnit reconciles a single unit outside of a checkpointed run.
func (d *Driver) RunUnit(ctx context.Context, unit treetypes.Unit) treetypes.UnitOutcome {
	return d.runUnit(ctx, unit)
}

// PlanUnit computes a unit's plan without submitting anything. The remote
// snapshot is read, the delta planned, and the batches returned with their
// placeholder references intact.
func (d *Driver) PlanUnit(ctx context.Context, unit treetypes.Unit) (*treetypes.PlanSummary, error) {
	t, err := d.readTree(ctx, unit.Scope)
	if err != nil {
		return nil, err
	}

	pl := planner.New(resolver.NewAllocator())
	plan, err := pl.Plan(t, unit.Target)
	if err != nil {
		return nil, lserrors.NewScoped("plan", unit.Scope, lserrors.Classify(err),
			fmt.Errorf("plan delta: %w", err))
	}
	return &treetypes.PlanSummary{
		Scope:   unit.Scope,
		Batches: plan.Batches,
		Created: plan.Created,
		Removed: plan.Removed,
		Updated: plan.Updated,
	}, nil
}

func (d *Driver) runUnit(ctx context.Context, unit treetypes.Unit) treetypes.UnitOutcome {
	start := time.Now()
	outcome := treetypes.UnitOutcome{Scope: unit.Scope}
	state := treetypes.UnitPending

	fail := func(err error) treetypes.UnitOutcome {
		d.step(unit.Scope, &state, treetypes.UnitFailed)
		outcome.State = treetypes.UnitFailed
		outcome.Reason = string(lserrors.Classify(err))
		outcome.Detail = err.Error()
		outcome.Duration = time.Since(start)
		d.cfg.Logger.Error("unit failed",
			"scope", unit.Scope,
			"state", string(state),
			"reason", outcome.Reason,
			"error", err,
		)
		return outcome
	}

	d.step(unit.Scope, &state, treetypes.UnitReading)
	t, err := d.readTree(ctx, unit.Scope)
	if err != nil {
		return fail(err)
	}

	d.step(unit.Scope, &state, treetypes.UnitPlanning)
	pl := planner.New(resolver.NewAllocator())
	plan, err := pl.Plan(t, unit.Target)
	if err != nil {
		return fail(err)
	}
	outcome.Created = plan.Created
	outcome.Removed = plan.Removed
	outcome.Updated = plan.Updated

	if plan.Empty() {
		d.step(unit.Scope, &state, treetypes.UnitCommitted)
		outcome.State = treetypes.UnitCommitted
		outcome.Duration = time.Since(start)
		d.cfg.Logger.Info("unit already in desired state", "scope", unit.Scope)
		return outcome
	}

	d.step(unit.Scope, &state, treetypes.UnitExecuting)
	res := resolver.New()
	for i, batch := range plan.Batches {
		if i > 0 {
			if err := d.exec.Delay(ctx); err != nil {
				return fail(lserrors.NewScoped("submit", unit.Scope, lserrors.CodeTransient,
					fmt.Errorf("canceled between batches: %w", err)))
			}
		}
		if err := res.Patch(batch.Ops); err != nil {
			return fail(err)
		}
		result, retries, err := d.exec.Submit(ctx, unit.Scope, batch.Ops)
		outcome.Retries += retries
		if err != nil {
			return fail(err)
		}
		if err := res.Record(batch.Ops, result); err != nil {
			return fail(err)
		}
		outcome.Batches++
	}

	d.step(unit.Scope, &state, treetypes.UnitCommitted)
	outcome.State = treetypes.UnitCommitted
	outcome.Duration = time.Since(start)
	d.cfg.Logger.Info("unit committed",
		"scope", unit.Scope,
		"batches", outcome.Batches,
		"created", outcome.Created,
		"removed", outcome.Removed,
		"updated", outcome.Updated,
		"retries", outcome.Retries,
	)
	return outcome
}

// readTree fetches the scope's tree, treating an absent tree as empty.
func (d *Driver) readTree(ctx context.Context, scope string) (*tree.Tree, error) {
	t, err := d.reader.Read(ctx, scope)
	if err != nil {
		if lserrors.IsNotFound(err) {
			return tree.New(), nil
		}
		return nil, err
	}
	return t, nil
}

func (d *Driver) step(scope string, state *treetypes.UnitState, to treetypes.UnitState) {
	if !CanTransition(*state, to) {
		// Illegal transitions are programming errors; log loudly but keep
		// the unit moving so the run still records an outcome.
		d.cfg.Logger.Error("illegal unit state transition",
			"scope", scope,
			"from", string(*state),
			"to", string(to),
		)
	}
	d.cfg.Logger.Debug("unit state transition",
		"scope", scope,
		"from", string(*state),
		"to", string(to),
	)
	*state = to
}

func (d *Driver) saveCheckpoint(result *treetypes.RunResult, nextUnit int) {
	cp := &treetypes.Checkpoint{
		RunID:     result.RunID,
		NextUnit:  nextUnit,
		Outcomes:  result.Outcomes,
		UpdatedAt: time.Now().UTC(),
	}
	if err := d.cfg.Store.Save(cp); err != nil {
		d.cfg.Logger.Warn("checkpoint save failed",
			"run_id", result.RunID,
			"next_unit", nextUnit,
			"error", err,
		)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
