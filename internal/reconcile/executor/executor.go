// Package executor submits planned batches to the remote service and owns
// the retry policy. Retry decisions live here and nowhere else: the reader,
// planner and driver never re-check retryability.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/internal/metrics"
	"github.com/feedops/listingsync/treeapi"
	"github.com/feedops/listingsync/treetypes"
)

// Defaults applied by New when the config leaves a field zero.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 8 * time.Second
	DefaultRequestDelay   = 500 * time.Millisecond
)

// Config holds executor settings.
type Config struct {
	// MaxAttempts bounds submissions per batch, including the first
	MaxAttempts int

	// InitialBackoff is the first retry delay
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration

	// CallTimeout bounds each mutate call; zero means no per-call timeout
	CallTimeout time.Duration

	// RequestDelay is the pause between successive successful submissions
	RequestDelay time.Duration

	// Logger receives submission logs; nil falls back to slog.Default
	Logger *slog.Logger

	// Metrics records submission counters; nil disables recording
	Metrics *metrics.Metrics
}

// Executor submits batches with bounded retry.
type Executor struct {
	api treeapi.TreeService
	cfg Config
}

// New creates an executor over the remote service, filling config defaults.
func New(api treeapi.TreeService, cfg Config) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{api: api, cfg: cfg}
}

// Submit sends one batch, retrying conflicts and transient failures with
// exponential backoff up to MaxAttempts total submissions. Invalid batches
// and unknown errors fail fast with no delay. The second return value is
// the number of submissions beyond the first.
//
// The batch is atomic remotely: a failed attempt changed nothing, so
// resubmitting the identical operations is safe.
func (e *Executor) Submit(ctx context.Context, scope string, ops []treetypes.Operation) (*treetypes.MutateResult, int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.InitialBackoff
	bo.MaxInterval = e.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	start := time.Now()
	for attempt := 1; ; attempt++ {
		res, err := e.mutate(ctx, scope, ops)
		if err == nil {
			e.cfg.Metrics.BatchSubmitted(time.Since(start))
			e.cfg.Logger.Debug("batch committed",
				"scope", scope,
				"ops", len(ops),
				"attempt", attempt,
			)
			return res, attempt - 1, nil
		}

		code := lserrors.Classify(err)
		if !lserrors.IsRetryable(code) || attempt >= e.cfg.MaxAttempts {
			e.cfg.Metrics.BatchFailed(string(code))
			e.cfg.Logger.Error("batch failed",
				"scope", scope,
				"ops", len(ops),
				"attempt", attempt,
				"code", string(code),
				"error", err,
			)
			return nil, attempt - 1, lserrors.NewScoped("submit", scope, code,
				fmt.Errorf("mutate batch of %d ops: %w", len(ops), err))
		}

		wait := bo.NextBackOff()
		e.cfg.Metrics.BatchRetried()
		e.cfg.Logger.Warn("batch submission retrying",
			"scope", scope,
			"attempt", attempt,
			"code", string(code),
			"backoff", wait,
			"error", err,
		)
		if err := sleep(ctx, wait); err != nil {
			e.cfg.Metrics.BatchFailed(string(lserrors.CodeTransient))
			return nil, attempt - 1, lserrors.NewScoped("submit", scope, lserrors.CodeTransient,
				fmt.Errorf("canceled while backing off: %w", err))
		}
	}
}

// Delay pauses for the configured inter-request delay, returning early if
// the context is canceled. Called between successful submissions only.
func (e *Executor) Delay(ctx context.Context) error {
	return sleep(ctx, e.cfg.RequestDelay)
}

func (e *Executor) mutate(ctx context.Context, scope string, ops []treetypes.Operation) (*treetypes.MutateResult, error) {
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	return e.api.Mutate(ctx, scope, ops)
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
