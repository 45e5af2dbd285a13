package listingsync

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/feedops/listingsync/treetypes"
)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) treetypes.Option {
	return func(cfg *treetypes.ClientConfig) {
		cfg.Logger = logger
	}
}

// WithMaxAttempts bounds submissions per batch, including the first.
func WithMaxAttempts(n int) treetypes.Option {
	return func(cfg *treetypes.ClientConfig) {
		cfg.MaxAttempts = n
	}
}

// WithBackoff sets the initial and maximum retry delays for retryable
// batch failures.
func WithBackoff(initial, max time.Duration) treetypes.Option {
	return func(cfg *treetypes.ClientConfig) {
		cfg.InitialBackoff = initial
		cfg.MaxBackoff = max
	}
}

// WithRequestDelay sets the pause between successive successful batch
// submissions.
func WithRequestDelay(d time.Duration) treetypes.Option {
	return func(cfg *treetypes.ClientConfig) {
		cfg.RequestDelay = d
	}
}

// WithUnitDelay sets the pause between reconciliation units.
func WithUnitDelay(d time.Duration) treetypes.Option {
	return func(cfg *treetypes.ClientConfig) {
		cfg.UnitDelay = d
	}
}

// WithCallTimeout bounds each remote call. Zero disables the per-call
// timeout, leaving the caller's context deadline in charge.
func WithCallTimeout(d time.Duration) treetypes.Option {
	return func(cfg *treetypes.ClientConfig) {
		cfg.CallTimeout = d
	}
}

// WithCheckpointStore enables crash-resumable runs backed by the store.
func WithCheckpointStore(store treetypes.CheckpointStore) treetypes.Option {
	return func(cfg *treetypes.ClientConfig) {
		cfg.CheckpointStore = store
	}
}

// WithCheckpointInterval sets the number of processed units between
// checkpoint saves.
func WithCheckpointInterval(n int) treetypes.Option {
	return func(cfg *treetypes.ClientConfig) {
		cfg.CheckpointInterval = n
	}
}

// WithMetricsRegisterer registers the client's Prometheus collectors with
// reg. Nil disables metrics.
func WithMetricsRegisterer(reg prometheus.Registerer) treetypes.Option {
	return func(cfg *treetypes.ClientConfig) {
		cfg.Registerer = reg
	}
}
