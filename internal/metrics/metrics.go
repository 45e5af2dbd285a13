// Package metrics provides Prometheus instrumentation for reconciliation
// runs. A nil *Metrics is valid and records nothing, so callers never guard
// call sites.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one client.
type Metrics struct {
	batchesSubmitted prometheus.Counter
	batchRetries     prometheus.Counter
	batchFailures    *prometheus.CounterVec
	batchDuration    prometheus.Histogram
	unitsCommitted   prometheus.Counter
	unitsFailed      prometheus.Counter
	unitsSkipped     prometheus.Counter
}

// New registers the reconciliation collectors with reg and returns the
// recording handle. A nil registerer disables metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &Metrics{
		batchesSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "listingsync",
			Name:      "batches_submitted_total",
			Help:      "Number of mutate batches that committed.",
		}),
		batchRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "listingsync",
			Name:      "batch_retries_total",
			Help:      "Number of batch submissions beyond the first attempt.",
		}),
		batchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listingsync",
			Name:      "batch_failures_total",
			Help:      "Number of batches that exhausted retries or failed fast, by error code.",
		}, []string{"code"}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "listingsync",
			Name:      "batch_duration_seconds",
			Help:      "Wall time per committed batch, including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		unitsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "listingsync",
			Name:      "units_committed_total",
			Help:      "Number of reconciliation units that committed.",
		}),
		unitsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "listingsync",
			Name:      "units_failed_total",
			Help:      "Number of reconciliation units that failed.",
		}),
		unitsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "listingsync",
			Name:      "units_skipped_total",
			Help:      "Number of units skipped because a checkpoint covered them.",
		}),
	}
}

// BatchSubmitted records a committed batch and its duration.
func (m *Metrics) BatchSubmitted(d time.Duration) {
	if m == nil {
		return
	}
	m.batchesSubmitted.Inc()
	m.batchDuration.Observe(d.Seconds())
}

// BatchRetried records one submission beyond a batch's first attempt.
func (m *Metrics) BatchRetried() {
	if m == nil {
		return
	}
	m.batchRetries.Inc()
}

// BatchFailed records a batch that could not be committed.
func (m *Metrics) BatchFailed(code string) {
	if m == nil {
		return
	}
	m.batchFailures.WithLabelValues(code).Inc()
}

// UnitCommitted records a successfully reconciled unit.
func (m *Metrics) UnitCommitted() {
	if m == nil {
		return
	}
	m.unitsCommitted.Inc()
}

// UnitFailed records a unit that ended in failure.
func (m *Metrics) UnitFailed() {
	if m == nil {
		return
	}
	m.unitsFailed.Inc()
}

// UnitSkipped records a unit skipped during checkpoint resume.
func (m *Metrics) UnitSkipped() {
	if m == nil {
		return
	}
	m.unitsSkipped.Inc()
}
