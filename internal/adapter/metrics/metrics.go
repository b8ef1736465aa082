// Package metrics provides observability for the adapter gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks external-commit outcomes per adapter kind.
type Metrics struct {
	CommitsConfirmed *prometheus.CounterVec
	CommitsPending   *prometheus.CounterVec
	ContentFailures  *prometheus.CounterVec
	LedgerFailures   *prometheus.CounterVec
	CommitDuration   *prometheus.HistogramVec
}

// New creates a new Metrics instance with all gateway metrics registered.
func New() *Metrics {
	return &Metrics{
		CommitsConfirmed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_adapter_commits_confirmed_total",
			Help: "Total external commits fully confirmed",
		}, []string{"kind"}),
		CommitsPending: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_adapter_commits_pending_total",
			Help: "Total commits degraded to pending after ledger failure",
		}, []string{"kind"}),
		ContentFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_adapter_content_failures_total",
			Help: "Total commits aborted at the content step",
		}, []string{"kind"}),
		LedgerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_adapter_ledger_failures_total",
			Help: "Total ledger registrations that failed or timed out",
		}, []string{"kind"}),
		CommitDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attestor_adapter_commit_duration_seconds",
			Help:    "Duration of external commits including the ledger step",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"kind"}),
	}
}

// IncrementConfirmed records a fully confirmed commit.
func (m *Metrics) IncrementConfirmed(kind string) {
	if m == nil {
		return
	}
	m.CommitsConfirmed.WithLabelValues(kind).Inc()
}

// IncrementPending records a commit degraded to pending.
func (m *Metrics) IncrementPending(kind string) {
	if m == nil {
		return
	}
	m.CommitsPending.WithLabelValues(kind).Inc()
}

// IncrementContentFailure records a content-step abort.
func (m *Metrics) IncrementContentFailure(kind string) {
	if m == nil {
		return
	}
	m.ContentFailures.WithLabelValues(kind).Inc()
}

// IncrementLedgerFailure records a failed ledger registration.
func (m *Metrics) IncrementLedgerFailure(kind string) {
	if m == nil {
		return
	}
	m.LedgerFailures.WithLabelValues(kind).Inc()
}

// ObserveCommit records the duration of a commit attempt.
func (m *Metrics) ObserveCommit(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.CommitDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
