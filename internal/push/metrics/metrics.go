// Package metrics provides observability for the push state machine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks push, publish, and confirmation activity.
type Metrics struct {
	PushesTotal        *prometheus.CounterVec
	ApprovalDecisions  *prometheus.CounterVec
	PublishToggles     *prometheus.CounterVec
	LedgerConfirmations prometheus.Counter
}

// New creates a new Metrics instance with all push metrics registered.
func New() *Metrics {
	return &Metrics{
		PushesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_pushes_total",
			Help: "Total pushes by outcome",
		}, []string{"outcome"}),
		ApprovalDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_push_approval_decisions_total",
			Help: "Total approve/reject decisions on gated pushes",
		}, []string{"decision"}),
		PublishToggles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_publish_toggles_total",
			Help: "Total publish/unpublish operations that changed state",
		}, []string{"action"}),
		LedgerConfirmations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_ledger_confirmations_total",
			Help: "Total ledger confirmations applied to pending items",
		}),
	}
}

// IncrementPushes records a push by outcome.
func (m *Metrics) IncrementPushes(outcome string) {
	if m == nil {
		return
	}
	m.PushesTotal.WithLabelValues(outcome).Inc()
}

// IncrementDecision records an approval decision.
func (m *Metrics) IncrementDecision(decision string) {
	if m == nil {
		return
	}
	m.ApprovalDecisions.WithLabelValues(decision).Inc()
}

// IncrementPublishToggle records a publish-list change.
func (m *Metrics) IncrementPublishToggle(action string) {
	if m == nil {
		return
	}
	m.PublishToggles.WithLabelValues(action).Inc()
}

// IncrementLedgerConfirmations records an applied confirmation.
func (m *Metrics) IncrementLedgerConfirmations() {
	if m == nil {
		return
	}
	m.LedgerConfirmations.Inc()
}
