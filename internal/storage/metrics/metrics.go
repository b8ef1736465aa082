package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the write-through replication path.
type Metrics struct {
	Enqueued   *prometheus.CounterVec
	Replicated *prometheus.CounterVec
	Retried    *prometheus.CounterVec
	Failed     *prometheus.CounterVec
}

// New creates a new Metrics instance with all replication metrics registered.
func New() *Metrics {
	return &Metrics{
		Enqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_replication_enqueued_total",
			Help: "Durable-store ops enqueued behind cache mutations",
		}, []string{"entity"}),
		Replicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_replication_applied_total",
			Help: "Durable-store ops applied successfully",
		}, []string{"entity"}),
		Retried: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_replication_retries_total",
			Help: "Durable-store op retry attempts",
		}, []string{"entity"}),
		Failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_replication_failed_total",
			Help: "Durable-store ops dropped after exhausting retries",
		}, []string{"entity"}),
	}
}

func (m *Metrics) IncrementEnqueued(entity string)   { m.Enqueued.WithLabelValues(entity).Inc() }
func (m *Metrics) IncrementReplicated(entity string) { m.Replicated.WithLabelValues(entity).Inc() }
func (m *Metrics) IncrementRetried(entity string)    { m.Retried.WithLabelValues(entity).Inc() }
func (m *Metrics) IncrementFailed(entity string)     { m.Failed.WithLabelValues(entity).Inc() }
