package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity resolution.
type Metrics struct {
	ItemsCreated      prometheus.Counter
	ItemsEnriched     prometheus.Counter
	IdentityConflicts prometheus.Counter
	ResolveDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all resolver metrics registered.
func New() *Metrics {
	return &Metrics{
		ItemsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_items_created_total",
			Help: "Total items allocated with a fresh dfid",
		}),
		ItemsEnriched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_items_enriched_total",
			Help: "Total submissions merged into an existing item",
		}),
		IdentityConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestor_identity_conflicts_total",
			Help: "Total resolutions rejected for matching multiple dfids",
		}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestor_resolve_duration_seconds",
			Help:    "Duration of identity resolution (push critical path)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// IncrementItemsCreated records a fresh dfid allocation.
func (m *Metrics) IncrementItemsCreated() { m.ItemsCreated.Inc() }

// IncrementItemsEnriched records a merge into an existing item.
func (m *Metrics) IncrementItemsEnriched() { m.ItemsEnriched.Inc() }

// IncrementIdentityConflicts records an ambiguous resolution rejection.
func (m *Metrics) IncrementIdentityConflicts() { m.IdentityConflicts.Inc() }

// ObserveResolve records the duration of a resolution.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
