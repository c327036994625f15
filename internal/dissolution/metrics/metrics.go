package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the dissolution module.
type Metrics struct {
	// Lifecycle transitions by outcome (initiated, calculated, confirmed, blocked)
	Lifecycle *prometheus.CounterVec

	// Line items produced per calculation pass
	LineItems prometheus.Histogram

	// Recalculation latency including projection reads
	CalculationLatency prometheus.Histogram
}

// New creates a Metrics instance with all dissolution module metrics registered.
func New() *Metrics {
	return &Metrics{
		Lifecycle: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fundpool_dissolution_lifecycle_total",
			Help: "Total settlement lifecycle transitions by outcome",
		}, []string{"outcome"}), // outcome: "initiated", "calculated", "confirmed", "blocked"

		LineItems: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundpool_dissolution_line_items",
			Help:    "Line items produced per calculation pass",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		CalculationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundpool_dissolution_calculation_duration_seconds",
			Help:    "Duration of settlement recalculation including projection reads",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementLifecycle records a settlement lifecycle transition.
func (m *Metrics) IncrementLifecycle(outcome string) {
	if m != nil {
		m.Lifecycle.WithLabelValues(outcome).Inc()
	}
}

// ObserveCalculation records one calculation pass.
func (m *Metrics) ObserveCalculation(lineItems int, seconds float64) {
	if m != nil {
		m.LineItems.Observe(float64(lineItems))
		m.CalculationLatency.Observe(seconds)
	}
}
