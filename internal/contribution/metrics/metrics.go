package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the contribution module.
type Metrics struct {
	// Payment outcomes by result (recorded, replayed, rejected)
	PaymentOutcome *prometheus.CounterVec

	// Dues created per generation run
	DuesGenerated prometheus.Counter

	// Sweep transitions by target status
	OverdueTransitions *prometheus.CounterVec

	// Payment recording latency
	PaymentLatency prometheus.Histogram
}

// New creates a Metrics instance with all contribution module metrics registered.
func New() *Metrics {
	return &Metrics{
		PaymentOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fundpool_contribution_payment_outcomes_total",
			Help: "Total payment recording outcomes by result",
		}, []string{"result"}), // result: "recorded", "replayed", "rejected"

		DuesGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fundpool_contribution_dues_generated_total",
			Help: "Total contribution dues created by cycle generation",
		}),

		OverdueTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fundpool_contribution_overdue_transitions_total",
			Help: "Total sweep transitions by target status",
		}, []string{"status"}),

		PaymentLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundpool_contribution_payment_duration_seconds",
			Help:    "Duration of payment recording including ledger append",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementPaymentOutcome records a payment recording outcome.
func (m *Metrics) IncrementPaymentOutcome(result string) {
	if m != nil {
		m.PaymentOutcome.WithLabelValues(result).Inc()
	}
}

// AddDuesGenerated records dues created by a generation run.
func (m *Metrics) AddDuesGenerated(n int) {
	if m != nil {
		m.DuesGenerated.Add(float64(n))
	}
}

// IncrementOverdueTransitions records sweep transitions.
func (m *Metrics) IncrementOverdueTransitions(status string, n int) {
	if m != nil {
		m.OverdueTransitions.WithLabelValues(status).Add(float64(n))
	}
}

// ObservePaymentLatency records the payment recording duration.
func (m *Metrics) ObservePaymentLatency(d time.Duration) {
	if m != nil {
		m.PaymentLatency.Observe(d.Seconds())
	}
}
