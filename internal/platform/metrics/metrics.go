package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics. Domain-specific metrics
// live in each domain's metrics package.
type Metrics struct {
	EventsPublished *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
}

// New creates and registers process-level metrics.
func New() *Metrics {
	return &Metrics{
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fundpool_events_published_total",
			Help: "Integration events published, by event type",
		}, []string{"type"}),
		EventsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fundpool_events_consumed_total",
			Help: "Integration events consumed, by event type and outcome",
		}, []string{"type", "outcome"}),
	}
}
