package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics provides observability for the card ledger.
type Metrics struct {
	// Operation outcomes by operation and result
	OperationOutcome *prometheus.CounterVec

	// Operation latency by operation
	OperationLatency *prometheus.HistogramVec

	TotalCards prometheus.Gauge

	// Events delivered by the outbox relay, by sink
	EventsPublished *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
}

// New registers the ledger metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "card_ledger_operations_total",
			Help: "Total card ledger operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "card_ledger_operation_duration_seconds",
			Help:    "Duration of card ledger operations including the transfer call",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),

		TotalCards: factory.NewGauge(prometheus.GaugeOpts{
			Name: "card_ledger_total_cards",
			Help: "Cards ever created, as recorded by the registry",
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "card_ledger_events_published_total",
			Help: "Ledger events delivered downstream by sink",
		}, []string{"sink"}),

		PublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "card_ledger_event_publish_failures_total",
			Help: "Failed event relay batches by sink",
		}, []string{"sink"}),
	}
}

// ObserveOperation records the outcome and latency of one engine operation.
func (m *Metrics) ObserveOperation(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.OperationOutcome.WithLabelValues(operation, outcome).Inc()
	m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// SetTotalCards mirrors the registry counter.
func (m *Metrics) SetTotalCards(n uint64) {
	if m != nil {
		m.TotalCards.Set(float64(n))
	}
}

// AddPublished records events delivered to sink.
func (m *Metrics) AddPublished(sink string, n int) {
	if m != nil {
		m.EventsPublished.WithLabelValues(sink).Add(float64(n))
	}
}

// IncrementPublishFailure records a failed relay batch.
func (m *Metrics) IncrementPublishFailure(sink string) {
	if m != nil {
		m.PublishFailures.WithLabelValues(sink).Inc()
	}
}
