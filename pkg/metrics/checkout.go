package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels used by the checkout pipeline.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeDocument = "document_error"
	OutcomeDispatch = "dispatch_error"
)

// CheckoutMetrics records order pipeline executions.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	attempts *prometheus.CounterVec
	pages    prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout submissions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout submissions by outcome.",
	}, []string{"outcome"})
	pages := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_document_pages",
		Help:    "Number of pages in generated order documents.",
		Buckets: []float64{1, 2, 3, 5, 8, 13},
	})
	reg.MustRegister(duration, attempts, pages)
	return &CheckoutMetrics{
		duration: duration,
		attempts: attempts,
		pages:    pages,
	}
}

// Observe records one checkout attempt with its outcome and duration.
func (c *CheckoutMetrics) Observe(outcome string, duration time.Duration) {
	if c == nil || c.attempts == nil {
		return
	}
	label := normalizeLabel(outcome)
	c.attempts.WithLabelValues(label).Inc()
	c.duration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObservePages records the page count of a generated document.
func (c *CheckoutMetrics) ObservePages(pages int) {
	if c == nil || c.pages == nil {
		return
	}
	c.pages.Observe(float64(pages))
}

// StateMetrics tracks durable mirroring of session state.
type StateMetrics struct {
	writes   *prometheus.CounterVec
	failures *prometheus.CounterVec
	corrupt  *prometheus.CounterVec
}

// NewStateMetrics registers the state persistence metrics.
func NewStateMetrics(reg prometheus.Registerer) *StateMetrics {
	if reg == nil {
		return &StateMetrics{}
	}
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "state_persist_total",
		Help: "Durable writes of session collections.",
	}, []string{"collection"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "state_persist_failures_total",
		Help: "Failed durable writes of session collections.",
	}, []string{"collection"})
	corrupt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "state_rehydrate_corrupt_total",
		Help: "Collections discarded during rehydration because they could not be parsed.",
	}, []string{"collection"})
	reg.MustRegister(writes, failures, corrupt)
	return &StateMetrics{writes: writes, failures: failures, corrupt: corrupt}
}

// IncWrite counts a durable write attempt.
func (s *StateMetrics) IncWrite(collection string) {
	if s == nil || s.writes == nil {
		return
	}
	s.writes.WithLabelValues(normalizeLabel(collection)).Inc()
}

// IncFailure counts a failed durable write.
func (s *StateMetrics) IncFailure(collection string) {
	if s == nil || s.failures == nil {
		return
	}
	s.failures.WithLabelValues(normalizeLabel(collection)).Inc()
}

// IncCorrupt counts a collection dropped during rehydration.
func (s *StateMetrics) IncCorrupt(collection string) {
	if s == nil || s.corrupt == nil {
		return
	}
	s.corrupt.WithLabelValues(normalizeLabel(collection)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
