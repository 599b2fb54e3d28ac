package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCheckoutMetrics(reg)
	metrics.Observe(OutcomeSuccess, 250*time.Millisecond)
	metrics.Observe(OutcomeDispatch, 100*time.Millisecond)
	metrics.ObservePages(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "checkout_attempts_total", "outcome", OutcomeSuccess); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "checkout_attempts_total", "outcome", OutcomeDispatch); err != nil {
		t.Fatalf("fetch dispatch: %v", err)
	} else if got != 1 {
		t.Fatalf("expected dispatch=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "checkout_duration_seconds", "outcome", OutcomeSuccess); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestStateMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewStateMetrics(reg)
	metrics.IncWrite("cart")
	metrics.IncWrite("cart")
	metrics.IncFailure("cart")
	metrics.IncCorrupt("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "state_persist_total", "collection", "cart"); err != nil || got != 2 {
		t.Fatalf("expected 2 writes, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "state_rehydrate_corrupt_total", "collection", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected 1 corrupt under unknown label, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var checkout *CheckoutMetrics
	checkout.Observe(OutcomeSuccess, time.Second)
	checkout.ObservePages(1)

	var state *StateMetrics
	state.IncWrite("cart")

	NewCheckoutMetrics(nil).Observe(OutcomeRejected, 0)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
