package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.ObservePublished("order_paid", time.Now().Add(-2*time.Second))
	m.ObservePublished("order_paid", time.Time{})
	m.IncRetried("checkout_session_expired")
	m.IncDeadLettered("max_attempts")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_published_total", map[string]string{"event_type": "order_paid"}); err != nil || got != 2 {
		t.Fatalf("expected published=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_retried_total", map[string]string{"event_type": "checkout_session_expired"}); err != nil || got != 1 {
		t.Fatalf("expected retried=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_dead_lettered_total", map[string]string{"reason": "max_attempts"}); err != nil || got != 1 {
		t.Fatalf("expected dead_lettered=1, got %f (%v)", got, err)
	}
	latency, err := fetchHistogram(mfs, "outbox_publish_latency_seconds", nil)
	if err != nil || latency.GetSampleCount() != 1 {
		t.Fatalf("expected one latency sample (%v)", err)
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.ObservePublished("order_paid", time.Now())
	m.IncRetried("order_paid")
	m.IncDeadLettered("non_retryable")

	NewOutboxMetrics(nil).IncRetried("order_paid")
}
