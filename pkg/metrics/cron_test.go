package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronJobMetricsRecordsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("checkout-session-expiry", 250*time.Millisecond, nil)
	m.ObserveRun("checkout-session-expiry", 50*time.Millisecond, errors.New("boom"))
	m.ObserveRun("", time.Millisecond, nil)
	m.IncSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	cases := []struct {
		labels map[string]string
		want   float64
	}{
		{map[string]string{"job": "checkout-session-expiry", "result": "success"}, 1},
		{map[string]string{"job": "checkout-session-expiry", "result": "failure"}, 1},
		{map[string]string{"job": "unknown", "result": "success"}, 1},
	}
	for _, tc := range cases {
		got, err := fetchCounterValue(mfs, "cron_job_runs_total", tc.labels)
		if err != nil {
			t.Fatalf("fetch runs: %v", err)
		}
		if got != tc.want {
			t.Fatalf("runs%v = %f, want %f", tc.labels, got, tc.want)
		}
	}

	hist, err := fetchHistogram(mfs, "cron_job_duration_seconds", map[string]string{"job": "checkout-session-expiry"})
	if err != nil {
		t.Fatalf("fetch duration: %v", err)
	}
	if hist.GetSampleCount() != 2 || hist.GetSampleSum() < 0.3 {
		t.Fatalf("unexpected histogram count=%d sum=%f", hist.GetSampleCount(), hist.GetSampleSum())
	}

	if got, err := fetchCounterValue(mfs, "cron_cycles_skipped_total", nil); err != nil || got != 1 {
		t.Fatalf("skipped = %f, err %v", got, err)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, nil)
	m.IncSkipped()
	NewCronJobMetrics(nil).ObserveRun("job", time.Second, errors.New("x"))
}
