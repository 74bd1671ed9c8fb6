package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcileMetrics counts payment outcome signals and fulfillment shortfalls.
type ReconcileMetrics struct {
	signals    *prometheus.CounterVec
	shortfalls prometheus.Counter
}

// NewReconcileMetrics registers the reconcile metrics on the provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	signals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_signals_total",
		Help: "Payment outcome signals processed, by source and outcome.",
	}, []string{"source", "outcome"})
	shortfalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "materialize_shortfalls_total",
		Help: "Orders materialized with at least one stock shortfall.",
	})
	reg.MustRegister(signals, shortfalls)
	return &ReconcileMetrics{signals: signals, shortfalls: shortfalls}
}

// IncSignal records one processed signal.
func (m *ReconcileMetrics) IncSignal(source, outcome string) {
	if m == nil || m.signals == nil {
		return
	}
	m.signals.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (m *ReconcileMetrics) IncShortfall() {
	if m == nil || m.shortfalls == nil {
		return
	}
	m.shortfalls.Inc()
}
