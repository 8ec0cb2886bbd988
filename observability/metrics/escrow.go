package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics tracks instruction execution and order lifecycle movement.
type EscrowMetrics struct {
	instructions *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	events       *prometheus.CounterVec
	lockWait     prometheus.Histogram
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "seaescrow",
				Name:      "instructions_total",
				Help:      "Executed instructions by kind and outcome (ok or the error class).",
			}, []string{"kind", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "seaescrow",
				Name:      "instruction_duration_seconds",
				Help:      "Time from lock acquisition to commit or discard.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "seaescrow",
				Name:      "events_total",
				Help:      "Committed events by type.",
			}, []string{"type"}),
			lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "seaescrow",
				Name:      "account_lock_wait_seconds",
				Help:      "Time spent waiting for account locks.",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1},
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.instructions,
			escrowRegistry.latency,
			escrowRegistry.events,
			escrowRegistry.lockWait,
		)
	})
	return escrowRegistry
}

func (m *EscrowMetrics) ObserveInstruction(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.instructions.WithLabelValues(kind, outcome).Inc()
	m.latency.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *EscrowMetrics) RecordEvent(eventType string) {
	if m == nil || eventType == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *EscrowMetrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}
