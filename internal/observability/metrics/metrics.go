// Package metrics exposes prometheus instrumentation for the core booking
// pipeline. All observe methods are nil-safe so callers can run without a
// registry in tests.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics covers conversation turns, availability lookups, and
// reservation creation.
type BookingMetrics struct {
	turnsTotal        *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
	reservationsTotal *prometheus.CounterVec
	busyCacheTotal    *prometheus.CounterVec
	reviewSweepTotal  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resaflow",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns processed, by outcome",
		}, []string{"outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "resaflow",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resaflow",
			Subsystem: "reservations",
			Name:      "created_total",
			Help:      "Reservations created, by mode (calendar, local_only)",
		}, []string{"mode"}),
		busyCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resaflow",
			Subsystem: "calendar",
			Name:      "busy_cache_total",
			Help:      "Busy-interval cache lookups, by result",
		}, []string{"result"}),
		reviewSweepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resaflow",
			Subsystem: "review",
			Name:      "sweep_total",
			Help:      "Review sweep dispatch results",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.reservationsTotal, m.busyCacheTotal, m.reviewSweepTotal)
	return m
}

func (m *BookingMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveTurnLatency(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *BookingMetrics) ObserveReservation(mode string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(mode).Inc()
}

func (m *BookingMetrics) ObserveBusyCache(result string) {
	if m == nil {
		return
	}
	m.busyCacheTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveReviewSweep(status string) {
	if m == nil {
		return
	}
	m.reviewSweepTotal.WithLabelValues(status).Inc()
}
