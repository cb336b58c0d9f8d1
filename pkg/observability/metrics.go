// Package observability exposes the supervisor's Prometheus metrics:
// transition counts by operation and outcome, datagram delivery counters and
// order-generation totals.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the supervisor's instruments. A nil *Metrics is valid and
// records nothing, so wiring metrics stays optional.
type Metrics struct {
	transitions      *prometheus.CounterVec
	datagramsSent    prometheus.Counter
	datagramFailures prometheus.Counter
	ordersGenerated  prometheus.Counter
	countdownActive  prometheus.Gauge
}

// New registers the supervisor metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vrsupervisor",
			Name:      "transitions_total",
			Help:      "Session transitions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		datagramsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vrsupervisor",
			Name:      "datagrams_sent_total",
			Help:      "UDP command datagrams handed to the network.",
		}),
		datagramFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vrsupervisor",
			Name:      "datagram_failures_total",
			Help:      "UDP command datagrams that failed to send.",
		}),
		ordersGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vrsupervisor",
			Name:      "orders_generated_total",
			Help:      "Orders produced by set generation.",
		}),
		countdownActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vrsupervisor",
			Name:      "countdown_active",
			Help:      "1 while a condition countdown is running.",
		}),
	}
}

// ObserveTransition records one operation attempt and its outcome.
func (m *Metrics) ObserveTransition(operation string, ok bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if ok {
		outcome = "applied"
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// ObserveDatagram records one send attempt.
func (m *Metrics) ObserveDatagram(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.datagramFailures.Inc()
		return
	}
	m.datagramsSent.Inc()
}

// ObserveOrdersGenerated records a completed generation run.
func (m *Metrics) ObserveOrdersGenerated(n int) {
	if m == nil {
		return
	}
	m.ordersGenerated.Add(float64(n))
}

// SetCountdownActive mirrors the timer flag onto the gauge.
func (m *Metrics) SetCountdownActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.countdownActive.Set(1)
		return
	}
	m.countdownActive.Set(0)
}
