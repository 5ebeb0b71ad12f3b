// Package metrics exposes Prometheus collectors for the watch party hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "watchparty"

// Metrics groups the hub collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Connections      prometheus.Gauge
	RosterSize       prometheus.Gauge
	InboundEvents    *prometheus.CounterVec
	MalformedEvents  *prometheus.CounterVec
	Broadcasts       *prometheus.CounterVec
	Deliveries       prometheus.Counter
	DroppedDelivery  prometheus.Counter
	BusEventsApplied prometheus.Counter
}

// New registers the hub collectors on reg
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Open websocket connections.",
		}),
		RosterSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "roster_size",
			Help:      "Registered participants.",
		}),
		InboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound events by name.",
		}, []string{"event"}),
		MalformedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_events_total",
			Help:      "Dropped inbound events by name.",
		}, []string{"event"}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Fan-outs by outbound event name.",
		}, []string{"event"}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Messages queued for a connection.",
		}),
		DroppedDelivery: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Messages that could not be queued for a connection.",
		}),
		BusEventsApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_applied_total",
			Help:      "Player states received from other hub instances.",
		}),
	}
}

// Handler exposes the registry at /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) SetRosterSize(n int) {
	if m != nil {
		m.RosterSize.Set(float64(n))
	}
}

func (m *Metrics) Inbound(event string) {
	if m != nil {
		m.InboundEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Malformed(event string) {
	if m != nil {
		m.MalformedEvents.WithLabelValues(event).Inc()
	}
}

// Broadcast records one fan-out and its per-recipient outcome
func (m *Metrics) Broadcast(event string, delivered, dropped int) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(event).Inc()
	m.Deliveries.Add(float64(delivered))
	m.DroppedDelivery.Add(float64(dropped))
}

func (m *Metrics) BusApplied() {
	if m != nil {
		m.BusEventsApplied.Inc()
	}
}
