package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the realtime collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry bookkeeping.
type Metrics struct {
	connections   prometheus.Gauge
	eventsSent    *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	reaped        prometheus.Counter
}

// NewMetrics registers the realtime collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "callboard",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Currently registered websocket connections.",
		}),
		eventsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callboard",
			Subsystem: "realtime",
			Name:      "events_sent_total",
			Help:      "Events enqueued to connection send queues, by envelope type.",
		}, []string{"type"}),
		eventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callboard",
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a send queue was full or closing, by envelope type.",
		}, []string{"type"}),
		reaped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "callboard",
			Subsystem: "realtime",
			Name:      "connections_reaped_total",
			Help:      "Connections unregistered by the liveness reaper.",
		}),
	}
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) eventSent(typ string) {
	if m == nil {
		return
	}
	m.eventsSent.WithLabelValues(typ).Inc()
}

func (m *Metrics) eventDropped(typ string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(typ).Inc()
}

func (m *Metrics) connReaped() {
	if m == nil {
		return
	}
	m.reaped.Inc()
}
