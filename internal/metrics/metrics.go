// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsIngested *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	joinAttempts   *prometheus.CounterVec
	effects        *prometheus.CounterVec
	pushCues       *prometheus.CounterVec
	connected      prometheus.Gauge
	reconnects     prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		eventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kitchen_events_ingested_total",
				Help: "Realtime events applied to the order state",
			},
			[]string{"type"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kitchen_events_dropped_total",
				Help: "Realtime events dropped before or during apply",
			},
			[]string{"reason"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kitchen_notifications_created_total",
				Help: "Notifications added to the list",
			},
			[]string{"type"},
		),
		joinAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kitchen_room_join_attempts_total",
				Help: "Kitchen room join attempts by result",
			},
			[]string{"result"},
		),
		effects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kitchen_effects_total",
				Help: "Outbound effects executed by result",
			},
			[]string{"effect", "result"},
		),
		pushCues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kitchen_push_cues_total",
				Help: "Web push cues by result",
			},
			[]string{"result"},
		),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kitchen_socket_connected",
			Help: "1 while the realtime socket is connected",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kitchen_socket_reconnects_total",
			Help: "Successful socket connections after the first one",
		}),
	}

	registry.MustRegister(
		m.eventsIngested,
		m.eventsDropped,
		m.notifications,
		m.joinAttempts,
		m.effects,
		m.pushCues,
		m.connected,
		m.reconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventIngested(eventType string) {
	if m != nil {
		m.eventsIngested.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) EventDropped(reason string) {
	if m != nil {
		m.eventsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) NotificationCreated(notificationType string) {
	if m != nil {
		m.notifications.WithLabelValues(notificationType).Inc()
	}
}

func (m *Metrics) JoinAttempt(result string) {
	if m != nil {
		m.joinAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Effect(effect, result string) {
	if m != nil {
		m.effects.WithLabelValues(effect, result).Inc()
	}
}

func (m *Metrics) PushCue(result string) {
	if m != nil {
		m.pushCues.WithLabelValues(result).Inc()
	}
}

// SetConnected records the socket state. reconnect is true when the
// connection is not the first one of the process.
func (m *Metrics) SetConnected(up, reconnect bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		if reconnect {
			m.reconnects.Inc()
		}
		return
	}
	m.connected.Set(0)
}
