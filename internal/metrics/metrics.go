package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's collectors on a dedicated registry. A nil
// *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	connections      prometheus.Gauge
	inbound          *prometheus.CounterVec
	messages         prometheus.Counter
	notifications    *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	authFailures     *prometheus.CounterVec
	superseded       prometheus.Counter
	exported         *prometheus.CounterVec
}

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hive_connections",
			Help: "Live authenticated connections.",
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hive_inbound_events_total",
			Help: "Inbound client events by event name.",
		}, []string{"event"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hive_messages_total",
			Help: "Messages persisted.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hive_notifications_total",
			Help: "Notifications persisted by type.",
		}, []string{"type"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hive_delivery_failures_total",
			Help: "Frames that could not be pushed to a live connection.",
		}, []string{"event"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hive_auth_failures_total",
			Help: "Rejected handshakes by reason.",
		}, []string{"reason"}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hive_superseded_sessions_total",
			Help: "Connections closed because the same identity connected again.",
		}),
		exported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hive_exported_events_total",
			Help: "Journaled events handed to the event stream, by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		m.connections, m.inbound, m.messages, m.notifications,
		m.deliveryFailures, m.authFailures, m.superseded, m.exported,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) InboundEvent(event string) {
	if m != nil {
		m.inbound.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) MessagePersisted() {
	if m != nil {
		m.messages.Inc()
	}
}

func (m *Metrics) NotificationPersisted(typ string) {
	if m != nil {
		m.notifications.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) DeliveryFailed(event string) {
	if m != nil {
		m.deliveryFailures.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) AuthFailed(reason string) {
	if m != nil {
		m.authFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SessionSuperseded() {
	if m != nil {
		m.superseded.Inc()
	}
}

// EventExported counts one export attempt; result is "sent" or "failed".
func (m *Metrics) EventExported(result string) {
	if m != nil {
		m.exported.WithLabelValues(result).Inc()
	}
}
