package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "sockreplay"

// Result labels for ClientEventsTotal.
const (
	ResultMatched = "matched"
	ResultIgnored = "ignored"
)

// Metrics holds the replay counters on a private registry.
type Metrics struct {
	registry              *prometheus.Registry
	SessionsActive        prometheus.Gauge
	ConnectionsTotal      prometheus.Counter
	HandshakeRejectsTotal prometheus.Counter
	ClientEventsTotal     *prometheus.CounterVec
	ServerEventsTotal     prometheus.Counter
	DisconnectsTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Number of live replay sessions",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total websocket connections accepted",
		}),
		HandshakeRejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshake_rejects_total",
			Help:      "Total namespace connects answered with CONNECT_ERROR",
		}),
		ClientEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "client_events_total",
			Help:      "Client events received by match result",
		}, []string{"result"}),
		ServerEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "server_events_total",
			Help:      "Total scripted events emitted",
		}),
		DisconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "disconnects_total",
			Help:      "Session ends by reason",
		}, []string{"reason"}),
	}
	r.MustRegister(
		m.SessionsActive,
		m.ConnectionsTotal,
		m.HandshakeRejectsTotal,
		m.ClientEventsTotal,
		m.ServerEventsTotal,
		m.DisconnectsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
