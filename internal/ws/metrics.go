package ws

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "llmrelay"

// Connection results recorded by connectionsTotal.
const (
	connAccepted        = "accepted"
	connRejected        = "rejected"
	connHandshakeFailed = "handshake_failed"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  *prometheus.CounterVec
	messagesTotal     *prometheus.CounterVec
	upstreamDuration  prometheus.Histogram
}

// NewMetrics creates relay collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Number of relay WebSocket connections currently open.",
		}),
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Relay connection attempts by result.",
		}, []string{"result"}),
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Inbound frames by outcome.",
		}, []string{"outcome"}),
		upstreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_duration_seconds",
			Help:      "Duration of upstream completion calls, including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

func (m *Metrics) connectionOpened() {
	m.connectionsTotal.WithLabelValues(connAccepted).Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) connectionClosed() {
	m.connectionsActive.Dec()
}

func (m *Metrics) connectionRejected() {
	m.connectionsTotal.WithLabelValues(connRejected).Inc()
}

func (m *Metrics) handshakeFailed() {
	m.connectionsTotal.WithLabelValues(connHandshakeFailed).Inc()
}

func (m *Metrics) message(o Outcome) {
	m.messagesTotal.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) observeUpstream(d time.Duration) {
	m.upstreamDuration.Observe(d.Seconds())
}
