// Package metrics exposes relay activity as prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relaychat"

// Metrics holds the relay's collectors. A nil *Metrics is valid and records
// nothing, so packages can be used without a registry.
type Metrics struct {
	registry *prometheus.Registry

	ConnectedClients  prometheus.Gauge
	FramesReceived    *prometheus.CounterVec
	HandshakeFailures prometheus.Counter
	FanoutDeliveries  prometheus.Counter
	FanoutFailures    prometheus.Counter
	RateLimited       prometheus.Counter
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Clients with an established secure channel.",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Post-handshake frames received, by type.",
		}, []string{"type"}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Connections dropped during key exchange.",
		}),
		FanoutDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_deliveries_total",
			Help:      "Relay messages written to a recipient.",
		}),
		FanoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_failures_total",
			Help:      "Relay messages that could not be written to a recipient.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Data frames dropped by the per-connection rate limiter.",
		}),
	}
	m.registry.MustRegister(
		m.ConnectedClients,
		m.FramesReceived,
		m.HandshakeFailures,
		m.FanoutDeliveries,
		m.FanoutFailures,
		m.RateLimited,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ClientJoined() {
	if m != nil {
		m.ConnectedClients.Inc()
	}
}

func (m *Metrics) ClientLeft() {
	if m != nil {
		m.ConnectedClients.Dec()
	}
}

func (m *Metrics) FrameReceived(typeName string) {
	if m != nil {
		m.FramesReceived.WithLabelValues(typeName).Inc()
	}
}

func (m *Metrics) HandshakeFailed() {
	if m != nil {
		m.HandshakeFailures.Inc()
	}
}

func (m *Metrics) Delivered() {
	if m != nil {
		m.FanoutDeliveries.Inc()
	}
}

func (m *Metrics) DeliveryFailed() {
	if m != nil {
		m.FanoutFailures.Inc()
	}
}

func (m *Metrics) Limited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}
