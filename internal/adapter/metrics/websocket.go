package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for relay connections.
type WebSocketMetrics struct {
	ActiveConnections   *prometheus.GaugeVec
	FramesSent          *prometheus.CounterVec
	SlowClientDrops     prometheus.Counter
	HandshakeRejections *prometheus.CounterVec
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active relay connections, by role.",
		}, []string{"role"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_sent_total",
			Help:      "Total number of frames queued to relay connections, by event.",
		}, []string{"event"}),
		SlowClientDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_client_drops_total",
			Help:      "Total number of connections closed because their outbound queue was full.",
		}),
		HandshakeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "handshake_rejections_total",
			Help:      "Total number of rejected relay handshakes, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveConnections, m.FramesSent, m.SlowClientDrops, m.HandshakeRejections)
	return m
}
