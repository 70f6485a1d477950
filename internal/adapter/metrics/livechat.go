package metrics

import "github.com/prometheus/client_golang/prometheus"

// LivechatMetrics tracks message flow through moderation and the fan-out bridge.
type LivechatMetrics struct {
	MessagesSubmitted     prometheus.Counter
	ModerationOutcomes    *prometheus.CounterVec
	BridgePublishes       *prometheus.CounterVec
	BridgePublishFailures *prometheus.CounterVec
	BridgeEventsReceived  *prometheus.CounterVec
}

func NewLivechatMetrics(reg prometheus.Registerer) *LivechatMetrics {
	m := &LivechatMetrics{
		MessagesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_submitted_total",
			Help:      "Total number of listener messages accepted into the moderation queue.",
		}),
		ModerationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_outcomes_total",
			Help:      "Total number of moderation attempts, by resulting status or error.",
		}, []string{"outcome"}),
		BridgePublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "publishes_total",
			Help:      "Total number of bridge events published, by channel.",
		}, []string{"channel"}),
		BridgePublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "publish_failures_total",
			Help:      "Total number of failed bridge publishes, by channel.",
		}, []string{"channel"}),
		BridgeEventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "events_received_total",
			Help:      "Total number of bridge events received from the broker, by channel and kind.",
		}, []string{"channel", "kind"}),
	}

	reg.MustRegister(m.MessagesSubmitted, m.ModerationOutcomes, m.BridgePublishes,
		m.BridgePublishFailures, m.BridgeEventsReceived)
	return m
}
