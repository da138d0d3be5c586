// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesTotal tracks inbound messages by ingress outcome.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_messages_total",
			Help: "Inbound messages by outcome",
		},
		[]string{"outcome"},
	)

	// RoutesTotal tracks router decisions by mode and handler.
	RoutesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_routes_total",
			Help: "Router decisions by mode and handler",
		},
		[]string{"mode", "handler"},
	)

	// ModeTransitionsTotal tracks chat mode changes.
	ModeTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_mode_transitions_total",
			Help: "Chat mode transitions",
		},
		[]string{"from", "to"},
	)

	// AIInteractionsTotal tracks AI pipeline outcomes.
	AIInteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_ai_interactions_total",
			Help: "AI pipeline outcomes by intent and reason",
		},
		[]string{"intent", "reason"},
	)

	// AIConfidence tracks the confidence score distribution.
	AIConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_ai_confidence",
			Help:    "Confidence score of AI responses",
			Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
		},
	)

	// AIRequestDuration tracks completion latency.
	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_ai_request_duration_seconds",
			Help:    "AI completion duration",
			Buckets: []float64{.25, .5, 1, 2, 3, 5, 7.5, 10, 15},
		},
		[]string{"status"},
	)

	// SendsTotal tracks outgoing transport sends.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_sends_total",
			Help: "Outgoing messages by status",
		},
		[]string{"status"},
	)

	// ErrorsTotal tracks internal routing errors.
	ErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_internal_errors_total",
			Help: "Internal errors caught while routing messages",
		},
	)

	// ActiveChats tracks the size of the chat state store.
	ActiveChats = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_active_chats",
			Help: "Chats tracked by the state store",
		},
	)

	// PendingBuffers tracks chats with a pending debounce timer.
	PendingBuffers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_pending_buffers",
			Help: "Chats with buffered messages awaiting the AI",
		},
	)

	// TransportConnected is 1 while the messaging transport is connected.
	TransportConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_transport_connected",
			Help: "Whether the messaging transport is connected",
		},
	)

	// RequestDuration tracks admin API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)
)

// RecordInteraction records one AI pipeline outcome.
func RecordInteraction(intent, reason string, confidence float64) {
	AIInteractionsTotal.WithLabelValues(intent, reason).Inc()
	AIConfidence.Observe(confidence)
}

// RecordRequest records metrics for an admin API request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
}
