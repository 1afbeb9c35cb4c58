package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport
	OpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatcall_ws_connections",
			Help: "Open WebSocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatcall_online_users",
			Help: "Identities with a bound connection",
		},
	)

	DroppedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcall_dropped_frames_total",
			Help: "Outbound frames not queued",
		},
		[]string{"action"},
	)

	// Signaling
	SignalEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcall_signal_events_total",
			Help: "Inbound signaling events by type",
		},
		[]string{"type"},
	)

	CallOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcall_call_outcomes_total",
			Help: "Call routing outcomes",
		},
		[]string{"outcome"},
	)

	ActiveCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatcall_active_calls",
			Help: "Ringing or connected call sessions",
		},
	)

	// Messages
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcall_messages_relayed_total",
			Help: "Stored messages handed to the live relay",
		},
		[]string{"status"}, // "delivered" or "offline"
	)

	MessageFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcall_message_failures_total",
			Help: "Messages rejected or not stored",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcall_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"scope"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcall_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatcall_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
