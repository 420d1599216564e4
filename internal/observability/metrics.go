package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	wsConnectionsActive   prometheus.Gauge
	messagesSentTotal     *prometheus.CounterVec
	presenceEventsTotal   *prometheus.CounterVec
	moderationActionTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the chat service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		wsConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Number of websocket connections currently open.",
		})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of room messages accepted for delivery.",
		}, []string{"type"})

		presenceEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_presence_events_total",
			Help: "Total number of presence transitions broadcast to rooms.",
		}, []string{"kind"})

		moderationActionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_moderation_actions_total",
			Help: "Total number of moderation commands applied.",
		}, []string{"action"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			wsConnectionsActive,
			messagesSentTotal,
			presenceEventsTotal,
			moderationActionTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// WSConnections exposes the gauge of open websocket connections.
func WSConnections() prometheus.Gauge {
	RegisterMetrics()
	return wsConnectionsActive
}

// MessagesSent exposes the counter of accepted room messages.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// PresenceEvents exposes the counter of presence broadcasts.
func PresenceEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return presenceEventsTotal
}

// ModerationActions exposes the counter of applied moderation commands.
func ModerationActions() *prometheus.CounterVec {
	RegisterMetrics()
	return moderationActionTotal
}

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
