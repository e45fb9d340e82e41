// Package metrics holds the Prometheus collectors exported by the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_bridge_events_total",
			Help: "Inbound bus events by topic and dispatch outcome",
		},
		[]string{"topic", "outcome"}, // "published", "no_envelope", "dropped", "failed"
	)

	EnvelopesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_bridge_envelopes_published_total",
			Help: "Outbound envelopes handed to the bus",
		},
		[]string{"topic"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_bridge_handler_duration_seconds",
			Help:    "Time spent inside a topic handler including its external call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	// Backends

	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_bridge_backend_requests_total",
			Help: "HTTP requests to analytics backends by result",
		},
		[]string{"backend", "result"}, // "success", "failure", "rejected"
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_bridge_backend_request_duration_seconds",
			Help:    "Latency of HTTP requests to analytics backends",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analytics_bridge_circuit_breaker_state",
			Help: "Circuit breaker state per backend (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_bridge_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Alarms

	AlarmPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_bridge_alarm_polls_total",
			Help: "Alarm service polls by result",
		},
		[]string{"result"}, // "alarm", "empty", "unreachable", "server_error", "persistence_error"
	)

	WatermarkNanos = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analytics_bridge_watermark_nanoseconds",
			Help: "Last stored alarm poll watermark",
		},
	)

	// Tools

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_bridge_tool_invocations_total",
			Help: "Local tool invocations by result",
		},
		[]string{"tool", "result"},
	)

	// Bus

	BusConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analytics_bridge_bus_connected",
			Help: "1 while the bus connection is established",
		},
		[]string{"transport"},
	)

	BusReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_bridge_bus_reconnects_total",
			Help: "Bus reconnection attempts",
		},
		[]string{"transport"},
	)

	BusFramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_bridge_bus_frames_received_total",
			Help: "Raw frames received from the bus",
		},
		[]string{"transport"},
	)
)
