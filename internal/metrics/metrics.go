// Package metrics exposes Prometheus collectors for the resilience layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CircuitState tracks breaker state per dependency (0=closed, 1=open, 2=half-open)
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medlingo_circuit_state",
			Help: "Circuit breaker state per dependency (0=closed, 1=open, 2=half-open)",
		},
		[]string{"dependency"},
	)

	// CircuitTransitions counts breaker state changes
	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medlingo_circuit_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"dependency", "from", "to"},
	)

	// DependencyHealth tracks probe-derived health (1=healthy, 0.5=degraded, 0=unhealthy, -1=unknown)
	DependencyHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medlingo_dependency_health",
			Help: "Dependency health (1=healthy, 0.5=degraded, 0=unhealthy, -1=unknown)",
		},
		[]string{"dependency"},
	)

	// ProbeLatency tracks health probe duration
	ProbeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medlingo_probe_latency_seconds",
			Help:    "Health probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dependency", "result"},
	)

	// SystemHealthScore is the percentage of healthy dependencies
	SystemHealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "medlingo_system_health_score",
			Help: "Percentage of dependencies currently healthy",
		},
	)

	// ErrorsClassified counts classified failures
	ErrorsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medlingo_errors_classified_total",
			Help: "Total number of classified failures",
		},
		[]string{"dependency", "category", "severity"},
	)

	// RecoveryDecisions counts recovery strategies chosen
	RecoveryDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medlingo_recovery_decisions_total",
			Help: "Total number of recovery decisions by strategy",
		},
		[]string{"dependency", "strategy", "success"},
	)

	// ChannelStatus tracks the duplex channel status (one-hot by status label)
	ChannelStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medlingo_channel_status",
			Help: "Duplex channel status (1 for the current status)",
		},
		[]string{"status"},
	)

	// ChannelReconnects counts scheduled reconnect attempts
	ChannelReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medlingo_channel_reconnect_attempts_total",
			Help: "Total number of scheduled reconnect attempts",
		},
	)

	// ChannelPendingRequests tracks in-flight correlated requests
	ChannelPendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "medlingo_channel_pending_requests",
			Help: "Number of correlated requests awaiting a response",
		},
	)

	// ChannelDroppedMessages counts queued messages evicted while disconnected
	ChannelDroppedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medlingo_channel_dropped_messages_total",
			Help: "Total number of queued outbound messages dropped by the queue bound",
		},
	)

	// ListenerFailures counts fan-out listeners that returned an error or panicked
	ListenerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medlingo_channel_listener_failures_total",
			Help: "Total number of failed inbound message listeners",
		},
		[]string{"action"},
	)

	// DBConnectionPoolUsage tracks session-store pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "medlingo_db_connection_pool_usage_percent",
			Help: "Session store connection pool usage percentage",
		},
	)
)
