// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session lifecycle
	SessionsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hallway_sessions_live",
			Help: "Currently authenticated sessions",
		},
	)

	Authentications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hallway_authentications_total",
			Help: "Total successful authentications",
		},
	)

	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hallway_sessions_evicted_total",
			Help: "Sessions evicted by the stale-session sweeper",
		},
	)

	// Fanout
	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hallway_messages_routed_total",
			Help: "Messages accepted and fanned out",
		},
		[]string{"scope"}, // "workspace", "direct" or "channel"
	)

	SignalsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hallway_signals_dispatched_total",
			Help: "Ephemeral signals dispatched",
		},
		[]string{"kind"}, // "typing", "presence" or "call_invite"
	)

	// Errors surfaced to clients
	EventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hallway_event_errors_total",
			Help: "Inbound events rejected with an error",
		},
		[]string{"event"},
	)

	// Transport
	ConnectionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hallway_connections_opened_total",
			Help: "WebSocket connections accepted",
		},
	)

	SlowConsumersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hallway_slow_consumers_dropped_total",
			Help: "Connections dropped because their send buffer filled",
		},
	)
)
