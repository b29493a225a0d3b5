package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the party-game server.
//
// Naming convention: namespace_subsystem_name
// - namespace: party_game
// - subsystem: websocket, room, sim
//
// Gauges track current state (connections, rooms), counters track
// cumulative events, histograms track tick latency.

var (
	// ActiveConnections tracks the current number of live WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "party_game",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "party_game",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks participant counts per room code.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "party_game",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_code"})

	// WebsocketEvents counts inbound events by name and outcome.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "party_game",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event", "status"})

	// SimEvents counts semantic events emitted by simulations (hits, grabs, eliminations).
	SimEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "party_game",
		Subsystem: "sim",
		Name:      "events_total",
		Help:      "Total semantic events emitted by mode simulations",
	}, []string{"game_mode", "event"})

	// TickDuration tracks how long one simulation step takes.
	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "party_game",
		Subsystem: "sim",
		Name:      "tick_seconds",
		Help:      "Time spent advancing a room simulation by one tick",
		Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .0167, .05},
	}, []string{"game_mode"})

	// DroppedInputs counts inbound messages dropped by backpressure.
	DroppedInputs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "party_game",
		Subsystem: "sim",
		Name:      "inputs_dropped_total",
		Help:      "Inbound input-state messages dropped due to full room queues",
	})

	// RateLimitExceeded counts rejected connections and room creations.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "party_game",
		Subsystem: "websocket",
		Name:      "rate_limit_exceeded_total",
		Help:      "Requests rejected by rate limiting",
	}, []string{"scope"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
