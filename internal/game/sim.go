// Package game defines the simulation contract shared by every mode and
// the fixed-rate runner that drives a room's simulation.
package game

// InputState is the latest authoritative held-key vector for a player.
// It is overwritten by each player-input message and sampled once per tick.
type InputState struct {
	Left  bool
	Right bool
	Up    bool
	Down  bool
	Jump  bool
	Run   bool
	Block bool
}

// ActionKind names a one-shot action.
type ActionKind string

const (
	ActionPunch   ActionKind = "punch"
	ActionKick    ActionKind = "kick"
	ActionGrab    ActionKind = "grab"
	ActionThrow   ActionKind = "throw"
	ActionTaunt   ActionKind = "taunt"
	ActionEscape  ActionKind = "escape"
	ActionRaceTap ActionKind = "race-tap"
	ActionFlap    ActionKind = "flappy-tap"
	ActionTugPull ActionKind = "tug-pull"
	ActionInflate ActionKind = "balloon-inflate"
)

// Action is a one-shot intent. Unlike InputState, actions are queued and
// drained exactly once; they are never coalesced away.
type Action struct {
	Kind      ActionKind
	Side      string   // race-tap: "left" or "right"
	Direction *float64 // arena-throw: optional direction in radians
	Seq       uint64   // arrival order, used for same-tick tie-breaks
}

// Event is a semantic signal emitted by a simulation during a tick. A
// non-nil Binary rides a websocket binary frame instead of JSON.
type Event struct {
	Name    string
	Payload any
	Binary  []byte
}

// PlayerMeta is the identity a simulation needs about a participant.
type PlayerMeta struct {
	ID        string
	Name      string
	Number    int
	Color     string
	Character string
}

// Simulation is one mode's fixed-step state machine. A simulation is
// only ever touched from its room's runner goroutine, so implementations
// need no internal locking. Invalid inputs are absorbed silently.
type Simulation interface {
	// Mode returns the mode tag ("arena", "smash", ...).
	Mode() string

	// SetInput replaces the player's held-key vector.
	SetInput(playerID string, in InputState)

	// Enqueue adds a one-shot action to the player's queue.
	Enqueue(playerID string, act Action)

	// DropPlayer removes a participant mid-round (disconnect past grace).
	DropPlayer(playerID string)

	// Step advances the simulation by a fixed dt in seconds.
	Step(dt float64)

	// Snapshot builds the public per-tick state payload.
	Snapshot() Event

	// DrainEvents returns and clears events emitted since the last drain.
	DrainEvents() []Event

	// Winner reports the round result once the round has resolved.
	Winner() (winnerID string, over bool)
}

// Broadcaster fans simulation output out to a room. Implemented by the
// lobby room; the runner never talks to sockets directly.
type Broadcaster interface {
	// BroadcastEvent sends a discrete JSON event to every participant.
	BroadcastEvent(event string, payload any)

	// BroadcastSnapshot sends a coalescable JSON snapshot.
	BroadcastSnapshot(event string, payload any)

	// BroadcastBinary sends a coalescable binary frame.
	BroadcastBinary(data []byte)

	// AbortRoom tears the room down after an unrecoverable sim failure.
	AbortRoom(reason string)
}
