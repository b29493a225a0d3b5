package arena

import (
	"math"

	"github.com/couchparty/server/internal/game"
)

// FighterState is the arena fighter state machine.
type FighterState string

const (
	StateIdle       FighterState = "idle"
	StateMoving     FighterState = "moving"
	StateAttacking  FighterState = "attacking"
	StateBlocking   FighterState = "blocking"
	StateGrabbing   FighterState = "grabbing"
	StateGrabbed    FighterState = "grabbed"
	StateStunned    FighterState = "stunned"
	StateThrown     FighterState = "thrown"
	StateEliminated FighterState = "eliminated"
)

// AttackPhase tracks where a strike is in its lifecycle.
type AttackPhase string

const (
	PhaseWindup   AttackPhase = "windup"
	PhaseActive   AttackPhase = "active"
	PhaseRecovery AttackPhase = "recovery"
)

// attackSpec holds per-strike timing and reach. Durations are seconds.
type attackSpec struct {
	windup   float64
	active   float64
	recovery float64
	reach    float64
	arc      float64 // half-angle of the hit cone, radians
}

var attackSpecs = map[string]attackSpec{
	"punch": {windup: 0.12, active: 0.12, recovery: 0.25, reach: 1.6, arc: math.Pi / 3},
	"kick":  {windup: 0.20, active: 0.15, recovery: 0.35, reach: 2.1, arc: math.Pi / 3},
}

// Fighter is one participant's combat state. The grab relation is kept
// as two id fields into the room-owned fighter table, never as pointers.
type Fighter struct {
	Meta game.PlayerMeta

	X, Y, Z    float64
	VX, VY, VZ float64
	Facing     float64 // radians on the XZ plane; 0 = +z, pi/2 = +x
	Grounded   bool

	State  FighterState
	Health float64 // damage absorbed, 0..MaxHealth

	Stamina  float64
	Blocking bool

	// Attack lifecycle
	AttackType string
	Phase      AttackPhase
	PhaseLeft  float64 // seconds remaining in the current phase
	StrikeID   int
	hitSet     map[string]bool // targets already hit by the current strike

	// Grab relation (mutual, by id)
	GrabbedPlayerID string // set while grabbing
	GrabbedByID     string // set while grabbed
	GrabLeft        float64 // seconds until auto-release
	EscapeCount     int

	StunLeft  float64
	LastHitBy string

	input   game.InputState
	actions []game.Action
}

// alive reports whether the fighter still participates in combat.
func (f *Fighter) alive() bool {
	return f.State != StateEliminated
}

// canAct reports whether the fighter may start a voluntary action.
func (f *Fighter) canAct() bool {
	switch f.State {
	case StateIdle, StateMoving:
		return true
	}
	return false
}

// grabbable reports whether the fighter can become a grab victim.
func (f *Fighter) grabbable() bool {
	if f.Blocking || f.GrabbedByID != "" || f.GrabbedPlayerID != "" {
		return false
	}
	switch f.State {
	case StateIdle, StateMoving, StateAttacking:
		return true
	}
	return false
}

// facingToward reports whether the fighter faces (x, z) within tol radians.
func (f *Fighter) facingToward(x, z, tol float64) bool {
	dir := math.Atan2(x-f.X, z-f.Z)
	return math.Abs(angleDiff(f.Facing, dir)) <= tol
}

func (f *Fighter) distanceTo(o *Fighter) float64 {
	dx := o.X - f.X
	dz := o.Z - f.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// angleDiff returns the signed difference between two angles in (-pi, pi].
func angleDiff(a, b float64) float64 {
	d := math.Mod(b-a, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	}
	if d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}
