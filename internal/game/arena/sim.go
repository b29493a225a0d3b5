// Package arena implements the wrestling-ring simulation: a top-down
// square ring where fighters strike, block, grab, throw, and knock each
// other out of the ring.
package arena

import (
	"math"
	"sort"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

const (
	moveSpeed     = 5.0
	runMultiplier = 1.4
	carryOffset   = 0.9
	throwLift     = 0.4 // fraction of throw speed applied upward
	staminaRegen  = 20.0
	fallThreshold = 2.0 // meters below the ring plane that count as a fall
	blockArc      = math.Pi / 2
)

// Sim is the arena simulation for one room. It is driven exclusively by
// the room's runner goroutine.
type Sim struct {
	cfg      config.ArenaConfig
	fighters map[string]*Fighter
	order    []string // deterministic iteration order, by participant number

	events   []game.Event
	strikes  int
	winnerID string
	over     bool
	overSent bool
}

// New creates an arena round with fighters spawned around the ring center.
func New(cfg config.ArenaConfig, players []game.PlayerMeta) *Sim {
	s := &Sim{
		cfg:      cfg,
		fighters: make(map[string]*Fighter, len(players)),
	}

	sorted := append([]game.PlayerMeta(nil), players...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	spawnRadius := cfg.RingSize / 4
	for i, p := range sorted {
		angle := 2 * math.Pi * float64(i) / float64(len(sorted))
		f := &Fighter{
			Meta:     p,
			X:        math.Sin(angle) * spawnRadius,
			Y:        cfg.RingHeight,
			Z:        math.Cos(angle) * spawnRadius,
			Facing:   angle + math.Pi, // face the center
			Grounded: true,
			State:    StateIdle,
			Stamina:  cfg.MaxStamina,
			hitSet:   make(map[string]bool),
		}
		s.fighters[p.ID] = f
		s.order = append(s.order, p.ID)
	}
	return s
}

// Mode implements game.Simulation.
func (s *Sim) Mode() string { return protocol.ModeArena }

// SetInput implements game.Simulation.
func (s *Sim) SetInput(playerID string, in game.InputState) {
	if f, ok := s.fighters[playerID]; ok {
		f.input = in
	}
}

// Enqueue implements game.Simulation.
func (s *Sim) Enqueue(playerID string, act game.Action) {
	if f, ok := s.fighters[playerID]; ok {
		f.actions = append(f.actions, act)
	}
}

// DropPlayer eliminates a disconnected fighter with no ring-out damage.
func (s *Sim) DropPlayer(playerID string) {
	f, ok := s.fighters[playerID]
	if !ok || !f.alive() {
		return
	}
	s.eliminate(f, "ko")
}

// Winner implements game.Simulation.
func (s *Sim) Winner() (string, bool) {
	return s.winnerID, s.over
}

// DrainEvents implements game.Simulation.
func (s *Sim) DrainEvents() []game.Event {
	evs := s.events
	s.events = nil
	return evs
}

// Step advances the round. Phase order is fixed: movement physics, then
// combat, then collisions and boundaries, then eliminations.
func (s *Sim) Step(dt float64) {
	if s.over {
		return
	}
	s.stepPhysics(dt)
	s.stepCombat(dt)
	s.stepBoundaries()
	s.stepEliminations()
}

func (s *Sim) stepPhysics(dt float64) {
	for _, id := range s.order {
		f := s.fighters[id]
		if !f.alive() {
			continue
		}

		switch f.State {
		case StateGrabbed:
			// Position is slaved to the grabber's carry point.
			if g, ok := s.fighters[f.GrabbedByID]; ok {
				f.X = g.X + math.Sin(g.Facing)*carryOffset
				f.Z = g.Z + math.Cos(g.Facing)*carryOffset
				f.Y = g.Y
			}
			f.VX, f.VY, f.VZ = 0, 0, 0

		case StateThrown:
			f.VY -= s.cfg.Gravity * dt
			f.X += f.VX * dt
			f.Y += f.VY * dt
			f.Z += f.VZ * dt
			if f.Y <= s.cfg.RingHeight && f.VY <= 0 {
				f.Y = s.cfg.RingHeight
				f.Grounded = true
				f.VX, f.VY, f.VZ = 0, 0, 0
				f.State = StateIdle
			}

		case StateStunned:
			f.StunLeft -= dt
			f.VX *= 0.8
			f.VZ *= 0.8
			f.X += f.VX * dt
			f.Z += f.VZ * dt
			if f.StunLeft <= 0 {
				f.StunLeft = 0
				f.State = StateIdle
			}

		case StateIdle, StateMoving, StateBlocking:
			s.applyMovement(f, dt)

		case StateAttacking, StateGrabbing:
			// Rooted, but residual knockback still carries.
			f.X += f.VX * dt
			f.Z += f.VZ * dt
			f.VX *= 0.85
			f.VZ *= 0.85
		}

		// Stamina: drains while blocking, regenerates otherwise.
		if f.State == StateBlocking {
			f.Stamina -= s.cfg.BlockDrainPS * dt
			if f.Stamina <= 0 {
				f.Stamina = 0
				s.setBlocking(f, false)
			}
		} else if f.Stamina < s.cfg.MaxStamina {
			f.Stamina = math.Min(s.cfg.MaxStamina, f.Stamina+staminaRegen*dt)
		}
	}
}

// applyMovement handles walking, block enter/exit, and knockback decay
// for fighters that are free to move.
func (s *Sim) applyMovement(f *Fighter, dt float64) {
	wantBlock := f.input.Block && f.Stamina > 0
	if wantBlock && f.State != StateBlocking {
		s.setBlocking(f, true)
	} else if !f.input.Block && f.State == StateBlocking {
		s.setBlocking(f, false)
	}

	var dx, dz float64
	if f.input.Left {
		dx -= 1
	}
	if f.input.Right {
		dx += 1
	}
	if f.input.Up {
		dz += 1
	}
	if f.input.Down {
		dz -= 1
	}

	speed := moveSpeed
	if f.input.Run {
		speed *= runMultiplier
	}
	if f.State == StateBlocking {
		speed = 0
	}

	if (dx != 0 || dz != 0) && speed > 0 {
		norm := math.Sqrt(dx*dx + dz*dz)
		f.VX = dx / norm * speed
		f.VZ = dz / norm * speed
		f.Facing = math.Atan2(dx, dz)
		if f.State == StateIdle {
			f.State = StateMoving
		}
	} else {
		// Knockback decays instead of stopping dead.
		f.VX *= 0.8
		f.VZ *= 0.8
		if f.State == StateMoving && math.Hypot(f.VX, f.VZ) < 0.1 {
			f.State = StateIdle
		}
	}

	f.X += f.VX * dt
	f.Z += f.VZ * dt
}

func (s *Sim) setBlocking(f *Fighter, on bool) {
	if f.Blocking == on {
		return
	}
	f.Blocking = on
	if on {
		f.State = StateBlocking
		f.VX, f.VZ = 0, 0
	} else if f.State == StateBlocking {
		f.State = StateIdle
	}
	s.emit(protocol.EvtArenaBlockState, map[string]any{
		"playerId":   f.Meta.ID,
		"isBlocking": on,
	})
}

// stepBoundaries resolves fighter-fighter overlap, rope clamping, and
// flags positions outside the ring for ring-out elimination.
func (s *Sim) stepBoundaries() {
	// Soft push along the separating axis, skipped for a grab pair.
	for i, idA := range s.order {
		a := s.fighters[idA]
		if !a.alive() {
			continue
		}
		for _, idB := range s.order[i+1:] {
			b := s.fighters[idB]
			if !b.alive() {
				continue
			}
			if a.GrabbedPlayerID == idB || b.GrabbedPlayerID == idA {
				continue
			}
			dx := a.X - b.X
			dz := a.Z - b.Z
			dist := math.Sqrt(dx*dx + dz*dz)
			minDist := 2 * s.cfg.ColliderRadius
			if dist >= minDist || dist == 0 {
				continue
			}
			push := (minDist - dist) / 2
			nx, nz := dx/dist, dz/dist
			a.X += nx * push
			a.Z += nz * push
			b.X -= nx * push
			b.Z -= nz * push
		}
	}

	bound := s.cfg.RingSize/2 - s.cfg.RopeRim
	for _, id := range s.order {
		f := s.fighters[id]
		if !f.alive() || f.State == StateThrown || f.State == StateGrabbed {
			continue
		}
		// Ropes: clamp back and bounce the normal velocity component.
		if f.X > bound {
			f.X = bound
			f.VX = -f.VX * s.cfg.RopeBounce
		} else if f.X < -bound {
			f.X = -bound
			f.VX = -f.VX * s.cfg.RopeBounce
		}
		if f.Z > bound {
			f.Z = bound
			f.VZ = -f.VZ * s.cfg.RopeBounce
		} else if f.Z < -bound {
			f.Z = -bound
			f.VZ = -f.VZ * s.cfg.RopeBounce
		}
	}
}

func (s *Sim) stepEliminations() {
	for _, id := range s.order {
		f := s.fighters[id]
		if !f.alive() {
			continue
		}

		// Ring-out: past the outer zone, or fallen below the ring plane.
		out := math.Hypot(f.X, f.Z) > s.cfg.RingOutRadius || f.Y < s.cfg.RingHeight-fallThreshold
		if !out && f.State == StateThrown {
			// A thrown fighter sailing past the ropes is out on landing.
			bound := s.cfg.RingSize / 2
			out = math.Abs(f.X) > bound || math.Abs(f.Z) > bound
		}
		if out {
			f.Health += s.cfg.RingOutDamage
			s.eliminate(f, "ringout")
			continue
		}

		if f.Health >= s.cfg.MaxHealth {
			s.eliminate(f, "ko")
		}
	}

	if s.over {
		return
	}
	var alive []*Fighter
	for _, id := range s.order {
		if f := s.fighters[id]; f.alive() {
			alive = append(alive, f)
		}
	}
	if len(alive) <= 1 {
		s.over = true
		winnerName := ""
		if len(alive) == 1 {
			s.winnerID = alive[0].Meta.ID
			winnerName = alive[0].Meta.Name
		}
		if !s.overSent {
			s.overSent = true
			s.emit(protocol.EvtArenaGameOver, map[string]any{
				"winner":   winnerName,
				"winnerId": s.winnerID,
			})
		}
	}
}

// eliminate moves a fighter to the terminal state, releasing any grab
// relation it participates in.
func (s *Sim) eliminate(f *Fighter, reason string) {
	if victim, ok := s.fighters[f.GrabbedPlayerID]; ok {
		victim.GrabbedByID = ""
		if victim.State == StateGrabbed {
			victim.State = StateIdle
		}
	}
	if grabber, ok := s.fighters[f.GrabbedByID]; ok {
		grabber.GrabbedPlayerID = ""
		if grabber.State == StateGrabbing {
			grabber.State = StateIdle
		}
	}
	f.GrabbedPlayerID = ""
	f.GrabbedByID = ""
	f.State = StateEliminated
	f.Blocking = false
	f.VX, f.VY, f.VZ = 0, 0, 0

	s.emit(protocol.EvtArenaElimination, map[string]any{
		"playerId":   f.Meta.ID,
		"playerName": f.Meta.Name,
		"reason":     reason,
	})
}

// Snapshot implements game.Simulation.
func (s *Sim) Snapshot() game.Event {
	players := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		f := s.fighters[id]
		players = append(players, map[string]any{
			"id":     f.Meta.ID,
			"name":   f.Meta.Name,
			"number": f.Meta.Number,
			"position": map[string]float64{
				"x": f.X, "y": f.Y, "z": f.Z,
			},
			"facingAngle":  f.Facing,
			"health":       f.Health,
			"stamina":      f.Stamina,
			"state":        string(f.State),
			"isAttacking":  f.State == StateAttacking,
			"isBlocking":   f.Blocking,
			"isGrabbing":   f.GrabbedPlayerID != "",
			"isGrabbed":    f.GrabbedByID != "",
			"isEliminated": f.State == StateEliminated,
		})
	}
	return game.Event{
		Name:    protocol.EvtArenaState,
		Payload: map[string]any{"players": players},
	}
}

func (s *Sim) emit(name string, payload any) {
	s.events = append(s.events, game.Event{Name: name, Payload: payload})
}
