// Package smash implements the 2D side-view platform fighter: damage
// percent scales knockback, three stocks, one-way floating platforms.
package smash

import (
	"math"
	"sort"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

const (
	attackWindup   = 0.1
	attackActive   = 0.12
	attackRecovery = 0.25
	attackReach    = 1.5
	attackHeight   = 1.2
	blockFactor    = 0.3
	maxAirJumps    = 1
	respawnY       = 8.0
)

// platform is an axis-aligned surface. Floating platforms are one-way:
// they only catch a fighter falling through the top.
type platform struct {
	X, Y, HalfW float64
	Solid       bool // main stage blocks from below too
}

var stage = []platform{
	{X: 0, Y: 0, HalfW: 10, Solid: true},
	{X: -6, Y: 3, HalfW: 2.5},
	{X: 6, Y: 3, HalfW: 2.5},
	{X: 0, Y: 6, HalfW: 2.5},
}

// Fighter is one participant's platform-fighter state.
type Fighter struct {
	Meta game.PlayerMeta

	X, Y   float64
	VX, VY float64
	Facing float64 // -1 left, +1 right

	Damage   float64 // accumulated percent, uncapped
	Stocks   int
	Grounded bool
	AirJumps int
	prevJump bool

	Attacking   bool
	AttackLeft  float64
	AttackPhase string
	StrikeID    int
	hitSet      map[string]bool

	RespawnLeft float64
	Eliminated  bool

	input   game.InputState
	actions []game.Action
}

// Sim is the smash simulation for one room.
type Sim struct {
	cfg      config.SmashConfig
	fighters map[string]*Fighter
	order    []string

	events   []game.Event
	strikes  int
	winnerID string
	over     bool
}

// New creates a smash round with fighters spread along the main stage.
func New(cfg config.SmashConfig, players []game.PlayerMeta) *Sim {
	s := &Sim{
		cfg:      cfg,
		fighters: make(map[string]*Fighter, len(players)),
	}

	sorted := append([]game.PlayerMeta(nil), players...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	spread := 12.0
	for i, p := range sorted {
		frac := 0.5
		if len(sorted) > 1 {
			frac = float64(i) / float64(len(sorted)-1)
		}
		f := &Fighter{
			Meta:     p,
			X:        -spread/2 + spread*frac,
			Y:        0,
			Facing:   1,
			Stocks:   cfg.Stocks,
			Grounded: true,
			hitSet:   make(map[string]bool),
		}
		if f.X > 0 {
			f.Facing = -1
		}
		s.fighters[p.ID] = f
		s.order = append(s.order, p.ID)
	}
	return s
}

// Mode implements game.Simulation.
func (s *Sim) Mode() string { return protocol.ModeSmash }

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

// DropPlayer removes a disconnected fighter; remaining stocks are forfeit.
func (s *Sim) DropPlayer(playerID string) {
	f, ok := s.fighters[playerID]
	if !ok || f.Eliminated {
		return
	}
	f.Stocks = 0
	f.Eliminated = true
	s.emit(protocol.EvtPlayerKO, map[string]any{
		"playerId":   f.Meta.ID,
		"playerName": f.Meta.Name,
		"stocksLeft": 0,
	})
}

// Winner implements game.Simulation.
func (s *Sim) Winner() (string, bool) { return s.winnerID, s.over }

// DrainEvents implements game.Simulation.
func (s *Sim) DrainEvents() []game.Event {
	evs := s.events
	s.events = nil
	return evs
}

// Step advances one tick: inputs and movement, attacks, KO planes.
func (s *Sim) Step(dt float64) {
	if s.over {
		return
	}

	for _, id := range s.order {
		f := s.fighters[id]
		if f.Eliminated {
			continue
		}
		if f.RespawnLeft > 0 {
			f.RespawnLeft -= dt
			if f.RespawnLeft <= 0 {
				s.respawn(f)
			}
			continue
		}
		s.stepFighter(f, dt)
	}

	s.resolveActions()
	s.advanceAttacks(dt)
	s.resolveHits()
	s.checkKOs()
	s.checkGameOver()
}

func (s *Sim) stepFighter(f *Fighter, dt float64) {
	speed := s.cfg.MoveSpeed
	if f.input.Run {
		speed *= s.cfg.RunMultiplier
	}
	if f.input.Block && f.Grounded {
		speed = 0
	}

	ax := 0.0
	if f.input.Left {
		ax -= 1
	}
	if f.input.Right {
		ax += 1
	}
	if ax != 0 && !f.Attacking {
		f.VX = ax * speed
		f.Facing = ax
	} else if f.Grounded {
		f.VX *= 0.8
	} else {
		f.VX *= 0.98
	}

	// Jump on edge, with one air jump.
	jumpPressed := (f.input.Jump || f.input.Up) && !f.prevJump
	f.prevJump = f.input.Jump || f.input.Up
	if jumpPressed {
		if f.Grounded {
			f.VY = s.cfg.JumpSpeed
			f.Grounded = false
		} else if f.AirJumps < maxAirJumps {
			f.VY = s.cfg.JumpSpeed
			f.AirJumps++
		}
	}

	prevY := f.Y
	f.VY -= s.cfg.Gravity * dt
	f.X += f.VX * dt
	f.Y += f.VY * dt

	// Platform landing: one-way surfaces only catch a falling fighter
	// whose feet crossed the top this tick.
	f.Grounded = false
	for _, p := range stage {
		if math.Abs(f.X-p.X) > p.HalfW {
			continue
		}
		crossedTop := f.VY <= 0 && prevY >= p.Y && f.Y <= p.Y
		droppingThrough := f.input.Down && !p.Solid
		if crossedTop && !droppingThrough {
			f.Y = p.Y
			f.VY = 0
			f.Grounded = true
			f.AirJumps = 0
		}
	}
}

func (s *Sim) resolveActions() {
	var all []struct {
		f *Fighter
		a game.Action
	}
	for _, id := range s.order {
		f := s.fighters[id]
		for _, a := range f.actions {
			all = append(all, struct {
				f *Fighter
				a game.Action
			}{f, a})
		}
		f.actions = nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].a.Seq < all[j].a.Seq })

	for _, qa := range all {
		switch qa.a.Kind {
		case game.ActionPunch, game.ActionKick:
			s.tryAttack(qa.f)
		case game.ActionTaunt:
			s.emit(protocol.EvtPlayerTaunt, map[string]any{"playerId": qa.f.Meta.ID})
		}
	}
}

func (s *Sim) tryAttack(f *Fighter) {
	if f.Attacking || f.Eliminated || f.RespawnLeft > 0 {
		return
	}
	s.strikes++
	f.Attacking = true
	f.AttackPhase = "windup"
	f.AttackLeft = attackWindup
	f.StrikeID = s.strikes
	f.hitSet = make(map[string]bool)

	s.emit(protocol.EvtAttackStarted, map[string]any{
		"attackerId": f.Meta.ID,
	})
}

func (s *Sim) advanceAttacks(dt float64) {
	for _, id := range s.order {
		f := s.fighters[id]
		if !f.Attacking {
			continue
		}
		f.AttackLeft -= dt
		if f.AttackLeft > 0 {
			continue
		}
		switch f.AttackPhase {
		case "windup":
			f.AttackPhase = "active"
			f.AttackLeft += attackActive
		case "active":
			f.AttackPhase = "recovery"
			f.AttackLeft += attackRecovery
		case "recovery":
			f.Attacking = false
		}
	}
}

func (s *Sim) resolveHits() {
	for _, id := range s.order {
		attacker := s.fighters[id]
		if !attacker.Attacking || attacker.AttackPhase != "active" {
			continue
		}

		var hits []map[string]any
		for _, tid := range s.order {
			if tid == id {
				continue
			}
			target := s.fighters[tid]
			if target.Eliminated || target.RespawnLeft > 0 || attacker.hitSet[tid] {
				continue
			}
			dx := target.X - attacker.X
			if dx*attacker.Facing < 0 || math.Abs(dx) > attackReach {
				continue
			}
			if math.Abs(target.Y-attacker.Y) > attackHeight {
				continue
			}

			attacker.hitSet[tid] = true

			damage := s.cfg.AttackDamage
			blocked := target.input.Block && target.Grounded
			if blocked {
				damage *= blockFactor
			}
			target.Damage += damage

			// Knockback grows with accumulated damage.
			kb := s.cfg.BaseKnockback + target.Damage*s.cfg.KnockbackScale
			if blocked {
				kb *= blockFactor
			}
			target.VX += attacker.Facing * kb
			target.VY += kb * 0.5
			target.Grounded = false

			hits = append(hits, map[string]any{
				"targetId":  tid,
				"damage":    damage,
				"blocked":   blocked,
				"newDamage": target.Damage,
			})
		}

		if len(hits) > 0 {
			s.emit(protocol.EvtAttackHit, map[string]any{
				"attackerId": id,
				"hits":       hits,
			})
		}
	}
}

func (s *Sim) checkKOs() {
	for _, id := range s.order {
		f := s.fighters[id]
		if f.Eliminated || f.RespawnLeft > 0 {
			continue
		}
		if math.Abs(f.X) <= s.cfg.KillPlaneX && f.Y >= s.cfg.KillPlaneY {
			continue
		}

		f.Stocks--
		s.emit(protocol.EvtPlayerKO, map[string]any{
			"playerId":   f.Meta.ID,
			"playerName": f.Meta.Name,
			"stocksLeft": f.Stocks,
		})

		if f.Stocks <= 0 {
			f.Eliminated = true
			continue
		}
		f.RespawnLeft = s.cfg.RespawnDelay.Seconds()
		f.VX, f.VY = 0, 0
	}
}

// respawn restores a fighter at mid-stage with fresh damage.
func (s *Sim) respawn(f *Fighter) {
	f.RespawnLeft = 0
	f.X = 0
	f.Y = respawnY
	f.VX, f.VY = 0, 0
	f.Damage = 0
	f.Attacking = false
	f.AirJumps = 0
}

func (s *Sim) checkGameOver() {
	if s.over {
		return
	}
	var alive []*Fighter
	for _, id := range s.order {
		if f := s.fighters[id]; !f.Eliminated {
			alive = append(alive, f)
		}
	}
	if len(alive) > 1 {
		return
	}
	s.over = true
	winnerName := ""
	if len(alive) == 1 {
		s.winnerID = alive[0].Meta.ID
		winnerName = alive[0].Meta.Name
	}
	s.emit(protocol.EvtGameOver, map[string]any{
		"winner":   winnerName,
		"winnerId": s.winnerID,
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
				"x": f.X, "y": f.Y,
			},
			"velocity": map[string]float64{
				"x": f.VX, "y": f.VY,
			},
			"facing":        f.Facing,
			"damagePercent": f.Damage,
			"stocks":        f.Stocks,
			"isAttacking":   f.Attacking,
			"isBlocking":    f.input.Block && f.Grounded,
			"isRespawning":  f.RespawnLeft > 0,
			"isEliminated":  f.Eliminated,
		})
	}
	return game.Event{
		Name:    protocol.EvtGameState,
		Payload: map[string]any{"players": players},
	}
}

func (s *Sim) emit(name string, payload any) {
	s.events = append(s.events, game.Event{Name: name, Payload: payload})
}
