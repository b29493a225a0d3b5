package arena

import (
	"math"
	"sort"

	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

type queuedAction struct {
	fighter *Fighter
	action  game.Action
}

// stepCombat resolves one tick of combat. Ordering is fixed: attack
// starts and hit resolution first, then grabs, then throws, then
// escapes. Within a category, earlier-queued actions win ties.
func (s *Sim) stepCombat(dt float64) {
	actions := s.collectActions()

	for _, qa := range actions {
		switch qa.action.Kind {
		case game.ActionPunch, game.ActionKick:
			s.tryAttack(qa.fighter, string(qa.action.Kind))
		}
	}

	s.advanceAttacks(dt)
	s.resolveHits()

	for _, qa := range actions {
		if qa.action.Kind == game.ActionGrab {
			s.tryGrab(qa.fighter)
		}
	}
	for _, qa := range actions {
		if qa.action.Kind == game.ActionThrow {
			s.tryThrow(qa.fighter, qa.action.Direction)
		}
	}
	for _, qa := range actions {
		if qa.action.Kind == game.ActionEscape {
			s.tryEscape(qa.fighter)
		}
	}

	s.tickGrabTimers(dt)
}

// collectActions drains every fighter's queue into global arrival order.
func (s *Sim) collectActions() []queuedAction {
	var all []queuedAction
	for _, id := range s.order {
		f := s.fighters[id]
		for _, a := range f.actions {
			all = append(all, queuedAction{f, a})
		}
		f.actions = nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].action.Seq < all[j].action.Seq })
	return all
}

// tryAttack starts a strike. Invalid attempts (mid-attack, stunned,
// grabbed) are silently ignored.
func (s *Sim) tryAttack(f *Fighter, kind string) {
	if !f.canAct() {
		return
	}
	spec, ok := attackSpecs[kind]
	if !ok {
		return
	}

	s.strikes++
	f.State = StateAttacking
	f.AttackType = kind
	f.Phase = PhaseWindup
	f.PhaseLeft = spec.windup
	f.StrikeID = s.strikes
	f.hitSet = make(map[string]bool)

	s.emit(protocol.EvtArenaAttackStarted, map[string]any{
		"attackerId": f.Meta.ID,
		"attackType": kind,
	})
}

// advanceAttacks moves every attacking fighter through windup, active,
// and recovery frames.
func (s *Sim) advanceAttacks(dt float64) {
	for _, id := range s.order {
		f := s.fighters[id]
		if f.State != StateAttacking {
			continue
		}
		spec := attackSpecs[f.AttackType]
		f.PhaseLeft -= dt
		if f.PhaseLeft > 0 {
			continue
		}
		switch f.Phase {
		case PhaseWindup:
			f.Phase = PhaseActive
			f.PhaseLeft += spec.active
		case PhaseActive:
			f.Phase = PhaseRecovery
			f.PhaseLeft += spec.recovery
		case PhaseRecovery:
			f.State = StateIdle
			f.PhaseLeft = 0
		}
	}
}

// resolveHits applies damage for every attacker in active frames. A
// given (attacker, strike, target) tuple lands at most once, enforced by
// the per-strike hit set.
func (s *Sim) resolveHits() {
	for _, id := range s.order {
		attacker := s.fighters[id]
		if attacker.State != StateAttacking || attacker.Phase != PhaseActive {
			continue
		}
		spec := attackSpecs[attacker.AttackType]

		var hits []map[string]any
		for _, tid := range s.order {
			if tid == id {
				continue
			}
			target := s.fighters[tid]
			if !target.alive() || attacker.hitSet[tid] {
				continue
			}
			dist := attacker.distanceTo(target)
			if dist > spec.reach+s.cfg.ColliderRadius {
				continue
			}
			if !attacker.facingToward(target.X, target.Z, spec.arc) {
				continue
			}

			attacker.hitSet[tid] = true

			damage := s.cfg.PunchDamage
			if attacker.AttackType == "kick" {
				damage = s.cfg.KickDamage
			}

			// Block reduces damage and knockback when facing the
			// attacker within tolerance; it never negates the hit.
			blocked := target.Blocking && target.facingToward(attacker.X, attacker.Z, blockArc)
			knockback := s.cfg.Knockback
			if blocked {
				damage *= s.cfg.BlockFactor
				knockback *= s.cfg.BlockFactor
				target.Stamina = math.Max(0, target.Stamina-damage)
			}

			target.Health += damage
			target.LastHitBy = id

			// Grabbed victims are carried and immune to knockback.
			if target.State != StateGrabbed {
				dx := target.X - attacker.X
				dz := target.Z - attacker.Z
				if d := math.Sqrt(dx*dx + dz*dz); d > 0 {
					target.VX += dx / d * knockback
					target.VZ += dz / d * knockback
					target.VY += knockback * 0.15
				}
			}

			hits = append(hits, map[string]any{
				"targetId":  tid,
				"damage":    damage,
				"blocked":   blocked,
				"newHealth": target.Health,
			})
		}

		if len(hits) > 0 {
			s.emit(protocol.EvtArenaAttackHit, map[string]any{
				"attackerId": id,
				"hits":       hits,
			})
		}
	}
}

// tryGrab connects a grab to the nearest valid target in range. Fails
// silently when nothing is grabbable.
func (s *Sim) tryGrab(f *Fighter) {
	if !f.canAct() || f.GrabbedPlayerID != "" {
		return
	}

	var victim *Fighter
	best := s.cfg.GrabRange + s.cfg.ColliderRadius
	for _, tid := range s.order {
		if tid == f.Meta.ID {
			continue
		}
		t := s.fighters[tid]
		if !t.alive() || !t.grabbable() {
			continue
		}
		dist := f.distanceTo(t)
		if dist > best {
			continue
		}
		if !f.facingToward(t.X, t.Z, math.Pi/2) {
			continue
		}
		victim = t
		best = dist
	}
	if victim == nil {
		return
	}

	f.State = StateGrabbing
	f.GrabbedPlayerID = victim.Meta.ID
	f.GrabLeft = s.cfg.GrabTimeout.Seconds()
	victim.State = StateGrabbed
	victim.GrabbedByID = f.Meta.ID
	victim.EscapeCount = 0
	s.setBlocking(victim, false)

	s.emit(protocol.EvtArenaGrab, map[string]any{
		"grabberId": f.Meta.ID,
		"targetId":  victim.Meta.ID,
	})
}

// tryThrow launches the held victim in the grabber's facing direction,
// or an explicit direction when the client supplies one.
func (s *Sim) tryThrow(f *Fighter, direction *float64) {
	if f.State != StateGrabbing || f.GrabbedPlayerID == "" {
		return
	}
	victim, ok := s.fighters[f.GrabbedPlayerID]
	if !ok {
		f.GrabbedPlayerID = ""
		f.State = StateIdle
		return
	}

	dir := f.Facing
	if direction != nil {
		dir = *direction
	}

	f.GrabbedPlayerID = ""
	f.State = StateIdle
	victim.GrabbedByID = ""
	victim.State = StateThrown
	victim.Grounded = false
	victim.X = f.X + math.Sin(dir)*carryOffset
	victim.Z = f.Z + math.Cos(dir)*carryOffset
	victim.VX = math.Sin(dir) * s.cfg.ThrowSpeed
	victim.VZ = math.Cos(dir) * s.cfg.ThrowSpeed
	victim.VY = s.cfg.ThrowSpeed * throwLift
	victim.Health += s.cfg.ThrowDamage
	victim.LastHitBy = f.Meta.ID

	s.emit(protocol.EvtArenaThrow, map[string]any{
		"grabberId": f.Meta.ID,
		"targetId":  victim.Meta.ID,
		"damage":    s.cfg.ThrowDamage,
	})
}

// tryEscape counts a victim's escape press; at the threshold the grab
// breaks and the grabber is knocked down.
func (s *Sim) tryEscape(f *Fighter) {
	if f.State != StateGrabbed || f.GrabbedByID == "" {
		return
	}
	f.EscapeCount++
	if f.EscapeCount < s.cfg.EscapePresses {
		return
	}

	grabber, ok := s.fighters[f.GrabbedByID]
	f.GrabbedByID = ""
	f.EscapeCount = 0
	f.State = StateIdle
	if ok {
		grabber.GrabbedPlayerID = ""
		grabber.State = StateStunned
		grabber.StunLeft = s.cfg.StunDuration.Seconds()
		// Victim lands at the grabber's feet.
		f.X = grabber.X + math.Sin(grabber.Facing)*carryOffset
		f.Z = grabber.Z + math.Cos(grabber.Facing)*carryOffset

		s.emit(protocol.EvtArenaGrabEscape, map[string]any{
			"grabberId": grabber.Meta.ID,
			"targetId":  f.Meta.ID,
		})
	}
}

// tickGrabTimers auto-releases grabs that were never converted to a throw.
func (s *Sim) tickGrabTimers(dt float64) {
	for _, id := range s.order {
		f := s.fighters[id]
		if f.State != StateGrabbing || f.GrabbedPlayerID == "" {
			continue
		}
		f.GrabLeft -= dt
		if f.GrabLeft > 0 {
			continue
		}
		if victim, ok := s.fighters[f.GrabbedPlayerID]; ok {
			victim.GrabbedByID = ""
			victim.EscapeCount = 0
			if victim.State == StateGrabbed {
				victim.State = StateIdle
			}
		}
		f.GrabbedPlayerID = ""
		f.State = StateIdle
	}
}
