package modes

import (
	"math"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

// chaser is one player's tag state. Penalty time accumulates while
// holding "it"; least penalty at the buzzer wins.
type chaser struct {
	meta    game.PlayerMeta
	x, z    float64
	penalty float64
	dropped bool
	input   game.InputState
}

// TagSim is the square-field game of tag.
type TagSim struct {
	base
	cfg     config.TagConfig
	players map[string]*chaser
	order   []string

	itID       string
	elapsed    float64
	tagLockout float64
}

// NewTag creates a tag round; the lowest-numbered player starts as "it".
func NewTag(cfg config.TagConfig, players []game.PlayerMeta) *TagSim {
	s := &TagSim{
		cfg:     cfg,
		players: make(map[string]*chaser, len(players)),
	}
	sorted := byNumber(players)
	for i, p := range sorted {
		angle := 2 * math.Pi * float64(i) / float64(len(sorted))
		s.players[p.ID] = &chaser{
			meta: p,
			x:    math.Sin(angle) * cfg.ArenaHalf / 2,
			z:    math.Cos(angle) * cfg.ArenaHalf / 2,
		}
		s.order = append(s.order, p.ID)
	}
	if len(sorted) > 0 {
		s.itID = sorted[0].ID
	}
	return s
}

func (s *TagSim) Mode() string { return protocol.ModeTag }

func (s *TagSim) SetInput(playerID string, in game.InputState) {
	if c, ok := s.players[playerID]; ok {
		c.input = in
	}
}

func (s *TagSim) Enqueue(playerID string, act game.Action) {}

func (s *TagSim) DropPlayer(playerID string) {
	c, ok := s.players[playerID]
	if !ok {
		return
	}
	c.dropped = true
	// "It" cannot leave the game with the flag; pass it on.
	if s.itID == playerID {
		for _, id := range s.order {
			if o := s.players[id]; !o.dropped {
				s.setIt(id, "")
				break
			}
		}
	}
}

func (s *TagSim) Step(dt float64) {
	if s.over {
		return
	}
	s.elapsed += dt
	if s.tagLockout > 0 {
		s.tagLockout -= dt
	}

	for _, id := range s.order {
		c := s.players[id]
		if c.dropped {
			continue
		}

		speed := s.cfg.MoveSpeed
		if id == s.itID {
			speed *= s.cfg.ItMultiplier
			c.penalty += dt
		}

		var dx, dz float64
		if c.input.Left {
			dx -= 1
		}
		if c.input.Right {
			dx += 1
		}
		if c.input.Up {
			dz += 1
		}
		if c.input.Down {
			dz -= 1
		}
		if dx != 0 || dz != 0 {
			norm := math.Sqrt(dx*dx + dz*dz)
			c.x += dx / norm * speed * dt
			c.z += dz / norm * speed * dt
		}

		c.x = math.Max(-s.cfg.ArenaHalf, math.Min(s.cfg.ArenaHalf, c.x))
		c.z = math.Max(-s.cfg.ArenaHalf, math.Min(s.cfg.ArenaHalf, c.z))
	}

	s.resolveTags()

	if s.elapsed >= s.cfg.Duration.Seconds() {
		s.finish()
	}
}

func (s *TagSim) resolveTags() {
	if s.tagLockout > 0 {
		return
	}
	it, ok := s.players[s.itID]
	if !ok || it.dropped {
		return
	}
	for _, id := range s.order {
		if id == s.itID {
			continue
		}
		c := s.players[id]
		if c.dropped {
			continue
		}
		if math.Hypot(c.x-it.x, c.z-it.z) <= s.cfg.TagRadius {
			s.setIt(id, s.itID)
			s.tagLockout = s.cfg.TagCooldown.Seconds()
			return
		}
	}
}

func (s *TagSim) setIt(newIt, formerIt string) {
	s.itID = newIt
	s.emit(protocol.EvtTagTagged, map[string]any{
		"taggedId": newIt,
		"byId":     formerIt,
	})
}

func (s *TagSim) finish() {
	s.over = true
	bestPenalty := math.Inf(1)
	winnerName := ""
	scores := make(map[string]float64, len(s.order))
	for _, id := range s.order {
		c := s.players[id]
		scores[c.meta.Name] = c.penalty
		if c.dropped {
			continue
		}
		if c.penalty < bestPenalty {
			bestPenalty = c.penalty
			s.winnerID = id
			winnerName = c.meta.Name
		}
	}
	s.emit(protocol.EvtTagOver, map[string]any{
		"winner":    winnerName,
		"winnerId":  s.winnerID,
		"penalties": scores,
	})
}

func (s *TagSim) Snapshot() game.Event {
	players := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		c := s.players[id]
		players = append(players, map[string]any{
			"id":     c.meta.ID,
			"name":   c.meta.Name,
			"number": c.meta.Number,
			"position": map[string]float64{
				"x": c.x, "z": c.z,
			},
			"isIt":    id == s.itID,
			"penalty": c.penalty,
		})
	}
	return game.Event{
		Name: protocol.EvtTagState,
		Payload: map[string]any{
			"players":  players,
			"itId":     s.itID,
			"timeLeft": math.Max(0, s.cfg.Duration.Seconds()-s.elapsed),
		},
	}
}
