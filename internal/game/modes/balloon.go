package modes

import (
	"math"
	"math/rand"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

// balloon is one player's balloon. The burst threshold is rolled per
// player at round start and never revealed to clients.
type balloon struct {
	meta     game.PlayerMeta
	size     float64
	burstAt  float64
	cooldown float64
	burst    bool
	dropped  bool
	pumps    int
}

// BalloonSim is the press-your-luck inflation game: pump as big as you
// dare, burst and you are out of the running.
type BalloonSim struct {
	base
	cfg      config.BalloonConfig
	balloons map[string]*balloon
	order    []string
	elapsed  float64
}

// NewBalloon creates a balloon round from a deterministic room seed.
func NewBalloon(cfg config.BalloonConfig, players []game.PlayerMeta, seed int64) *BalloonSim {
	s := &BalloonSim{
		cfg:      cfg,
		balloons: make(map[string]*balloon, len(players)),
	}
	rng := rand.New(rand.NewSource(seed))
	for _, p := range byNumber(players) {
		s.balloons[p.ID] = &balloon{
			meta:    p,
			burstAt: cfg.BurstMin + rng.Float64()*(cfg.BurstMax-cfg.BurstMin),
		}
		s.order = append(s.order, p.ID)
	}
	return s
}

func (s *BalloonSim) Mode() string { return protocol.ModeBalloon }

func (s *BalloonSim) SetInput(playerID string, in game.InputState) {}

func (s *BalloonSim) Enqueue(playerID string, act game.Action) {
	b, ok := s.balloons[playerID]
	if !ok || b.burst || b.dropped || act.Kind != game.ActionInflate {
		return
	}
	b.pumps++
}

func (s *BalloonSim) DropPlayer(playerID string) {
	if b, ok := s.balloons[playerID]; ok {
		b.dropped = true
	}
}

func (s *BalloonSim) Step(dt float64) {
	if s.over {
		return
	}
	s.elapsed += dt

	for _, id := range s.order {
		b := s.balloons[id]
		if b.burst || b.dropped {
			b.pumps = 0
			continue
		}

		if b.cooldown > 0 {
			b.cooldown -= dt
		}

		// One pump per cooldown window; spam inside it is ignored.
		if b.pumps > 0 && b.cooldown <= 0 {
			b.size += s.cfg.InflateAmount
			b.cooldown = s.cfg.InflateCooldown.Seconds()
		}
		b.pumps = 0

		b.size = math.Max(0, b.size-s.cfg.DeflatePS*dt)

		if b.size >= b.burstAt {
			b.burst = true
			s.emit(protocol.EvtBalloonBurst, map[string]any{
				"playerId":   b.meta.ID,
				"playerName": b.meta.Name,
				"size":       b.size,
			})
		}
	}

	if s.elapsed >= s.cfg.Duration.Seconds() || s.noneLeft() {
		s.finish()
	}
}

// noneLeft reports whether every balloon has burst or its owner left.
func (s *BalloonSim) noneLeft() bool {
	for _, id := range s.order {
		if b := s.balloons[id]; !b.burst && !b.dropped {
			return false
		}
	}
	return true
}

// finish awards the biggest surviving balloon; burst players cannot win.
func (s *BalloonSim) finish() {
	s.over = true
	best := -1.0
	winnerName := ""
	for _, id := range s.order {
		b := s.balloons[id]
		if b.burst || b.dropped {
			continue
		}
		if b.size > best {
			best = b.size
			s.winnerID = id
			winnerName = b.meta.Name
		}
	}
	s.emit(protocol.EvtBalloonOver, map[string]any{
		"winner":   winnerName,
		"winnerId": s.winnerID,
		"size":     math.Max(best, 0),
	})
}

func (s *BalloonSim) Snapshot() game.Event {
	players := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		b := s.balloons[id]
		players = append(players, map[string]any{
			"id":      b.meta.ID,
			"name":    b.meta.Name,
			"number":  b.meta.Number,
			"size":    b.size,
			"isBurst": b.burst,
		})
	}
	return game.Event{
		Name: protocol.EvtBalloonState,
		Payload: map[string]any{
			"players":  players,
			"timeLeft": math.Max(0, s.cfg.Duration.Seconds()-s.elapsed),
		},
	}
}
