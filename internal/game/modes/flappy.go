package modes

import (
	"math/rand"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

const birdRadius = 0.5

// obstacle is a vertical pipe pair at worldX with a gap centered on gapY.
type obstacle struct {
	X    float64
	GapY float64
}

// bird is one player's flapping state.
type bird struct {
	meta     game.PlayerMeta
	y        float64
	vy       float64
	alive    bool
	distance float64
	flaps    int
}

// FlappySim runs one shared obstacle course; each player flies an
// independent bird through it. The obstacle sequence is derived from a
// per-room seed, so every client can reproduce the course.
type FlappySim struct {
	base
	cfg       config.FlappyConfig
	birds     map[string]*bird
	order     []string
	obstacles []obstacle
	seed      int64
	scroll    float64
}

// NewFlappy creates a flappy round from a deterministic room seed.
func NewFlappy(cfg config.FlappyConfig, players []game.PlayerMeta, seed int64) *FlappySim {
	s := &FlappySim{
		cfg:   cfg,
		birds: make(map[string]*bird, len(players)),
		seed:  seed,
	}
	for _, p := range byNumber(players) {
		s.birds[p.ID] = &bird{meta: p, alive: true}
		s.order = append(s.order, p.ID)
	}

	rng := rand.New(rand.NewSource(seed))
	span := cfg.CeilingY - cfg.FloorY - cfg.GapHeight - 2
	for i := 0; i < 256; i++ {
		s.obstacles = append(s.obstacles, obstacle{
			X:    cfg.ObstacleEvery * float64(i+2),
			GapY: cfg.FloorY + 1 + cfg.GapHeight/2 + rng.Float64()*span,
		})
	}
	return s
}

func (s *FlappySim) Mode() string { return protocol.ModeFlappy }

func (s *FlappySim) SetInput(playerID string, in game.InputState) {}

func (s *FlappySim) Enqueue(playerID string, act game.Action) {
	b, ok := s.birds[playerID]
	if !ok || !b.alive || act.Kind != game.ActionFlap {
		return
	}
	b.flaps++
}

func (s *FlappySim) DropPlayer(playerID string) {
	if b, ok := s.birds[playerID]; ok && b.alive {
		s.kill(b)
	}
}

func (s *FlappySim) Step(dt float64) {
	if s.over {
		return
	}

	s.scroll += s.cfg.ScrollSpeed * dt

	for _, id := range s.order {
		b := s.birds[id]
		if !b.alive {
			continue
		}

		// One impulse per queued flap; extra taps in a tick stack.
		for ; b.flaps > 0; b.flaps-- {
			b.vy = s.cfg.FlapImpulse
		}

		b.vy -= s.cfg.Gravity * dt
		b.y += b.vy * dt
		b.distance = s.scroll

		if b.y <= s.cfg.FloorY || b.y >= s.cfg.CeilingY {
			s.kill(b)
			continue
		}
		if s.hitsObstacle(b) {
			s.kill(b)
		}
	}

	s.checkOver()
}

// hitsObstacle tests the bird (all birds fly at the same world x) against
// the nearest pipe pair.
func (s *FlappySim) hitsObstacle(b *bird) bool {
	for _, o := range s.obstacles {
		if o.X < s.scroll-1 || o.X > s.scroll+1 {
			continue
		}
		half := s.cfg.GapHeight / 2
		if b.y-birdRadius < o.GapY-half || b.y+birdRadius > o.GapY+half {
			return true
		}
	}
	return false
}

func (s *FlappySim) kill(b *bird) {
	b.alive = false
	s.emit(protocol.EvtFlappyDeath, map[string]any{
		"playerId":   b.meta.ID,
		"playerName": b.meta.Name,
		"distance":   b.distance,
	})
}

func (s *FlappySim) checkOver() {
	var alive []*bird
	for _, id := range s.order {
		if b := s.birds[id]; b.alive {
			alive = append(alive, b)
		}
	}
	if len(alive) > 1 {
		return
	}
	s.over = true
	winnerName := ""
	if len(alive) == 1 {
		s.winnerID = alive[0].meta.ID
		winnerName = alive[0].meta.Name
	} else {
		// Everyone down on the same tick: furthest distance wins.
		bestDist := -1.0
		for _, id := range s.order {
			b := s.birds[id]
			if b.distance > bestDist {
				bestDist = b.distance
				s.winnerID = b.meta.ID
				winnerName = b.meta.Name
			}
		}
	}
	s.emit(protocol.EvtFlappyOver, map[string]any{
		"winner":   winnerName,
		"winnerId": s.winnerID,
	})
}

func (s *FlappySim) Snapshot() game.Event {
	players := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		b := s.birds[id]
		players = append(players, map[string]any{
			"id":       b.meta.ID,
			"name":     b.meta.Name,
			"number":   b.meta.Number,
			"y":        b.y,
			"vy":       b.vy,
			"isAlive":  b.alive,
			"distance": b.distance,
		})
	}
	return game.Event{
		Name: protocol.EvtFlappyState,
		Payload: map[string]any{
			"players": players,
			"scroll":  s.scroll,
			"seed":    s.seed,
		},
	}
}
