package modes

import (
	"sort"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

// runner is one racer's state. Speed builds from alternating left/right
// taps and decays continuously; same-side taps are penalized.
type runner struct {
	meta     game.PlayerMeta
	distance float64
	speed    float64
	lastSide string
	finished bool
	finishAt float64
	rank     int
	dropped  bool
	actions  []game.Action
}

// RaceSim is the alternating-tap foot race.
type RaceSim struct {
	base
	cfg     config.RaceConfig
	runners map[string]*runner
	order   []string

	elapsed    float64
	countdown  float64
	started    bool
	lastShout  int
	finishRank int
}

// NewRace creates a race round with a 3-2-1 countdown.
func NewRace(cfg config.RaceConfig, players []game.PlayerMeta) *RaceSim {
	s := &RaceSim{
		cfg:       cfg,
		runners:   make(map[string]*runner, len(players)),
		countdown: float64(cfg.CountdownSeconds),
		lastShout: cfg.CountdownSeconds + 1,
	}
	for _, p := range byNumber(players) {
		s.runners[p.ID] = &runner{meta: p}
		s.order = append(s.order, p.ID)
	}
	return s
}

func (s *RaceSim) Mode() string { return protocol.ModeRace }

func (s *RaceSim) SetInput(playerID string, in game.InputState) {}

func (s *RaceSim) Enqueue(playerID string, act game.Action) {
	if r, ok := s.runners[playerID]; ok && !r.finished && !r.dropped {
		r.actions = append(r.actions, act)
	}
}

func (s *RaceSim) DropPlayer(playerID string) {
	if r, ok := s.runners[playerID]; ok {
		r.dropped = true
	}
}

func (s *RaceSim) Step(dt float64) {
	if s.over {
		return
	}

	if !s.started {
		s.countdown -= dt
		shout := int(s.countdown) + 1
		if shout < s.lastShout && shout >= 1 {
			s.lastShout = shout
			s.emit(protocol.EvtRaceCountdown, map[string]any{"count": shout})
		}
		if s.countdown <= 0 {
			s.started = true
			s.emit(protocol.EvtRaceStart, nil)
		}
		// Taps before the gun are discarded.
		for _, id := range s.order {
			s.runners[id].actions = nil
		}
		return
	}

	s.elapsed += dt

	for _, id := range s.order {
		r := s.runners[id]
		if r.finished || r.dropped {
			continue
		}

		for _, act := range r.actions {
			if act.Kind != game.ActionRaceTap {
				continue
			}
			impulse := s.cfg.TapImpulse
			if act.Side == r.lastSide {
				impulse *= s.cfg.SameSidePenalty
			} else if r.lastSide != "" {
				impulse *= s.cfg.AlternationBonus
			}
			r.speed += impulse
			r.lastSide = act.Side
		}
		r.actions = nil

		r.speed -= s.cfg.DecayPerSecond * dt
		if r.speed < 0 {
			r.speed = 0
		}
		r.distance += r.speed * dt

		if r.distance >= s.cfg.FinishDistance {
			r.distance = s.cfg.FinishDistance
			r.finished = true
			r.finishAt = s.elapsed
			s.finishRank++
			r.rank = s.finishRank
			s.emit(protocol.EvtRaceFinish, map[string]any{
				"playerId":   r.meta.ID,
				"playerName": r.meta.Name,
				"finishTime": r.finishAt,
				"rank":       r.rank,
			})
		}
	}

	s.checkOver()
}

func (s *RaceSim) checkOver() {
	for _, id := range s.order {
		r := s.runners[id]
		if !r.finished && !r.dropped {
			return
		}
	}

	ranking := s.ranking()
	if len(ranking) > 0 {
		s.winnerID = ranking[0]["playerId"].(string)
	}
	s.over = true
	s.emit(protocol.EvtRaceWinner, map[string]any{"ranking": ranking})
}

// ranking orders finishers by finish time, then unfinished by distance.
func (s *RaceSim) ranking() []map[string]any {
	rs := make([]*runner, 0, len(s.order))
	for _, id := range s.order {
		rs = append(rs, s.runners[id])
	}
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.finished != b.finished {
			return a.finished
		}
		if a.finished {
			return a.finishAt < b.finishAt
		}
		return a.distance > b.distance
	})

	out := make([]map[string]any, 0, len(rs))
	for i, r := range rs {
		out = append(out, map[string]any{
			"playerId":   r.meta.ID,
			"playerName": r.meta.Name,
			"rank":       i + 1,
			"finished":   r.finished,
			"finishTime": r.finishAt,
			"distance":   r.distance,
		})
	}
	return out
}

func (s *RaceSim) Snapshot() game.Event {
	players := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		r := s.runners[id]
		players = append(players, map[string]any{
			"id":       r.meta.ID,
			"name":     r.meta.Name,
			"number":   r.meta.Number,
			"distance": r.distance,
			"speed":    r.speed,
			"finished": r.finished,
			"rank":     r.rank,
		})
	}
	return game.Event{
		Name: protocol.EvtRaceState,
		Payload: map[string]any{
			"players":        players,
			"finishDistance": s.cfg.FinishDistance,
			"started":        s.started,
		},
	}
}
