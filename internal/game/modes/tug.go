package modes

import (
	"math"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

// puller is one team member's tug state.
type puller struct {
	meta         game.PlayerMeta
	team         int // 0 = left, 1 = right
	stamina      float64
	contribution float64
	dropped      bool
	pulls        int
}

// TugSim is the rhythm tug-of-war. The server publishes a pulse; pulls
// are scored by how close to the pulse they arrive, and move the rope
// toward the pulling team.
type TugSim struct {
	base
	cfg     config.TugConfig
	players map[string]*puller
	order   []string

	offset     float64 // rope offset, negative = left team winning
	elapsed    float64
	sincePulse float64
}

// NewTug creates a tug round, splitting players into teams by the parity
// of their room number.
func NewTug(cfg config.TugConfig, players []game.PlayerMeta) *TugSim {
	s := &TugSim{
		cfg:        cfg,
		players:    make(map[string]*puller, len(players)),
		sincePulse: cfg.PulseInterval.Seconds(), // pulse fires on the first tick
	}
	for _, p := range byNumber(players) {
		s.players[p.ID] = &puller{
			meta:    p,
			team:    (p.Number + 1) % 2,
			stamina: cfg.MaxStamina,
		}
		s.order = append(s.order, p.ID)
	}
	return s
}

func (s *TugSim) Mode() string { return protocol.ModeTug }

func (s *TugSim) SetInput(playerID string, in game.InputState) {}

func (s *TugSim) Enqueue(playerID string, act game.Action) {
	p, ok := s.players[playerID]
	if !ok || p.dropped || act.Kind != game.ActionTugPull {
		return
	}
	p.pulls++
}

func (s *TugSim) DropPlayer(playerID string) {
	if p, ok := s.players[playerID]; ok {
		p.dropped = true
	}
}

func (s *TugSim) Step(dt float64) {
	if s.over {
		return
	}
	s.elapsed += dt
	s.sincePulse += dt

	if s.sincePulse >= s.cfg.PulseInterval.Seconds() {
		s.sincePulse = 0
		s.emit(protocol.EvtTugPulse, map[string]any{"at": s.elapsed})
	}

	for _, id := range s.order {
		p := s.players[id]
		if p.dropped {
			p.pulls = 0
			continue
		}

		for ; p.pulls > 0; p.pulls-- {
			s.scorePull(p)
		}

		p.stamina = math.Min(s.cfg.MaxStamina, p.stamina+s.cfg.StaminaRegenPS*dt)
	}

	if math.Abs(s.offset) >= s.cfg.WinOffset || s.elapsed >= s.cfg.Duration.Seconds() {
		s.finish()
	}
}

// scorePull grades one pull against the latest pulse and draws the rope.
func (s *TugSim) scorePull(p *puller) {
	if p.stamina < s.cfg.StaminaCost {
		s.emitScore(p, "miss", 0)
		return
	}

	// Distance to the nearest pulse edge, early or late.
	interval := s.cfg.PulseInterval.Seconds()
	drift := math.Min(s.sincePulse, interval-s.sincePulse)

	var quality string
	var pull float64
	switch {
	case drift <= s.cfg.PerfectWindow.Seconds():
		quality, pull = "perfect", s.cfg.PerfectPull
	case drift <= s.cfg.GoodWindow.Seconds():
		quality, pull = "good", s.cfg.GoodPull
	default:
		quality, pull = "miss", 0
	}

	if pull > 0 {
		p.stamina -= s.cfg.StaminaCost
		p.contribution += pull
		if p.team == 0 {
			s.offset -= pull
		} else {
			s.offset += pull
		}
	}
	s.emitScore(p, quality, pull)
}

func (s *TugSim) emitScore(p *puller, quality string, pull float64) {
	s.emit(protocol.EvtTugScore, map[string]any{
		"playerId": p.meta.ID,
		"quality":  quality,
		"pull":     pull,
	})
}

// finish resolves the winning team and elects its top contributor as the
// round winner for tournament scoring.
func (s *TugSim) finish() {
	s.over = true

	winningTeam := 0
	if s.offset > 0 {
		winningTeam = 1
	} else if s.offset == 0 {
		winningTeam = -1 // dead heat, no winner
	}

	winnerName := ""
	best := -1.0
	for _, id := range s.order {
		p := s.players[id]
		if p.dropped || p.team != winningTeam {
			continue
		}
		if p.contribution > best {
			best = p.contribution
			s.winnerID = id
			winnerName = p.meta.Name
		}
	}

	s.emit(protocol.EvtTugOver, map[string]any{
		"winningTeam": winningTeam,
		"winner":      winnerName,
		"winnerId":    s.winnerID,
		"offset":      s.offset,
	})
}

func (s *TugSim) Snapshot() game.Event {
	players := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		players = append(players, map[string]any{
			"id":           p.meta.ID,
			"name":         p.meta.Name,
			"number":       p.meta.Number,
			"team":         p.team,
			"stamina":      p.stamina,
			"contribution": p.contribution,
		})
	}
	return game.Event{
		Name: protocol.EvtTugState,
		Payload: map[string]any{
			"players":  players,
			"offset":   s.offset,
			"timeLeft": math.Max(0, s.cfg.Duration.Seconds()-s.elapsed),
		},
	}
}
