package modes

import (
	"math"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

// gridFrameEvery throttles the binary grid broadcast; scores still ride
// every JSON snapshot.
const gridFrameEvery = 6

// painter is one player's position on the paint field.
type painter struct {
	meta    game.PlayerMeta
	x, z    float64
	painted int
	dropped bool
	input   game.InputState
}

// unowned marks a cell no painter has claimed yet.
const unowned int8 = -1

// PaintSim is the territory-painting game. The field is a square grid of
// int8 cells holding the owning player's number, -1 for unpainted.
// The grid travels as a binary frame, everything else as JSON.
type PaintSim struct {
	base
	cfg      config.PaintConfig
	players  map[string]*painter
	order    []string
	grid     []int8
	counts   map[int8]int
	elapsed  float64
	tick     int
	cellSize float64
}

// NewPaint creates a paint round with players spread around the field edge.
func NewPaint(cfg config.PaintConfig, players []game.PlayerMeta) *PaintSim {
	s := &PaintSim{
		cfg:      cfg,
		players:  make(map[string]*painter, len(players)),
		grid:     make([]int8, cfg.GridSize*cfg.GridSize),
		counts:   make(map[int8]int),
		cellSize: 1,
	}
	for i := range s.grid {
		s.grid[i] = unowned
	}
	sorted := byNumber(players)
	half := float64(cfg.GridSize) / 2
	for i, p := range sorted {
		angle := 2 * math.Pi * float64(i) / float64(len(sorted))
		s.players[p.ID] = &painter{
			meta: p,
			x:    half + math.Sin(angle)*half*0.6,
			z:    half + math.Cos(angle)*half*0.6,
		}
		s.order = append(s.order, p.ID)
	}
	return s
}

func (s *PaintSim) Mode() string { return protocol.ModePaint }

func (s *PaintSim) SetInput(playerID string, in game.InputState) {
	if p, ok := s.players[playerID]; ok {
		p.input = in
	}
}

func (s *PaintSim) Enqueue(playerID string, act game.Action) {}

func (s *PaintSim) DropPlayer(playerID string) {
	if p, ok := s.players[playerID]; ok {
		p.dropped = true
	}
}

func (s *PaintSim) Step(dt float64) {
	if s.over {
		return
	}
	s.elapsed += dt
	s.tick++

	max := float64(s.cfg.GridSize) - 0.01
	for _, id := range s.order {
		p := s.players[id]
		if p.dropped {
			continue
		}

		var dx, dz float64
		if p.input.Left {
			dx -= 1
		}
		if p.input.Right {
			dx += 1
		}
		if p.input.Up {
			dz += 1
		}
		if p.input.Down {
			dz -= 1
		}
		if dx != 0 || dz != 0 {
			norm := math.Sqrt(dx*dx + dz*dz)
			p.x += dx / norm * s.cfg.MoveSpeed * dt
			p.z += dz / norm * s.cfg.MoveSpeed * dt
		}
		p.x = math.Max(0, math.Min(max, p.x))
		p.z = math.Max(0, math.Min(max, p.z))

		s.paint(p)
	}

	if s.tick%gridFrameEvery == 0 {
		s.emitBinary(protocol.EncodeGridFrame(s.grid))
	}

	if s.elapsed >= s.cfg.Duration.Seconds() {
		s.finish()
	}
}

// paint claims the cell under the painter, stealing it if already owned.
func (s *PaintSim) paint(p *painter) {
	cx := int(p.x / s.cellSize)
	cz := int(p.z / s.cellSize)
	idx := cz*s.cfg.GridSize + cx
	owner := int8(p.meta.Number)
	prev := s.grid[idx]
	if prev == owner {
		return
	}
	if prev != unowned {
		s.counts[prev]--
	}
	s.grid[idx] = owner
	s.counts[owner]++
	p.painted = s.counts[owner]
}

func (s *PaintSim) finish() {
	s.over = true
	s.emitBinary(protocol.EncodeGridFrame(s.grid))

	best := -1
	winnerName := ""
	for _, id := range s.order {
		p := s.players[id]
		n := s.counts[int8(p.meta.Number)]
		if p.dropped {
			continue
		}
		if n > best {
			best = n
			s.winnerID = id
			winnerName = p.meta.Name
		}
	}
	s.emit(protocol.EvtPaintOver, map[string]any{
		"winner":   winnerName,
		"winnerId": s.winnerID,
		"scores":   s.shares(),
	})
}

// shares returns each player's share of the grid as a percentage.
func (s *PaintSim) shares() map[string]float64 {
	total := float64(len(s.grid))
	out := make(map[string]float64, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		out[p.meta.Name] = float64(s.counts[int8(p.meta.Number)]) / total * 100
	}
	return out
}

func (s *PaintSim) Snapshot() game.Event {
	players := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		players = append(players, map[string]any{
			"id":     p.meta.ID,
			"name":   p.meta.Name,
			"number": p.meta.Number,
			"position": map[string]float64{
				"x": p.x, "z": p.z,
			},
		})
	}
	return game.Event{
		Name: protocol.EvtPaintState,
		Payload: map[string]any{
			"players":  players,
			"scores":   s.shares(),
			"gridSize": s.cfg.GridSize,
			"timeLeft": math.Max(0, s.cfg.Duration.Seconds()-s.elapsed),
		},
	}
}
