package modes

import (
	"fmt"
	"time"

	"github.com/couchparty/server/internal/game"
)

const dt = 1.0 / 60

func testPlayers(n int) []game.PlayerMeta {
	names := []string{"Alice", "Bob", "Cara", "Dan", "Eve", "Finn", "Gus", "Hal"}
	players := make([]game.PlayerMeta, 0, n)
	for i := 0; i < n; i++ {
		players = append(players, game.PlayerMeta{
			ID:     fmt.Sprintf("p%d", i+1),
			Name:   names[i],
			Number: i + 1,
		})
	}
	return players
}

func stepFor(s game.Simulation, d time.Duration) {
	for t := 0.0; t < d.Seconds(); t += dt {
		s.Step(dt)
	}
}

var seq uint64

func push(s game.Simulation, id string, kind game.ActionKind, side string) {
	seq++
	s.Enqueue(id, game.Action{Kind: kind, Side: side, Seq: seq})
}

func named(evs []game.Event, name string) []game.Event {
	var out []game.Event
	for _, ev := range evs {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
