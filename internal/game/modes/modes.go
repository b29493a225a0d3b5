// Package modes implements the light party minigames: race, flappy,
// tag, tug-of-war, balloon, and paint. Each is a game.Simulation driven
// by its room's runner.
package modes

import (
	"sort"

	"github.com/couchparty/server/internal/game"
)

// base carries the event buffer and round result shared by every mode.
type base struct {
	events   []game.Event
	winnerID string
	over     bool
}

func (b *base) DrainEvents() []game.Event {
	evs := b.events
	b.events = nil
	return evs
}

func (b *base) Winner() (string, bool) { return b.winnerID, b.over }

func (b *base) emit(name string, payload any) {
	b.events = append(b.events, game.Event{Name: name, Payload: payload})
}

func (b *base) emitBinary(data []byte) {
	b.events = append(b.events, game.Event{Binary: data})
}

// byNumber returns players sorted by their stable room number.
func byNumber(players []game.PlayerMeta) []game.PlayerMeta {
	sorted := append([]game.PlayerMeta(nil), players...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })
	return sorted
}
