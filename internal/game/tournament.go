package game

// Tournament aggregates round wins across N rounds of one mode. Only the
// runner mutates it; simulations never see tournament state.
type Tournament struct {
	TotalRounds  int
	CurrentRound int // 1-based; the round currently being played

	wins      map[string]int
	lastWin   map[string]int // round number of each player's latest win
	terminal  bool
	champion  string
	roundSeen int
}

// NewTournament creates a tournament of the given length. rounds < 1 is
// clamped to a single round.
func NewTournament(rounds int) *Tournament {
	if rounds < 1 {
		rounds = 1
	}
	return &Tournament{
		TotalRounds:  rounds,
		CurrentRound: 1,
		wins:         make(map[string]int),
		lastWin:      make(map[string]int),
	}
}

// RecordRound registers the winner of the current round and advances the
// round counter. An empty winnerID counts as a draw: the round still
// advances but nobody scores.
func (t *Tournament) RecordRound(winnerID string) {
	if t.terminal {
		return
	}
	if winnerID != "" {
		t.wins[winnerID]++
		t.lastWin[winnerID] = t.CurrentRound
	}
	t.roundSeen = t.CurrentRound
	if t.CurrentRound >= t.TotalRounds {
		t.terminal = true
		t.champion = t.computeChampion()
		return
	}
	t.CurrentRound++
}

// Finished reports whether the final round has resolved.
func (t *Tournament) Finished() bool {
	return t.terminal
}

// Champion returns the aggregate winner. Ties break to the player whose
// latest round win is most recent.
func (t *Tournament) Champion() string {
	return t.champion
}

// Scores returns a copy of the per-player win counts.
func (t *Tournament) Scores() map[string]int {
	out := make(map[string]int, len(t.wins))
	for id, n := range t.wins {
		out[id] = n
	}
	return out
}

func (t *Tournament) computeChampion() string {
	best := ""
	bestWins := -1
	bestLast := -1
	for id, n := range t.wins {
		last := t.lastWin[id]
		if n > bestWins || (n == bestWins && last > bestLast) {
			best = id
			bestWins = n
			bestLast = last
		}
	}
	return best
}
