package modes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/protocol"
)

func tugConfig() config.TugConfig {
	return config.TugConfig{
		PulseInterval:  time.Second,
		PerfectWindow:  120 * time.Millisecond,
		GoodWindow:     300 * time.Millisecond,
		PerfectPull:    1.0,
		GoodPull:       0.5,
		WinOffset:      10,
		StaminaCost:    10,
		StaminaRegenPS: 8,
		MaxStamina:     100,
		Duration:       45 * time.Second,
	}
}

func TestTeamsSplitByNumberParity(t *testing.T) {
	s := NewTug(tugConfig(), testPlayers(4))

	assert.Equal(t, 0, s.players["p1"].team)
	assert.Equal(t, 1, s.players["p2"].team)
	assert.Equal(t, 0, s.players["p3"].team)
	assert.Equal(t, 1, s.players["p4"].team)
}

func TestPulseEmittedEveryInterval(t *testing.T) {
	s := NewTug(tugConfig(), testPlayers(2))

	stepFor(s, 2500*time.Millisecond)

	pulses := named(s.DrainEvents(), protocol.EvtTugPulse)
	assert.Len(t, pulses, 3) // t=0, t=1s, t=2s
}

func TestPullOnPulseScoresPerfect(t *testing.T) {
	s := NewTug(tugConfig(), testPlayers(2))

	s.Step(dt) // first pulse fires
	s.DrainEvents()
	push(s, "p1", game.ActionTugPull, "")
	s.Step(dt)

	scores := named(s.DrainEvents(), protocol.EvtTugScore)
	require.Len(t, scores, 1)
	payload := scores[0].Payload.(map[string]any)
	assert.Equal(t, "perfect", payload["quality"])
	assert.InDelta(t, -1.0, s.offset, 1e-9) // p1 pulls left
}

func TestPullBetweenPulsesMisses(t *testing.T) {
	s := NewTug(tugConfig(), testPlayers(2))

	stepFor(s, 500*time.Millisecond) // halfway between pulses
	s.DrainEvents()
	push(s, "p1", game.ActionTugPull, "")
	s.Step(dt)

	scores := named(s.DrainEvents(), protocol.EvtTugScore)
	require.Len(t, scores, 1)
	assert.Equal(t, "miss", scores[0].Payload.(map[string]any)["quality"])
	assert.InDelta(t, 0.0, s.offset, 1e-9)
}

func TestSpammingRunsOutOfStamina(t *testing.T) {
	s := NewTug(tugConfig(), testPlayers(2))

	s.Step(dt)
	for i := 0; i < 15; i++ {
		push(s, "p1", game.ActionTugPull, "")
	}
	s.Step(dt)

	// 100 stamina at 10 per scoring pull funds at most 10 pulls.
	assert.LessOrEqual(t, s.players["p1"].contribution, 10.0)
	assert.Less(t, s.players["p1"].stamina, tugConfig().StaminaCost)
}

func TestRopeOffsetWinsRound(t *testing.T) {
	s := NewTug(tugConfig(), testPlayers(2))
	s.players["p2"].contribution = 3
	s.offset = 10.5

	s.Step(dt)

	winnerID, over := s.Winner()
	require.True(t, over)
	assert.Equal(t, "p2", winnerID) // right team won, p2 top contributor

	overs := named(s.DrainEvents(), protocol.EvtTugOver)
	require.Len(t, overs, 1)
	assert.Equal(t, 1, overs[0].Payload.(map[string]any)["winningTeam"])
}

func TestTugTimeoutDeadHeatHasNoWinner(t *testing.T) {
	cfg := tugConfig()
	cfg.Duration = 100 * time.Millisecond
	s := NewTug(cfg, testPlayers(2))

	stepFor(s, 200*time.Millisecond)

	winnerID, over := s.Winner()
	require.True(t, over)
	assert.Empty(t, winnerID)
}
