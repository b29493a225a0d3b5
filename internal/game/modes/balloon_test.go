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

func balloonConfig() config.BalloonConfig {
	return config.BalloonConfig{
		InflateAmount:   4,
		InflateCooldown: 200 * time.Millisecond,
		DeflatePS:       1.5,
		BurstMin:        80,
		BurstMax:        120,
		Duration:        30 * time.Second,
	}
}

func TestBurstThresholdsWithinBounds(t *testing.T) {
	s := NewBalloon(balloonConfig(), testPlayers(4), 7)

	for id, b := range s.balloons {
		assert.GreaterOrEqual(t, b.burstAt, 80.0, id)
		assert.LessOrEqual(t, b.burstAt, 120.0, id)
	}
}

func TestInflateCooldownIgnoresSpam(t *testing.T) {
	s := NewBalloon(balloonConfig(), testPlayers(1), 7)

	// Ten pumps inside one cooldown window count once.
	for i := 0; i < 10; i++ {
		push(s, "p1", game.ActionInflate, "")
	}
	s.Step(dt)

	b := s.balloons["p1"]
	assert.InDelta(t, 4.0, b.size, 0.1)
}

func TestBalloonDeflatesOverTime(t *testing.T) {
	s := NewBalloon(balloonConfig(), testPlayers(1), 7)
	s.balloons["p1"].size = 20

	stepFor(s, 2*time.Second)

	assert.InDelta(t, 17.0, s.balloons["p1"].size, 0.2)
}

func TestOverinflatingBursts(t *testing.T) {
	s := NewBalloon(balloonConfig(), testPlayers(2), 7)
	b := s.balloons["p1"]
	b.size = b.burstAt - 1

	push(s, "p1", game.ActionInflate, "")
	s.Step(dt)

	require.True(t, b.burst)
	bursts := named(s.DrainEvents(), protocol.EvtBalloonBurst)
	require.Len(t, bursts, 1)
	assert.Equal(t, "p1", bursts[0].Payload.(map[string]any)["playerId"])

	// A burst balloon accepts no further pumps.
	push(s, "p1", game.ActionInflate, "")
	s.Step(dt)
	assert.True(t, b.burst)
}

func TestBiggestSurvivorWinsAtTimeout(t *testing.T) {
	cfg := balloonConfig()
	cfg.Duration = 100 * time.Millisecond
	s := NewBalloon(cfg, testPlayers(3), 7)
	s.balloons["p1"].size = 30
	s.balloons["p2"].size = 50
	s.balloons["p3"].burst = true // burst players cannot win

	stepFor(s, 200*time.Millisecond)

	winnerID, over := s.Winner()
	require.True(t, over)
	assert.Equal(t, "p2", winnerID)
}

func TestAllBurstEndsEarlyWithNoWinner(t *testing.T) {
	s := NewBalloon(balloonConfig(), testPlayers(2), 7)
	s.balloons["p1"].burst = true
	s.balloons["p2"].burst = true

	s.Step(dt)

	winnerID, over := s.Winner()
	require.True(t, over)
	assert.Empty(t, winnerID)
}
