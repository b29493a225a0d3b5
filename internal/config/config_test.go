package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWithEmptyEnvironment(t *testing.T) {
	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, 60, cfg.TickHz)
	assert.Equal(t, 1, cfg.SnapshotEveryNTicks)
	assert.Equal(t, 10*time.Minute, cfg.RoomIdleClose)
	assert.Equal(t, 2*time.Second, cfg.DisconnectGrace)
	assert.Equal(t, 100.0, cfg.Arena.MaxHealth)
	assert.Equal(t, 5*time.Second, cfg.RoundTransitionDelay)
}

func TestTickInterval(t *testing.T) {
	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, time.Second/60, cfg.TickInterval())

	cfg.TickHz = 30
	assert.Equal(t, time.Second/30, cfg.TickInterval())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("TICK_HZ", "30")
	t.Setenv("SNAPSHOT_EVERY_N_TICKS", "2")
	t.Setenv("ROOM_IDLE_CLOSE_MS", "60000")
	t.Setenv("DISCONNECT_GRACE_MS", "5000")
	t.Setenv("RING_SIZE", "30")
	t.Setenv("MAX_HEALTH", "150")

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30, cfg.TickHz)
	assert.Equal(t, 2, cfg.SnapshotEveryNTicks)
	assert.Equal(t, time.Minute, cfg.RoomIdleClose)
	assert.Equal(t, 5*time.Second, cfg.DisconnectGrace)
	assert.Equal(t, 30.0, cfg.Arena.RingSize)
	assert.Equal(t, 36.0, cfg.Arena.RingOutRadius)
	assert.Equal(t, 150.0, cfg.Arena.MaxHealth)
}

func TestInvalidValuesAccumulateErrors(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("TICK_HZ", "100000")
	t.Setenv("ROOM_IDLE_CLOSE_MS", "-5")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "TICK_HZ")
	assert.Contains(t, err.Error(), "ROOM_IDLE_CLOSE_MS")
}

func TestRateLimitDefaults(t *testing.T) {
	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, "60-M", cfg.RateLimitWsIP)
	assert.Equal(t, "10-M", cfg.RateLimitCreates)
}
