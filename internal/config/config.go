package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Server
	Port            string
	DevelopmentMode bool
	AllowedOrigins  string

	// Simulation rates
	TickHz              int
	SnapshotEveryNTicks int

	// Room lifecycle
	RoomIdleClose   time.Duration
	DisconnectGrace time.Duration

	// Rate limits (ulule/limiter formatted rates, M = minute, H = hour)
	RateLimitWsIP    string
	RateLimitCreates string

	// Per-mode tunables
	Arena   ArenaConfig
	Smash   SmashConfig
	Race    RaceConfig
	Flappy  FlappyConfig
	Tag     TagConfig
	Tug     TugConfig
	Balloon BalloonConfig
	Paint   PaintConfig

	// Tournament
	RoundTransitionDelay time.Duration
}

// ArenaConfig holds the wrestling-ring tunables.
type ArenaConfig struct {
	RingSize       float64 // side length of the square ring
	RingHeight     float64 // ground plane height
	RingOutRadius  float64 // distance from center past which a fighter is out
	RopeRim        float64 // inset of the ropes from the ring edge
	RopeBounce     float64 // velocity retained when bouncing off ropes, <1
	ColliderRadius float64
	MaxHealth      float64 // damage absorbed before elimination
	MaxStamina     float64
	PunchDamage    float64
	KickDamage     float64
	ThrowDamage    float64
	RingOutDamage  float64
	BlockFactor    float64 // damage/knockback multiplier while blocking, <1
	BlockDrainPS   float64 // stamina drained per second while blocking
	GrabRange      float64
	GrabTimeout    time.Duration // auto-release if no throw follows
	EscapePresses  int           // presses needed to break a grab
	StunDuration   time.Duration
	Knockback      float64 // base horizontal knockback speed
	ThrowSpeed     float64
	Gravity        float64
}

// SmashConfig holds the platform-fighter tunables.
type SmashConfig struct {
	Gravity        float64
	MoveSpeed      float64
	RunMultiplier  float64
	JumpSpeed      float64
	AttackDamage   float64
	BaseKnockback  float64
	KnockbackScale float64 // extra knockback per damage percent
	Stocks         int
	RespawnDelay   time.Duration
	KillPlaneX     float64
	KillPlaneY     float64
}

// RaceConfig holds the foot-race tunables. Decay and the alternation
// bonus are deliberately configuration, not fixed policy.
type RaceConfig struct {
	FinishDistance   float64
	TapImpulse       float64
	AlternationBonus float64 // multiplier applied to alternating taps
	SameSidePenalty  float64 // multiplier applied to same-side taps, <1
	DecayPerSecond   float64
	CountdownSeconds int
}

// FlappyConfig holds the flap-to-fly tunables.
type FlappyConfig struct {
	Gravity       float64
	FlapImpulse   float64
	ScrollSpeed   float64
	GapHeight     float64
	ObstacleEvery float64 // horizontal spacing between obstacles
	CeilingY      float64
	FloorY        float64
}

// TagConfig holds the tag-mode tunables.
type TagConfig struct {
	MoveSpeed    float64
	ItMultiplier float64 // speed boost for the chaser
	TagRadius    float64
	ArenaHalf    float64 // half-side of the square play field
	Duration     time.Duration
	TagCooldown  time.Duration // no immediate tag-backs
}

// TugConfig holds the tug-of-war tunables.
type TugConfig struct {
	PulseInterval  time.Duration
	PerfectWindow  time.Duration
	GoodWindow     time.Duration
	PerfectPull    float64
	GoodPull       float64
	WinOffset      float64
	StaminaCost    float64
	StaminaRegenPS float64
	MaxStamina     float64
	Duration       time.Duration
}

// BalloonConfig holds the balloon-inflation tunables.
type BalloonConfig struct {
	InflateAmount   float64
	InflateCooldown time.Duration
	DeflatePS       float64
	BurstMin        float64 // randomized burst threshold bounds
	BurstMax        float64
	Duration        time.Duration
}

// PaintConfig holds the territory-paint tunables.
type PaintConfig struct {
	GridSize  int // cells per side
	MoveSpeed float64
	Duration  time.Duration
}

// ValidateEnv validates all environment variables and returns a Config.
// Returns an error if any variable is present but invalid.
func ValidateEnv() (*Config, error) {
	cfg := defaults()
	var errs []string

	if port := os.Getenv("PORT"); port != "" {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", port))
		} else {
			cfg.Port = port
		}
	}

	if v := os.Getenv("TICK_HZ"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 1 || n > 240 {
			errs = append(errs, fmt.Sprintf("TICK_HZ must be between 1 and 240 (got '%s')", v))
		} else {
			cfg.TickHz = n
		}
	}

	if v := os.Getenv("SNAPSHOT_EVERY_N_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 1 {
			errs = append(errs, fmt.Sprintf("SNAPSHOT_EVERY_N_TICKS must be a positive integer (got '%s')", v))
		} else {
			cfg.SnapshotEveryNTicks = n
		}
	}

	if d, err := durationMsEnv("ROOM_IDLE_CLOSE_MS"); err != nil {
		errs = append(errs, err.Error())
	} else if d > 0 {
		cfg.RoomIdleClose = d
	}

	if d, err := durationMsEnv("DISCONNECT_GRACE_MS"); err != nil {
		errs = append(errs, err.Error())
	} else if d > 0 {
		cfg.DisconnectGrace = d
	}

	if v := os.Getenv("RING_SIZE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil || f <= 0 {
			errs = append(errs, fmt.Sprintf("RING_SIZE must be a positive number (got '%s')", v))
		} else {
			cfg.Arena.RingSize = f
			cfg.Arena.RingOutRadius = f * 1.2
		}
	}

	if v := os.Getenv("MAX_HEALTH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil || f <= 0 {
			errs = append(errs, fmt.Sprintf("MAX_HEALTH must be a positive number (got '%s')", v))
		} else {
			cfg.Arena.MaxHealth = f
		}
	}

	if v := os.Getenv("MAX_STAMINA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil || f <= 0 {
			errs = append(errs, fmt.Sprintf("MAX_STAMINA must be a positive number (got '%s')", v))
		} else {
			cfg.Arena.MaxStamina = f
		}
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "60-M")
	cfg.RateLimitCreates = getEnvOrDefault("RATE_LIMIT_ROOM_CREATE", "10-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// TickInterval returns the fixed simulation step duration.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickHz)
}

func defaults() *Config {
	return &Config{
		Port:                "3001",
		TickHz:              60,
		SnapshotEveryNTicks: 1,
		RoomIdleClose:       10 * time.Minute,
		DisconnectGrace:     2 * time.Second,

		Arena: ArenaConfig{
			RingSize:       20,
			RingHeight:     0,
			RingOutRadius:  14,
			RopeRim:        0.5,
			RopeBounce:     0.5,
			ColliderRadius: 0.6,
			MaxHealth:      100,
			MaxStamina:     100,
			PunchDamage:    10,
			KickDamage:     15,
			ThrowDamage:    20,
			RingOutDamage:  50,
			BlockFactor:    0.3,
			BlockDrainPS:   15,
			GrabRange:      1.8,
			GrabTimeout:    3 * time.Second,
			EscapePresses:  3,
			StunDuration:   1500 * time.Millisecond,
			Knockback:      6,
			ThrowSpeed:     12,
			Gravity:        30,
		},
		Smash: SmashConfig{
			Gravity:        40,
			MoveSpeed:      6,
			RunMultiplier:  1.6,
			JumpSpeed:      14,
			AttackDamage:   8,
			BaseKnockback:  4,
			KnockbackScale: 0.08,
			Stocks:         3,
			RespawnDelay:   time.Second,
			KillPlaneX:     18,
			KillPlaneY:     -12,
		},
		Race: RaceConfig{
			FinishDistance:   100,
			TapImpulse:       1.2,
			AlternationBonus: 1.5,
			SameSidePenalty:  0.4,
			DecayPerSecond:   2.5,
			CountdownSeconds: 3,
		},
		Flappy: FlappyConfig{
			Gravity:       28,
			FlapImpulse:   9,
			ScrollSpeed:   4,
			GapHeight:     4,
			ObstacleEvery: 8,
			CeilingY:      12,
			FloorY:        -12,
		},
		Tag: TagConfig{
			MoveSpeed:    6,
			ItMultiplier: 1.15,
			TagRadius:    1.2,
			ArenaHalf:    12,
			Duration:     60 * time.Second,
			TagCooldown:  time.Second,
		},
		Tug: TugConfig{
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
		},
		Balloon: BalloonConfig{
			InflateAmount:   4,
			InflateCooldown: 200 * time.Millisecond,
			DeflatePS:       1.5,
			BurstMin:        80,
			BurstMax:        120,
			Duration:        30 * time.Second,
		},
		Paint: PaintConfig{
			GridSize:  60,
			MoveSpeed: 6,
			Duration:  60 * time.Second,
		},

		RoundTransitionDelay: 5 * time.Second,
	}
}

func durationMsEnv(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer of milliseconds (got '%s')", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"tick_hz", cfg.TickHz,
		"snapshot_every_n_ticks", cfg.SnapshotEveryNTicks,
		"room_idle_close", cfg.RoomIdleClose,
		"disconnect_grace", cfg.DisconnectGrace,
		"development_mode", cfg.DevelopmentMode,
	)
}
