// Package ratelimit implements connection and room-creation rate limiting
// backed by an in-memory store.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/logging"
	"github.com/couchparty/server/internal/metrics"
)

// RateLimiter holds the rate limiter instances
type RateLimiter struct {
	wsIP    *limiter.Limiter
	creates *limiter.Limiter
	store   limiter.Store
}

// NewRateLimiter creates a new RateLimiter instance
func NewRateLimiter(cfg *config.Config) (*RateLimiter, error) {
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	createRate, err := limiter.NewRateFromFormatted(cfg.RateLimitCreates)
	if err != nil {
		return nil, fmt.Errorf("invalid room-create rate: %w", err)
	}

	store := memory.NewStore()

	return &RateLimiter{
		wsIP:    limiter.New(store, wsIPRate),
		creates: limiter.New(store, createRate),
		store:   store,
	}, nil
}

// CheckWebSocket checks if a WebSocket upgrade should be allowed.
// Returns true if allowed, false if limit exceeded (and writes the error).
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		// Fail open: availability over strictness
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}

// CheckRoomCreate checks the per-client limit for room creation.
func (rl *RateLimiter) CheckRoomCreate(ctx context.Context, clientID string) error {
	createContext, err := rl.creates.Get(ctx, "create:"+clientID)
	if err != nil {
		logging.Error(ctx, "room-create rate limiter store failed", zap.Error(err))
		return nil // Fail open
	}

	if createContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("room_create").Inc()
		return fmt.Errorf("room creation rate limit exceeded")
	}

	return nil
}
