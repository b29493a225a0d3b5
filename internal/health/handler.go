// Package health exposes Kubernetes-style liveness and readiness probes.
package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// RoomCounter reports how many rooms are live; satisfied by the lobby hub.
type RoomCounter interface {
	RoomCount() int
}

// Handler manages health check endpoints
type Handler struct {
	rooms RoomCounter
}

// NewHandler creates a new health check handler
func NewHandler(rooms RoomCounter) *Handler {
	return &Handler{rooms: rooms}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status     string `json:"status"`
	Rooms      int    `json:"rooms"`
	Goroutines int    `json:"goroutines"`
	Timestamp  string `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// The server has no external dependencies; readiness reports the room
// registry so operators can see load at a glance.
func (h *Handler) Readiness(c *gin.Context) {
	c.JSON(http.StatusOK, ReadinessResponse{
		Status:     "ready",
		Rooms:      h.rooms.RoomCount(),
		Goroutines: runtime.NumGoroutine(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
