// Package lobby manages rooms: creation, joining by code, the pre-game
// lobby protocol, and handing rooms over to their simulation runners.
package lobby

import (
	"context"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/logging"
	"github.com/couchparty/server/internal/metrics"
	"github.com/couchparty/server/internal/protocol"
	"github.com/couchparty/server/internal/ratelimit"
	"github.com/couchparty/server/internal/tracing"
	"github.com/couchparty/server/internal/transport"
)

// codeAlphabet omits I and O, which read as 1 and 0 on a couch screen.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeLength   = 4

	sweepInterval = 30 * time.Second
	maxNameLength = 24
)

// Hub owns the room registry and is the transport.Handler for every
// connection: it routes pre-room events itself and forwards the rest to
// the client's room.
type Hub struct {
	cfg     *config.Config
	limiter *ratelimit.RateLimiter

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	rooms       map[string]*Room
	clientRooms map[string]*Room

	rngMu sync.Mutex
	rng   *rand.Rand

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewHub creates the hub and starts the idle-room sweeper.
func NewHub(cfg *config.Config, limiter *ratelimit.RateLimiter) *Hub {
	h := &Hub{
		cfg:         cfg,
		limiter:     limiter,
		rooms:       make(map[string]*Room),
		clientRooms: make(map[string]*Room),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		stopSweep:   make(chan struct{}),
		sweepDone:   make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	go h.sweepLoop()
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.cfg.AllowedOrigins == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range strings.Split(h.cfg.AllowedOrigins, ",") {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	return false
}

// ServeWs upgrades an HTTP request and starts the client pumps.
func (h *Hub) ServeWs(c *gin.Context) {
	if !h.limiter.CheckWebSocket(c) {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := transport.NewClient(uuid.NewString(), conn, h)
	client.Start()
	logging.Debug(c.Request.Context(), "client connected", zap.String("clientId", client.ID))
}

// HandleMessage implements transport.Handler. It runs on the client's
// read pump goroutine.
func (h *Hub) HandleMessage(c *transport.Client, env protocol.Envelope) {
	status := "ok"
	switch env.Event {
	case protocol.EvtCreateRoom:
		if !h.createRoom(c, env) {
			status = "error"
		}
	case protocol.EvtJoinRoom:
		if !h.joinRoom(c, env) {
			status = "error"
		}
	default:
		room := h.roomOf(c.ID)
		if room == nil {
			nack(c, env, protocol.ErrNotInRoom)
			status = "error"
			break
		}
		room.handleEvent(c, env)
	}
	metrics.WebsocketEvents.WithLabelValues(env.Event, status).Inc()
}

// HandleDisconnect implements transport.Handler.
func (h *Hub) HandleDisconnect(c *transport.Client) {
	if room := h.roomOf(c.ID); room != nil {
		room.handleDisconnect(c.ID)
	}
}

func (h *Hub) createRoom(c *transport.Client, env protocol.Envelope) bool {
	ctx, span := tracing.Tracer("lobby").Start(context.Background(), "create-room")
	defer span.End()

	if err := h.limiter.CheckRoomCreate(ctx, c.ID); err != nil {
		nack(c, env, protocol.ErrRateLimited)
		return false
	}

	var req protocol.CreateRoomRequest
	if err := env.Bind(&req); err != nil {
		nack(c, env, protocol.ErrBadPayload)
		return false
	}
	req.PlayerName = cleanName(req.PlayerName)
	if req.PlayerName == "" || !protocol.ValidMode(req.GameMode) {
		nack(c, env, protocol.ErrBadPayload)
		return false
	}

	rounds := 1
	if req.Options != nil && req.Options.TournamentRounds > 0 {
		rounds = req.Options.TournamentRounds
	}

	// One room per client: creating a new room leaves the current one,
	// otherwise the old room keeps a participant no disconnect can reach.
	if prev := h.roomOf(c.ID); prev != nil {
		prev.removePlayer(c.ID, true)
	}

	room := h.register(req.GameMode, rounds)
	info, roomInfo, errCode := room.join(c, req.PlayerName)
	if errCode != "" {
		// A freshly created room cannot reject its creator.
		nack(c, env, errCode)
		return false
	}
	h.attach(c.ID, room)

	if env.Ack != 0 {
		c.SendAck(env.Ack, protocol.AckData{Success: true, Extra: map[string]any{
			"roomCode": room.Code,
			"player":   info,
			"room":     roomInfo,
		}})
	}
	logging.Info(ctx, "room created",
		zap.String("roomCode", room.Code),
		zap.String("gameMode", req.GameMode),
		zap.Int("tournamentRounds", rounds))
	return true
}

func (h *Hub) joinRoom(c *transport.Client, env protocol.Envelope) bool {
	ctx, span := tracing.Tracer("lobby").Start(context.Background(), "join-room")
	defer span.End()

	var req protocol.JoinRoomRequest
	if err := env.Bind(&req); err != nil {
		nack(c, env, protocol.ErrBadPayload)
		return false
	}
	req.PlayerName = cleanName(req.PlayerName)
	if req.PlayerName == "" {
		nack(c, env, protocol.ErrBadPayload)
		return false
	}

	room := h.lookup(strings.ToUpper(strings.TrimSpace(req.RoomCode)))
	if room == nil {
		nack(c, env, protocol.ErrRoomNotFound)
		return false
	}

	// Switching rooms leaves the current one first.
	if prev := h.roomOf(c.ID); prev != nil && prev != room {
		prev.removePlayer(c.ID, true)
	}

	info, roomInfo, errCode := room.join(c, req.PlayerName)
	if errCode != "" {
		nack(c, env, errCode)
		return false
	}
	h.attach(c.ID, room)

	if env.Ack != 0 {
		c.SendAck(env.Ack, protocol.AckData{Success: true, Extra: map[string]any{
			"player": info,
			"room":   roomInfo,
		}})
	}
	logging.Debug(ctx, "client joined room",
		zap.String("clientId", c.ID),
		zap.String("roomCode", room.Code))
	return true
}

// register allocates a collision-free code and installs the room.
func (h *Hub) register(mode string, rounds int) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	var code string
	for {
		code = h.newCode()
		if _, taken := h.rooms[code]; !taken {
			break
		}
	}
	room := newRoom(h, h.cfg, code, mode, rounds)
	h.rooms[code] = room
	metrics.ActiveRooms.Set(float64(len(h.rooms)))
	return room
}

func (h *Hub) newCode() string {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[h.rng.Intn(len(codeAlphabet))]
	}
	return string(buf)
}

func (h *Hub) lookup(code string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[code]
}

func (h *Hub) roomOf(clientID string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientRooms[clientID]
}

func (h *Hub) attach(clientID string, room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clientRooms[clientID] = room
}

func (h *Hub) detach(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clientRooms, clientID)
}

func (h *Hub) remove(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, code)
	metrics.ActiveRooms.Set(float64(len(h.rooms)))
}

// RoomCount reports the number of live rooms, for readiness checks.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// sweepLoop closes rooms whose last activity predates the idle window.
func (h *Hub) sweepLoop() {
	defer close(h.sweepDone)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopSweep:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-h.cfg.RoomIdleClose)
			for _, room := range h.snapshotRooms() {
				if room.idleSince().Before(cutoff) {
					room.close("idle", true)
				}
			}
		}
	}
}

func (h *Hub) snapshotRooms() []*Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		out = append(out, room)
	}
	return out
}

// Shutdown stops the sweeper and closes every room.
func (h *Hub) Shutdown() {
	close(h.stopSweep)
	<-h.sweepDone
	for _, room := range h.snapshotRooms() {
		room.close("server_shutdown", true)
	}
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}
