// Package transport owns the WebSocket connection for a single client:
// read/write pumps, keepalive, ack replies, and snapshot coalescing.
// It never inspects payload semantics and holds no game state.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/couchparty/server/internal/logging"
	"github.com/couchparty/server/internal/metrics"
	"github.com/couchparty/server/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8 * 1024
	sendBufferSize = 64
)

// Conn defines the WebSocket operations the client needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

// Handler receives decoded envelopes and the synthetic disconnect.
type Handler interface {
	HandleMessage(c *Client, env protocol.Envelope)
	HandleDisconnect(c *Client)
}

type frame struct {
	messageType int
	data        []byte
}

// Client represents one connected controller.
type Client struct {
	ID      string
	conn    Conn
	handler Handler

	mu     sync.RWMutex
	closed bool

	send     chan frame // discrete events and ack replies
	snapshot chan frame // size 1, latest snapshot wins

	closeOnce      sync.Once
	disconnectOnce sync.Once
}

// NewClient wraps an upgraded connection. Start must be called to begin
// the pumps.
func NewClient(id string, conn Conn, handler Handler) *Client {
	return &Client{
		ID:       id,
		conn:     conn,
		handler:  handler,
		send:     make(chan frame, sendBufferSize),
		snapshot: make(chan frame, 1),
	}
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	metrics.IncConnection()
	go c.writePump()
	go c.readPump()
}

// SendEvent queues a JSON event for delivery. A full buffer drops the
// message rather than blocking the simulation.
func (c *Client) SendEvent(event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		logging.Error(context.Background(), "failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	c.enqueue(frame{websocket.TextMessage, data})
}

// SendAck queues the single reply for an acked request.
func (c *Client) SendAck(ack uint32, data protocol.AckData) {
	raw, err := protocol.EncodeAck(ack, data)
	if err != nil {
		logging.Error(context.Background(), "failed to encode ack", zap.Error(err))
		return
	}
	c.enqueue(frame{websocket.TextMessage, raw})
}

// SendSnapshot queues a snapshot, replacing any undelivered one. Slow
// clients therefore receive only the latest state.
func (c *Client) SendSnapshot(data []byte) {
	c.coalesce(frame{websocket.TextMessage, data})
}

// SendBinary queues a binary frame through the snapshot slot (grid
// payloads are snapshots too).
func (c *Client) SendBinary(data []byte) {
	c.coalesce(frame{websocket.BinaryMessage, data})
}

func (c *Client) enqueue(f frame) {
	if c.isClosed() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "send to closing client", zap.String("clientId", c.ID))
		}
	}()
	select {
	case c.send <- f:
	default:
		logging.Warn(context.Background(), "client send buffer full, dropping message", zap.String("clientId", c.ID))
	}
}

func (c *Client) coalesce(f frame) {
	if c.isClosed() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "snapshot to closing client", zap.String("clientId", c.ID))
		}
	}()
	for {
		select {
		case c.snapshot <- f:
			return
		default:
			// Discard the stale snapshot and retry
			select {
			case <-c.snapshot:
			default:
			}
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Disconnect closes the outbound channels exactly once; the write pump
// drains, sends a close frame, and closes the socket.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.send)
		close(c.snapshot)
	})
}

// fireDisconnect delivers the synthetic disconnect to the handler once,
// regardless of how the connection died.
func (c *Client) fireDisconnect() {
	c.disconnectOnce.Do(func() {
		c.handler.HandleDisconnect(c)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.fireDisconnect()
		c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := protocol.Decode(data)
		if err != nil {
			metrics.WebsocketEvents.WithLabelValues("unknown", "malformed").Inc()
			logging.Warn(context.Background(), "malformed message", zap.String("clientId", c.ID), zap.Error(err))
			continue
		}

		c.handler.HandleMessage(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(f frame) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
			logging.Debug(context.Background(), "write failed", zap.String("clientId", c.ID), zap.Error(err))
			c.fireDisconnect()
			return false
		}
		return true
	}

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// The runner fills the snapshot slot before queueing a
			// tick's events, so any pending snapshot must reach the
			// wire ahead of the event it precedes.
			select {
			case snap, snapOK := <-c.snapshot:
				if snapOK && !write(snap) {
					return
				}
			default:
			}
			if !write(f) {
				return
			}
		case f, ok := <-c.snapshot:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !write(f) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fireDisconnect()
				return
			}
		}
	}
}
