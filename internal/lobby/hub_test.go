package lobby

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/protocol"
	"github.com/couchparty/server/internal/ratelimit"
	"github.com/couchparty/server/internal/transport"
)

// --- test plumbing ---

type wsFrame struct {
	messageType int
	data        []byte
}

// testConn records outbound frames; inbound reads block until Close.
type testConn struct {
	mu      sync.Mutex
	written []wsFrame
	done    chan struct{}
	closed  bool
}

func newTestConn() *testConn {
	return &testConn{done: make(chan struct{})}
}

func (c *testConn) ReadMessage() (int, []byte, error) {
	<-c.done
	return 0, nil, io.EOF
}

func (c *testConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, wsFrame{messageType, append([]byte(nil), data...)})
	return nil
}

func (c *testConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *testConn) SetWriteDeadline(time.Time) error          { return nil }
func (c *testConn) SetReadDeadline(time.Time) error           { return nil }
func (c *testConn) SetReadLimit(int64)                        {}
func (c *testConn) SetPongHandler(func(appData string) error) {}

func (c *testConn) envelopes() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Envelope
	for _, f := range c.written {
		if f.messageType != websocket.TextMessage {
			continue
		}
		if env, err := protocol.Decode(f.data); err == nil {
			out = append(out, env)
		}
	}
	return out
}

func (c *testConn) eventNames() []string {
	var names []string
	for _, env := range c.envelopes() {
		names = append(names, env.Event)
	}
	return names
}

func testHub(t *testing.T) *Hub {
	t.Helper()
	cfg, err := config.ValidateEnv()
	require.NoError(t, err)
	cfg.DisconnectGrace = 20 * time.Millisecond
	limiter, err := ratelimit.NewRateLimiter(cfg)
	require.NoError(t, err)
	h := NewHub(cfg, limiter)
	t.Cleanup(h.Shutdown)
	return h
}

var clientSeq int

func connect(t *testing.T, h *Hub) (*transport.Client, *testConn) {
	t.Helper()
	clientSeq++
	conn := newTestConn()
	c := transport.NewClient(fmt.Sprintf("client-%d", clientSeq), conn, h)
	c.Start()
	t.Cleanup(func() {
		c.Disconnect()
		conn.Close()
	})
	return c, conn
}

var ackSeq uint32

func send(h *Hub, c *transport.Client, event string, payload any) uint32 {
	ackSeq++
	var data json.RawMessage
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	h.HandleMessage(c, protocol.Envelope{Event: event, Ack: ackSeq, Data: data})
	return ackSeq
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never reached")
}

func ackFor(t *testing.T, conn *testConn, ack uint32) map[string]any {
	t.Helper()
	var got map[string]any
	waitFor(t, func() bool {
		for _, env := range conn.envelopes() {
			if env.Event == "ack" && env.Ack == ack {
				require.NoError(t, json.Unmarshal(env.Data, &got))
				return true
			}
		}
		return false
	})
	return got
}

func createRoom(t *testing.T, h *Hub, c *transport.Client, conn *testConn, mode string) string {
	t.Helper()
	ack := send(h, c, protocol.EvtCreateRoom, protocol.CreateRoomRequest{
		GameMode:   mode,
		PlayerName: "Host",
	})
	reply := ackFor(t, conn, ack)
	require.Equal(t, true, reply["success"])
	code, _ := reply["roomCode"].(string)
	require.Len(t, code, 4)
	return code
}

// --- tests ---

func TestRoomCodesUseSafeAlphabet(t *testing.T) {
	h := testHub(t)

	for i := 0; i < 200; i++ {
		code := h.newCode()
		require.Len(t, code, 4)
		for _, r := range code {
			assert.NotContains(t, "IO", string(r))
			assert.Contains(t, codeAlphabet, string(r))
		}
	}
}

func TestCreateRoomAcksWithCode(t *testing.T) {
	h := testHub(t)
	c, conn := connect(t, h)

	code := createRoom(t, h, c, conn, protocol.ModeRace)

	assert.Equal(t, 1, h.RoomCount())
	room := h.lookup(code)
	require.NotNil(t, room)
	info := room.Info()
	assert.Equal(t, protocol.ModeRace, info.GameMode)
	assert.Equal(t, StateLobby, info.State)
	require.Len(t, info.Players, 1)
	assert.True(t, info.Players[0].IsHost)
	assert.Equal(t, 1, info.Players[0].Number)
}

func TestCreateRoomRejectsUnknownMode(t *testing.T) {
	h := testHub(t)
	c, conn := connect(t, h)

	ack := send(h, c, protocol.EvtCreateRoom, protocol.CreateRoomRequest{
		GameMode:   "chess",
		PlayerName: "Host",
	})
	reply := ackFor(t, conn, ack)

	assert.Equal(t, false, reply["success"])
	assert.Equal(t, protocol.ErrBadPayload, reply["error"])
	assert.Zero(t, h.RoomCount())
}

func TestJoinUnknownRoomFails(t *testing.T) {
	h := testHub(t)
	c, conn := connect(t, h)

	ack := send(h, c, protocol.EvtJoinRoom, protocol.JoinRoomRequest{
		RoomCode:   "ZZZZ",
		PlayerName: "Guest",
	})
	reply := ackFor(t, conn, ack)

	assert.Equal(t, false, reply["success"])
	assert.Equal(t, protocol.ErrRoomNotFound, reply["error"])
}

func TestJoinAssignsNumbersAndBroadcasts(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	code := createRoom(t, h, host, hostConn, protocol.ModeRace)

	guest, guestConn := connect(t, h)
	ack := send(h, guest, protocol.EvtJoinRoom, protocol.JoinRoomRequest{
		RoomCode:   code,
		PlayerName: "Guest",
	})
	reply := ackFor(t, guestConn, ack)
	require.Equal(t, true, reply["success"])

	player := reply["player"].(map[string]any)
	assert.Equal(t, float64(2), player["number"])
	assert.Equal(t, false, player["isHost"])

	waitFor(t, func() bool {
		for _, name := range hostConn.eventNames() {
			if name == protocol.EvtPlayerJoined {
				return true
			}
		}
		return false
	})
}

func TestJoinCaseInsensitiveCode(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	code := createRoom(t, h, host, hostConn, protocol.ModeRace)

	guest, guestConn := connect(t, h)
	ack := send(h, guest, protocol.EvtJoinRoom, protocol.JoinRoomRequest{
		RoomCode:   strings.ToLower(code),
		PlayerName: "Guest",
	})
	reply := ackFor(t, guestConn, ack)
	assert.Equal(t, true, reply["success"])
}

func TestRoomFull(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	code := createRoom(t, h, host, hostConn, protocol.ModeArena) // cap 4

	for i := 0; i < 3; i++ {
		guest, guestConn := connect(t, h)
		ack := send(h, guest, protocol.EvtJoinRoom, protocol.JoinRoomRequest{
			RoomCode: code, PlayerName: fmt.Sprintf("G%d", i),
		})
		require.Equal(t, true, ackFor(t, guestConn, ack)["success"])
	}

	late, lateConn := connect(t, h)
	ack := send(h, late, protocol.EvtJoinRoom, protocol.JoinRoomRequest{
		RoomCode: code, PlayerName: "Late",
	})
	reply := ackFor(t, lateConn, ack)
	assert.Equal(t, false, reply["success"])
	assert.Equal(t, protocol.ErrRoomFull, reply["error"])
}

func TestCharacterClaimIsExclusive(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	code := createRoom(t, h, host, hostConn, protocol.ModeArena)

	guest, guestConn := connect(t, h)
	ack := send(h, guest, protocol.EvtJoinRoom, protocol.JoinRoomRequest{RoomCode: code, PlayerName: "Guest"})
	require.Equal(t, true, ackFor(t, guestConn, ack)["success"])

	ack = send(h, host, protocol.EvtSelectCharacter, protocol.SelectCharacterRequest{CharacterID: "luchador"})
	require.Equal(t, true, ackFor(t, hostConn, ack)["success"])

	// Same pick from the guest must fail the compare-and-set.
	ack = send(h, guest, protocol.EvtSelectCharacter, protocol.SelectCharacterRequest{CharacterID: "luchador"})
	reply := ackFor(t, guestConn, ack)
	assert.Equal(t, false, reply["success"])
	assert.Equal(t, protocol.ErrCharacterTaken, reply["error"])

	// Releasing frees it for the guest.
	ack = send(h, host, protocol.EvtSelectCharacter, protocol.SelectCharacterRequest{CharacterID: ""})
	require.Equal(t, true, ackFor(t, hostConn, ack)["success"])
	ack = send(h, guest, protocol.EvtSelectCharacter, protocol.SelectCharacterRequest{CharacterID: "luchador"})
	assert.Equal(t, true, ackFor(t, guestConn, ack)["success"])
}

func tournamentRounds(conn *testConn) int {
	for _, env := range conn.envelopes() {
		if env.Event == protocol.EvtTournamentConfig {
			var cfg protocol.TournamentConfig
			if env.Bind(&cfg) == nil {
				return cfg.TournamentRounds
			}
		}
	}
	return 0
}

func TestTournamentConfigReachesEveryJoiner(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)

	ack := send(h, host, protocol.EvtCreateRoom, protocol.CreateRoomRequest{
		GameMode:   protocol.ModeRace,
		PlayerName: "Host",
		Options:    &protocol.CreateRoomOptions{TournamentRounds: 3},
	})
	reply := ackFor(t, hostConn, ack)
	require.Equal(t, true, reply["success"])
	code := reply["roomCode"].(string)

	waitFor(t, func() bool { return tournamentRounds(hostConn) == 3 })

	guest, guestConn := connect(t, h)
	ack = send(h, guest, protocol.EvtJoinRoom, protocol.JoinRoomRequest{RoomCode: code, PlayerName: "Guest"})
	require.Equal(t, true, ackFor(t, guestConn, ack)["success"])

	waitFor(t, func() bool { return tournamentRounds(guestConn) == 3 })
}

func TestSecondCreateLeavesFirstRoom(t *testing.T) {
	h := testHub(t)
	c, conn := connect(t, h)

	first := createRoom(t, h, c, conn, protocol.ModeRace)
	second := createRoom(t, h, c, conn, protocol.ModeRace)
	require.NotEqual(t, first, second)

	// The abandoned room empties and closes; no phantom member lingers.
	assert.Nil(t, h.lookup(first))
	require.NotNil(t, h.lookup(second))
	assert.Equal(t, 1, h.lookup(second).Info().PlayerCount)
	assert.Equal(t, 1, h.RoomCount())

	h.HandleDisconnect(c)
	waitFor(t, func() bool { return h.RoomCount() == 0 })
}

func TestJoiningAnotherRoomLeavesTheFirst(t *testing.T) {
	h := testHub(t)
	a, aConn := connect(t, h)
	codeA := createRoom(t, h, a, aConn, protocol.ModeRace)

	b, bConn := connect(t, h)
	codeB := createRoom(t, h, b, bConn, protocol.ModeRace)

	ack := send(h, a, protocol.EvtJoinRoom, protocol.JoinRoomRequest{RoomCode: codeB, PlayerName: "Drifter"})
	require.Equal(t, true, ackFor(t, aConn, ack)["success"])

	assert.Nil(t, h.lookup(codeA))
	require.NotNil(t, h.lookup(codeB))
	assert.Equal(t, 2, h.lookup(codeB).Info().PlayerCount)

	h.HandleDisconnect(a)
	waitFor(t, func() bool { return h.lookup(codeB).Info().PlayerCount == 1 })
}

func TestStartGameRequiresHost(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	code := createRoom(t, h, host, hostConn, protocol.ModeRace)

	guest, guestConn := connect(t, h)
	ack := send(h, guest, protocol.EvtJoinRoom, protocol.JoinRoomRequest{RoomCode: code, PlayerName: "Guest"})
	require.Equal(t, true, ackFor(t, guestConn, ack)["success"])

	ack = send(h, guest, protocol.EvtStartGame, nil)
	reply := ackFor(t, guestConn, ack)
	assert.Equal(t, false, reply["success"])
	assert.Equal(t, protocol.ErrNotHost, reply["error"])
}

func TestStartGameRequiresAReadyPlayer(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	createRoom(t, h, host, hostConn, protocol.ModeRace)

	ack := send(h, host, protocol.EvtStartGame, nil)
	reply := ackFor(t, hostConn, ack)
	assert.Equal(t, false, reply["success"])
	assert.Equal(t, protocol.ErrNoReadyPlayers, reply["error"])
}

func TestStartGameTransitionsRoom(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	code := createRoom(t, h, host, hostConn, protocol.ModeRace)

	ack := send(h, host, protocol.EvtPlayerReady, protocol.PlayerReadyRequest{Ready: true})
	require.Equal(t, true, ackFor(t, hostConn, ack)["success"])

	ack = send(h, host, protocol.EvtStartGame, nil)
	require.Equal(t, true, ackFor(t, hostConn, ack)["success"])

	room := h.lookup(code)
	require.NotNil(t, room)
	assert.Equal(t, StateInGame, room.Info().State)

	waitFor(t, func() bool {
		for _, name := range hostConn.eventNames() {
			if name == protocol.EvtGameStarted {
				return true
			}
		}
		return false
	})

	// Late joiners are rejected mid-game.
	guest, guestConn := connect(t, h)
	joinAck := send(h, guest, protocol.EvtJoinRoom, protocol.JoinRoomRequest{RoomCode: code, PlayerName: "Late"})
	reply := ackFor(t, guestConn, joinAck)
	assert.Equal(t, false, reply["success"])
	assert.Equal(t, protocol.ErrRoomInGame, reply["error"])

	room.close("test done", true)
}

func TestHostLeavingPromotesLowestNumber(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	code := createRoom(t, h, host, hostConn, protocol.ModeRace)

	guest, guestConn := connect(t, h)
	ack := send(h, guest, protocol.EvtJoinRoom, protocol.JoinRoomRequest{RoomCode: code, PlayerName: "Guest"})
	require.Equal(t, true, ackFor(t, guestConn, ack)["success"])

	send(h, host, protocol.EvtLeaveRoom, nil)

	waitFor(t, func() bool {
		for _, name := range guestConn.eventNames() {
			if name == protocol.EvtHostChanged {
				return true
			}
		}
		return false
	})

	room := h.lookup(code)
	require.NotNil(t, room)
	info := room.Info()
	require.Len(t, info.Players, 1)
	assert.True(t, info.Players[0].IsHost)
}

func TestLastLeaverClosesRoom(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	createRoom(t, h, host, hostConn, protocol.ModeRace)
	require.Equal(t, 1, h.RoomCount())

	send(h, host, protocol.EvtLeaveRoom, nil)

	waitFor(t, func() bool { return h.RoomCount() == 0 })
}

func TestLobbyDisconnectRemovesImmediately(t *testing.T) {
	h := testHub(t)
	host, hostConn := connect(t, h)
	code := createRoom(t, h, host, hostConn, protocol.ModeRace)

	guest, guestConn := connect(t, h)
	ack := send(h, guest, protocol.EvtJoinRoom, protocol.JoinRoomRequest{RoomCode: code, PlayerName: "Guest"})
	require.Equal(t, true, ackFor(t, guestConn, ack)["success"])

	h.HandleDisconnect(guest)

	waitFor(t, func() bool {
		room := h.lookup(code)
		return room != nil && room.Info().PlayerCount == 1
	})
}

func TestInGameEventOutsideRoomIsRejected(t *testing.T) {
	h := testHub(t)
	c, conn := connect(t, h)

	ack := send(h, c, protocol.EvtPlayerReady, protocol.PlayerReadyRequest{Ready: true})
	reply := ackFor(t, conn, ack)
	assert.Equal(t, false, reply["success"])
	assert.Equal(t, protocol.ErrNotInRoom, reply["error"])
}

func TestRematchReturnsToLobby(t *testing.T) {
	h := testHub(t)
	// A fast tick makes the single race round resolve quickly.
	h.cfg.TickHz = 240

	host, hostConn := connect(t, h)
	code := createRoom(t, h, host, hostConn, protocol.ModeRace)

	ack := send(h, host, protocol.EvtPlayerReady, protocol.PlayerReadyRequest{Ready: true})
	require.Equal(t, true, ackFor(t, hostConn, ack)["success"])
	ack = send(h, host, protocol.EvtStartGame, nil)
	require.Equal(t, true, ackFor(t, hostConn, ack)["success"])

	room := h.lookup(code)
	require.NotNil(t, room)

	// Solo racer: alternate taps until the race resolves and the runner
	// hands the room back to the lobby.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if room.Info().State == StateLobby {
			break
		}
		h.HandleMessage(host, protocol.Envelope{
			Event: protocol.EvtRaceTap,
			Data:  json.RawMessage(`{"side":"left"}`),
		})
		h.HandleMessage(host, protocol.Envelope{
			Event: protocol.EvtRaceTap,
			Data:  json.RawMessage(`{"side":"right"}`),
		})
		time.Sleep(5 * time.Millisecond)
	}

	require.Equal(t, StateLobby, room.Info().State)
	assert.False(t, room.Info().Players[0].Ready, "ready flags reset for the rematch")

	var sawReset bool
	for _, name := range hostConn.eventNames() {
		if name == protocol.EvtGameReset {
			sawReset = true
		}
	}
	assert.True(t, sawReset)
}
