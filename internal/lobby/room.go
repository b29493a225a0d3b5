package lobby

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/couchparty/server/internal/config"
	"github.com/couchparty/server/internal/game"
	"github.com/couchparty/server/internal/game/arena"
	"github.com/couchparty/server/internal/game/modes"
	"github.com/couchparty/server/internal/game/smash"
	"github.com/couchparty/server/internal/logging"
	"github.com/couchparty/server/internal/metrics"
	"github.com/couchparty/server/internal/protocol"
	"github.com/couchparty/server/internal/tracing"
	"github.com/couchparty/server/internal/transport"
)

// Room states.
const (
	StateLobby  = "lobby"
	StateInGame = "in-game"
	StateClosed = "closed"
)

// playerColors are assigned by room number, 1-based.
var playerColors = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f1c40f",
	"#9b59b6", "#e67e22", "#1abc9c", "#e84393",
}

// participant pairs a connection with its public lobby state.
type participant struct {
	client     *transport.Client
	info       protocol.PlayerInfo
	lastInput  protocol.PlayerInput
	graceTimer *time.Timer
}

// Room is one party: a code, up to MaxPlayersFor(mode) participants, and
// at most one running simulation. The room implements game.Broadcaster
// so the runner never touches sockets directly.
type Room struct {
	Code string
	Mode string

	hub *Hub
	cfg *config.Config

	mu               sync.Mutex
	state            string
	participants     map[string]*participant
	hostID           string
	tournamentRounds int
	runner           *game.Runner
	tournament       *game.Tournament
	lastActivity     time.Time
}

func newRoom(hub *Hub, cfg *config.Config, code, mode string, rounds int) *Room {
	if rounds < 1 {
		rounds = 1
	}
	return &Room{
		Code:             code,
		Mode:             mode,
		hub:              hub,
		cfg:              cfg,
		state:            StateLobby,
		participants:     make(map[string]*participant),
		tournamentRounds: rounds,
		lastActivity:     time.Now(),
	}
}

// join admits a client, assigning the lowest free number and its color.
// The first participant becomes host. Returns a protocol error code on
// failure.
func (r *Room) join(c *transport.Client, name string) (protocol.PlayerInfo, protocol.RoomInfo, string) {
	r.mu.Lock()

	// A repeat join from a member returns their existing seat.
	if p, ok := r.participants[c.ID]; ok {
		info := p.info
		roomInfo := r.infoLocked()
		r.mu.Unlock()
		return info, roomInfo, ""
	}

	if r.state != StateLobby {
		r.mu.Unlock()
		return protocol.PlayerInfo{}, protocol.RoomInfo{}, protocol.ErrRoomInGame
	}
	max := protocol.MaxPlayersFor(r.Mode)
	if len(r.participants) >= max {
		r.mu.Unlock()
		return protocol.PlayerInfo{}, protocol.RoomInfo{}, protocol.ErrRoomFull
	}

	number := r.lowestFreeNumber(max)
	info := protocol.PlayerInfo{
		ID:        c.ID,
		Number:    number,
		Color:     playerColors[(number-1)%len(playerColors)],
		Name:      name,
		Connected: true,
	}
	if len(r.participants) == 0 {
		info.IsHost = true
		r.hostID = c.ID
	}
	r.participants[c.ID] = &participant{client: c, info: info}
	r.lastActivity = time.Now()

	roomInfo := r.infoLocked()
	others := r.clientsLocked(c.ID)
	r.mu.Unlock()

	metrics.RoomParticipants.WithLabelValues(r.Code).Set(float64(roomInfo.PlayerCount))
	for _, cl := range others {
		cl.SendEvent(protocol.EvtPlayerJoined, map[string]any{"player": info})
	}

	// Round settings reach every member before game-started; CurrentRound
	// is zero until the host starts the tournament.
	tournament := protocol.TournamentConfig{TournamentRounds: r.tournamentRounds}
	c.SendEvent(protocol.EvtTournamentConfig, tournament)
	for _, cl := range others {
		cl.SendEvent(protocol.EvtTournamentConfig, tournament)
	}

	ctx := logging.WithMode(logging.WithRoom(context.Background(), r.Code), r.Mode)
	logging.Info(ctx, "player joined", zap.String("playerId", c.ID), zap.String("playerName", name))
	return info, roomInfo, ""
}

func (r *Room) lowestFreeNumber(max int) int {
	taken := make(map[int]bool, len(r.participants))
	for _, p := range r.participants {
		taken[p.info.Number] = true
	}
	for n := 1; n <= max; n++ {
		if !taken[n] {
			return n
		}
	}
	return len(r.participants) + 1
}

// handleEvent dispatches a decoded envelope from a room member.
func (r *Room) handleEvent(c *transport.Client, env protocol.Envelope) {
	r.mu.Lock()
	r.lastActivity = time.Now()
	inGame := r.state == StateInGame
	r.mu.Unlock()

	switch env.Event {
	case protocol.EvtLeaveRoom:
		r.removePlayer(c.ID, true)
		if env.Ack != 0 {
			c.SendAck(env.Ack, protocol.AckData{Success: true})
		}

	case protocol.EvtPlayerReady:
		r.setReady(c, env)

	case protocol.EvtSelectCharacter:
		r.selectCharacter(c, env)

	case protocol.EvtStartGame:
		r.startGame(c, env)

	default:
		if inGame {
			r.routeGameplay(c, env)
			return
		}
		if env.Ack != 0 {
			c.SendAck(env.Ack, protocol.AckData{Success: false, Error: protocol.ErrBadPayload})
		}
	}
}

func (r *Room) setReady(c *transport.Client, env protocol.Envelope) {
	var req protocol.PlayerReadyRequest
	if err := env.Bind(&req); err != nil {
		nack(c, env, protocol.ErrBadPayload)
		return
	}

	r.mu.Lock()
	p, ok := r.participants[c.ID]
	if !ok {
		r.mu.Unlock()
		nack(c, env, protocol.ErrNotInRoom)
		return
	}
	p.info.Ready = req.Ready
	clients := r.clientsLocked("")
	r.mu.Unlock()

	for _, cl := range clients {
		cl.SendEvent(protocol.EvtPlayerReadyChanged, map[string]any{
			"playerId": c.ID,
			"ready":    req.Ready,
		})
	}
	if env.Ack != 0 {
		c.SendAck(env.Ack, protocol.AckData{Success: true})
	}
}

// selectCharacter claims a character with compare-and-set semantics: the
// claim fails if any other participant already holds the character. An
// empty characterId releases the sender's pick.
func (r *Room) selectCharacter(c *transport.Client, env protocol.Envelope) {
	var req protocol.SelectCharacterRequest
	if err := env.Bind(&req); err != nil {
		nack(c, env, protocol.ErrBadPayload)
		return
	}

	r.mu.Lock()
	p, ok := r.participants[c.ID]
	if !ok {
		r.mu.Unlock()
		nack(c, env, protocol.ErrNotInRoom)
		return
	}

	if req.CharacterID == "" {
		released := p.info.Character
		p.info.Character = ""
		update := r.selectionsLocked()
		clients := r.clientsLocked("")
		r.mu.Unlock()

		for _, cl := range clients {
			cl.SendEvent(protocol.EvtCharacterDeselected, map[string]any{
				"playerId":  c.ID,
				"character": released,
			})
			cl.SendEvent(protocol.EvtCharacterSelectionUpdate, update)
		}
		if env.Ack != 0 {
			c.SendAck(env.Ack, protocol.AckData{Success: true})
		}
		return
	}

	for id, other := range r.participants {
		if id != c.ID && other.info.Character == req.CharacterID {
			r.mu.Unlock()
			nack(c, env, protocol.ErrCharacterTaken)
			return
		}
	}
	p.info.Character = req.CharacterID
	name := p.info.Name
	update := r.selectionsLocked()
	clients := r.clientsLocked("")
	r.mu.Unlock()

	for _, cl := range clients {
		cl.SendEvent(protocol.EvtCharacterSelected, protocol.CharacterSelection{
			PlayerID:   c.ID,
			Character:  req.CharacterID,
			PlayerName: name,
		})
		cl.SendEvent(protocol.EvtCharacterSelectionUpdate, update)
	}
	if env.Ack != 0 {
		c.SendAck(env.Ack, protocol.AckData{Success: true})
	}
}

func (r *Room) selectionsLocked() protocol.CharacterSelectionUpdate {
	var update protocol.CharacterSelectionUpdate
	for id, p := range r.participants {
		if p.info.Character == "" {
			continue
		}
		update.Selections = append(update.Selections, protocol.CharacterSelection{
			PlayerID:   id,
			Character:  p.info.Character,
			PlayerName: p.info.Name,
		})
	}
	return update
}

// startGame transitions the room into its simulation. Only the host may
// start, only from the lobby state, and only with at least one ready
// player.
func (r *Room) startGame(c *transport.Client, env protocol.Envelope) {
	ctx, span := tracing.Tracer("lobby").Start(
		logging.WithMode(logging.WithRoom(context.Background(), r.Code), r.Mode), "start-game")
	defer span.End()

	r.mu.Lock()
	if c.ID != r.hostID {
		r.mu.Unlock()
		nack(c, env, protocol.ErrNotHost)
		return
	}
	if r.state != StateLobby {
		r.mu.Unlock()
		nack(c, env, protocol.ErrRoomInGame)
		return
	}
	anyReady := false
	for _, p := range r.participants {
		if p.info.Ready {
			anyReady = true
			break
		}
	}
	if !anyReady {
		r.mu.Unlock()
		nack(c, env, protocol.ErrNoReadyPlayers)
		return
	}

	r.state = StateInGame
	r.tournament = game.NewTournament(r.tournamentRounds)
	players := r.playersLocked()
	meta := make(map[string]game.PlayerMeta, len(r.participants))
	for id, p := range r.participants {
		meta[id] = metaOf(p.info)
	}
	r.mu.Unlock()

	runner := game.NewRunner(r.Mode, r.simFactory(), meta, r, r.tournament, game.RunnerConfig{
		TickInterval:    r.cfg.TickInterval(),
		SnapshotEvery:   r.cfg.SnapshotEveryNTicks,
		TransitionDelay: r.cfg.RoundTransitionDelay,
	}, r.onTournamentComplete)

	r.mu.Lock()
	r.runner = runner
	clients := r.clientsLocked("")
	r.mu.Unlock()

	started := protocol.GameStarted{
		GameMode:         r.Mode,
		Players:          players,
		TournamentRounds: r.tournamentRounds,
		CurrentRound:     1,
	}
	for _, cl := range clients {
		cl.SendEvent(protocol.EvtGameStarted, started)
	}
	if env.Ack != 0 {
		c.SendAck(env.Ack, protocol.AckData{Success: true})
	}

	runner.Start()
	logging.Info(ctx, "game started",
		zap.Int("players", len(players)),
		zap.Int("tournamentRounds", r.tournamentRounds))
}

// simFactory builds a fresh mode simulation from the participants still
// present. The runner calls it once per tournament round.
func (r *Room) simFactory() func() game.Simulation {
	return func() game.Simulation {
		r.mu.Lock()
		players := make([]game.PlayerMeta, 0, len(r.participants))
		for _, p := range r.participants {
			players = append(players, metaOf(p.info))
		}
		r.mu.Unlock()

		seed := time.Now().UnixNano()
		switch r.Mode {
		case protocol.ModeArena:
			return arena.New(r.cfg.Arena, players)
		case protocol.ModeSmash:
			return smash.New(r.cfg.Smash, players)
		case protocol.ModeRace:
			return modes.NewRace(r.cfg.Race, players)
		case protocol.ModeFlappy:
			return modes.NewFlappy(r.cfg.Flappy, players, seed)
		case protocol.ModeTag:
			return modes.NewTag(r.cfg.Tag, players)
		case protocol.ModeTug:
			return modes.NewTug(r.cfg.Tug, players)
		case protocol.ModeBalloon:
			return modes.NewBalloon(r.cfg.Balloon, players, seed)
		case protocol.ModePaint:
			return modes.NewPaint(r.cfg.Paint, players)
		}
		// Mode tags are validated at room creation.
		return modes.NewRace(r.cfg.Race, players)
	}
}

func metaOf(info protocol.PlayerInfo) game.PlayerMeta {
	return game.PlayerMeta{
		ID:        info.ID,
		Name:      info.Name,
		Number:    info.Number,
		Color:     info.Color,
		Character: info.Character,
	}
}

// onTournamentComplete returns the room to the lobby for a rematch. It
// runs on the runner goroutine just before the loop exits.
func (r *Room) onTournamentComplete() {
	r.mu.Lock()
	r.runner = nil
	r.tournament = nil
	r.state = StateLobby
	r.lastActivity = time.Now()
	for _, p := range r.participants {
		p.info.Ready = false
	}
	clients := r.clientsLocked("")
	info := r.infoLocked()
	r.mu.Unlock()

	for _, cl := range clients {
		cl.SendEvent(protocol.EvtGameReset, map[string]any{"room": info})
	}
}

// routeGameplay converts in-game wire events into runner messages.
func (r *Room) routeGameplay(c *transport.Client, env protocol.Envelope) {
	r.mu.Lock()
	runner := r.runner
	p, member := r.participants[c.ID]
	r.mu.Unlock()
	if runner == nil || !member {
		return
	}

	switch env.Event {
	case protocol.EvtPlayerInput:
		var in protocol.PlayerInput
		if err := env.Bind(&in); err != nil {
			return
		}
		r.mu.Lock()
		p.lastInput = in
		r.mu.Unlock()
		runner.PushInput(c.ID, inputOf(in))

	case protocol.EvtArenaBlock, protocol.EvtPlayerBlock:
		var req protocol.ArenaBlockRequest
		if err := env.Bind(&req); err != nil {
			return
		}
		r.mu.Lock()
		p.lastInput.Block = req.Blocking
		in := p.lastInput
		r.mu.Unlock()
		runner.PushInput(c.ID, inputOf(in))

	case protocol.EvtArenaAttack:
		var req protocol.ArenaAttackRequest
		if err := env.Bind(&req); err != nil {
			return
		}
		kind := game.ActionPunch
		if req.AttackType == "kick" {
			kind = game.ActionKick
		}
		runner.PushAction(c.ID, game.Action{Kind: kind})

	case protocol.EvtArenaGrabAction:
		runner.PushAction(c.ID, game.Action{Kind: game.ActionGrab})

	case protocol.EvtArenaThrowAction:
		var act game.Action
		act.Kind = game.ActionThrow
		if len(env.Data) > 0 {
			var req protocol.ArenaThrowRequest
			if err := env.Bind(&req); err != nil {
				return
			}
			act.Direction = req.Direction
		}
		runner.PushAction(c.ID, act)

	case protocol.EvtArenaEscape:
		runner.PushAction(c.ID, game.Action{Kind: game.ActionEscape})

	case protocol.EvtPlayerAttack:
		runner.PushAction(c.ID, game.Action{Kind: game.ActionPunch})

	case protocol.EvtPlayerTaunt:
		runner.PushAction(c.ID, game.Action{Kind: game.ActionTaunt})

	case protocol.EvtRaceTap:
		var req protocol.RaceTapRequest
		if err := env.Bind(&req); err != nil {
			return
		}
		runner.PushAction(c.ID, game.Action{Kind: game.ActionRaceTap, Side: req.Side})

	case protocol.EvtFlappyTap:
		runner.PushAction(c.ID, game.Action{Kind: game.ActionFlap})

	case protocol.EvtTugPull:
		runner.PushAction(c.ID, game.Action{Kind: game.ActionTugPull})

	case protocol.EvtBalloonInflate:
		runner.PushAction(c.ID, game.Action{Kind: game.ActionInflate})
	}
}

func inputOf(in protocol.PlayerInput) game.InputState {
	return game.InputState{
		Left:  in.Left,
		Right: in.Right,
		Up:    in.Up,
		Down:  in.Down,
		Jump:  in.Jump,
		Run:   in.Run,
		Block: in.Block,
	}
}

// handleDisconnect is the socket-death path. In the lobby the player is
// removed immediately; mid-game a grace timer delays removal so a brief
// drop does not forfeit the round.
func (r *Room) handleDisconnect(clientID string) {
	r.mu.Lock()
	p, ok := r.participants[clientID]
	if !ok {
		r.mu.Unlock()
		return
	}

	if r.state != StateInGame {
		r.mu.Unlock()
		r.removePlayer(clientID, false)
		return
	}

	p.info.Connected = false
	p.graceTimer = time.AfterFunc(r.cfg.DisconnectGrace, func() {
		r.removePlayer(clientID, false)
	})
	r.mu.Unlock()
}

// removePlayer is the single removal path, shared by leave-room, lobby
// disconnects, and expired grace timers.
func (r *Room) removePlayer(clientID string, voluntary bool) {
	r.mu.Lock()
	p, ok := r.participants[clientID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if p.graceTimer != nil {
		p.graceTimer.Stop()
	}
	delete(r.participants, clientID)
	r.hub.detach(clientID)

	var newHost string
	if r.hostID == clientID {
		r.hostID = ""
		bestNumber := 1 << 30
		for id, other := range r.participants {
			if other.info.Number < bestNumber {
				bestNumber = other.info.Number
				r.hostID = id
			}
		}
		if r.hostID != "" {
			r.participants[r.hostID].info.IsHost = true
			newHost = r.hostID
		}
	}

	runner := r.runner
	empty := len(r.participants) == 0
	clients := r.clientsLocked("")
	count := len(r.participants)
	name := p.info.Name
	r.mu.Unlock()

	metrics.RoomParticipants.WithLabelValues(r.Code).Set(float64(count))
	if runner != nil {
		runner.PushLeave(clientID)
	}

	for _, cl := range clients {
		cl.SendEvent(protocol.EvtPlayerLeft, map[string]any{
			"playerId":   clientID,
			"playerName": name,
		})
		if newHost != "" {
			cl.SendEvent(protocol.EvtHostChanged, map[string]any{"hostId": newHost})
		}
	}

	ctx := logging.WithMode(logging.WithRoom(context.Background(), r.Code), r.Mode)
	logging.Info(ctx, "player removed",
		zap.String("playerId", clientID),
		zap.Bool("voluntary", voluntary),
		zap.Int("remaining", count))

	if empty {
		r.close("empty", true)
	}
}

// close tears the room down. stopRunner must be false on the runner's
// own goroutine (panic abort, tournament completion) where the loop is
// already exiting.
func (r *Room) close(reason string, stopRunner bool) {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return
	}
	r.state = StateClosed
	runner := r.runner
	r.runner = nil
	clients := make([]*transport.Client, 0, len(r.participants))
	for id, p := range r.participants {
		if p.graceTimer != nil {
			p.graceTimer.Stop()
		}
		clients = append(clients, p.client)
		r.hub.detach(id)
	}
	r.participants = make(map[string]*participant)
	r.mu.Unlock()

	if stopRunner && runner != nil {
		runner.Stop()
	}

	for _, cl := range clients {
		cl.SendEvent(protocol.EvtRoomClosed, protocol.RoomClosed{Reason: reason})
		cl.Disconnect()
	}

	r.hub.remove(r.Code)
	metrics.RoomParticipants.DeleteLabelValues(r.Code)

	ctx := logging.WithMode(logging.WithRoom(context.Background(), r.Code), r.Mode)
	logging.Info(ctx, "room closed", zap.String("reason", reason))
}

// --- game.Broadcaster ---

// BroadcastEvent sends a discrete JSON event to every participant.
func (r *Room) BroadcastEvent(event string, payload any) {
	for _, cl := range r.clients() {
		cl.SendEvent(event, payload)
	}
}

// BroadcastSnapshot encodes once and fans out through each client's
// coalescing snapshot slot.
func (r *Room) BroadcastSnapshot(event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		logging.Error(context.Background(), "failed to encode snapshot",
			zap.String("event", event), zap.Error(err))
		return
	}
	for _, cl := range r.clients() {
		cl.SendSnapshot(data)
	}
}

// BroadcastBinary fans a binary frame out through the snapshot slots.
func (r *Room) BroadcastBinary(data []byte) {
	for _, cl := range r.clients() {
		cl.SendBinary(data)
	}
}

// AbortRoom is the runner's escape hatch after a simulation panic. The
// loop is exiting, so the runner must not be joined here.
func (r *Room) AbortRoom(reason string) {
	r.close(reason, false)
}

// --- views ---

func (r *Room) clients() []*transport.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clientsLocked("")
}

func (r *Room) clientsLocked(except string) []*transport.Client {
	out := make([]*transport.Client, 0, len(r.participants))
	for id, p := range r.participants {
		if id == except {
			continue
		}
		out = append(out, p.client)
	}
	return out
}

// Info returns the public room view.
func (r *Room) Info() protocol.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

func (r *Room) infoLocked() protocol.RoomInfo {
	return protocol.RoomInfo{
		Code:             r.Code,
		GameMode:         r.Mode,
		State:            r.state,
		Players:          r.playersLocked(),
		PlayerCount:      len(r.participants),
		TournamentRounds: r.tournamentRounds,
	}
}

func (r *Room) playersLocked() []protocol.PlayerInfo {
	players := make([]protocol.PlayerInfo, 0, len(r.participants))
	for _, p := range r.participants {
		players = append(players, p.info)
	}
	sortPlayers(players)
	return players
}

func (r *Room) idleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

func sortPlayers(players []protocol.PlayerInfo) {
	sort.Slice(players, func(i, j int) bool { return players[i].Number < players[j].Number })
}

func nack(c *transport.Client, env protocol.Envelope, code string) {
	if env.Ack != 0 {
		c.SendAck(env.Ack, protocol.AckData{Success: false, Error: code})
	}
}
