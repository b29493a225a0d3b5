package protocol

// Event names on the wire. Client→server events may carry an ack handle;
// the server then replies with exactly one AckEnvelope.

// Lobby, client → server
const (
	EvtCreateRoom      = "create-room"
	EvtJoinRoom        = "join-room"
	EvtLeaveRoom       = "leave-room"
	EvtPlayerReady     = "player-ready"
	EvtSelectCharacter = "select-character"
	EvtStartGame       = "start-game"
)

// Lobby, server → room
const (
	EvtPlayerJoined             = "player-joined"
	EvtPlayerLeft               = "player-left"
	EvtPlayerReadyChanged       = "player-ready-changed"
	EvtCharacterSelectionUpdate = "character-selection-update"
	EvtCharacterSelected        = "character-selected"
	EvtCharacterDeselected      = "character-deselected"
	EvtGameStarted              = "game-started"
	EvtGameReset                = "game-reset"
	EvtRoomClosed               = "room-closed"
	EvtHostChanged              = "host-changed"
)

// In-game shared
const (
	EvtPlayerInput = "player-input"
	EvtGameState   = "game-state"
)

// Smash
const (
	EvtPlayerAttack  = "player-attack"
	EvtPlayerBlock   = "player-block"
	EvtPlayerTaunt   = "player-taunt"
	EvtAttackStarted = "attack-started"
	EvtAttackHit     = "attack-hit"
	EvtPlayerKO      = "player-ko"
	EvtGameOver      = "game-over"
)

// Arena
const (
	EvtArenaAttack        = "arena-attack"
	EvtArenaGrabAction    = "arena-grab"
	EvtArenaThrowAction   = "arena-throw"
	EvtArenaBlock         = "arena-block"
	EvtArenaEscape        = "arena-escape"
	EvtArenaState         = "arena-state"
	EvtArenaAttackStarted = "arena-attack-started"
	EvtArenaAttackHit     = "arena-attack-hit"
	EvtArenaGrab          = "arena-grab"
	EvtArenaThrow         = "arena-throw"
	EvtArenaGrabEscape    = "arena-grab-escape"
	EvtArenaBlockState    = "arena-block-state"
	EvtArenaElimination   = "arena-elimination"
	EvtArenaGameOver      = "arena-game-over"
)

// Race
const (
	EvtRaceTap       = "race-tap"
	EvtRaceCountdown = "race-countdown"
	EvtRaceStart     = "race-start"
	EvtRaceState     = "race-state"
	EvtRaceFinish    = "race-finish"
	EvtRaceWinner    = "race-winner"
)

// Flappy
const (
	EvtFlappyTap   = "flappy-tap"
	EvtFlappyState = "flappy-state"
	EvtFlappyDeath = "flappy-death"
	EvtFlappyOver  = "flappy-over"
)

// Tag
const (
	EvtTagState  = "tag-state"
	EvtTagTagged = "tag-tagged"
	EvtTagOver   = "tag-over"
)

// Tug of war
const (
	EvtTugPull  = "tug-pull"
	EvtTugPulse = "tug-pulse"
	EvtTugState = "tug-state"
	EvtTugScore = "tug-score"
	EvtTugOver  = "tug-over"
)

// Balloon
const (
	EvtBalloonInflate = "balloon-inflate"
	EvtBalloonState   = "balloon-state"
	EvtBalloonBurst   = "balloon-burst"
	EvtBalloonOver    = "balloon-over"
)

// Paint
const (
	EvtPaintState = "paint-state"
	EvtPaintOver  = "paint-over"
)

// Tournament
const (
	EvtTournamentConfig = "tournament-config"
	EvtRoundEnded       = "round-ended"
	EvtRoundStarting    = "round-starting"
	EvtTournamentEnded  = "tournament-ended"
)

// Error codes surfaced in ack replies.
const (
	ErrRoomNotFound   = "room_not_found"
	ErrRoomFull       = "room_full"
	ErrRoomInGame     = "room_in_game"
	ErrCharacterTaken = "character_taken"
	ErrNotHost        = "not_host"
	ErrNotInRoom      = "not_in_room"
	ErrNoReadyPlayers = "no_ready_players"
	ErrBadPayload     = "bad_payload"
	ErrRateLimited    = "rate_limited"
	ErrInternal       = "internal"
)

// GameMode tags accepted by create-room.
const (
	ModeSmash   = "smash"
	ModeArena   = "arena"
	ModeRace    = "race"
	ModeFlappy  = "flappy"
	ModeTag     = "tag"
	ModeTug     = "tug"
	ModeBalloon = "balloon"
	ModePaint   = "paint"
)

// ValidMode reports whether tag names a known game mode.
func ValidMode(tag string) bool {
	switch tag {
	case ModeSmash, ModeArena, ModeRace, ModeFlappy, ModeTag, ModeTug, ModeBalloon, ModePaint:
		return true
	}
	return false
}

// MaxPlayersFor returns the participant cap for a mode.
func MaxPlayersFor(tag string) int {
	switch tag {
	case ModeArena:
		return 4
	case ModeSmash:
		return 4
	default:
		return 8
	}
}
