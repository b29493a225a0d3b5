package protocol

// --- Lobby payloads ---

// CreateRoomRequest asks the server to open a new room.
type CreateRoomRequest struct {
	GameMode   string             `json:"gameMode"`
	PlayerName string             `json:"playerName"`
	Options    *CreateRoomOptions `json:"options,omitempty"`
}

// CreateRoomOptions carries optional room settings.
type CreateRoomOptions struct {
	TournamentRounds int `json:"tournamentRounds,omitempty"`
}

// JoinRoomRequest asks to join an existing room by code.
type JoinRoomRequest struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

// PlayerInfo is the public view of a participant.
type PlayerInfo struct {
	ID        string `json:"id"`
	Number    int    `json:"number"`
	Color     string `json:"color"`
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	Character string `json:"character,omitempty"`
	IsHost    bool   `json:"isHost"`
	Connected bool   `json:"connected"`
}

// RoomInfo is the public view of a room.
type RoomInfo struct {
	Code             string       `json:"code"`
	GameMode         string       `json:"gameMode"`
	State            string       `json:"state"`
	Players          []PlayerInfo `json:"players"`
	PlayerCount      int          `json:"playerCount"`
	TournamentRounds int          `json:"tournamentRounds"`
}

// PlayerReadyRequest toggles the ready flag.
type PlayerReadyRequest struct {
	Ready bool `json:"ready"`
}

// SelectCharacterRequest claims a character for the sender.
type SelectCharacterRequest struct {
	CharacterID   string `json:"characterId"`
	CharacterName string `json:"characterName,omitempty"`
}

// CharacterSelection is one entry of a character-selection-update.
type CharacterSelection struct {
	PlayerID   string `json:"playerId"`
	Character  string `json:"character"`
	PlayerName string `json:"playerName"`
}

// CharacterSelectionUpdate is the room-wide selection snapshot.
type CharacterSelectionUpdate struct {
	Selections []CharacterSelection `json:"selections"`
}

// GameStarted announces the transition into a mode simulation.
type GameStarted struct {
	GameMode         string       `json:"gameMode"`
	Players          []PlayerInfo `json:"players"`
	TournamentRounds int          `json:"tournamentRounds"`
	CurrentRound     int          `json:"currentRound"`
}

// RoomClosed tells clients to return to the join screen.
type RoomClosed struct {
	Reason string `json:"reason"`
}

// --- In-game payloads ---

// PlayerInput is the coalescable held-key state.
type PlayerInput struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Up    bool `json:"up"`
	Down  bool `json:"down"`
	Jump  bool `json:"jump"`
	Run   bool `json:"run"`
	Block bool `json:"block"`
}

// ArenaAttackRequest names the strike: "punch" or "kick".
type ArenaAttackRequest struct {
	AttackType string `json:"attackType"`
}

// ArenaThrowRequest optionally overrides the throw direction (radians).
type ArenaThrowRequest struct {
	Direction *float64 `json:"direction"`
}

// ArenaBlockRequest raises or drops the guard.
type ArenaBlockRequest struct {
	Blocking bool `json:"blocking"`
}

// RaceTapRequest is one alternating-tap input, side "left" or "right".
type RaceTapRequest struct {
	Side string `json:"side"`
}

// --- Tournament payloads ---

// TournamentConfig announces round settings to the lobby.
type TournamentConfig struct {
	TournamentRounds int `json:"tournamentRounds"`
	CurrentRound     int `json:"currentRound"`
}

// RoundEnded carries per-round results and running scores.
type RoundEnded struct {
	CurrentRound  int            `json:"currentRound"`
	RoundWinner   string         `json:"roundWinner"`
	RoundWinnerID string         `json:"roundWinnerId"`
	PlayerScores  map[string]int `json:"playerScores"`
}

// RoundStarting announces the next round after the transition delay.
type RoundStarting struct {
	Round int `json:"round"`
}

// TournamentEnded carries the aggregate champion.
type TournamentEnded struct {
	TournamentWinner   string         `json:"tournamentWinner"`
	TournamentWinnerID string         `json:"tournamentWinnerId"`
	PlayerScores       map[string]int `json:"playerScores"`
}
