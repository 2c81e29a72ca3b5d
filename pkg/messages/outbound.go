package messages

// Server event names. Every outbound message carries one in its
// "event" field.
const (
	EventConnected            = "connected"
	EventQueued               = "queued"
	EventSearchWidened        = "search_widened"
	EventSeekCancelled        = "seek_cancelled"
	EventGameStart            = "game_start"
	EventState                = "state"
	EventGameEnd              = "game_end"
	EventOpponentDisconnected = "opponent_disconnected"
	EventOpponentReconnected  = "opponent_reconnected"
	EventRateLimited          = "rate_limited"
	EventError                = "error"
	EventPong                 = "pong"
)

// WebSocket close codes.
const (
	CloseSuperseded = 4000
	CloseAuthFailed = 4001
)

// Connected confirms a successful session bind.
type Connected struct {
	Event     string `json:"event"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	EloBullet int    `json:"elo_bullet"`
	EloBlitz  int    `json:"elo_blitz"`
	EloRapid  int    `json:"elo_rapid"`
}

// Queued acknowledges a seek.
type Queued struct {
	Event    string `json:"event"`
	Category string `json:"category"`
	Position int    `json:"position"`
	EloRange [2]int `json:"elo_range"`
}

// SearchWidened notifies a seeker their acceptable range grew.
type SearchWidened struct {
	Event    string `json:"event"`
	Category string `json:"category"`
	EloRange [2]int `json:"elo_range"`
}

// SeekCancelled acknowledges a cancel_seek.
type SeekCancelled struct {
	Event    string `json:"event"`
	Category string `json:"category"`
}

// Opponent describes the other player in a game_start.
type Opponent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Elo  int    `json:"elo"`
}

// TimeControl mirrors the category's clock settings on the wire.
type TimeControl struct {
	Base      int `json:"base"`
	Increment int `json:"increment"`
}

// GameStart is sent to each player, personalized with their color.
type GameStart struct {
	Event       string      `json:"event"`
	GameID      string      `json:"game_id"`
	Color       string      `json:"color"`
	Opponent    Opponent    `json:"opponent"`
	FEN         string      `json:"fen"`
	TimeControl TimeControl `json:"time_control"`
}

// GameState is the authoritative position snapshot broadcast after
// every move. The spectator fields are only populated on the initial
// state sent to a newly attached spectator.
type GameState struct {
	Event       string  `json:"event"`
	FEN         string  `json:"fen"`
	LastMove    *string `json:"last_move"`
	ClockWhite  float64 `json:"clock_white"`
	ClockBlack  float64 `json:"clock_black"`
	ToMove      string  `json:"to_move"`
	MoveNumber  int     `json:"move_number"`
	Reconnected bool    `json:"reconnected,omitempty"`

	GameID         string `json:"game_id,omitempty"`
	WhiteAgentID   string `json:"white_agent_id,omitempty"`
	BlackAgentID   string `json:"black_agent_id,omitempty"`
	Category       string `json:"category,omitempty"`
	SpectatorCount int    `json:"spectator_count,omitempty"`
}

// GameEnd is the personalized end-of-game report for a player.
type GameEnd struct {
	Event           string `json:"event"`
	Result          string `json:"result"`
	Termination     string `json:"termination"`
	EloChange       int    `json:"elo_change"`
	NewElo          int    `json:"new_elo"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

// SpectatorGameEnd is the public end-of-game report, with both deltas.
type SpectatorGameEnd struct {
	Event          string `json:"event"`
	Result         string `json:"result"`
	Termination    string `json:"termination"`
	WhiteEloChange int    `json:"white_elo_change"`
	BlackEloChange int    `json:"black_elo_change"`
}

// OpponentEvent covers opponent_disconnected / opponent_reconnected.
type OpponentEvent struct {
	Event string `json:"event"`
}

// RateLimited rejects a seek that hit a cooldown.
type RateLimited struct {
	Event      string `json:"event"`
	Reason     string `json:"reason"`
	RetryAfter int    `json:"retry_after"`
}

// Error is the generic protocol/domain error reply.
type Error struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Pong answers a ping.
type Pong struct {
	Event string `json:"event"`
}

// NewError builds an error event.
func NewError(message string) Error {
	return Error{Event: EventError, Message: message}
}
