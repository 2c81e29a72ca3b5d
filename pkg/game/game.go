// Package game implements the per-match chess state machine: board,
// clock, move validation and every termination condition.
package game

import (
	"errors"
	"math"
	"regexp"
	"sync"
	"time"

	"github.com/corentings/chess/v2"

	"github.com/moltchess/arena/internal/color"
)

// Status is the lifecycle state of a game.
type Status string

// Game lifecycle states.
const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Result classifies a finished game.
type Result string

// Possible results.
const (
	WhiteWin Result = "white_win"
	BlackWin Result = "black_win"
	Draw     Result = "draw"
)

// Termination is the reason a game ended.
type Termination string

// Termination reasons. Resignation is reserved: it is persisted and
// rendered if present but no client action produces it.
const (
	TerminationCheckmate    Termination = "checkmate"
	TerminationTimeout      Termination = "timeout"
	TerminationStalemate    Termination = "stalemate"
	TerminationInsufficient Termination = "insufficient"
	TerminationRepetition   Termination = "repetition"
	TerminationFiftyMove    Termination = "fifty_move"
	TerminationDisconnect   Termination = "disconnect"
	TerminationResignation  Termination = "resignation"
)

// Move errors surfaced to the client verbatim.
var (
	ErrNotActive         = errors.New("game not active")
	ErrInvalidMoveFormat = errors.New("invalid move format")
	ErrIllegalMove       = errors.New("illegal move")
	ErrFlagFell          = errors.New("time out")
)

var uciRe = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// Player identifies one side of a game with its Elo snapshot taken at
// game start.
type Player struct {
	AgentID string
	Name    string
	Elo     int
}

// Params carries everything needed to create a game. Now overrides the
// clock's time source when set.
type Params struct {
	ID       string
	Category Category
	White    Player
	Black    Player
	Now      func() time.Time
}

// Game is the authoritative state of a single match.
type Game struct {
	ID       string
	Category Category
	White    Player
	Black    Player

	Clock *Clock
	Moves []string // UCI history

	Status      Status
	Result      Result
	Termination Termination

	WhiteConnected      bool
	BlackConnected      bool
	WhiteDisconnectedAt time.Time // zero when connected
	BlackDisconnectedAt time.Time

	StartedAt time.Time
	EndedAt   time.Time

	game *chess.Game

	mu sync.Mutex
}

// New creates a pending game with a stopped clock.
func New(p Params) *Game {
	clock := NewClock(ControlFor(p.Category))
	if p.Now != nil {
		clock.now = p.Now
	}
	return &Game{
		ID:             p.ID,
		Category:       p.Category,
		White:          p.White,
		Black:          p.Black,
		Clock:          clock,
		Status:         StatusPending,
		WhiteConnected: true,
		BlackConnected: true,
		game:           chess.NewGame(),
	}
}

// Start activates the game and starts white's clock.
func (g *Game) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Status != StatusPending {
		return
	}
	g.Status = StatusActive
	g.StartedAt = time.Now().UTC()
	g.Clock.Start()
}

// MakeMove validates and applies a UCI move for the side to move.
// On ErrFlagFell the game has already transitioned to ended by timeout;
// callers should run their end-of-game path.
func (g *Game) MakeMove(uci string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Status != StatusActive {
		return ErrNotActive
	}

	if flagged, ok := g.Clock.Timeout(); ok {
		g.endByTimeout(flagged)
		return ErrFlagFell
	}

	if !uciRe.MatchString(uci) {
		return ErrInvalidMoveFormat
	}

	if err := g.game.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
		return ErrIllegalMove
	}

	g.Moves = append(g.Moves, uci)
	g.Clock.Switch()
	g.evaluateTerminal()

	return nil
}

// evaluateTerminal checks terminal conditions in precedence order:
// checkmate, stalemate, insufficient material, threefold repetition,
// fifty-move rule. Repetition and fifty-move draws are auto-claimed.
func (g *Game) evaluateTerminal() {
	if outcome := g.game.Outcome(); outcome != chess.NoOutcome {
		switch g.game.Method() {
		case chess.Checkmate:
			if outcome == chess.WhiteWon {
				g.Result = WhiteWin
			} else {
				g.Result = BlackWin
			}
			g.Termination = TerminationCheckmate
		case chess.Stalemate:
			g.Result = Draw
			g.Termination = TerminationStalemate
		case chess.InsufficientMaterial:
			g.Result = Draw
			g.Termination = TerminationInsufficient
		case chess.FivefoldRepetition:
			g.Result = Draw
			g.Termination = TerminationRepetition
		default: // seventy-five-move rule and anything else the library auto-draws
			g.Result = Draw
			g.Termination = TerminationFiftyMove
		}
		g.end()
		return
	}

	// Auto-claim, threefold before fifty-move.
	for _, method := range []chess.Method{chess.ThreefoldRepetition, chess.FiftyMoveRule} {
		for _, eligible := range g.game.EligibleDraws() {
			if eligible != method {
				continue
			}
			if err := g.game.Draw(method); err != nil {
				continue
			}
			g.Result = Draw
			if method == chess.ThreefoldRepetition {
				g.Termination = TerminationRepetition
			} else {
				g.Termination = TerminationFiftyMove
			}
			g.end()
			return
		}
	}
}

// CheckTimeout ends the game if a flag is down. Returns true when the
// game transitioned to ended during this call.
func (g *Game) CheckTimeout() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Status == StatusEnded {
		return false
	}
	flagged, ok := g.Clock.Timeout()
	if !ok {
		return false
	}
	g.endByTimeout(flagged)
	return true
}

// EndByDisconnect forfeits the game against the disconnected side.
// Returns false if the game had already ended.
func (g *Game) EndByDisconnect(disconnected color.Color) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Status == StatusEnded {
		return false
	}
	if disconnected == color.White {
		g.Result = BlackWin
	} else {
		g.Result = WhiteWin
	}
	g.Termination = TerminationDisconnect
	g.end()
	return true
}

// ForceEnd is the last-resort termination for invariant violations.
// Returns false if the game had already ended.
func (g *Game) ForceEnd(loser color.Color) bool {
	return g.EndByDisconnect(loser)
}

func (g *Game) endByTimeout(flagged color.Color) {
	if flagged == color.White {
		g.Result = BlackWin
	} else {
		g.Result = WhiteWin
	}
	g.Termination = TerminationTimeout
	g.end()
}

func (g *Game) end() {
	g.Status = StatusEnded
	g.EndedAt = time.Now().UTC()
}

// Ended reports whether the game has reached a terminal state.
func (g *Game) Ended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Status == StatusEnded
}

// FEN returns the current position.
func (g *Game) FEN() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.game.FEN()
}

// ColorOf returns the color an agent plays in this game.
func (g *Game) ColorOf(agentID string) (color.Color, bool) {
	switch agentID {
	case g.White.AgentID:
		return color.White, true
	case g.Black.AgentID:
		return color.Black, true
	}
	return "", false
}

// Opponent returns the other side's player info.
func (g *Game) Opponent(agentID string) Player {
	if agentID == g.White.AgentID {
		return g.Black
	}
	return g.White
}

// IsTurn reports whether it is the given agent's move.
func (g *Game) IsTurn(agentID string) bool {
	side, ok := g.ColorOf(agentID)
	if !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sideToMove() == side
}

func (g *Game) sideToMove() color.Color {
	if g.game.Position().Turn() == chess.White {
		return color.White
	}
	return color.Black
}

// SetDisconnected marks a side as disconnected at the given instant.
func (g *Game) SetDisconnected(side color.Color, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if side == color.White {
		g.WhiteConnected = false
		g.WhiteDisconnectedAt = at
	} else {
		g.BlackConnected = false
		g.BlackDisconnectedAt = at
	}
}

// SetReconnected clears a side's disconnect marker.
func (g *Game) SetReconnected(side color.Color) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if side == color.White {
		g.WhiteConnected = true
		g.WhiteDisconnectedAt = time.Time{}
	} else {
		g.BlackConnected = true
		g.BlackDisconnectedAt = time.Time{}
	}
}

// DisconnectedSince returns when a side disconnected, if it is
// currently disconnected.
func (g *Game) DisconnectedSince(side color.Color) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var at time.Time
	if side == color.White {
		at = g.WhiteDisconnectedAt
	} else {
		at = g.BlackDisconnectedAt
	}
	return at, !at.IsZero()
}

// State is a wire-ready snapshot of a game in progress.
type State struct {
	FEN        string
	LastMove   string // empty before the first move
	ClockWhite float64
	ClockBlack float64
	ToMove     string
	MoveNumber int
}

// Snapshot captures the current position and clocks. Clock values are
// rounded to 0.1s as the protocol requires.
func (g *Game) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	white, black := g.Clock.CurrentTimes()
	var last string
	if len(g.Moves) > 0 {
		last = g.Moves[len(g.Moves)-1]
	}

	return State{
		FEN:        g.game.FEN(),
		LastMove:   last,
		ClockWhite: roundTenth(white),
		ClockBlack: roundTenth(black),
		ToMove:     g.sideToMove().Name(),
		MoveNumber: len(g.Moves)/2 + 1,
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
