package game

import (
	"strings"
	"testing"
	"time"

	"github.com/corentings/chess/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltchess/arena/internal/color"
)

func newTestGame(t *testing.T, category Category) *Game {
	t.Helper()
	g := New(Params{
		ID:       "game-1",
		Category: category,
		White:    Player{AgentID: "white-agent", Name: "Alpha", Elo: 1200},
		Black:    Player{AgentID: "black-agent", Name: "Beta", Elo: 1200},
	})
	g.Start()
	return g
}

func playMoves(t *testing.T, g *Game, moves ...string) {
	t.Helper()
	for _, uci := range moves {
		require.NoError(t, g.MakeMove(uci), "move %s", uci)
	}
}

func TestGameLifecycle(t *testing.T) {
	g := New(Params{ID: "g", Category: Blitz})
	assert.Equal(t, StatusPending, g.Status)

	g.Start()
	assert.Equal(t, StatusActive, g.Status)
	assert.False(t, g.StartedAt.IsZero())

	// Start is idempotent.
	started := g.StartedAt
	g.Start()
	assert.Equal(t, started, g.StartedAt)
}

func TestFoolsMate(t *testing.T) {
	g := newTestGame(t, Blitz)
	playMoves(t, g, "f2f3", "e7e5", "g2g4", "d8h4")

	assert.Equal(t, StatusEnded, g.Status)
	assert.Equal(t, BlackWin, g.Result)
	assert.Equal(t, TerminationCheckmate, g.Termination)
	assert.False(t, g.EndedAt.IsZero())
}

func TestThreefoldRepetitionAutoDraw(t *testing.T) {
	g := newTestGame(t, Rapid)

	// Knight shuffles visit the starting position a third time on the
	// eighth half-move.
	playMoves(t, g,
		"g1f3", "g8f6", "f3g1", "f6g8",
		"g1f3", "g8f6", "f3g1", "f6g8",
	)

	assert.Equal(t, StatusEnded, g.Status)
	assert.Equal(t, Draw, g.Result)
	assert.Equal(t, TerminationRepetition, g.Termination)
}

func TestMoveValidation(t *testing.T) {
	g := newTestGame(t, Blitz)

	assert.ErrorIs(t, g.MakeMove("nonsense"), ErrInvalidMoveFormat)
	assert.ErrorIs(t, g.MakeMove("e2e9"), ErrInvalidMoveFormat)
	assert.ErrorIs(t, g.MakeMove("e2e5"), ErrIllegalMove)

	// A rejected move leaves the game untouched.
	assert.Empty(t, g.Moves)
	require.NoError(t, g.MakeMove("e2e4"))
	assert.Equal(t, []string{"e2e4"}, g.Moves)
}

func TestMoveAfterEndRejected(t *testing.T) {
	g := newTestGame(t, Blitz)
	playMoves(t, g, "f2f3", "e7e5", "g2g4", "d8h4")

	assert.ErrorIs(t, g.MakeMove("e2e4"), ErrNotActive)
}

func TestMoveOnExpiredClock(t *testing.T) {
	g := newTestGame(t, Bullet)
	ft := newFakeTime()
	g.Clock.now = ft.Now
	g.Clock.Start()

	ft.Advance(121 * time.Second)
	err := g.MakeMove("e2e4")

	assert.ErrorIs(t, err, ErrFlagFell)
	assert.Equal(t, StatusEnded, g.Status)
	assert.Equal(t, BlackWin, g.Result)
	assert.Equal(t, TerminationTimeout, g.Termination)
}

func TestCheckTimeout(t *testing.T) {
	g := newTestGame(t, Bullet)
	ft := newFakeTime()
	g.Clock.now = ft.Now
	g.Clock.Start()

	assert.False(t, g.CheckTimeout())

	ft.Advance(121 * time.Second)
	assert.True(t, g.CheckTimeout())
	assert.Equal(t, TerminationTimeout, g.Termination)

	// Already ended, no second transition.
	assert.False(t, g.CheckTimeout())
}

func TestEndByDisconnect(t *testing.T) {
	g := newTestGame(t, Blitz)

	require.True(t, g.EndByDisconnect(color.Black))
	assert.Equal(t, WhiteWin, g.Result)
	assert.Equal(t, TerminationDisconnect, g.Termination)

	assert.False(t, g.EndByDisconnect(color.White))
}

func TestForceEnd(t *testing.T) {
	g := newTestGame(t, Rapid)

	require.True(t, g.ForceEnd(color.White))
	assert.Equal(t, BlackWin, g.Result)
	assert.Equal(t, TerminationDisconnect, g.Termination)
	assert.False(t, g.ForceEnd(color.Black))
}

func TestDisconnectTracking(t *testing.T) {
	g := newTestGame(t, Blitz)

	_, gone := g.DisconnectedSince(color.White)
	assert.False(t, gone)

	at := time.Now()
	g.SetDisconnected(color.White, at)
	since, gone := g.DisconnectedSince(color.White)
	require.True(t, gone)
	assert.Equal(t, at, since)

	g.SetReconnected(color.White)
	_, gone = g.DisconnectedSince(color.White)
	assert.False(t, gone)
}

func TestColorsAndTurns(t *testing.T) {
	g := newTestGame(t, Blitz)

	side, ok := g.ColorOf("white-agent")
	require.True(t, ok)
	assert.Equal(t, color.White, side)

	_, ok = g.ColorOf("stranger")
	assert.False(t, ok)

	assert.Equal(t, "black-agent", g.Opponent("white-agent").AgentID)
	assert.True(t, g.IsTurn("white-agent"))
	assert.False(t, g.IsTurn("black-agent"))

	playMoves(t, g, "e2e4")
	assert.True(t, g.IsTurn("black-agent"))
}

func TestSnapshot(t *testing.T) {
	g := newTestGame(t, Blitz)

	s := g.Snapshot()
	assert.Empty(t, s.LastMove)
	assert.Equal(t, "white", s.ToMove)
	assert.Equal(t, 1, s.MoveNumber)

	playMoves(t, g, "e2e4", "e7e5", "g1f3")
	s = g.Snapshot()
	assert.Equal(t, "g1f3", s.LastMove)
	assert.Equal(t, "black", s.ToMove)
	assert.Equal(t, 2, s.MoveNumber)
	assert.Contains(t, s.FEN, "b KQkq")
}

func TestPGN(t *testing.T) {
	g := newTestGame(t, Blitz)
	playMoves(t, g, "f2f3", "e7e5", "g2g4", "d8h4")

	pgn := g.PGN()
	assert.Contains(t, pgn, `[Event "MoltChess Arena"]`)
	assert.Contains(t, pgn, `[Site "moltchess.io"]`)
	assert.Contains(t, pgn, `[White "white-agent"]`)
	assert.Contains(t, pgn, `[Black "black-agent"]`)
	assert.Contains(t, pgn, `[TimeControl "180+2"]`)
	assert.Contains(t, pgn, `[Result "0-1"]`)
	assert.Contains(t, pgn, `[Termination "checkmate"]`)
	assert.Contains(t, pgn, "Qh4#")
	assert.Contains(t, pgn, "0-1\n")
}

// replayPGN parses a PGN and returns the position it ends on.
func replayPGN(t *testing.T, pgn string) string {
	t.Helper()
	opt, err := chess.PGN(strings.NewReader(pgn))
	require.NoError(t, err)
	return chess.NewGame(opt).FEN()
}

func TestPGNReplayReproducesFinalPosition(t *testing.T) {
	g := newTestGame(t, Blitz)
	playMoves(t, g, "f2f3", "e7e5", "g2g4", "d8h4")

	assert.Equal(t, g.Snapshot().FEN, replayPGN(t, g.PGN()))

	// Castling and captures survive the SAN round trip too.
	g = newTestGame(t, Rapid)
	playMoves(t, g,
		"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "g8f6", "e1g1", "f6e4",
	)
	assert.Equal(t, g.Snapshot().FEN, replayPGN(t, g.PGN()))
}

func TestPGNUnfinishedGame(t *testing.T) {
	g := newTestGame(t, Rapid)
	playMoves(t, g, "e2e4")

	pgn := g.PGN()
	assert.Contains(t, pgn, `[Result "*"]`)
	assert.Contains(t, pgn, "1. e4")
}

func TestControlFor(t *testing.T) {
	assert.Equal(t, TimeControl{BaseSeconds: 120, IncrementSeconds: 1}, ControlFor(Bullet))
	assert.Equal(t, TimeControl{BaseSeconds: 600, IncrementSeconds: 5}, ControlFor(Rapid))
	// Unknown categories fall back to blitz.
	assert.Equal(t, ControlFor(Blitz), ControlFor(Category("weird")))
	assert.False(t, Category("weird").Valid())
	assert.True(t, Blitz.Valid())
}
