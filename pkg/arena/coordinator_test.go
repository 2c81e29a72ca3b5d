package arena

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/config"
	"github.com/moltchess/arena/pkg/events"
	"github.com/moltchess/arena/pkg/game"
	"github.com/moltchess/arena/pkg/matchmaking"
	"github.com/moltchess/arena/pkg/messages"
	"github.com/moltchess/arena/pkg/ratelimit"
	"github.com/moltchess/arena/pkg/rating"
	"github.com/moltchess/arena/pkg/repository"
	"github.com/moltchess/arena/pkg/server"
)

type fakeChannel struct {
	mu     sync.Mutex
	sent   []interface{}
	closed bool
}

func (f *fakeChannel) SendJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeChannel) Close(_ int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeChannel) snapshot() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.sent...)
}

func firstGameStart(t *testing.T, ch *fakeChannel) messages.GameStart {
	t.Helper()
	for _, v := range ch.snapshot() {
		if gs, ok := v.(messages.GameStart); ok {
			return gs
		}
	}
	t.Fatal("no game_start received")
	return messages.GameStart{}
}

func lastGameEnd(t *testing.T, ch *fakeChannel) messages.GameEnd {
	t.Helper()
	msgs := ch.snapshot()
	for i := len(msgs) - 1; i >= 0; i-- {
		if ge, ok := msgs[i].(messages.GameEnd); ok {
			return ge
		}
	}
	t.Fatal("no game_end received")
	return messages.GameEnd{}
}

func lastState(t *testing.T, ch *fakeChannel) messages.GameState {
	t.Helper()
	msgs := ch.snapshot()
	for i := len(msgs) - 1; i >= 0; i-- {
		if s, ok := msgs[i].(messages.GameState); ok {
			return s
		}
	}
	t.Fatal("no state received")
	return messages.GameState{}
}

func hasOpponentEvent(ch *fakeChannel, event string) bool {
	for _, v := range ch.snapshot() {
		if oe, ok := v.(messages.OpponentEvent); ok && oe.Event == event {
			return true
		}
	}
	return false
}

type testArena struct {
	c        *Coordinator
	store    *repository.Memory
	queue    *matchmaking.Queue
	registry *server.Registry
	now      *time.Time
}

func newTestArena(t *testing.T) *testArena {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemory()
	registry := server.NewRegistry(logger)
	queue := matchmaking.NewQueue(logger)

	cfg := &config.Config{DisconnectForfeitSeconds: 120, AuthTimeoutSeconds: 10}
	c := New(cfg, store, registry, queue, ratelimit.New(), events.NewPublisher(), logger)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for _, a := range []struct{ id, name string }{
		{"a1", "Alpha"}, {"a2", "Beta"},
	} {
		err := store.CreateAgent(context.Background(), &repository.Agent{
			ID:         a.id,
			Name:       a.name,
			SessionKey: "moltchess_" + a.id,
			EloBullet:  rating.Starting,
			EloBlitz:   rating.Starting,
			EloRapid:   rating.Starting,
			CreatedAt:  now,
		})
		require.NoError(t, err)
	}

	return &testArena{c: c, store: store, queue: queue, registry: registry, now: &now}
}

func (e *testArena) connect(t *testing.T, agentID string) *fakeChannel {
	t.Helper()
	agent, err := e.store.AgentByID(context.Background(), agentID)
	require.NoError(t, err)
	ch := &fakeChannel{}
	e.c.Connect(agent, ch)
	return ch
}

// startMatch seeks both agents into blitz and runs one queue tick.
// It returns the channels keyed by color.
func (e *testArena) startMatch(t *testing.T) (white, black *fakeChannel, whiteID, blackID string) {
	t.Helper()
	chA := e.connect(t, "a1")
	chB := e.connect(t, "a2")

	e.c.HandleAction("a1", messages.Inbound{Action: messages.ActionSeek, Category: "blitz"})
	e.c.HandleAction("a2", messages.Inbound{Action: messages.ActionSeek, Category: "blitz"})
	e.queue.Tick()

	gs := firstGameStart(t, chA)
	if gs.Color == "white" {
		return chA, chB, "a1", "a2"
	}
	return chB, chA, "a2", "a1"
}

func TestSeekQueuesAgent(t *testing.T) {
	env := newTestArena(t)
	ch := env.connect(t, "a1")

	env.c.HandleAction("a1", messages.Inbound{Action: messages.ActionSeek, Category: "blitz"})

	var queued messages.Queued
	found := false
	for _, v := range ch.snapshot() {
		if q, ok := v.(messages.Queued); ok {
			queued, found = q, true
		}
	}
	require.True(t, found)
	assert.Equal(t, "blitz", queued.Category)
	assert.Equal(t, 1, queued.Position)
	assert.Equal(t, [2]int{1000, 1400}, queued.EloRange)
}

func TestSeekUnknownCategory(t *testing.T) {
	env := newTestArena(t)
	ch := env.connect(t, "a1")

	env.c.HandleAction("a1", messages.Inbound{Action: messages.ActionSeek, Category: "hyperbullet"})

	msgs := ch.snapshot()
	errMsg, ok := msgs[len(msgs)-1].(messages.Error)
	require.True(t, ok)
	assert.Equal(t, "unknown category", errMsg.Message)
}

func TestMatchStartsGame(t *testing.T) {
	env := newTestArena(t)
	white, black, whiteID, blackID := env.startMatch(t)

	gsWhite := firstGameStart(t, white)
	gsBlack := firstGameStart(t, black)

	assert.Equal(t, gsWhite.GameID, gsBlack.GameID)
	assert.Equal(t, "white", gsWhite.Color)
	assert.Equal(t, "black", gsBlack.Color)
	assert.Equal(t, blackID, gsWhite.Opponent.ID)
	assert.Equal(t, whiteID, gsBlack.Opponent.ID)
	assert.Equal(t, 180, gsWhite.TimeControl.Base)
	assert.Equal(t, 2, gsWhite.TimeControl.Increment)
	assert.Contains(t, gsWhite.FEN, "w KQkq")

	assert.Equal(t, 1, env.c.Stats().ActiveGames)

	// The game row is persisted as active.
	record, err := env.store.GameByID(context.Background(), gsWhite.GameID)
	require.NoError(t, err)
	assert.Equal(t, "active", record.Status)
	assert.Equal(t, 1200, record.EloWhiteBefore)
}

func TestFoolsMateEndToEnd(t *testing.T) {
	env := newTestArena(t)
	white, black, whiteID, blackID := env.startMatch(t)
	gameID := firstGameStart(t, white).GameID

	moves := []struct {
		agent string
		uci   string
	}{
		{whiteID, "f2f3"},
		{blackID, "e7e5"},
		{whiteID, "g2g4"},
		{blackID, "d8h4"},
	}
	for _, m := range moves {
		env.c.HandleAction(m.agent, messages.Inbound{Action: messages.ActionMove, Move: m.uci})
	}

	state := lastState(t, white)
	require.NotNil(t, state.LastMove)
	assert.Equal(t, "d8h4", *state.LastMove)

	endWhite := lastGameEnd(t, white)
	assert.Equal(t, "black_win", endWhite.Result)
	assert.Equal(t, "checkmate", endWhite.Termination)
	assert.Equal(t, -16, endWhite.EloChange)
	assert.Equal(t, 1184, endWhite.NewElo)
	assert.Equal(t, 60, endWhite.CooldownSeconds)

	endBlack := lastGameEnd(t, black)
	assert.Equal(t, 16, endBlack.EloChange)
	assert.Equal(t, 1216, endBlack.NewElo)

	assert.Equal(t, 0, env.c.Stats().ActiveGames)

	winner, err := env.store.AgentByID(context.Background(), blackID)
	require.NoError(t, err)
	assert.Equal(t, 1216, winner.EloBlitz)
	assert.Equal(t, 1, winner.Wins)

	record, err := env.store.GameByID(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, "ended", record.Status)
	assert.Equal(t, "black_win", record.Result)
	assert.Contains(t, record.PGN, "Qh4#")

	// Both agents are on cooldown now.
	env.c.HandleAction(whiteID, messages.Inbound{Action: messages.ActionSeek, Category: "blitz"})
	msgs := white.snapshot()
	limited, ok := msgs[len(msgs)-1].(messages.RateLimited)
	require.True(t, ok)
	assert.Equal(t, "cooldown", limited.Reason)
	assert.Equal(t, 60, limited.RetryAfter)
}

func TestMoveErrors(t *testing.T) {
	env := newTestArena(t)
	white, black, whiteID, blackID := env.startMatch(t)

	// Out of turn.
	env.c.HandleAction(blackID, messages.Inbound{Action: messages.ActionMove, Move: "e7e5"})
	msgs := black.snapshot()
	errMsg, ok := msgs[len(msgs)-1].(messages.Error)
	require.True(t, ok)
	assert.Equal(t, "not your turn", errMsg.Message)

	// Illegal move for the right player.
	env.c.HandleAction(whiteID, messages.Inbound{Action: messages.ActionMove, Move: "e2e5"})
	msgs = white.snapshot()
	errMsg, ok = msgs[len(msgs)-1].(messages.Error)
	require.True(t, ok)
	assert.Equal(t, "illegal move", errMsg.Message)

	// Not in a game at all.
	env.c.HandleAction("ghost", messages.Inbound{Action: messages.ActionMove, Move: "e2e4"})
}

func TestMoveAfterFlagFall(t *testing.T) {
	env := newTestArena(t)
	white, _, whiteID, _ := env.startMatch(t)

	// Blitz base is 180s; white sat on the move past it.
	*env.now = env.now.Add(181 * time.Second)
	env.c.HandleAction(whiteID, messages.Inbound{Action: messages.ActionMove, Move: "e2e4"})

	// The mover is answered with the rejection before the game ends.
	errIdx, endIdx := -1, -1
	for i, v := range white.snapshot() {
		if e, ok := v.(messages.Error); ok && e.Message == "time out" {
			errIdx = i
		}
		if _, ok := v.(messages.GameEnd); ok {
			endIdx = i
		}
	}
	require.GreaterOrEqual(t, errIdx, 0, "no time out error received")
	require.GreaterOrEqual(t, endIdx, 0, "no game_end received")
	assert.Less(t, errIdx, endIdx)

	end := lastGameEnd(t, white)
	assert.Equal(t, "black_win", end.Result)
	assert.Equal(t, "timeout", end.Termination)
	assert.Equal(t, 0, env.c.Stats().ActiveGames)
}

func TestMatchWhileInGameDiscarded(t *testing.T) {
	env := newTestArena(t)
	_, _, whiteID, _ := env.startMatch(t)

	err := env.store.CreateAgent(context.Background(), &repository.Agent{
		ID:         "a3",
		Name:       "Gamma",
		SessionKey: "moltchess_a3",
		EloBullet:  rating.Starting,
		EloBlitz:   rating.Starting,
		EloRapid:   rating.Starting,
	})
	require.NoError(t, err)
	ch3 := env.connect(t, "a3")

	// A pairing that includes an agent already playing is discarded;
	// the free partner is told to seek again.
	env.c.onMatch(matchmaking.Match{
		First:    &matchmaking.Seeker{AgentID: whiteID, Category: game.Rapid},
		Second:   &matchmaking.Seeker{AgentID: "a3", Category: game.Rapid},
		Category: game.Rapid,
	})

	assert.Equal(t, 1, env.c.Stats().ActiveGames)
	msgs := ch3.snapshot()
	errMsg, ok := msgs[len(msgs)-1].(messages.Error)
	require.True(t, ok)
	assert.Equal(t, "match could not be started", errMsg.Message)
}

func TestSeekWhileInGameRejected(t *testing.T) {
	env := newTestArena(t)
	white, _, whiteID, _ := env.startMatch(t)

	env.c.HandleAction(whiteID, messages.Inbound{Action: messages.ActionSeek, Category: "rapid"})
	msgs := white.snapshot()
	errMsg, ok := msgs[len(msgs)-1].(messages.Error)
	require.True(t, ok)
	assert.Equal(t, "already in a game", errMsg.Message)
}

func TestDisconnectForfeit(t *testing.T) {
	env := newTestArena(t)
	white, black, _, blackID := env.startMatch(t)

	env.c.Disconnect(blackID, lastBoundChannel(env, blackID, black))
	assert.True(t, hasOpponentEvent(white, messages.EventOpponentDisconnected))

	// Just under the limit nothing happens.
	*env.now = env.now.Add(119 * time.Second)
	env.c.monitorTick()
	assert.Equal(t, 1, env.c.Stats().ActiveGames)

	*env.now = env.now.Add(2 * time.Second)
	env.c.monitorTick()
	assert.Equal(t, 0, env.c.Stats().ActiveGames)

	end := lastGameEnd(t, white)
	assert.Equal(t, "white_win", end.Result)
	assert.Equal(t, "disconnect", end.Termination)
}

// lastBoundChannel returns the channel the registry currently holds for
// the agent, falling back to the given one.
func lastBoundChannel(env *testArena, agentID string, fallback *fakeChannel) server.Channel {
	if s, ok := env.registry.Get(agentID); ok {
		return s.Channel
	}
	return fallback
}

func TestReconnectRestoresGame(t *testing.T) {
	env := newTestArena(t)
	white, black, whiteID, _ := env.startMatch(t)

	env.c.HandleAction(whiteID, messages.Inbound{Action: messages.ActionMove, Move: "e2e4"})

	env.c.Disconnect(whiteID, lastBoundChannel(env, whiteID, white))
	assert.True(t, hasOpponentEvent(black, messages.EventOpponentDisconnected))

	agent, err := env.store.AgentByID(context.Background(), whiteID)
	require.NoError(t, err)
	fresh := &fakeChannel{}
	env.c.Connect(agent, fresh)

	state := lastState(t, fresh)
	assert.True(t, state.Reconnected)
	require.NotNil(t, state.LastMove)
	assert.Equal(t, "e2e4", *state.LastMove)
	assert.True(t, hasOpponentEvent(black, messages.EventOpponentReconnected))

	// The game is still live and playable.
	assert.Equal(t, 1, env.c.Stats().ActiveGames)
}

func TestSupersededConnectionKeepsGameAlive(t *testing.T) {
	env := newTestArena(t)
	white, _, whiteID, _ := env.startMatch(t)

	agent, err := env.store.AgentByID(context.Background(), whiteID)
	require.NoError(t, err)
	fresh := &fakeChannel{}
	env.c.Connect(agent, fresh)
	assert.True(t, white.closed)

	// The old socket's read loop exits and calls Disconnect; the new
	// binding must survive it.
	env.c.Disconnect(whiteID, white)
	assert.True(t, env.registry.IsConnected(whiteID))
	assert.Equal(t, 1, env.c.Stats().ActiveGames)
}

func TestSpectate(t *testing.T) {
	env := newTestArena(t)
	white, _, whiteID, _ := env.startMatch(t)
	gameID := firstGameStart(t, white).GameID

	watcher := &fakeChannel{}
	require.NoError(t, env.c.Spectate(gameID, watcher))

	state := lastState(t, watcher)
	assert.Equal(t, gameID, state.GameID)
	assert.Equal(t, "blitz", state.Category)
	assert.Equal(t, 1, state.SpectatorCount)
	assert.NotEmpty(t, state.WhiteAgentID)
	assert.NotEmpty(t, state.BlackAgentID)

	// Moves reach the spectator too.
	env.c.HandleAction(whiteID, messages.Inbound{Action: messages.ActionMove, Move: "e2e4"})
	state = lastState(t, watcher)
	require.NotNil(t, state.LastMove)
	assert.Equal(t, "e2e4", *state.LastMove)

	assert.ErrorIs(t, env.c.Spectate("nope", &fakeChannel{}), ErrGameNotFound)
}

func TestPingAndUnknownAction(t *testing.T) {
	env := newTestArena(t)
	ch := env.connect(t, "a1")

	env.c.HandleAction("a1", messages.Inbound{Action: messages.ActionPing})
	msgs := ch.snapshot()
	_, ok := msgs[len(msgs)-1].(messages.Pong)
	assert.True(t, ok)

	env.c.HandleAction("a1", messages.Inbound{Action: "dance"})
	msgs = ch.snapshot()
	errMsg, ok := msgs[len(msgs)-1].(messages.Error)
	require.True(t, ok)
	assert.Equal(t, "unknown action", errMsg.Message)
}

func TestCancelSeek(t *testing.T) {
	env := newTestArena(t)
	ch := env.connect(t, "a1")

	env.c.HandleAction("a1", messages.Inbound{Action: messages.ActionSeek, Category: "rapid"})
	env.c.HandleAction("a1", messages.Inbound{Action: messages.ActionCancelSeek, Category: "rapid"})

	msgs := ch.snapshot()
	cancelled, ok := msgs[len(msgs)-1].(messages.SeekCancelled)
	require.True(t, ok)
	assert.Equal(t, "rapid", cancelled.Category)
	assert.False(t, env.queue.IsSeeking("a1"))

	env.c.HandleAction("a1", messages.Inbound{Action: messages.ActionCancelSeek, Category: "rapid"})
	msgs = ch.snapshot()
	errMsg, ok := msgs[len(msgs)-1].(messages.Error)
	require.True(t, ok)
	assert.Equal(t, "not seeking this category", errMsg.Message)
}
