package arena

import (
	"context"
	"errors"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/events"
	"github.com/moltchess/arena/pkg/game"
	"github.com/moltchess/arena/pkg/matchmaking"
	"github.com/moltchess/arena/pkg/messages"
	"github.com/moltchess/arena/pkg/repository"
	"github.com/moltchess/arena/pkg/server"
)

// ErrGameNotFound rejects a spectate request for an unknown or
// finished game.
var ErrGameNotFound = errors.New("game not found or has ended")

// onMatch turns a queue pairing into a running game. Colors are
// assigned by coin flip and Elo snapshots are re-read from the store
// so a game started seconds after a previous one sees fresh ratings.
func (c *Coordinator) onMatch(m matchmaking.Match) {
	// An agent seeking several categories can be paired twice in the
	// same scan. The second pairing is discarded and the free partner
	// is told to seek again.
	for _, agentID := range []string{m.First.AgentID, m.Second.AgentID} {
		if c.gameIDByPlayer(agentID) == "" {
			continue
		}
		c.logger.Warn("discarding match, agent already playing",
			zap.String("agent_id", agentID),
			zap.String("category", string(m.Category)))
		for _, partnerID := range []string{m.First.AgentID, m.Second.AgentID} {
			if c.gameIDByPlayer(partnerID) == "" {
				c.registry.SendToAgent(partnerID, messages.NewError("match could not be started"))
			}
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	first, err := c.store.AgentByID(ctx, m.First.AgentID)
	if err == nil {
		var second *repository.Agent
		second, err = c.store.AgentByID(ctx, m.Second.AgentID)
		if err == nil {
			c.startGame(m.Category, first, second)
			return
		}
	}

	// Without fresh ratings the game cannot start. Both agents are
	// told to seek again rather than being silently re-enqueued.
	c.logger.Error("agent lookup failed on match", zap.Error(err))
	for _, agentID := range []string{m.First.AgentID, m.Second.AgentID} {
		c.registry.SendToAgent(agentID, messages.NewError("match could not be started"))
	}
}

func (c *Coordinator) startGame(category game.Category, a, b *repository.Agent) {
	if rand.Intn(2) == 1 {
		a, b = b, a
	}
	white := game.Player{AgentID: a.ID, Name: a.Name, Elo: a.Elo(category)}
	black := game.Player{AgentID: b.ID, Name: b.Name, Elo: b.Elo(category)}

	g := game.New(game.Params{
		ID:       uuid.NewString(),
		Category: category,
		White:    white,
		Black:    black,
		Now:      c.now,
	})

	c.mu.Lock()
	c.games[g.ID] = g
	c.mu.Unlock()

	c.registry.SetAgentGame(white.AgentID, g.ID)
	c.registry.SetAgentGame(black.AgentID, g.ID)

	g.Start()
	startedAt := g.StartedAt

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := c.store.CreateGame(ctx, &repository.GameRecord{
		ID:             g.ID,
		WhiteAgentID:   white.AgentID,
		BlackAgentID:   black.AgentID,
		Category:       string(category),
		Status:         string(game.StatusActive),
		EloWhiteBefore: white.Elo,
		EloBlackBefore: black.Elo,
		StartedAt:      &startedAt,
	})
	if err != nil {
		// The end-of-game commit upserts the full row, so a missed
		// insert here only hides the game from reads until then.
		c.logger.Warn("failed to persist game start",
			zap.String("game_id", g.ID), zap.Error(err))
	}

	fen := g.FEN()
	tc := game.ControlFor(category)
	wire := messages.TimeControl{Base: tc.BaseSeconds, Increment: tc.IncrementSeconds}

	c.registry.SendToAgent(white.AgentID, messages.GameStart{
		Event:  messages.EventGameStart,
		GameID: g.ID,
		Color:  "white",
		Opponent: messages.Opponent{
			ID: black.AgentID, Name: black.Name, Elo: black.Elo,
		},
		FEN:         fen,
		TimeControl: wire,
	})
	c.registry.SendToAgent(black.AgentID, messages.GameStart{
		Event:  messages.EventGameStart,
		GameID: g.ID,
		Color:  "black",
		Opponent: messages.Opponent{
			ID: white.AgentID, Name: white.Name, Elo: white.Elo,
		},
		FEN:         fen,
		TimeControl: wire,
	})

	c.logger.Info("game started",
		zap.String("game_id", g.ID),
		zap.String("category", string(category)),
		zap.String("white", white.Name),
		zap.String("black", black.Name))

	c.publisher.Publish(events.Event{Type: events.MatchFound, GameID: g.ID})
	c.publisher.Publish(events.Event{Type: events.GameStarted, GameID: g.ID})
}

// Spectate attaches a spectator channel to a live game and sends the
// initial annotated state.
func (c *Coordinator) Spectate(gameID string, ch server.Channel) error {
	g := c.liveGame(gameID)
	if g == nil || g.Ended() {
		return ErrGameNotFound
	}

	c.registry.AddSpectator(gameID, ch)

	state := stateMessage(g.Snapshot())
	state.GameID = g.ID
	state.WhiteAgentID = g.White.AgentID
	state.BlackAgentID = g.Black.AgentID
	state.Category = string(g.Category)
	state.SpectatorCount = c.registry.SpectatorCount(gameID)
	return ch.SendJSON(state)
}

// Unwatch detaches a spectator channel.
func (c *Coordinator) Unwatch(gameID string, ch server.Channel) {
	c.registry.RemoveSpectator(gameID, ch)
}
