package arena

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/moltchess/arena/internal/color"
	"github.com/moltchess/arena/pkg/events"
	"github.com/moltchess/arena/pkg/game"
	"github.com/moltchess/arena/pkg/messages"
	"github.com/moltchess/arena/pkg/rating"
	"github.com/moltchess/arena/pkg/repository"
)

const maxPersistAttempts = 5

// pendingResult is an end-of-game commit that failed and awaits retry.
type pendingResult struct {
	record   *repository.GameRecord
	white    repository.AgentResult
	black    repository.AgentResult
	attempts int
}

// monitorTick runs once per second: forfeit long-disconnected players,
// flag games whose clock ran out between moves, retry failed commits.
func (c *Coordinator) monitorTick() {
	forfeitAfter := time.Duration(c.cfg.DisconnectForfeitSeconds) * time.Second
	now := c.now()

	c.mu.Lock()
	live := make([]*game.Game, 0, len(c.games))
	for _, g := range c.games {
		live = append(live, g)
	}
	c.mu.Unlock()

	for _, g := range live {
		if g.Ended() {
			// Normal paths evict on finish; reconcile if one slipped.
			c.finishGame(g)
			continue
		}
		if c.forfeitIfAbandoned(g, now, forfeitAfter) {
			continue
		}
		if g.CheckTimeout() {
			c.finishGame(g)
		}
	}

	c.retryPending()
}

func (c *Coordinator) forfeitIfAbandoned(g *game.Game, now time.Time, forfeitAfter time.Duration) bool {
	for _, side := range []color.Color{color.White, color.Black} {
		since, gone := g.DisconnectedSince(side)
		if !gone || now.Sub(since) < forfeitAfter {
			continue
		}
		if g.EndByDisconnect(side) {
			c.logger.Info("game forfeited by disconnect",
				zap.String("game_id", g.ID), zap.String("side", side.Name()))
			c.finishGame(g)
		}
		return true
	}
	return false
}

// finishGame runs the end-of-game pipeline exactly once per game:
// rating updates, cooldowns, persistence and the final broadcasts.
func (c *Coordinator) finishGame(g *game.Game) {
	c.mu.Lock()
	if _, live := c.games[g.ID]; !live {
		c.mu.Unlock()
		return
	}
	delete(c.games, g.ID)
	c.mu.Unlock()

	whiteDelta, blackDelta := eloDeltas(g.Result, g.White.Elo, g.Black.Elo)
	whiteNew := rating.ApplyFloor(g.White.Elo + whiteDelta)
	blackNew := rating.ApplyFloor(g.Black.Elo + blackDelta)
	// Report the applied change, which the floor may have shrunk.
	whiteDelta = whiteNew - g.White.Elo
	blackDelta = blackNew - g.Black.Elo

	isDraw := g.Result == game.Draw
	whiteCooldown := c.limiter.OnGameResult(g.White.AgentID, g.Category, g.Result == game.WhiteWin, isDraw)
	blackCooldown := c.limiter.OnGameResult(g.Black.AgentID, g.Category, g.Result == game.BlackWin, isDraw)

	startedAt, endedAt := g.StartedAt, g.EndedAt
	record := &repository.GameRecord{
		ID:             g.ID,
		WhiteAgentID:   g.White.AgentID,
		BlackAgentID:   g.Black.AgentID,
		Category:       string(g.Category),
		Status:         string(game.StatusEnded),
		Result:         string(g.Result),
		Termination:    string(g.Termination),
		PGN:            g.PGN(),
		EloWhiteBefore: g.White.Elo,
		EloBlackBefore: g.Black.Elo,
		EloWhiteAfter:  whiteNew,
		EloBlackAfter:  blackNew,
		StartedAt:      &startedAt,
		EndedAt:        &endedAt,
	}
	white := repository.AgentResult{
		AgentID:         g.White.AgentID,
		Category:        g.Category,
		NewElo:          whiteNew,
		Won:             g.Result == game.WhiteWin,
		Drew:            isDraw,
		LossStreak:      c.limiter.LossStreak(g.White.AgentID, g.Category),
		CooldownSeconds: whiteCooldown,
		EndedAt:         endedAt,
	}
	black := repository.AgentResult{
		AgentID:         g.Black.AgentID,
		Category:        g.Category,
		NewElo:          blackNew,
		Won:             g.Result == game.BlackWin,
		Drew:            isDraw,
		LossStreak:      c.limiter.LossStreak(g.Black.AgentID, g.Category),
		CooldownSeconds: blackCooldown,
		EndedAt:         endedAt,
	}

	c.commitResult(&pendingResult{record: record, white: white, black: black})

	c.registry.SendToAgent(g.White.AgentID, messages.GameEnd{
		Event:           messages.EventGameEnd,
		Result:          string(g.Result),
		Termination:     string(g.Termination),
		EloChange:       whiteDelta,
		NewElo:          whiteNew,
		CooldownSeconds: whiteCooldown,
	})
	c.registry.SendToAgent(g.Black.AgentID, messages.GameEnd{
		Event:           messages.EventGameEnd,
		Result:          string(g.Result),
		Termination:     string(g.Termination),
		EloChange:       blackDelta,
		NewElo:          blackNew,
		CooldownSeconds: blackCooldown,
	})
	c.registry.BroadcastToSpectators(g.ID, messages.SpectatorGameEnd{
		Event:          messages.EventGameEnd,
		Result:         string(g.Result),
		Termination:    string(g.Termination),
		WhiteEloChange: whiteDelta,
		BlackEloChange: blackDelta,
	})

	c.registry.SetAgentGame(g.White.AgentID, "")
	c.registry.SetAgentGame(g.Black.AgentID, "")

	c.logger.Info("game ended",
		zap.String("game_id", g.ID),
		zap.String("result", string(g.Result)),
		zap.String("termination", string(g.Termination)),
		zap.Int("white_elo", whiteNew),
		zap.Int("black_elo", blackNew))
	c.publisher.Publish(events.Event{Type: events.GameEnded, GameID: g.ID})
}

// commitResult writes the batch, queueing it for retry on failure.
func (c *Coordinator) commitResult(p *pendingResult) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := c.store.RecordResult(ctx, p.record, p.white, p.black)
	if err == nil {
		return
	}

	p.attempts++
	c.logger.Error("failed to persist game result",
		zap.String("game_id", p.record.ID),
		zap.Int("attempts", p.attempts),
		zap.Error(err))
	c.publisher.Publish(events.Event{Type: events.PersistFailed, GameID: p.record.ID})

	c.mu.Lock()
	c.retries = append(c.retries, p)
	c.mu.Unlock()
}

// retryPending re-attempts failed commits, dropping a batch after
// maxPersistAttempts.
func (c *Coordinator) retryPending() {
	c.mu.Lock()
	pending := c.retries
	c.retries = nil
	c.mu.Unlock()

	for _, p := range pending {
		if p.attempts >= maxPersistAttempts {
			c.logger.Error("dropping game result after repeated persist failures",
				zap.String("game_id", p.record.ID))
			continue
		}
		c.commitResult(p)
	}
}

// eloDeltas maps a game result onto rating changes for white and black.
func eloDeltas(result game.Result, whiteElo, blackElo int) (dWhite, dBlack int) {
	switch result {
	case game.WhiteWin:
		return rating.Change(whiteElo, blackElo, false, rating.DefaultK)
	case game.BlackWin:
		dBlack, dWhite = rating.Change(blackElo, whiteElo, false, rating.DefaultK)
		return dWhite, dBlack
	default:
		return rating.Change(whiteElo, blackElo, true, rating.DefaultK)
	}
}
