// Package arena coordinates live play: it owns the set of running
// games and drives seeks, moves, reconnects and forfeits end to end.
package arena

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/config"
	"github.com/moltchess/arena/pkg/events"
	"github.com/moltchess/arena/pkg/game"
	"github.com/moltchess/arena/pkg/matchmaking"
	"github.com/moltchess/arena/pkg/messages"
	"github.com/moltchess/arena/pkg/ratelimit"
	"github.com/moltchess/arena/pkg/repository"
	"github.com/moltchess/arena/pkg/server"
)

const storeTimeout = 5 * time.Second

// Coordinator wires the session registry, matchmaking queue, rate
// limiter and store into the live play loop.
type Coordinator struct {
	cfg       *config.Config
	store     repository.Store
	registry  *server.Registry
	queue     *matchmaking.Queue
	limiter   *ratelimit.Limiter
	publisher *events.Publisher
	logger    *zap.Logger

	mu      sync.Mutex
	games   map[string]*game.Game
	retries []*pendingResult

	now func() time.Time
}

// New builds a coordinator and hooks it into the queue's callbacks.
func New(
	cfg *config.Config,
	store repository.Store,
	registry *server.Registry,
	queue *matchmaking.Queue,
	limiter *ratelimit.Limiter,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		queue:     queue,
		limiter:   limiter,
		publisher: publisher,
		logger:    logger,
		games:     make(map[string]*game.Game),
		now:       time.Now,
	}
	queue.SetMatchHandler(c.onMatch)
	queue.SetWidenHandler(c.onWiden)
	return c
}

// Run starts the matchmaking scan and the forfeit/timeout monitor and
// blocks until the context ends.
func (c *Coordinator) Run(ctx context.Context) {
	go c.queue.Run(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.monitorTick()
		}
	}
}

// Connect binds an authenticated agent's channel and replays game state
// if the agent is reconnecting into a live game.
func (c *Coordinator) Connect(agent *repository.Agent, ch server.Channel) {
	c.registry.Bind(agent.ID, agent.Name, ch)

	c.registry.SendToAgent(agent.ID, messages.Connected{
		Event:     messages.EventConnected,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		EloBullet: agent.EloBullet,
		EloBlitz:  agent.EloBlitz,
		EloRapid:  agent.EloRapid,
	})

	// A fresh bind has no game attached, so look the game up by
	// player. The binding is restored for the rest of the session.
	gameID := c.registry.AgentGame(agent.ID)
	if gameID == "" {
		gameID = c.gameIDByPlayer(agent.ID)
	}

	g := c.liveGame(gameID)
	if g == nil || g.Ended() {
		c.registry.SetAgentGame(agent.ID, "")
		return
	}
	c.registry.SetAgentGame(agent.ID, g.ID)

	side, ok := g.ColorOf(agent.ID)
	if !ok {
		return
	}
	g.SetReconnected(side)

	state := stateMessage(g.Snapshot())
	state.Reconnected = true
	c.registry.SendToAgent(agent.ID, state)
	c.registry.SendToAgent(g.Opponent(agent.ID).AgentID, messages.OpponentEvent{
		Event: messages.EventOpponentReconnected,
	})

	c.logger.Info("agent reconnected",
		zap.String("agent_id", agent.ID), zap.String("game_id", g.ID))
}

// Disconnect tears a session down. If the channel was already
// superseded the call is a no-op; otherwise seeks are cancelled and a
// live game starts its forfeit countdown.
func (c *Coordinator) Disconnect(agentID string, ch server.Channel) {
	if !c.registry.Unbind(agentID, ch) {
		return
	}

	c.queue.RemoveAll(agentID)

	gameID := c.registry.AgentGame(agentID)
	if gameID == "" {
		// Unbind already removed the session; the game binding went
		// with it, so look the game up by player instead.
		gameID = c.gameIDByPlayer(agentID)
	}
	if gameID == "" {
		c.publisher.Publish(events.Event{Type: events.ConnectionClosed})
		return
	}

	g := c.liveGame(gameID)
	if g == nil || g.Ended() {
		c.publisher.Publish(events.Event{Type: events.ConnectionClosed})
		return
	}

	side, ok := g.ColorOf(agentID)
	if !ok {
		return
	}
	g.SetDisconnected(side, c.now())
	c.registry.SendToAgent(g.Opponent(agentID).AgentID, messages.OpponentEvent{
		Event: messages.EventOpponentDisconnected,
	})

	c.logger.Info("agent disconnected mid-game",
		zap.String("agent_id", agentID), zap.String("game_id", g.ID))
	c.publisher.Publish(events.Event{Type: events.ConnectionClosed, GameID: g.ID})
}

// HandleAction dispatches one inbound message from a bound agent.
func (c *Coordinator) HandleAction(agentID string, msg messages.Inbound) {
	switch msg.Action {
	case messages.ActionSeek:
		c.handleSeek(agentID, msg.Category)
	case messages.ActionCancelSeek:
		c.handleCancelSeek(agentID, msg.Category)
	case messages.ActionMove:
		c.handleMove(agentID, msg.Move)
	case messages.ActionPing:
		c.registry.SendToAgent(agentID, messages.Pong{Event: messages.EventPong})
	case messages.ActionAuth:
		c.registry.SendToAgent(agentID, messages.NewError("already authenticated"))
	default:
		c.registry.SendToAgent(agentID, messages.NewError("unknown action"))
	}
}

func (c *Coordinator) handleSeek(agentID, rawCategory string) {
	category := game.Category(rawCategory)
	if !category.Valid() {
		c.registry.SendToAgent(agentID, messages.NewError("unknown category"))
		return
	}

	if c.gameIDByPlayer(agentID) != "" {
		c.registry.SendToAgent(agentID, messages.NewError("already in a game"))
		return
	}

	if _, seeking := c.queue.Get(agentID, category); seeking {
		c.registry.SendToAgent(agentID, messages.NewError("already seeking this category"))
		return
	}

	if ok, reason, retryAfter := c.limiter.CanSeek(agentID, category); !ok {
		c.registry.SendToAgent(agentID, messages.RateLimited{
			Event:      messages.EventRateLimited,
			Reason:     reason,
			RetryAfter: retryAfter,
		})
		return
	}

	session, ok := c.registry.Get(agentID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	agent, err := c.store.AgentByID(ctx, agentID)
	if err != nil {
		c.logger.Error("agent lookup failed on seek",
			zap.String("agent_id", agentID), zap.Error(err))
		c.registry.SendToAgent(agentID, messages.NewError("internal error"))
		return
	}

	seeker, err := c.queue.AddSeeker(agentID, session.Name, agent.Elo(category), category)
	if errors.Is(err, matchmaking.ErrAlreadySeeking) {
		c.registry.SendToAgent(agentID, messages.NewError("already seeking this category"))
		return
	}

	lo, hi := seeker.EloRange()
	c.registry.SendToAgent(agentID, messages.Queued{
		Event:    messages.EventQueued,
		Category: string(category),
		Position: seeker.Position,
		EloRange: [2]int{lo, hi},
	})
}

func (c *Coordinator) handleCancelSeek(agentID, rawCategory string) {
	category := game.Category(rawCategory)
	if !category.Valid() {
		c.registry.SendToAgent(agentID, messages.NewError("unknown category"))
		return
	}

	if !c.queue.RemoveSeeker(agentID, category) {
		c.registry.SendToAgent(agentID, messages.NewError("not seeking this category"))
		return
	}
	c.registry.SendToAgent(agentID, messages.SeekCancelled{
		Event:    messages.EventSeekCancelled,
		Category: string(category),
	})
}

func (c *Coordinator) handleMove(agentID, uci string) {
	g := c.liveGame(c.gameIDByPlayer(agentID))
	if g == nil {
		c.registry.SendToAgent(agentID, messages.NewError("not in a game"))
		return
	}

	if !g.IsTurn(agentID) {
		c.registry.SendToAgent(agentID, messages.NewError("not your turn"))
		return
	}

	err := g.MakeMove(uci)
	switch {
	case errors.Is(err, game.ErrFlagFell):
		// The clock had already run out, so the move is answered with
		// a rejection and then the game ends by timeout.
		c.registry.SendToAgent(agentID, messages.NewError(err.Error()))
		c.finishGame(g)
		return
	case err != nil:
		c.registry.SendToAgent(agentID, messages.NewError(err.Error()))
		return
	}

	c.broadcastState(g)
	if g.Ended() {
		c.finishGame(g)
	}
}

func (c *Coordinator) onWiden(s *matchmaking.Seeker) {
	lo, hi := s.EloRange()
	c.registry.SendToAgent(s.AgentID, messages.SearchWidened{
		Event:    messages.EventSearchWidened,
		Category: string(s.Category),
		EloRange: [2]int{lo, hi},
	})
}

// liveGame returns a running game by id, or nil.
func (c *Coordinator) liveGame(gameID string) *game.Game {
	if gameID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.games[gameID]
}

// gameIDByPlayer finds the live game an agent is playing in.
func (c *Coordinator) gameIDByPlayer(agentID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, g := range c.games {
		if g.White.AgentID == agentID || g.Black.AgentID == agentID {
			return id
		}
	}
	return ""
}

func (c *Coordinator) broadcastState(g *game.Game) {
	c.registry.BroadcastToGame(g.ID, g.White.AgentID, g.Black.AgentID,
		stateMessage(g.Snapshot()))
}

// stateMessage converts a snapshot to its wire form.
func stateMessage(s game.State) messages.GameState {
	msg := messages.GameState{
		Event:      messages.EventState,
		FEN:        s.FEN,
		ClockWhite: s.ClockWhite,
		ClockBlack: s.ClockBlack,
		ToMove:     s.ToMove,
		MoveNumber: s.MoveNumber,
	}
	if s.LastMove != "" {
		last := s.LastMove
		msg.LastMove = &last
	}
	return msg
}

// ArenaStats summarizes live server state for the stats endpoint.
type ArenaStats struct {
	ConnectedAgents int                                         `json:"connected_agents"`
	ActiveGames     int                                         `json:"active_games"`
	Queues          map[game.Category]matchmaking.CategoryStats `json:"queues"`
}

// Stats snapshots connection, game and queue counts.
func (c *Coordinator) Stats() ArenaStats {
	c.mu.Lock()
	active := len(c.games)
	c.mu.Unlock()

	return ArenaStats{
		ConnectedAgents: c.registry.ConnectedAgents(),
		ActiveGames:     active,
		Queues:          c.queue.Stats(),
	}
}
