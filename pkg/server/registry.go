package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/messages"
)

// AgentSession binds an authenticated agent to its channel.
type AgentSession struct {
	AgentID       string
	Name          string
	Channel       Channel
	CurrentGameID string
}

// Registry tracks agent sessions and per-game spectator sets. An agent
// has at most one bound channel; binding again supersedes the old one.
type Registry struct {
	mu         sync.RWMutex
	agents     map[string]*AgentSession
	spectators map[string]map[Channel]struct{}
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		agents:     make(map[string]*AgentSession),
		spectators: make(map[string]map[Channel]struct{}),
		logger:     logger,
	}
}

// Bind registers a channel for an agent. A previously bound channel is
// closed with the superseded code. The current game binding survives a
// rebind so a reconnecting agent lands back in its game.
func (r *Registry) Bind(agentID, name string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var currentGame string
	if old, ok := r.agents[agentID]; ok {
		currentGame = old.CurrentGameID
		old.Channel.Close(messages.CloseSuperseded, "superseded connection")
	}

	r.agents[agentID] = &AgentSession{
		AgentID:       agentID,
		Name:          name,
		Channel:       ch,
		CurrentGameID: currentGame,
	}
}

// Unbind removes the agent's session, but only if ch is still the
// bound channel. A superseded connection must not evict its
// replacement.
func (r *Registry) Unbind(agentID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.agents[agentID]
	if !ok || session.Channel != ch {
		return false
	}
	delete(r.agents, agentID)
	return true
}

// Get returns the live session for an agent.
func (r *Registry) Get(agentID string) (*AgentSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.agents[agentID]
	return s, ok
}

// IsConnected reports whether the agent has a bound channel.
func (r *Registry) IsConnected(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

// SetAgentGame records the game an agent is currently bound to
// (empty to clear).
func (r *Registry) SetAgentGame(agentID, gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.agents[agentID]; ok {
		session.CurrentGameID = gameID
	}
}

// AgentGame returns the game id an agent is bound to, if any.
func (r *Registry) AgentGame(agentID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if session, ok := r.agents[agentID]; ok {
		return session.CurrentGameID
	}
	return ""
}

// SendToAgent delivers a message best-effort. Transport errors are
// logged and swallowed; the disconnect monitor reconciles the session.
func (r *Registry) SendToAgent(agentID string, v interface{}) {
	r.mu.RLock()
	session, ok := r.agents[agentID]
	r.mu.RUnlock()

	if !ok {
		return
	}
	if err := session.Channel.SendJSON(v); err != nil {
		r.logger.Debug("send to agent failed",
			zap.String("agent_id", agentID), zap.Error(err))
	}
}

// AddSpectator attaches a spectator channel to a game.
func (r *Registry) AddSpectator(gameID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.spectators[gameID]
	if !ok {
		set = make(map[Channel]struct{})
		r.spectators[gameID] = set
	}
	set[ch] = struct{}{}
}

// RemoveSpectator detaches a spectator channel.
func (r *Registry) RemoveSpectator(gameID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.spectators[gameID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(r.spectators, gameID)
		}
	}
}

// SpectatorCount returns the number of spectators on a game.
func (r *Registry) SpectatorCount(gameID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spectators[gameID])
}

// BroadcastToSpectators fans a message out to every spectator of a
// game, pruning channels that fail.
func (r *Registry) BroadcastToSpectators(gameID string, v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.spectators[gameID]
	for ch := range set {
		if err := ch.SendJSON(v); err != nil {
			delete(set, ch)
		}
	}
	if len(set) == 0 {
		delete(r.spectators, gameID)
	}
}

// BroadcastToGame sends to both players and every spectator.
func (r *Registry) BroadcastToGame(gameID, whiteID, blackID string, v interface{}) {
	r.SendToAgent(whiteID, v)
	r.SendToAgent(blackID, v)
	r.BroadcastToSpectators(gameID, v)
}

// ConnectedAgents returns the number of bound agent sessions.
func (r *Registry) ConnectedAgents() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
