package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/moltchess/arena/pkg/game"
)

// Memory is an in-memory Store. It backs the server when no Mongo URI
// is configured and every test that needs persistence.
type Memory struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	games  map[string]*GameRecord
	order  []string // game ids in insertion order
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		agents: make(map[string]*Agent),
		games:  make(map[string]*GameRecord),
	}
}

func (m *Memory) CreateAgent(_ context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *agent
	m.agents[agent.ID] = &cp
	return nil
}

func (m *Memory) AgentByID(_ context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) AgentByName(_ context.Context, name string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) AgentBySessionKey(_ context.Context, key string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if a.SessionKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) AgentByCredentialDigest(_ context.Context, digest string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if a.CredentialDigest == digest {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateGame(_ context.Context, record *GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.games[record.ID] = &cp
	m.order = append(m.order, record.ID)
	return nil
}

func (m *Memory) RecordResult(_ context.Context, record *GameRecord, white, black AgentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *record
	m.games[record.ID] = &cp

	applyResult(m.agents[white.AgentID], white)
	applyResult(m.agents[black.AgentID], black)
	return nil
}

func applyResult(a *Agent, r AgentResult) {
	if a == nil {
		return
	}
	switch r.Category {
	case game.Bullet:
		a.EloBullet = r.NewElo
		a.LossStreakBullet = r.LossStreak
	case game.Blitz:
		a.EloBlitz = r.NewElo
		a.LossStreakBlitz = r.LossStreak
	default:
		a.EloRapid = r.NewElo
		a.LossStreakRapid = r.LossStreak
	}
	a.GamesPlayed++
	switch {
	case r.Drew:
		a.Draws++
	case r.Won:
		a.Wins++
	default:
		a.Losses++
	}
	ended := r.EndedAt
	a.LastGameEndedAt = &ended
	if r.CooldownSeconds > 0 {
		until := ended.Add(time.Duration(r.CooldownSeconds) * time.Second)
		a.CooldownUntil = &until
	}
}

func (m *Memory) GameByID(_ context.Context, id string) (*GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) GamesByAgent(_ context.Context, agentID string, limit int) ([]*GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*GameRecord
	// newest first
	for i := len(m.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		g := m.games[m.order[i]]
		if g.WhiteAgentID == agentID || g.BlackAgentID == agentID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) GamesByStatus(_ context.Context, status string, limit int) ([]*GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*GameRecord
	for i := len(m.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		g := m.games[m.order[i]]
		if status == "" || g.Status == status {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) Leaderboard(_ context.Context, category game.Category, limit int) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Elo(category) != out[j].Elo(category) {
			return out[i].Elo(category) > out[j].Elo(category)
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
