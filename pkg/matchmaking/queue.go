// Package matchmaking implements the Elo-banded seek queues with
// wait-based widening and mutual-range pairing.
package matchmaking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/game"
	"github.com/moltchess/arena/pkg/rating"
)

// Status tracks how far a seeker's search has widened.
type Status string

// Seeker statuses.
const (
	StatusSearching Status = "searching"
	StatusWidening1 Status = "widening_1"
	StatusWidening2 Status = "widening_2"
	StatusMatched   Status = "matched"
	StatusCancelled Status = "cancelled"
)

// Widening schedule and scan cadence.
const (
	Widen1After  = 30 * time.Second
	Widen2After  = 60 * time.Second
	TickInterval = 500 * time.Millisecond
)

// ErrAlreadySeeking is returned when an agent re-seeks a category it is
// already queued for.
var ErrAlreadySeeking = errors.New("already seeking this category")

// Seeker is one matchmaking queue entry.
type Seeker struct {
	AgentID   string
	AgentName string
	Elo       int
	Category  game.Category
	Band      string
	Status    Status
	QueuedAt  time.Time
	Position  int // 1-indexed queue position at insert time, reported once
}

// EloRange returns the acceptable opponent Elo window for the seeker's
// current widening status.
func (s *Seeker) EloRange() (lo, hi int) {
	switch s.Status {
	case StatusSearching:
		return s.Elo - 200, s.Elo + 200
	case StatusWidening1:
		return s.Elo - 400, s.Elo + 400
	default:
		return 0, 9999
	}
}

// Match pairs two seekers in the same category.
type Match struct {
	First    *Seeker
	Second   *Seeker
	Category game.Category
}

// MatchHandler is invoked for each match found by a tick.
type MatchHandler func(Match)

// WidenHandler is invoked when a seeker's range widens.
type WidenHandler func(*Seeker)

// Queue manages the per-category seek lists.
type Queue struct {
	mu      sync.Mutex
	queues  map[game.Category][]*Seeker
	byAgent map[string]map[game.Category]*Seeker

	onMatch MatchHandler
	onWiden WidenHandler

	now    func() time.Time
	logger *zap.Logger
}

// NewQueue creates empty queues for every category.
func NewQueue(logger *zap.Logger) *Queue {
	queues := make(map[game.Category][]*Seeker, len(game.Categories))
	for _, c := range game.Categories {
		queues[c] = nil
	}
	return &Queue{
		queues:  queues,
		byAgent: make(map[string]map[game.Category]*Seeker),
		now:     time.Now,
		logger:  logger,
	}
}

// SetMatchHandler registers the callback invoked when a pair is found.
func (q *Queue) SetMatchHandler(fn MatchHandler) { q.onMatch = fn }

// SetWidenHandler registers the callback invoked on range widening.
func (q *Queue) SetWidenHandler(fn WidenHandler) { q.onWiden = fn }

// AddSeeker enqueues an agent for a category. Seeking a category twice
// is a caller error.
func (q *Queue) AddSeeker(agentID, agentName string, elo int, category game.Category) (*Seeker, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byAgent[agentID][category]; exists {
		return nil, ErrAlreadySeeking
	}

	s := &Seeker{
		AgentID:   agentID,
		AgentName: agentName,
		Elo:       elo,
		Category:  category,
		Band:      rating.Band(elo),
		Status:    StatusSearching,
		QueuedAt:  q.now(),
	}

	q.queues[category] = append(q.queues[category], s)
	s.Position = len(q.queues[category])

	if q.byAgent[agentID] == nil {
		q.byAgent[agentID] = make(map[game.Category]*Seeker)
	}
	q.byAgent[agentID][category] = s

	return s, nil
}

// RemoveSeeker cancels a seek. Returns false if the agent was not
// seeking that category.
func (q *Queue) RemoveSeeker(agentID string, category game.Category) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(agentID, category, StatusCancelled)
}

// RemoveAll drops every outstanding seek for an agent (used on session
// teardown).
func (q *Queue) RemoveAll(agentID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for category := range q.byAgent[agentID] {
		q.removeLocked(agentID, category, StatusCancelled)
	}
}

func (q *Queue) removeLocked(agentID string, category game.Category, final Status) bool {
	s, ok := q.byAgent[agentID][category]
	if !ok {
		return false
	}
	s.Status = final

	list := q.queues[category]
	for i, entry := range list {
		if entry == s {
			q.queues[category] = append(list[:i], list[i+1:]...)
			break
		}
	}

	delete(q.byAgent[agentID], category)
	if len(q.byAgent[agentID]) == 0 {
		delete(q.byAgent, agentID)
	}
	return true
}

// Get returns the live seeker for (agent, category).
func (q *Queue) Get(agentID string, category game.Category) (*Seeker, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.byAgent[agentID][category]
	return s, ok
}

// IsSeeking reports whether the agent has any outstanding seek.
func (q *Queue) IsSeeking(agentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byAgent[agentID]) > 0
}

// Run scans the queues every TickInterval until the context ends.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Tick()
		}
	}
}

// Tick processes every category once: widen stale seekers, then pair.
// Callbacks fire after the queue lock is released so handlers may call
// back into the queue.
func (q *Queue) Tick() {
	var widened []*Seeker
	var matches []Match

	q.mu.Lock()
	for _, category := range game.Categories {
		widened = append(widened, q.widenLocked(category)...)
		matches = append(matches, q.pairLocked(category)...)
	}
	q.mu.Unlock()

	if q.onWiden != nil {
		for _, s := range widened {
			q.onWiden(s)
		}
	}
	for _, m := range matches {
		q.logger.Info("match found",
			zap.String("category", string(m.Category)),
			zap.String("first", m.First.AgentName),
			zap.String("second", m.Second.AgentName))
		if q.onMatch != nil {
			q.onMatch(m)
		}
	}
}

func (q *Queue) widenLocked(category game.Category) []*Seeker {
	var widened []*Seeker
	now := q.now()

	for _, s := range q.queues[category] {
		wait := now.Sub(s.QueuedAt)
		old := s.Status
		switch {
		case wait >= Widen2After && s.Status != StatusWidening2:
			s.Status = StatusWidening2
		case wait >= Widen1After && s.Status == StatusSearching:
			s.Status = StatusWidening1
		}
		if s.Status != old {
			widened = append(widened, s)
		}
	}
	return widened
}

// pairLocked scans ordered pairs (i, j), i < j; the first acceptable j
// wins for each unmatched i. Insertion order gives older seekers first
// pick.
func (q *Queue) pairLocked(category game.Category) []Match {
	list := q.queues[category]
	if len(list) < 2 {
		return nil
	}

	var matches []Match
	taken := make(map[*Seeker]bool)

	for i, first := range list {
		if taken[first] {
			continue
		}
		for _, second := range list[i+1:] {
			if taken[second] || !canMatch(first, second) {
				continue
			}
			taken[first], taken[second] = true, true
			matches = append(matches, Match{First: first, Second: second, Category: category})
			break
		}
	}

	for _, m := range matches {
		m.First.Status = StatusMatched
		m.Second.Status = StatusMatched
		q.removeMatchedLocked(m.First)
		q.removeMatchedLocked(m.Second)
	}
	return matches
}

func (q *Queue) removeMatchedLocked(s *Seeker) {
	list := q.queues[s.Category]
	for i, entry := range list {
		if entry == s {
			q.queues[s.Category] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(q.byAgent[s.AgentID], s.Category)
	if len(q.byAgent[s.AgentID]) == 0 {
		delete(q.byAgent, s.AgentID)
	}
}

// canMatch requires distinct agents and mutual Elo acceptance.
func canMatch(a, b *Seeker) bool {
	if a.AgentID == b.AgentID {
		return false
	}
	aLo, aHi := a.EloRange()
	bLo, bHi := b.EloRange()
	if b.Elo < aLo || b.Elo > aHi {
		return false
	}
	if a.Elo < bLo || a.Elo > bHi {
		return false
	}
	return true
}

// CategoryStats summarizes one queue for the stats endpoint.
type CategoryStats struct {
	Count   int      `json:"count"`
	Seekers []string `json:"seekers"`
}

// Stats returns per-category queue summaries.
func (q *Queue) Stats() map[game.Category]CategoryStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[game.Category]CategoryStats, len(q.queues))
	for category, list := range q.queues {
		cs := CategoryStats{Count: len(list)}
		for _, s := range list {
			cs.Seekers = append(cs.Seekers, s.AgentName)
		}
		out[category] = cs
	}
	return out
}
