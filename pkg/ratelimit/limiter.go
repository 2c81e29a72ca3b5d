// Package ratelimit enforces post-game cooldowns and loss-streak
// backoff per agent and category.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/moltchess/arena/pkg/game"
)

// Base cooldown per category, seconds.
var cooldowns = map[game.Category]int{
	game.Bullet: 30,
	game.Blitz:  60,
	game.Rapid:  120,
}

// Loss-streak policy.
const (
	LossStreakThreshold = 3
	LossStreakExtra     = 120 // seconds added once the streak reaches the threshold
)

// Reason values returned by CanSeek.
const ReasonCooldown = "cooldown"

type agentState struct {
	cooldownUntil map[game.Category]time.Time
	lossStreak    map[game.Category]int
}

func newAgentState() *agentState {
	return &agentState{
		cooldownUntil: make(map[game.Category]time.Time),
		lossStreak:    make(map[game.Category]int),
	}
}

// Limiter tracks cooldown and loss-streak state for all agents.
// Cooldowns apply per category independently.
type Limiter struct {
	mu     sync.Mutex
	states map[string]*agentState
	now    func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		states: make(map[string]*agentState),
		now:    time.Now,
	}
}

func (l *Limiter) state(agentID string) *agentState {
	st, ok := l.states[agentID]
	if !ok {
		st = newAgentState()
		l.states[agentID] = st
	}
	return st
}

// CanSeek reports whether the agent may enter the queue for a category.
// When blocked it returns the reason and the whole seconds (rounded up)
// until the cooldown expires.
func (l *Limiter) CanSeek(agentID string, category game.Category) (ok bool, reason string, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(agentID)
	now := l.now()
	if until, found := st.cooldownUntil[category]; found && now.Before(until) {
		retry := int(math.Ceil(until.Sub(now).Seconds()))
		return false, ReasonCooldown, retry
	}
	return true, "", 0
}

// OnGameResult updates streak state and arms the post-game cooldown.
// Draws leave the streak untouched; wins reset it; losses increment it
// and, at the threshold, extend the cooldown. Returns the total
// cooldown applied in seconds.
func (l *Limiter) OnGameResult(agentID string, category game.Category, isWinner, isDraw bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(agentID)
	total := cooldowns[category]

	switch {
	case isDraw:
		// no streak change
	case isWinner:
		st.lossStreak[category] = 0
	default:
		st.lossStreak[category]++
		if st.lossStreak[category] >= LossStreakThreshold {
			total += LossStreakExtra
		}
	}

	st.cooldownUntil[category] = l.now().Add(time.Duration(total) * time.Second)
	return total
}

// LossStreak returns the current loss streak for an agent and category.
func (l *Limiter) LossStreak(agentID string, category game.Category) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state(agentID).lossStreak[category]
}
