package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltchess/arena/pkg/game"
)

func newTestLimiter() (*Limiter, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCanSeekFreshAgent(t *testing.T) {
	l, _ := newTestLimiter()

	ok, reason, retry := l.CanSeek("a1", game.Bullet)
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.Zero(t, retry)
}

func TestCooldownAfterGame(t *testing.T) {
	l, now := newTestLimiter()

	total := l.OnGameResult("a1", game.Bullet, true, false)
	assert.Equal(t, 30, total)

	ok, reason, retry := l.CanSeek("a1", game.Bullet)
	require.False(t, ok)
	assert.Equal(t, ReasonCooldown, reason)
	assert.Equal(t, 30, retry)

	*now = now.Add(29 * time.Second)
	ok, _, retry = l.CanSeek("a1", game.Bullet)
	require.False(t, ok)
	assert.Equal(t, 1, retry)

	*now = now.Add(time.Second)
	ok, _, _ = l.CanSeek("a1", game.Bullet)
	assert.True(t, ok)
}

func TestCooldownsArePerCategory(t *testing.T) {
	l, _ := newTestLimiter()

	l.OnGameResult("a1", game.Blitz, false, false)

	ok, _, _ := l.CanSeek("a1", game.Blitz)
	assert.False(t, ok)
	ok, _, _ = l.CanSeek("a1", game.Rapid)
	assert.True(t, ok)
}

func TestLossStreakExtendsCooldown(t *testing.T) {
	l, _ := newTestLimiter()

	assert.Equal(t, 60, l.OnGameResult("a1", game.Blitz, false, false))
	assert.Equal(t, 60, l.OnGameResult("a1", game.Blitz, false, false))
	// Third consecutive loss reaches the threshold.
	assert.Equal(t, 180, l.OnGameResult("a1", game.Blitz, false, false))
	assert.Equal(t, 3, l.LossStreak("a1", game.Blitz))

	// The streak keeps the extra until a win.
	assert.Equal(t, 180, l.OnGameResult("a1", game.Blitz, false, false))
	assert.Equal(t, 4, l.LossStreak("a1", game.Blitz))
}

func TestWinResetsStreak(t *testing.T) {
	l, _ := newTestLimiter()

	l.OnGameResult("a1", game.Rapid, false, false)
	l.OnGameResult("a1", game.Rapid, false, false)
	require.Equal(t, 2, l.LossStreak("a1", game.Rapid))

	assert.Equal(t, 120, l.OnGameResult("a1", game.Rapid, true, false))
	assert.Equal(t, 0, l.LossStreak("a1", game.Rapid))
}

func TestDrawLeavesStreakUntouched(t *testing.T) {
	l, _ := newTestLimiter()

	l.OnGameResult("a1", game.Bullet, false, false)
	require.Equal(t, 1, l.LossStreak("a1", game.Bullet))

	assert.Equal(t, 30, l.OnGameResult("a1", game.Bullet, false, true))
	assert.Equal(t, 1, l.LossStreak("a1", game.Bullet))
}

func TestStreaksArePerCategory(t *testing.T) {
	l, _ := newTestLimiter()

	l.OnGameResult("a1", game.Bullet, false, false)
	l.OnGameResult("a1", game.Bullet, false, false)

	assert.Equal(t, 2, l.LossStreak("a1", game.Bullet))
	assert.Equal(t, 0, l.LossStreak("a1", game.Blitz))
}
