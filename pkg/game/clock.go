package game

import (
	"sync"
	"time"

	"github.com/moltchess/arena/internal/color"
)

// Clock manages the chess clock for both players. Remaining time is
// stored for each side; the active side's effective remaining is
// computed on demand from the instant of the last move, so the clock
// needs no ticker of its own.
type Clock struct {
	white     float64 // stored remaining, seconds
	black     float64
	increment float64

	activeColor color.Color
	lastMove    time.Time // zero until Start

	now func() time.Time

	mu sync.Mutex
}

// NewClock creates a clock for the given time control. It does not run
// until Start is called.
func NewClock(tc TimeControl) *Clock {
	return &Clock{
		white:       float64(tc.BaseSeconds),
		black:       float64(tc.BaseSeconds),
		increment:   float64(tc.IncrementSeconds),
		activeColor: color.White,
		now:         time.Now,
	}
}

// Start begins timing with white to move.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeColor = color.White
	c.lastMove = c.now()
}

// Switch records a completed move: elapsed time is deducted from the
// side that moved, the increment is credited, and the active color
// toggles. Returns the mover's new remaining time.
//
// Callers must check Timeout before Switch; the increment is only owed
// to a side that still had time when the move landed.
func (c *Clock) Switch() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var elapsed float64
	if !c.lastMove.IsZero() {
		elapsed = now.Sub(c.lastMove).Seconds()
	}

	var remaining float64
	if c.activeColor == color.White {
		c.white -= elapsed
		c.white += c.increment
		remaining = c.white
	} else {
		c.black -= elapsed
		c.black += c.increment
		remaining = c.black
	}

	c.activeColor = c.activeColor.Opp()
	c.lastMove = now

	return remaining
}

// CurrentTimes returns both remaining times, the active side's reduced
// by the time elapsed since the last move and clamped at zero.
func (c *Clock) CurrentTimes() (white, black float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTimes()
}

func (c *Clock) currentTimes() (white, black float64) {
	white, black = c.white, c.black

	if !c.lastMove.IsZero() {
		elapsed := c.now().Sub(c.lastMove).Seconds()
		if c.activeColor == color.White {
			white -= elapsed
		} else {
			black -= elapsed
		}
	}

	if white < 0 {
		white = 0
	}
	if black < 0 {
		black = 0
	}
	return white, black
}

// Timeout returns the side whose effective remaining time has reached
// zero. White is checked first as a deterministic tie-break.
func (c *Clock) Timeout() (color.Color, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	white, black := c.currentTimes()
	if white <= 0 {
		return color.White, true
	}
	if black <= 0 {
		return color.Black, true
	}
	return "", false
}

// ActiveColor returns the side currently on the move.
func (c *Clock) ActiveColor() color.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeColor
}
