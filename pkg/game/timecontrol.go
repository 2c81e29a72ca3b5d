package game

// Category is a rated time-control bucket.
type Category string

// All rated categories.
const (
	Bullet Category = "bullet"
	Blitz  Category = "blitz"
	Rapid  Category = "rapid"
)

// Categories lists every valid category in a stable order.
var Categories = []Category{Bullet, Blitz, Rapid}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case Bullet, Blitz, Rapid:
		return true
	}
	return false
}

// TimeControl defines the time settings for a game.
type TimeControl struct {
	BaseSeconds      int `json:"base"`
	IncrementSeconds int `json:"increment"`
}

var controls = map[Category]TimeControl{
	Bullet: {BaseSeconds: 120, IncrementSeconds: 1},
	Blitz:  {BaseSeconds: 180, IncrementSeconds: 2},
	Rapid:  {BaseSeconds: 600, IncrementSeconds: 5},
}

// ControlFor returns the time control for a category. Unknown categories
// fall back to blitz, mirroring seek validation happening upstream.
func ControlFor(c Category) TimeControl {
	if tc, ok := controls[c]; ok {
		return tc
	}
	return controls[Blitz]
}
