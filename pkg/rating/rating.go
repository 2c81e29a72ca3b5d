// Package rating implements K-factor Elo arithmetic for the arena.
package rating

import "math"

const (
	// DefaultK is the K-factor applied to every rated game.
	DefaultK = 32

	// Floor is the absolute minimum rating; no result takes an agent
	// below it.
	Floor = 100

	// Starting is the rating assigned to a new agent in each category.
	Starting = 1200
)

// Elo band cutoffs, display/analytics only.
const (
	BandBronzeMax = 999
	BandSilverMax = 1400
)

// Change computes the rating deltas for a decisive game or a draw.
// For a decisive result the first argument is the winner and the
// returned deltas satisfy first >= 0 and second <= 0. For a draw both
// players move toward an expected score of 0.5 and the arguments keep
// their order. Rounding is half-away-from-zero.
func Change(winnerElo, loserElo int, draw bool, k int) (int, int) {
	expectedWinner := 1 / (1 + math.Pow(10, float64(loserElo-winnerElo)/400))
	expectedLoser := 1 - expectedWinner

	if draw {
		first := int(math.Round(float64(k) * (0.5 - expectedWinner)))
		second := int(math.Round(float64(k) * (0.5 - expectedLoser)))
		return first, second
	}

	winnerChange := int(math.Round(float64(k) * (1 - expectedWinner)))
	loserChange := int(math.Round(float64(k) * (0 - expectedLoser)))
	if winnerChange < 0 {
		winnerChange = 0
	}
	if loserChange > 0 {
		loserChange = 0
	}
	return winnerChange, loserChange
}

// ApplyFloor clamps a rating at the absolute floor.
func ApplyFloor(elo int) int {
	if elo < Floor {
		return Floor
	}
	return elo
}

// Band returns the coarse skill bucket for a rating.
func Band(elo int) string {
	switch {
	case elo <= BandBronzeMax:
		return "bronze"
	case elo <= BandSilverMax:
		return "silver"
	default:
		return "gold"
	}
}
