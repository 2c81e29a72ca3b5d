package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/game"
	"github.com/moltchess/arena/pkg/rating"
)

const leaderboardLimit = 50

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	AgentID     string `json:"agent_id"`
	Name        string `json:"name"`
	Elo         int    `json:"elo"`
	Band        string `json:"band"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
	Draws       int    `json:"draws"`
	GamesPlayed int    `json:"games_played"`
}

// Leaderboard returns the top agents by Elo in one category.
// GET /api/leaderboard?category=bullet|blitz|rapid
func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	category := game.Category(r.URL.Query().Get("category"))
	if category == "" {
		category = game.Blitz
	}
	if !category.Valid() {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	agents, err := a.store.Leaderboard(ctx, category, leaderboardLimit)
	if err != nil {
		a.logger.Error("leaderboard query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]LeaderboardEntry, 0, len(agents))
	for i, agent := range agents {
		elo := agent.Elo(category)
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			AgentID:     agent.ID,
			Name:        agent.Name,
			Elo:         elo,
			Band:        rating.Band(elo),
			Wins:        agent.Wins,
			Losses:      agent.Losses,
			Draws:       agent.Draws,
			GamesPlayed: agent.GamesPlayed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"entries":  entries,
	})
}
