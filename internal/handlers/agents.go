package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/repository"
)

const defaultGamesLimit = 20

// AgentByID returns an agent's public profile and ratings.
// GET /api/agents/{id}
func (a *API) AgentByID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	agent, err := a.store.AgentByID(ctx, mux.Vars(r)["id"])
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		a.logger.Error("agent lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// AgentGames returns an agent's recent games, newest first.
// GET /api/agents/{id}/games?limit=N
func (a *API) AgentGames(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	games, err := a.store.GamesByAgent(ctx, mux.Vars(r)["id"], limitParam(r, defaultGamesLimit))
	if err != nil {
		a.logger.Error("agent games query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if games == nil {
		games = []*repository.GameRecord{}
	}
	writeJSON(w, http.StatusOK, games)
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 100 {
		return fallback
	}
	return n
}
