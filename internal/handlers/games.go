package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/repository"
)

// GameByID returns one game row, including the PGN once the game has
// ended.
// GET /api/games/{id}
func (a *API) GameByID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	record, err := a.store.GameByID(ctx, mux.Vars(r)["id"])
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	if err != nil {
		a.logger.Error("game lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListGames returns recent games, optionally filtered by status.
// GET /api/games?status=active|ended&limit=N
func (a *API) ListGames(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := r.URL.Query().Get("status")
	games, err := a.store.GamesByStatus(ctx, status, limitParam(r, defaultGamesLimit))
	if err != nil {
		a.logger.Error("games query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if games == nil {
		games = []*repository.GameRecord{}
	}
	writeJSON(w, http.StatusOK, games)
}
