// Package handlers implements the HTTP read API and agent
// registration endpoint.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/moltchess/arena/internal/auth"
	"github.com/moltchess/arena/pkg/arena"
	"github.com/moltchess/arena/pkg/repository"
)

// API bundles the HTTP endpoints over the store and the live arena.
type API struct {
	store    repository.Store
	arena    *arena.Coordinator
	verifier *auth.Verifier
	logger   *zap.Logger
}

// NewAPI builds the handler set.
func NewAPI(store repository.Store, coordinator *arena.Coordinator, verifier *auth.Verifier, logger *zap.Logger) *API {
	return &API{
		store:    store,
		arena:    coordinator,
		verifier: verifier,
		logger:   logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Stats reports live arena counters.
// GET /stats
func (a *API) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.arena.Stats())
}
