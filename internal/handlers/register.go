package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/moltchess/arena/internal/auth"
	"github.com/moltchess/arena/pkg/rating"
	"github.com/moltchess/arena/pkg/repository"
)

type registerRequest struct {
	APIKey string `json:"api_key"`
}

type registerResponse struct {
	AgentID    string         `json:"agent_id"`
	AgentName  string         `json:"agent_name"`
	SessionKey string         `json:"session_key"`
	Elo        map[string]int `json:"elo"`
}

// Register exchanges a Moltbook credential for an arena session key.
// Registering twice with the same credential returns the existing
// identity.
// POST /register
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	digest := auth.DigestCredential(req.APIKey)
	if existing, err := a.store.AgentByCredentialDigest(ctx, digest); err == nil {
		writeJSON(w, http.StatusOK, agentResponse(existing))
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		a.logger.Error("agent lookup failed on register", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	profile, err := a.verifier.Verify(ctx, req.APIKey)
	if errors.Is(err, auth.ErrInvalidCredential) {
		writeError(w, http.StatusUnauthorized, "invalid api_key")
		return
	}
	if err != nil {
		a.logger.Error("credential verification failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "verification service unavailable")
		return
	}

	if _, err := a.store.AgentByName(ctx, profile.Name); err == nil {
		writeError(w, http.StatusConflict, "agent name already registered")
		return
	}

	sessionKey, err := auth.NewSessionKey()
	if err != nil {
		a.logger.Error("session key generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now().UTC()
	agent := &repository.Agent{
		ID:               auth.NewAgentID(),
		Name:             profile.Name,
		AvatarURL:        profile.AvatarURL,
		Bio:              profile.Description,
		CredentialDigest: digest,
		SessionKey:       sessionKey,
		EloBullet:        rating.Starting,
		EloBlitz:         rating.Starting,
		EloRapid:         rating.Starting,
		CreatedAt:        now,
		VerifiedAt:       &now,
	}
	if err := a.store.CreateAgent(ctx, agent); err != nil {
		a.logger.Error("agent creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.logger.Info("agent registered",
		zap.String("agent_id", agent.ID), zap.String("name", agent.Name))
	writeJSON(w, http.StatusCreated, agentResponse(agent))
}

func agentResponse(agent *repository.Agent) registerResponse {
	return registerResponse{
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		SessionKey: agent.SessionKey,
		Elo: map[string]int{
			"bullet": agent.EloBullet,
			"blitz":  agent.EloBlitz,
			"rapid":  agent.EloRapid,
		},
	}
}
