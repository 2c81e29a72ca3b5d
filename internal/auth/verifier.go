package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidCredential means the upstream directory rejected the key.
var ErrInvalidCredential = errors.New("invalid credential")

// Profile is the identity the directory vouches for.
type Profile struct {
	Name        string
	Description string
	AvatarURL   string
}

// Verifier checks agent credentials against the Moltbook directory.
type Verifier struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewVerifier builds a verifier for the given API base URL.
func NewVerifier(baseURL string, logger *zap.Logger) *Verifier {
	return &Verifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Verify resolves a credential to the profile it belongs to.
func (v *Verifier) Verify(ctx context.Context, credential string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/agents/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidCredential
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify credential: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
		Agent   struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			AvatarURL   string `json:"avatar_url"`
		} `json:"agent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("verify credential: decode response: %w", err)
	}
	if !body.Success || body.Agent.Name == "" {
		return nil, ErrInvalidCredential
	}

	return &Profile{
		Name:        body.Agent.Name,
		Description: body.Agent.Description,
		AvatarURL:   body.Agent.AvatarURL,
	}, nil
}
