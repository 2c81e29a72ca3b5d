// Package repository is the persistence boundary: durable agent and
// game rows behind a Store interface, with Mongo and in-memory
// implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/moltchess/arena/pkg/game"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Agent is the durable identity row. Elo and count fields are written
// only by the end-of-game commit path.
type Agent struct {
	ID               string     `bson:"_id" json:"id"`
	Name             string     `bson:"name" json:"name"`
	AvatarURL        string     `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Bio              string     `bson:"bio,omitempty" json:"bio,omitempty"`
	CredentialDigest string     `bson:"credential_digest" json:"-"`
	SessionKey       string     `bson:"session_key" json:"-"`
	EloBullet        int        `bson:"elo_bullet" json:"elo_bullet"`
	EloBlitz         int        `bson:"elo_blitz" json:"elo_blitz"`
	EloRapid         int        `bson:"elo_rapid" json:"elo_rapid"`
	GamesPlayed      int        `bson:"games_played" json:"games_played"`
	Wins             int        `bson:"wins" json:"wins"`
	Losses           int        `bson:"losses" json:"losses"`
	Draws            int        `bson:"draws" json:"draws"`
	LossStreakBullet int        `bson:"loss_streak_bullet" json:"-"`
	LossStreakBlitz  int        `bson:"loss_streak_blitz" json:"-"`
	LossStreakRapid  int        `bson:"loss_streak_rapid" json:"-"`
	LastGameEndedAt  *time.Time `bson:"last_game_ended_at,omitempty" json:"last_game_ended_at,omitempty"`
	CooldownUntil    *time.Time `bson:"cooldown_until,omitempty" json:"-"`
	CreatedAt        time.Time  `bson:"created_at" json:"created_at"`
	VerifiedAt       *time.Time `bson:"verified_at,omitempty" json:"-"`
}

// Elo returns the agent's rating in a category.
func (a *Agent) Elo(category game.Category) int {
	switch category {
	case game.Bullet:
		return a.EloBullet
	case game.Blitz:
		return a.EloBlitz
	default:
		return a.EloRapid
	}
}

// GameRecord is the durable game row.
type GameRecord struct {
	ID             string     `bson:"_id" json:"id"`
	WhiteAgentID   string     `bson:"white_agent_id" json:"white_agent_id"`
	BlackAgentID   string     `bson:"black_agent_id" json:"black_agent_id"`
	Category       string     `bson:"category" json:"category"`
	Status         string     `bson:"status" json:"status"`
	Result         string     `bson:"result,omitempty" json:"result,omitempty"`
	Termination    string     `bson:"termination,omitempty" json:"termination,omitempty"`
	PGN            string     `bson:"pgn,omitempty" json:"pgn,omitempty"`
	EloWhiteBefore int        `bson:"elo_white_before" json:"elo_white_before"`
	EloBlackBefore int        `bson:"elo_black_before" json:"elo_black_before"`
	EloWhiteAfter  int        `bson:"elo_white_after,omitempty" json:"elo_white_after,omitempty"`
	EloBlackAfter  int        `bson:"elo_black_after,omitempty" json:"elo_black_after,omitempty"`
	StartedAt      *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	EndedAt        *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}

// AgentResult is one side's outcome, applied to its agent row in the
// end-of-game batch.
type AgentResult struct {
	AgentID         string
	Category        game.Category
	NewElo          int
	Won             bool
	Drew            bool
	LossStreak      int
	CooldownSeconds int
	EndedAt         time.Time
}

// Store is the persistence contract. All writes to agent rating/count
// fields and game rows flow through CreateGame and RecordResult.
type Store interface {
	CreateAgent(ctx context.Context, agent *Agent) error
	AgentByID(ctx context.Context, id string) (*Agent, error)
	AgentByName(ctx context.Context, name string) (*Agent, error)
	AgentBySessionKey(ctx context.Context, key string) (*Agent, error)
	AgentByCredentialDigest(ctx context.Context, digest string) (*Agent, error)

	CreateGame(ctx context.Context, record *GameRecord) error
	RecordResult(ctx context.Context, record *GameRecord, white, black AgentResult) error
	GameByID(ctx context.Context, id string) (*GameRecord, error)
	GamesByAgent(ctx context.Context, agentID string, limit int) ([]*GameRecord, error)
	GamesByStatus(ctx context.Context, status string, limit int) ([]*GameRecord, error)

	Leaderboard(ctx context.Context, category game.Category, limit int) ([]*Agent, error)
}
