// Package config holds the runtime configuration for the arena server.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Config is parsed from the environment. Flags in main may override
// Port and Debug after parsing.
type Config struct {
	Port  string `env:"PORT" envDefault:"8080"`
	Debug bool   `env:"DEBUG" envDefault:"false"`

	// Persistence. When MongoURI is empty the server falls back to the
	// in-memory store (state is lost on restart).
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DB" envDefault:"moltchess"`

	// Identity verification (Moltbook).
	MoltbookAPIBase string `env:"MOLTBOOK_API_BASE" envDefault:"https://www.moltbook.com/api/v1"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000,https://moltchess.io"`

	// Gameplay timers (seconds).
	DisconnectForfeitSeconds int `env:"DISCONNECT_FORFEIT_SECONDS" envDefault:"120"`
	AuthTimeoutSeconds       int `env:"AUTH_TIMEOUT_SECONDS" envDefault:"10"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
