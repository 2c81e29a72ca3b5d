// Package main is the entry point of the arena server.
package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/moltchess/arena/internal/auth"
	"github.com/moltchess/arena/internal/handlers"
	"github.com/moltchess/arena/pkg/arena"
	"github.com/moltchess/arena/pkg/config"
	"github.com/moltchess/arena/pkg/events"
	"github.com/moltchess/arena/pkg/matchmaking"
	"github.com/moltchess/arena/pkg/ratelimit"
	"github.com/moltchess/arena/pkg/repository"
	"github.com/moltchess/arena/pkg/server"
)

// application encapsulates global dependencies
type application struct {
	Logger    *zap.Logger
	Config    *config.Config
	Store     repository.Store
	Registry  *server.Registry
	Arena     *arena.Coordinator
	Publisher *events.Publisher
	API       *handlers.API
	Server    *http.Server

	StartTime time.Time
	cancel    context.CancelFunc
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "", "server port (overrides PORT)")
	flag.Parse()

	// A missing .env file is fine; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	if *debug {
		cfg.Debug = true
	}
	if *port != "" {
		cfg.Port = *port
	}

	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	store := openStore(cfg, logger)

	publisher := events.NewPublisher()
	subscribeAuditLog(publisher, logger)

	registry := server.NewRegistry(logger)
	queue := matchmaking.NewQueue(logger)
	limiter := ratelimit.New()
	verifier := auth.NewVerifier(cfg.MoltbookAPIBase, logger)

	coordinator := arena.New(cfg, store, registry, queue, limiter, publisher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go coordinator.Run(ctx)

	app := &application{
		Logger:    logger,
		Config:    cfg,
		Store:     store,
		Registry:  registry,
		Arena:     coordinator,
		Publisher: publisher,
		API:       handlers.NewAPI(store, coordinator, verifier, logger),
		StartTime: time.Now(),
		cancel:    cancel,
	}

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

func openStore(cfg *config.Config, logger *zap.Logger) repository.Store {
	if cfg.MongoURI == "" {
		logger.Warn("MONGO_URI not set, using in-memory store")
		return repository.NewMemory()
	}
	store, err := repository.NewMongo(cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Fatal("failed to open MongoDB", zap.Error(err))
	}
	logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDatabase))
	return store
}

// subscribeAuditLog mirrors lifecycle events into the log.
func subscribeAuditLog(publisher *events.Publisher, logger *zap.Logger) {
	for _, t := range []events.Type{
		events.MatchFound,
		events.GameStarted,
		events.GameEnded,
		events.ConnectionClosed,
		events.PersistFailed,
	} {
		eventType := t
		publisher.Subscribe(eventType, func(e events.Event) {
			logger.Debug("event",
				zap.String("type", string(eventType)),
				zap.String("game_id", e.GameID))
		})
	}
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	return logger
}

// Shutdown stops the coordinator loops.
func (app *application) Shutdown() {
	app.cancel()
	app.Logger.Info("All components shut down successfully")
}
