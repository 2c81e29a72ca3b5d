package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/game"
)

// Mongo is the durable Store backed by MongoDB.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongo connects, pings and kicks off index creation.
func NewMongo(uri, database string, logger *zap.Logger) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m := &Mongo{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}
	go m.ensureIndexes()
	return m, nil
}

func (m *Mongo) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		models     []mongo.IndexModel
	}{
		{
			"agents",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
				{Keys: bson.D{{Key: "session_key", Value: 1}}, Options: options.Index().SetUnique(true)},
				{Keys: bson.D{{Key: "credential_digest", Value: 1}}, Options: options.Index().SetUnique(true)},
				{Keys: bson.D{{Key: "elo_bullet", Value: -1}}},
				{Keys: bson.D{{Key: "elo_blitz", Value: -1}}},
				{Keys: bson.D{{Key: "elo_rapid", Value: -1}}},
			},
		},
		{
			"games",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: -1}}},
				{Keys: bson.D{{Key: "white_agent_id", Value: 1}, {Key: "started_at", Value: -1}}},
				{Keys: bson.D{{Key: "black_agent_id", Value: 1}, {Key: "started_at", Value: -1}}},
				{Keys: bson.D{{Key: "category", Value: 1}}},
			},
		},
	}

	for _, idx := range indexes {
		coll := m.db.Collection(idx.collection)
		if _, err := coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			m.logger.Warn("failed to create indexes",
				zap.String("collection", idx.collection), zap.Error(err))
		}
	}
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) agents() *mongo.Collection { return m.db.Collection("agents") }
func (m *Mongo) games() *mongo.Collection  { return m.db.Collection("games") }

func (m *Mongo) CreateAgent(ctx context.Context, agent *Agent) error {
	_, err := m.agents().InsertOne(ctx, agent)
	return err
}

func (m *Mongo) agentBy(ctx context.Context, filter bson.M) (*Agent, error) {
	var agent Agent
	err := m.agents().FindOne(ctx, filter).Decode(&agent)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (m *Mongo) AgentByID(ctx context.Context, id string) (*Agent, error) {
	return m.agentBy(ctx, bson.M{"_id": id})
}

func (m *Mongo) AgentByName(ctx context.Context, name string) (*Agent, error) {
	return m.agentBy(ctx, bson.M{"name": name})
}

func (m *Mongo) AgentBySessionKey(ctx context.Context, key string) (*Agent, error) {
	return m.agentBy(ctx, bson.M{"session_key": key})
}

func (m *Mongo) AgentByCredentialDigest(ctx context.Context, digest string) (*Agent, error) {
	return m.agentBy(ctx, bson.M{"credential_digest": digest})
}

func (m *Mongo) CreateGame(ctx context.Context, record *GameRecord) error {
	_, err := m.games().InsertOne(ctx, record)
	return err
}

// RecordResult commits the finished game row and both agent updates.
// The writes are sequential; a partial failure surfaces as an error so
// the caller can retry the whole batch.
func (m *Mongo) RecordResult(ctx context.Context, record *GameRecord, white, black AgentResult) error {
	_, err := m.games().ReplaceOne(ctx, bson.M{"_id": record.ID}, record,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("update game %s: %w", record.ID, err)
	}

	for _, r := range []AgentResult{white, black} {
		if err := m.applyResult(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mongo) applyResult(ctx context.Context, r AgentResult) error {
	eloField := "elo_rapid"
	streakField := "loss_streak_rapid"
	switch r.Category {
	case game.Bullet:
		eloField, streakField = "elo_bullet", "loss_streak_bullet"
	case game.Blitz:
		eloField, streakField = "elo_blitz", "loss_streak_blitz"
	}

	inc := bson.M{"games_played": 1}
	switch {
	case r.Drew:
		inc["draws"] = 1
	case r.Won:
		inc["wins"] = 1
	default:
		inc["losses"] = 1
	}

	set := bson.M{
		eloField:             r.NewElo,
		streakField:          r.LossStreak,
		"last_game_ended_at": r.EndedAt,
	}
	if r.CooldownSeconds > 0 {
		set["cooldown_until"] = r.EndedAt.Add(time.Duration(r.CooldownSeconds) * time.Second)
	}
	update := bson.M{"$set": set, "$inc": inc}
	_, err := m.agents().UpdateOne(ctx, bson.M{"_id": r.AgentID}, update)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", r.AgentID, err)
	}
	return nil
}

func (m *Mongo) GameByID(ctx context.Context, id string) (*GameRecord, error) {
	var record GameRecord
	err := m.games().FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (m *Mongo) findGames(ctx context.Context, filter bson.M, limit int) ([]*GameRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.games().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*GameRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) GamesByAgent(ctx context.Context, agentID string, limit int) ([]*GameRecord, error) {
	filter := bson.M{"$or": []bson.M{
		{"white_agent_id": agentID},
		{"black_agent_id": agentID},
	}}
	return m.findGames(ctx, filter, limit)
}

func (m *Mongo) GamesByStatus(ctx context.Context, status string, limit int) ([]*GameRecord, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	return m.findGames(ctx, filter, limit)
}

func (m *Mongo) Leaderboard(ctx context.Context, category game.Category, limit int) ([]*Agent, error) {
	eloField := "elo_rapid"
	switch category {
	case game.Bullet:
		eloField = "elo_bullet"
	case game.Blitz:
		eloField = "elo_blitz"
	}

	opts := options.Find().SetSort(bson.D{{Key: eloField, Value: -1}, {Key: "name", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.agents().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*Agent
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
