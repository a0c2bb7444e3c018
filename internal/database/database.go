// internal/database/database.go
package database

import (
	"context"
	"fmt"
	"time"

	"kick-haven/internal/logging"
	"kick-haven/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB holds the client pool and the collections. Posts and comments share
// the contents collection.
type MongoDB struct {
	Client   *mongo.Client
	Contents *mongo.Collection
	Votes    *mongo.Collection
	Users    *mongo.Collection

	transactions bool
	guard        *guard
}

// NewMongoDB connects and pings. transactions enables multi-document
// transactions in RunInTx, which needs a replica set or sharded cluster.
func NewMongoDB(ctx context.Context, uri, dbName string, transactions bool, opTimeout time.Duration) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logging.Info().Str("database", dbName).Bool("transactions", transactions).Msg("Connected to MongoDB")

	db := client.Database(dbName)
	return &MongoDB{
		Client:       client,
		Contents:     db.Collection("contents"),
		Votes:        db.Collection("votes"),
		Users:        db.Collection("users"),
		transactions: transactions,
		guard:        newGuard("mongodb", opTimeout),
	}, nil
}

// EnsureIndexes creates the indexes the invariants rely on. The unique
// (userId, targetId) index is what turns a double vote into a Conflict.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	voteIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "targetId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_user_target"),
		},
		{
			Keys: bson.D{{Key: "targetId", Value: 1}, {Key: "voteType", Value: 1}},
		},
	}
	if _, err := m.Votes.Indexes().CreateMany(ctx, voteIndexes); err != nil {
		return fmt.Errorf("failed to create vote indexes: %w", err)
	}

	contentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "parentId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "isRoot", Value: 1}, {Key: "sticky", Value: -1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "categoryId", Value: 1}, {Key: "isRoot", Value: 1}, {Key: "sticky", Value: -1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := m.Contents.Indexes().CreateMany(ctx, contentIndexes); err != nil {
		return fmt.Errorf("failed to create content indexes: %w", err)
	}

	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "usernameLower", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_username"),
		},
		{
			Keys:    bson.D{{Key: "emailLower", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
	}
	if _, err := m.Users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a session transaction when transactions are enabled.
// WithTransaction retries fn on transient transaction errors such as write
// conflicts between two votes on the same target.
func (m *MongoDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := m.Client.StartSession()
	if err != nil {
		return utils.NewUnavailableError("start session", err)
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return classify("transaction", err)
}

func (m *MongoDB) Transactional() bool {
	return m.transactions
}

func (m *MongoDB) Ping(ctx context.Context) error {
	return m.guard.do(ctx, "ping", func(ctx context.Context) error {
		return m.Client.Ping(ctx, nil)
	})
}

func (m *MongoDB) Close(ctx context.Context) error {
	logging.Info().Msg("Closing MongoDB connection")
	return m.Client.Disconnect(ctx)
}
