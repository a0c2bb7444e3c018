//go:build integration

package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startMongo(t *testing.T) *MongoDB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) }) //nolint:errcheck

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	db, err := NewMongoDB(ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()), "kickhaven_test", false, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) }) //nolint:errcheck
	require.NoError(t, db.EnsureIndexes(ctx))
	return db
}

func TestMongoUniqueVoteIndex(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	user, target := uuid.New(), uuid.New()
	now := time.Now().UTC()

	require.NoError(t, db.InsertVote(ctx, &models.Vote{ID: uuid.New(), UserID: user, TargetID: target, VoteType: models.Upvote, CreatedAt: now, UpdatedAt: now}))
	err := db.InsertVote(ctx, &models.Vote{ID: uuid.New(), UserID: user, TargetID: target, VoteType: models.Upvote, CreatedAt: now, UpdatedAt: now})
	assert.True(t, utils.IsErrorCode(err, utils.ErrConflict))

	up, down, err := db.CountVotes(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(1), up)
	assert.Equal(t, int64(0), down)
}

func TestMongoCounterDeltaClamps(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	post := &models.Content{ID: uuid.New(), IsRoot: true, AuthorID: uuid.New(), AuthorName: "keys", Title: "Rhodes or Wurli", Body: "?", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.InsertContent(ctx, post))

	counters, err := db.ApplyCounterDelta(ctx, post.ID, models.CounterDelta{Upvotes: 1, CommentCount: 2})
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Upvotes: 1, CommentCount: 2}, counters)

	counters, err = db.ApplyCounterDelta(ctx, post.ID, models.CounterDelta{Upvotes: -2, Downvotes: -1})
	require.NoError(t, err)
	assert.Equal(t, models.Counters{CommentCount: 2}, counters)

	_, err = db.GetContent(ctx, uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}
