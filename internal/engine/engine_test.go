package engine

import (
	"context"
	"testing"
	"time"

	"kick-haven/internal/database"
	"kick-haven/internal/forum"
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineRepairsDirtyTargets(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	post := &models.Content{ID: uuid.New(), IsRoot: true, Title: "Riffs", CategoryID: "metal", CreatedAt: time.Now()}
	require.NoError(t, store.InsertContent(ctx, post))
	require.NoError(t, store.SetCounters(ctx, post.ID, models.Counters{Upvotes: 4, CommentCount: 2}))

	eng := NewEngine(actor.NewActorSystem(), forum.NewCounterAuditor(store, utils.NewMetricsCollector()), 20*time.Millisecond, time.Second)
	eng.Start()
	defer eng.Stop()

	eng.MarkDirty(post.ID)
	require.Eventually(t, func() bool {
		c, err := store.GetContent(ctx, post.ID)
		return err == nil && c.Counters() == models.Counters{}
	}, 2*time.Second, 10*time.Millisecond)

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.GreaterOrEqual(t, stats.Repaired, int64(1))
}

func TestEngineReconcileOnDemand(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	eng := NewEngine(actor.NewActorSystem(), forum.NewCounterAuditor(store, nil), 0, time.Second)
	defer eng.Stop()

	_, err := eng.Reconcile(ctx, uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))

	post := &models.Content{ID: uuid.New(), IsRoot: true, Title: "Hooks", CreatedAt: time.Now()}
	require.NoError(t, store.InsertContent(ctx, post))
	result, err := eng.Reconcile(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, result.Repaired)
}
