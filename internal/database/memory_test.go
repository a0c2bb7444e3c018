package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRootPost(author uuid.UUID, created time.Time) *models.Content {
	return &models.Content{
		ID:         uuid.New(),
		IsRoot:     true,
		AuthorID:   author,
		AuthorName: "drummer",
		CategoryID: "jazz",
		Title:      "Favourite ride cymbals",
		Body:       "Go.",
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestMemoryVoteUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, target := uuid.New(), uuid.New()

	now := time.Now()
	require.NoError(t, store.InsertVote(ctx, &models.Vote{ID: uuid.New(), UserID: user, TargetID: target, VoteType: models.Upvote, CreatedAt: now, UpdatedAt: now}))
	err := store.InsertVote(ctx, &models.Vote{ID: uuid.New(), UserID: user, TargetID: target, VoteType: models.Downvote, CreatedAt: now, UpdatedAt: now})
	assert.True(t, utils.IsErrorCode(err, utils.ErrConflict))

	// conditional writes refuse a stale type
	err = store.UpdateVoteType(ctx, user, target, models.Downvote, models.Upvote, now)
	assert.True(t, utils.IsErrorCode(err, utils.ErrConflict))
	err = store.DeleteVote(ctx, user, target, models.Downvote)
	assert.True(t, utils.IsErrorCode(err, utils.ErrConflict))

	require.NoError(t, store.UpdateVoteType(ctx, user, target, models.Upvote, models.Downvote, now))
	up, down, err := store.CountVotes(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(0), up)
	assert.Equal(t, int64(1), down)

	require.NoError(t, store.DeleteVote(ctx, user, target, models.Downvote))
	_, err = store.GetVote(ctx, user, target)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestMemoryCounterDeltaClampsAtZero(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	post := newRootPost(uuid.New(), time.Now())
	require.NoError(t, store.InsertContent(ctx, post))

	counters, err := store.ApplyCounterDelta(ctx, post.ID, models.CounterDelta{Upvotes: 1})
	require.NoError(t, err)
	assert.Equal(t, models.Counters{Upvotes: 1}, counters)

	counters, err = store.ApplyCounterDelta(ctx, post.ID, models.CounterDelta{Upvotes: -1, Downvotes: -1, CommentCount: -3})
	require.NoError(t, err)
	assert.Equal(t, models.Counters{}, counters)

	_, err = store.ApplyCounterDelta(ctx, uuid.New(), models.CounterDelta{Upvotes: 1})
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestMemoryRunInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	post := newRootPost(uuid.New(), time.Now())
	require.NoError(t, store.InsertContent(ctx, post))

	boom := errors.New("counter write failed")
	err := store.RunInTx(ctx, func(ctx context.Context) error {
		now := time.Now()
		require.NoError(t, store.InsertVote(ctx, &models.Vote{ID: uuid.New(), UserID: uuid.New(), TargetID: post.ID, VoteType: models.Upvote, CreatedAt: now, UpdatedAt: now}))
		_, err := store.ApplyCounterDelta(ctx, post.ID, models.CounterDelta{Upvotes: 1})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	up, down, err := store.CountVotes(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, up+down)
	got, err := store.GetContent(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Upvotes)
}

func TestMemoryNestedRunInTxDoesNotDeadlock(t *testing.T) {
	store := NewMemoryStore()
	done := make(chan error, 1)
	go func() {
		done <- store.RunInTx(context.Background(), func(ctx context.Context) error {
			return store.RunInTx(ctx, func(ctx context.Context) error { return nil })
		})
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("nested RunInTx blocked")
	}
}

func TestMemoryListingsAndCascade(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	author := uuid.New()
	base := time.Now().Add(-time.Hour)

	post := newRootPost(author, base)
	require.NoError(t, store.InsertContent(ctx, post))
	for i := 0; i < 7; i++ {
		parent := post.ID
		require.NoError(t, store.InsertContent(ctx, &models.Content{
			ID:        uuid.New(),
			ParentID:  &parent,
			AuthorID:  uuid.New(),
			Title:     "Re: " + post.Title,
			Body:      "reply",
			CreatedAt: base.Add(time.Duration(i+1) * time.Minute),
		}))
	}

	page, total, err := store.ListComments(ctx, post.ID, models.Page{Number: 2, Limit: 5, Sort: models.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.Before(page[1].CreatedAt))

	desc, _, err := store.ListComments(ctx, post.ID, models.Page{Number: 1, Limit: 5, Sort: models.SortDesc})
	require.NoError(t, err)
	assert.True(t, desc[0].CreatedAt.After(desc[4].CreatedAt))

	sticky := newRootPost(author, base.Add(-time.Hour))
	sticky.Sticky = true
	require.NoError(t, store.InsertContent(ctx, sticky))
	posts, total, err := store.ListPostsByAuthor(ctx, author, models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, sticky.ID, posts[0].ID)

	deleted, err := store.DeleteComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, deleted, 7)
	n, err := store.CountComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryUserUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.InsertUser(ctx, &models.User{ID: uuid.New(), Username: "Bassline", Email: "bass@kickhaven.fm"}))

	err := store.InsertUser(ctx, &models.User{ID: uuid.New(), Username: "bassline", Email: "other@kickhaven.fm"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrConflict))
	err = store.InsertUser(ctx, &models.User{ID: uuid.New(), Username: "treble", Email: "BASS@kickhaven.fm"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrConflict))
}

func TestMemoryListPostsByCategory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().Add(-time.Hour)

	older := newRootPost(uuid.New(), base)
	newer := newRootPost(uuid.New(), base.Add(time.Minute))
	sticky := newRootPost(uuid.New(), base.Add(-time.Hour))
	sticky.Sticky = true
	rock := newRootPost(uuid.New(), base.Add(2*time.Minute))
	rock.CategoryID = "rock"
	for _, p := range []*models.Content{older, newer, sticky, rock} {
		require.NoError(t, store.InsertContent(ctx, p))
	}
	parent := newer.ID
	require.NoError(t, store.InsertContent(ctx, &models.Content{
		ID: uuid.New(), ParentID: &parent, AuthorID: uuid.New(), CategoryID: "jazz", Body: "reply", CreatedAt: base.Add(3 * time.Minute),
	}))

	posts, total, err := store.ListPostsByCategory(ctx, "jazz", models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "comments are not listed")
	require.Len(t, posts, 3)
	assert.Equal(t, sticky.ID, posts[0].ID)
	assert.Equal(t, newer.ID, posts[1].ID)
	assert.Equal(t, older.ID, posts[2].ID)

	second, _, err := store.ListPostsByCategory(ctx, "jazz", models.Page{Number: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, older.ID, second[0].ID)

	none, total, err := store.ListPostsByCategory(ctx, "polka", models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}
