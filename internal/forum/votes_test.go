package forum

import (
	"context"
	"testing"
	"time"

	"kick-haven/internal/database"
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaFor(t *testing.T) {
	up, down := typePtr(models.Upvote), typePtr(models.Downvote)
	cases := []struct {
		name string
		t    models.VoteTransition
		want models.CounterDelta
	}{
		{"insert up", models.VoteTransition{New: up}, models.CounterDelta{Upvotes: 1}},
		{"insert down", models.VoteTransition{New: down}, models.CounterDelta{Downvotes: 1}},
		{"retract up", models.VoteTransition{Previous: up}, models.CounterDelta{Upvotes: -1}},
		{"retract down", models.VoteTransition{Previous: down}, models.CounterDelta{Downvotes: -1}},
		{"up to down", models.VoteTransition{Previous: up, New: down}, models.CounterDelta{Upvotes: -1, Downvotes: 1}},
		{"down to up", models.VoteTransition{Previous: down, New: up}, models.CounterDelta{Upvotes: 1, Downvotes: -1}},
		{"none", models.VoteTransition{}, models.CounterDelta{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeltaFor(tc.t))
		})
	}
}

func TestApplyVoteTransitions(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	votes := NewVoteStore(store)
	voter, target := uuid.New(), uuid.New()

	tr, err := votes.ApplyVote(ctx, voter, target, models.Upvote)
	require.NoError(t, err)
	assert.Equal(t, "insert", tr.Action())

	tr, err = votes.ApplyVote(ctx, voter, target, models.Downvote)
	require.NoError(t, err)
	assert.Equal(t, "switch", tr.Action())
	assert.Equal(t, models.Upvote, *tr.Previous)

	tr, err = votes.ApplyVote(ctx, voter, target, models.Downvote)
	require.NoError(t, err)
	assert.Equal(t, "retract", tr.Action())
	assert.Nil(t, tr.New)

	_, err = votes.ApplyVote(ctx, voter, target, models.VoteType("meh"))
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidArgument))
}

func TestRevertUndoesEachTransition(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	votes := NewVoteStore(store)
	voter, target := uuid.New(), uuid.New()

	tr, err := votes.ApplyVote(ctx, voter, target, models.Upvote)
	require.NoError(t, err)
	require.NoError(t, votes.Revert(ctx, voter, target, tr))
	_, err = store.GetVote(ctx, voter, target)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))

	_, err = votes.ApplyVote(ctx, voter, target, models.Upvote)
	require.NoError(t, err)
	tr, err = votes.ApplyVote(ctx, voter, target, models.Downvote)
	require.NoError(t, err)
	require.NoError(t, votes.Revert(ctx, voter, target, tr))
	v, err := store.GetVote(ctx, voter, target)
	require.NoError(t, err)
	assert.Equal(t, models.Upvote, v.VoteType)

	tr, err = votes.ApplyVote(ctx, voter, target, models.Upvote)
	require.NoError(t, err)
	require.NoError(t, votes.Revert(ctx, voter, target, tr))
	v, err = store.GetVote(ctx, voter, target)
	require.NoError(t, err)
	assert.Equal(t, models.Upvote, v.VoteType)
}

func TestNewCommentFallsBackOnBlankTitle(t *testing.T) {
	parent := &models.Content{ID: uuid.New(), IsRoot: true, CategoryID: "blues", Title: "  "}
	author := &models.User{ID: uuid.New(), Username: "bb"}
	c := NewComment(parent, author, "thrill", time.Now())
	assert.Equal(t, "Re: Original Post", c.Title)
	assert.Equal(t, "blues", c.CategoryID)
	assert.Equal(t, "bb", c.AuthorName)
}

func TestOnCommentDeletedFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	post := &models.Content{ID: uuid.New(), IsRoot: true, Title: "t", CreatedAt: time.Now()}
	require.NoError(t, store.InsertContent(ctx, post))

	threads := NewCommentThreadMaintainer(store)
	n, err := threads.OnCommentDeleted(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = threads.OnCommentCreated(ctx, uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}
