package forum

import (
	"context"
	"strings"
	"time"

	"kick-haven/internal/database"
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
)

const fallbackParentTitle = "Original Post"

// CommentThreadMaintainer keeps a root post's commentCount equal to the
// number of live comments under it, and derives the fields of new comments.
type CommentThreadMaintainer struct {
	contents database.ContentRepository
}

func NewCommentThreadMaintainer(contents database.ContentRepository) *CommentThreadMaintainer {
	return &CommentThreadMaintainer{contents: contents}
}

// NewComment builds a reply to parent. Title, category, root flag and parent
// are derived from parent, never taken from the request.
func NewComment(parent *models.Content, author *models.User, text string, now time.Time) *models.Content {
	title := strings.TrimSpace(parent.Title)
	if title == "" {
		title = fallbackParentTitle
	}
	parentID := parent.ID
	return &models.Content{
		ID:         uuid.New(),
		IsRoot:     false,
		ParentID:   &parentID,
		AuthorID:   author.ID,
		AuthorName: author.Username,
		CategoryID: parent.CategoryID,
		Title:      "Re: " + title,
		Body:       text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// OnCommentCreated increments the parent's commentCount. Call it after the
// comment insert.
func (m *CommentThreadMaintainer) OnCommentCreated(ctx context.Context, parentID uuid.UUID) (int64, error) {
	return m.step(ctx, parentID, 1)
}

// OnCommentDeleted decrements the parent's commentCount, never below zero.
// Call it after the comment delete.
func (m *CommentThreadMaintainer) OnCommentDeleted(ctx context.Context, parentID uuid.UUID) (int64, error) {
	return m.step(ctx, parentID, -1)
}

func (m *CommentThreadMaintainer) step(ctx context.Context, parentID uuid.UUID, n int64) (int64, error) {
	counters, err := m.contents.ApplyCounterDelta(ctx, parentID, models.CounterDelta{CommentCount: n})
	if err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return 0, err
		}
		return 0, utils.NewUnavailableError("update comment count", err)
	}
	return counters.CommentCount, nil
}
