package forum

import (
	"context"

	"kick-haven/internal/database"
	"kick-haven/internal/models"

	"github.com/google/uuid"
)

// ContentCounterUpdater keeps upvotes and downvotes in step with vote
// transitions.
type ContentCounterUpdater struct {
	contents database.ContentRepository
}

func NewContentCounterUpdater(contents database.ContentRepository) *ContentCounterUpdater {
	return &ContentCounterUpdater{contents: contents}
}

// DeltaFor derives the counter change implied by a transition:
// insert (+1,0)/(0,+1), retract (-1,0)/(0,-1), switch (+1,-1)/(-1,+1).
func DeltaFor(t models.VoteTransition) models.CounterDelta {
	var d models.CounterDelta
	if t.Previous != nil {
		d = addVote(d, *t.Previous, -1)
	}
	if t.New != nil {
		d = addVote(d, *t.New, 1)
	}
	return d
}

func addVote(d models.CounterDelta, vt models.VoteType, n int64) models.CounterDelta {
	switch vt {
	case models.Upvote:
		d.Upvotes += n
	case models.Downvote:
		d.Downvotes += n
	}
	return d
}

// ApplyCounterDelta writes both vote counters of targetID in one atomic
// update, floored at zero, and returns the values after the write.
func (u *ContentCounterUpdater) ApplyCounterDelta(ctx context.Context, targetID uuid.UUID, delta models.CounterDelta) (models.Counters, error) {
	delta.CommentCount = 0
	if delta.IsZero() {
		content, err := u.contents.GetContent(ctx, targetID)
		if err != nil {
			return models.Counters{}, err
		}
		return content.Counters(), nil
	}
	return u.contents.ApplyCounterDelta(ctx, targetID, delta)
}
