package models

import (
	"time"

	"github.com/google/uuid"
)

// VoteType is the direction of a vote.
type VoteType string

const (
	Upvote   VoteType = "upvote"
	Downvote VoteType = "downvote"
)

// ParseVoteType accepts exactly "upvote" or "downvote".
func ParseVoteType(s string) (VoteType, bool) {
	switch VoteType(s) {
	case Upvote, Downvote:
		return VoteType(s), true
	}
	return "", false
}

// Vote is the single vote a user holds on a piece of content.
type Vote struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	TargetID  uuid.UUID `json:"targetId" db:"target_id"`
	VoteType  VoteType  `json:"voteType" db:"vote_type"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// VoteTransition is the outcome of applying a vote action. A nil type means
// no vote.
type VoteTransition struct {
	Previous *VoteType
	New      *VoteType
}

// Action names the transition: insert, retract, switch or none.
func (t VoteTransition) Action() string {
	switch {
	case t.Previous == nil && t.New != nil:
		return "insert"
	case t.Previous != nil && t.New == nil:
		return "retract"
	case t.Previous != nil && t.New != nil && *t.Previous != *t.New:
		return "switch"
	default:
		return "none"
	}
}

// CounterDelta is the change to a content record's vote tallies.
type CounterDelta struct {
	Upvotes      int64
	Downvotes    int64
	CommentCount int64
}

// IsZero reports whether applying d would change nothing.
func (d CounterDelta) IsZero() bool {
	return d.Upvotes == 0 && d.Downvotes == 0 && d.CommentCount == 0
}
