package forum

import (
	"context"
	"time"

	"kick-haven/internal/database"
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
)

// VoteStore keeps at most one vote per (voter, target) and decides the
// toggle: insert, retract or switch.
type VoteStore struct {
	votes database.VoteRepository
	now   func() time.Time
}

func NewVoteStore(votes database.VoteRepository) *VoteStore {
	return &VoteStore{votes: votes, now: func() time.Time { return time.Now().UTC() }}
}

// ApplyVote applies requested for voterID on targetID and reports the prior
// and resulting vote type. The caller has already checked that the target
// exists and is not locked.
//
// A duplicate insert, or a vote that changed between the read and the write,
// is reported as Conflict.
func (s *VoteStore) ApplyVote(ctx context.Context, voterID, targetID uuid.UUID, requested models.VoteType) (models.VoteTransition, error) {
	if _, ok := models.ParseVoteType(string(requested)); !ok {
		return models.VoteTransition{}, utils.NewInvalidArgumentError(msgInvalidVoteType)
	}

	existing, err := s.votes.GetVote(ctx, voterID, targetID)
	if err != nil && !utils.IsErrorCode(err, utils.ErrNotFound) {
		return models.VoteTransition{}, err
	}

	now := s.now()
	switch {
	case existing == nil:
		err = s.votes.InsertVote(ctx, &models.Vote{
			ID:        uuid.New(),
			UserID:    voterID,
			TargetID:  targetID,
			VoteType:  requested,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return models.VoteTransition{}, err
		}
		return models.VoteTransition{Previous: nil, New: typePtr(requested)}, nil

	case existing.VoteType == requested:
		if err := s.votes.DeleteVote(ctx, voterID, targetID, requested); err != nil {
			return models.VoteTransition{}, err
		}
		return models.VoteTransition{Previous: typePtr(requested), New: nil}, nil

	default:
		previous := existing.VoteType
		if err := s.votes.UpdateVoteType(ctx, voterID, targetID, previous, requested, now); err != nil {
			return models.VoteTransition{}, err
		}
		return models.VoteTransition{Previous: typePtr(previous), New: typePtr(requested)}, nil
	}
}

// Revert undoes t. Used to compensate when the counter write fails on a
// store without transactions.
func (s *VoteStore) Revert(ctx context.Context, voterID, targetID uuid.UUID, t models.VoteTransition) error {
	switch t.Action() {
	case "insert":
		return s.votes.DeleteVote(ctx, voterID, targetID, *t.New)
	case "retract":
		now := s.now()
		return s.votes.InsertVote(ctx, &models.Vote{
			ID:        uuid.New(),
			UserID:    voterID,
			TargetID:  targetID,
			VoteType:  *t.Previous,
			CreatedAt: now,
			UpdatedAt: now,
		})
	case "switch":
		return s.votes.UpdateVoteType(ctx, voterID, targetID, *t.New, *t.Previous, s.now())
	}
	return nil
}

func typePtr(t models.VoteType) *models.VoteType {
	return &t
}
