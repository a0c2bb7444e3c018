// internal/database/vote_repository.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// VoteDocument is one user's vote on one post or comment. (userId, targetId)
// is covered by a unique index.
type VoteDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	TargetID  string    `bson:"targetId"`
	VoteType  string    `bson:"voteType"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func documentToVote(doc *VoteDocument) (*models.Vote, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid vote ID: %w", err)
	}
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}
	targetID, err := uuid.Parse(doc.TargetID)
	if err != nil {
		return nil, fmt.Errorf("invalid target ID: %w", err)
	}
	return &models.Vote{
		ID:        id,
		UserID:    userID,
		TargetID:  targetID,
		VoteType:  models.VoteType(doc.VoteType),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func voteFilter(userID, targetID uuid.UUID) bson.M {
	return bson.M{"userId": userID.String(), "targetId": targetID.String()}
}

var errVoteChanged = utils.NewConflictError("Your vote changed while this request was in flight.")

func (m *MongoDB) GetVote(ctx context.Context, userID, targetID uuid.UUID) (*models.Vote, error) {
	var vote *models.Vote
	err := m.guard.do(ctx, "get vote", func(ctx context.Context) error {
		var doc VoteDocument
		err := m.Votes.FindOne(ctx, voteFilter(userID, targetID)).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return utils.NewNotFoundError("Vote not found.")
		}
		if err != nil {
			return err
		}
		vote, err = documentToVote(&doc)
		return err
	})
	return vote, err
}

func (m *MongoDB) InsertVote(ctx context.Context, vote *models.Vote) error {
	return m.guard.do(ctx, "insert vote", func(ctx context.Context) error {
		_, err := m.Votes.InsertOne(ctx, VoteDocument{
			ID:        vote.ID.String(),
			UserID:    vote.UserID.String(),
			TargetID:  vote.TargetID.String(),
			VoteType:  string(vote.VoteType),
			CreatedAt: vote.CreatedAt,
			UpdatedAt: vote.UpdatedAt,
		})
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewConflictError("You have already voted on this item.")
		}
		return err
	})
}

func (m *MongoDB) UpdateVoteType(ctx context.Context, userID, targetID uuid.UUID, from, to models.VoteType, at time.Time) error {
	return m.guard.do(ctx, "update vote", func(ctx context.Context) error {
		filter := voteFilter(userID, targetID)
		filter["voteType"] = string(from)
		res, err := m.Votes.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"voteType": string(to), "updatedAt": at}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return errVoteChanged
		}
		return nil
	})
}

func (m *MongoDB) DeleteVote(ctx context.Context, userID, targetID uuid.UUID, voteType models.VoteType) error {
	return m.guard.do(ctx, "delete vote", func(ctx context.Context) error {
		filter := voteFilter(userID, targetID)
		filter["voteType"] = string(voteType)
		res, err := m.Votes.DeleteOne(ctx, filter)
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return errVoteChanged
		}
		return nil
	})
}

func (m *MongoDB) DeleteVotesForTargets(ctx context.Context, targetIDs []uuid.UUID) (int64, error) {
	if len(targetIDs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(targetIDs))
	for i, id := range targetIDs {
		ids[i] = id.String()
	}
	var n int64
	err := m.guard.do(ctx, "delete votes", func(ctx context.Context) error {
		res, err := m.Votes.DeleteMany(ctx, bson.M{"targetId": bson.M{"$in": ids}})
		if err != nil {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}

func (m *MongoDB) CountVotes(ctx context.Context, targetID uuid.UUID) (int64, int64, error) {
	var up, down int64
	err := m.guard.do(ctx, "count votes", func(ctx context.Context) error {
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"targetId": targetID.String()}}},
			{{Key: "$group", Value: bson.M{"_id": "$voteType", "n": bson.M{"$sum": 1}}}},
		}
		cursor, err := m.Votes.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		var rows []struct {
			VoteType string `bson:"_id"`
			N        int64  `bson:"n"`
		}
		if err := cursor.All(ctx, &rows); err != nil {
			return err
		}
		up, down = 0, 0
		for _, r := range rows {
			switch models.VoteType(r.VoteType) {
			case models.Upvote:
				up = r.N
			case models.Downvote:
				down = r.N
			}
		}
		return nil
	})
	return up, down, err
}
