package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kick-haven/internal/config"
	"kick-haven/internal/models"

	"github.com/google/uuid"
)

// ContentRepository persists posts and comments.
type ContentRepository interface {
	InsertContent(ctx context.Context, content *models.Content) error
	GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error)
	// LockContent reads a record and, inside a transaction, holds it against
	// concurrent writers until commit where the backend supports row locks.
	LockContent(ctx context.Context, id uuid.UUID) (*models.Content, error)
	UpdateContentText(ctx context.Context, id uuid.UUID, title, body string, at time.Time) (*models.Content, error)
	SetContentFlags(ctx context.Context, id uuid.UUID, locked, sticky *bool) (*models.Content, error)
	DeleteContent(ctx context.Context, id uuid.UUID) error
	// DeleteComments removes every comment under parentID and returns their ids.
	DeleteComments(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error)
	ListComments(ctx context.Context, parentID uuid.UUID, page models.Page) ([]*models.Content, int64, error)
	// ListPostsByAuthor lists root posts, sticky ones first, newest first.
	ListPostsByAuthor(ctx context.Context, authorID uuid.UUID, page models.Page) ([]*models.Content, int64, error)
	// ListPostsByCategory lists a category's root posts in the same order.
	ListPostsByCategory(ctx context.Context, categoryID string, page models.Page) ([]*models.Content, int64, error)
	CountComments(ctx context.Context, parentID uuid.UUID) (int64, error)

	// ApplyCounterDelta increments the counters of one record in a single
	// write, clamping each at zero, and returns the values after the write.
	ApplyCounterDelta(ctx context.Context, id uuid.UUID, delta models.CounterDelta) (models.Counters, error)
	SetCounters(ctx context.Context, id uuid.UUID, counters models.Counters) error
}

// VoteRepository persists votes. (UserID, TargetID) is unique.
type VoteRepository interface {
	GetVote(ctx context.Context, userID, targetID uuid.UUID) (*models.Vote, error)
	InsertVote(ctx context.Context, vote *models.Vote) error
	// UpdateVoteType switches a vote only if it still has type from.
	UpdateVoteType(ctx context.Context, userID, targetID uuid.UUID, from, to models.VoteType, at time.Time) error
	// DeleteVote removes a vote only if it still has type voteType.
	DeleteVote(ctx context.Context, userID, targetID uuid.UUID, voteType models.VoteType) error
	DeleteVotesForTargets(ctx context.Context, targetIDs []uuid.UUID) (int64, error)
	CountVotes(ctx context.Context, targetID uuid.UUID) (upvotes, downvotes int64, err error)
}

// UserRepository persists user accounts and profiles.
type UserRepository interface {
	InsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, profile models.Profile) (*models.User, error)
	UpdateSignature(ctx context.Context, id uuid.UUID, signature string) (*models.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error
}

// Store is the connection-pool resource injected into the service layer.
// Errors are *utils.AppError: NotFound, Conflict, or ServiceUnavailable for
// storage failures and timeouts.
type Store interface {
	ContentRepository
	VoteRepository
	UserRepository

	// RunInTx runs fn as one unit. Calls made with the ctx passed to fn join
	// the unit. Nested calls reuse the outer unit.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	// Transactional reports whether RunInTx rolls back on error.
	Transactional() bool

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	_ Store = (*MongoDB)(nil)
	_ Store = (*PostgresDB)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open picks the backend from the URI scheme.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	uri := cfg.URI
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		db, err := NewMongoDB(ctx, uri, cfg.Name, cfg.Transactions, cfg.OpTimeout)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		db, err := NewPostgresDB(uri, cfg.OpTimeout)
		if err != nil {
			return nil, err
		}
		if err := db.InitializeTables(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case strings.HasPrefix(uri, "memory://"):
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database uri scheme: %q", uri)
	}
}
