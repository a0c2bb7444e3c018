// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kick-haven/internal/logging"
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresDB represents a PostgreSQL connection pool.
type PostgresDB struct {
	DB    *sqlx.DB
	guard *guard
}

type pgTxKey struct{}

// NewPostgresDB creates a new PostgreSQL connection pool and pings it.
func NewPostgresDB(connectionString string, opTimeout time.Duration) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logging.Info().Msg("Connected to PostgreSQL")

	return &PostgresDB{DB: db, guard: newGuard("postgres", opTimeout)}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	logging.Info().Msg("Closing PostgreSQL connection")
	return p.DB.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.guard.do(ctx, "ping", func(ctx context.Context) error {
		return p.DB.PingContext(ctx)
	})
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	statements := []struct {
		name string
		ddl  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY,
				username VARCHAR(50) NOT NULL,
				email VARCHAR(254) NOT NULL,
				password_hash VARCHAR(100) NOT NULL,
				bio TEXT NOT NULL DEFAULT '',
				location VARCHAR(100) NOT NULL DEFAULT '',
				birthdate TIMESTAMP WITH TIME ZONE,
				signature TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"users_username_key", `CREATE UNIQUE INDEX IF NOT EXISTS users_username_key ON users (LOWER(username))`},
		{"users_email_key", `CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (LOWER(email))`},
		{"contents", `
			CREATE TABLE IF NOT EXISTS contents (
				id UUID PRIMARY KEY,
				is_root BOOLEAN NOT NULL,
				parent_id UUID,
				author_id UUID NOT NULL,
				author_name VARCHAR(50) NOT NULL,
				category_id VARCHAR(64) NOT NULL DEFAULT '',
				title VARCHAR(300) NOT NULL,
				body TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				upvotes BIGINT NOT NULL DEFAULT 0 CHECK (upvotes >= 0),
				downvotes BIGINT NOT NULL DEFAULT 0 CHECK (downvotes >= 0),
				comment_count BIGINT NOT NULL DEFAULT 0 CHECK (comment_count >= 0),
				locked BOOLEAN NOT NULL DEFAULT FALSE,
				sticky BOOLEAN NOT NULL DEFAULT FALSE
			)`},
		{"contents_parent_idx", `CREATE INDEX IF NOT EXISTS contents_parent_idx ON contents (parent_id, created_at)`},
		{"contents_author_idx", `CREATE INDEX IF NOT EXISTS contents_author_idx ON contents (author_id, is_root, sticky DESC, created_at DESC)`},
		{"contents_category_idx", `CREATE INDEX IF NOT EXISTS contents_category_idx ON contents (category_id, is_root, sticky DESC, created_at DESC)`},
		{"votes", `
			CREATE TABLE IF NOT EXISTS votes (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL,
				target_id UUID NOT NULL,
				vote_type VARCHAR(10) NOT NULL CHECK (vote_type IN ('upvote', 'downvote')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				CONSTRAINT votes_user_target_key UNIQUE (user_id, target_id)
			)`},
		{"votes_target_idx", `CREATE INDEX IF NOT EXISTS votes_target_idx ON votes (target_id, vote_type)`},
	}

	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	logging.Info().Msg("PostgreSQL tables initialized")
	return nil
}

// q returns the transaction carried by ctx, or the pool.
func (p *PostgresDB) q(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(pgTxKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return p.DB
}

func (p *PostgresDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewUnavailableError("begin transaction", err)
	}
	defer tx.Rollback() // Rollback is ignored if tx is committed.

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return classify("transaction", err)
	}
	if err := tx.Commit(); err != nil {
		return utils.NewUnavailableError("commit transaction", err)
	}
	return nil
}

func (p *PostgresDB) Transactional() bool { return true }

func isUniqueViolation(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr, true
	}
	return nil, false
}

func pgNotFound(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return utils.NewNotFoundError(message)
	}
	return err
}

const contentColumns = `id, is_root, parent_id, author_id, author_name, category_id, title, body,
	created_at, updated_at, upvotes, downvotes, comment_count, locked, sticky`

// Content

func (p *PostgresDB) InsertContent(ctx context.Context, c *models.Content) error {
	return p.guard.do(ctx, "insert content", func(ctx context.Context) error {
		_, err := sqlx.NamedExecContext(ctx, p.q(ctx), `
			INSERT INTO contents (`+contentColumns+`)
			VALUES (:id, :is_root, :parent_id, :author_id, :author_name, :category_id, :title, :body,
				:created_at, :updated_at, :upvotes, :downvotes, :comment_count, :locked, :sticky)`, c)
		if _, dup := isUniqueViolation(err); dup {
			return utils.NewConflictError("Content already exists.")
		}
		return err
	})
}

func (p *PostgresDB) getContent(ctx context.Context, op string, id uuid.UUID, forUpdate bool) (*models.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var c models.Content
	err := p.guard.do(ctx, op, func(ctx context.Context) error {
		return pgNotFound(sqlx.GetContext(ctx, p.q(ctx), &c, query, id), "Target not found.")
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresDB) GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	return p.getContent(ctx, "get content", id, false)
}

// LockContent takes a row lock when called inside RunInTx, serialising
// concurrent votes and comments on the same target.
func (p *PostgresDB) LockContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	_, inTx := ctx.Value(pgTxKey{}).(*sqlx.Tx)
	return p.getContent(ctx, "lock content", id, inTx)
}

func (p *PostgresDB) updateContent(ctx context.Context, op, set string, args ...interface{}) (*models.Content, error) {
	var c models.Content
	err := p.guard.do(ctx, op, func(ctx context.Context) error {
		query := `UPDATE contents SET ` + set + ` WHERE id = $1 RETURNING ` + contentColumns
		return pgNotFound(sqlx.GetContext(ctx, p.q(ctx), &c, query, args...), "Target not found.")
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresDB) UpdateContentText(ctx context.Context, id uuid.UUID, title, body string, at time.Time) (*models.Content, error) {
	return p.updateContent(ctx, "update content", `title = $2, body = $3, updated_at = $4`, id, title, body, at)
}

func (p *PostgresDB) SetContentFlags(ctx context.Context, id uuid.UUID, locked, sticky *bool) (*models.Content, error) {
	return p.updateContent(ctx, "set content flags",
		`locked = COALESCE($2, locked), sticky = COALESCE($3, sticky)`,
		id, nullBool(locked), nullBool(sticky))
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func (p *PostgresDB) DeleteContent(ctx context.Context, id uuid.UUID) error {
	return p.guard.do(ctx, "delete content", func(ctx context.Context) error {
		res, err := p.q(ctx).ExecContext(ctx, `DELETE FROM contents WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return utils.NewNotFoundError("Target not found.")
		}
		return nil
	})
}

func (p *PostgresDB) DeleteComments(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.guard.do(ctx, "delete comments", func(ctx context.Context) error {
		return sqlx.SelectContext(ctx, p.q(ctx), &ids,
			`DELETE FROM contents WHERE parent_id = $1 RETURNING id`, parentID)
	})
	return ids, err
}

func (p *PostgresDB) listContents(ctx context.Context, op, where, order string, page models.Page, args ...interface{}) ([]*models.Content, int64, error) {
	var (
		contents []*models.Content
		total    int64
	)
	err := p.guard.do(ctx, op, func(ctx context.Context) error {
		if err := sqlx.GetContext(ctx, p.q(ctx), &total, `SELECT COUNT(*) FROM contents WHERE `+where, args...); err != nil {
			return err
		}
		limit := "ALL"
		if page.Limit > 0 {
			limit = fmt.Sprint(page.Limit)
		}
		query := fmt.Sprintf(`SELECT %s FROM contents WHERE %s ORDER BY %s LIMIT %s OFFSET %d`,
			contentColumns, where, order, limit, page.Offset())
		contents = []*models.Content{}
		return sqlx.SelectContext(ctx, p.q(ctx), &contents, query, args...)
	})
	return contents, total, err
}

func (p *PostgresDB) ListComments(ctx context.Context, parentID uuid.UUID, page models.Page) ([]*models.Content, int64, error) {
	order := `created_at ASC, id ASC`
	if page.Sort == models.SortDesc {
		order = `created_at DESC, id DESC`
	}
	return p.listContents(ctx, "list comments", `parent_id = $1`, order, page, parentID)
}

func (p *PostgresDB) ListPostsByAuthor(ctx context.Context, authorID uuid.UUID, page models.Page) ([]*models.Content, int64, error) {
	return p.listContents(ctx, "list posts by author", `author_id = $1 AND is_root`,
		`sticky DESC, created_at DESC`, page, authorID)
}

func (p *PostgresDB) ListPostsByCategory(ctx context.Context, categoryID string, page models.Page) ([]*models.Content, int64, error) {
	return p.listContents(ctx, "list posts by category", `category_id = $1 AND is_root`,
		`sticky DESC, created_at DESC`, page, categoryID)
}

func (p *PostgresDB) CountComments(ctx context.Context, parentID uuid.UUID) (int64, error) {
	var n int64
	err := p.guard.do(ctx, "count comments", func(ctx context.Context) error {
		return sqlx.GetContext(ctx, p.q(ctx), &n, `SELECT COUNT(*) FROM contents WHERE parent_id = $1`, parentID)
	})
	return n, err
}

func (p *PostgresDB) ApplyCounterDelta(ctx context.Context, id uuid.UUID, delta models.CounterDelta) (models.Counters, error) {
	var counters models.Counters
	err := p.guard.do(ctx, "apply counter delta", func(ctx context.Context) error {
		return pgNotFound(sqlx.GetContext(ctx, p.q(ctx), &counters, `
			UPDATE contents SET
				upvotes = GREATEST(upvotes + $2, 0),
				downvotes = GREATEST(downvotes + $3, 0),
				comment_count = GREATEST(comment_count + $4, 0)
			WHERE id = $1
			RETURNING upvotes, downvotes, comment_count`,
			id, delta.Upvotes, delta.Downvotes, delta.CommentCount), "Target not found.")
	})
	return counters, err
}

func (p *PostgresDB) SetCounters(ctx context.Context, id uuid.UUID, counters models.Counters) error {
	_, err := p.updateContent(ctx, "set counters", `upvotes = $2, downvotes = $3, comment_count = $4`,
		id, counters.Upvotes, counters.Downvotes, counters.CommentCount)
	return err
}

// Votes

const voteColumns = `id, user_id, target_id, vote_type, created_at, updated_at`

func (p *PostgresDB) GetVote(ctx context.Context, userID, targetID uuid.UUID) (*models.Vote, error) {
	var v models.Vote
	err := p.guard.do(ctx, "get vote", func(ctx context.Context) error {
		return pgNotFound(sqlx.GetContext(ctx, p.q(ctx), &v,
			`SELECT `+voteColumns+` FROM votes WHERE user_id = $1 AND target_id = $2`, userID, targetID), "Vote not found.")
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (p *PostgresDB) InsertVote(ctx context.Context, vote *models.Vote) error {
	return p.guard.do(ctx, "insert vote", func(ctx context.Context) error {
		_, err := sqlx.NamedExecContext(ctx, p.q(ctx),
			`INSERT INTO votes (`+voteColumns+`) VALUES (:id, :user_id, :target_id, :vote_type, :created_at, :updated_at)`, vote)
		if _, dup := isUniqueViolation(err); dup {
			return utils.NewConflictError("You have already voted on this item.")
		}
		return err
	})
}

func (p *PostgresDB) execExpectingRow(ctx context.Context, op, query string, args ...interface{}) error {
	return p.guard.do(ctx, op, func(ctx context.Context) error {
		res, err := p.q(ctx).ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errVoteChanged
		}
		return nil
	})
}

func (p *PostgresDB) UpdateVoteType(ctx context.Context, userID, targetID uuid.UUID, from, to models.VoteType, at time.Time) error {
	return p.execExpectingRow(ctx, "update vote",
		`UPDATE votes SET vote_type = $4, updated_at = $5 WHERE user_id = $1 AND target_id = $2 AND vote_type = $3`,
		userID, targetID, string(from), string(to), at)
}

func (p *PostgresDB) DeleteVote(ctx context.Context, userID, targetID uuid.UUID, voteType models.VoteType) error {
	return p.execExpectingRow(ctx, "delete vote",
		`DELETE FROM votes WHERE user_id = $1 AND target_id = $2 AND vote_type = $3`,
		userID, targetID, string(voteType))
}

func (p *PostgresDB) DeleteVotesForTargets(ctx context.Context, targetIDs []uuid.UUID) (int64, error) {
	if len(targetIDs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(targetIDs))
	for i, id := range targetIDs {
		ids[i] = id.String()
	}
	var n int64
	err := p.guard.do(ctx, "delete votes", func(ctx context.Context) error {
		res, err := p.q(ctx).ExecContext(ctx, `DELETE FROM votes WHERE target_id = ANY($1::uuid[])`, pq.Array(ids))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func (p *PostgresDB) CountVotes(ctx context.Context, targetID uuid.UUID) (int64, int64, error) {
	var row struct {
		Up   int64 `db:"up"`
		Down int64 `db:"down"`
	}
	err := p.guard.do(ctx, "count votes", func(ctx context.Context) error {
		return sqlx.GetContext(ctx, p.q(ctx), &row, `
			SELECT COUNT(*) FILTER (WHERE vote_type = 'upvote') AS up,
			       COUNT(*) FILTER (WHERE vote_type = 'downvote') AS down
			FROM votes WHERE target_id = $1`, targetID)
	})
	return row.Up, row.Down, err
}

// Users

const userColumns = `id, username, email, password_hash, bio, location, birthdate, signature, created_at, updated_at`

func (p *PostgresDB) InsertUser(ctx context.Context, user *models.User) error {
	return p.guard.do(ctx, "insert user", func(ctx context.Context) error {
		_, err := sqlx.NamedExecContext(ctx, p.q(ctx), `
			INSERT INTO users (`+userColumns+`)
			VALUES (:id, :username, :email, :password_hash, :bio, :location, :birthdate, :signature, :created_at, :updated_at)`, user)
		if pqErr, dup := isUniqueViolation(err); dup {
			if strings.Contains(pqErr.Constraint, "email") {
				return utils.NewConflictError("Email is already registered.")
			}
			return utils.NewConflictError("Username is already taken.")
		}
		return err
	})
}

func (p *PostgresDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := p.guard.do(ctx, "get user", func(ctx context.Context) error {
		return pgNotFound(sqlx.GetContext(ctx, p.q(ctx), &u,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id), "User not found.")
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresDB) updateUser(ctx context.Context, op, set string, args ...interface{}) (*models.User, error) {
	var u models.User
	err := p.guard.do(ctx, op, func(ctx context.Context) error {
		query := `UPDATE users SET ` + set + `, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns
		return pgNotFound(sqlx.GetContext(ctx, p.q(ctx), &u, query, args...), "User not found.")
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresDB) UpdateProfile(ctx context.Context, id uuid.UUID, profile models.Profile) (*models.User, error) {
	return p.updateUser(ctx, "update profile", `bio = $2, location = $3, birthdate = $4`,
		id, profile.Bio, profile.Location, profile.Birthdate)
}

func (p *PostgresDB) UpdateSignature(ctx context.Context, id uuid.UUID, signature string) (*models.User, error) {
	return p.updateUser(ctx, "update signature", `signature = $2`, id, signature)
}

func (p *PostgresDB) UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	_, err := p.updateUser(ctx, "update password", `password_hash = $2`, id, hashedPassword)
	return err
}
