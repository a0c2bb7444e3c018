package models

import (
	"time"

	"github.com/google/uuid"
)

// Content is a root post or a comment. Both live in the same collection/table
// and differ only by IsRoot and ParentID.
type Content struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	IsRoot       bool       `json:"isRoot" db:"is_root"`
	ParentID     *uuid.UUID `json:"parentId" db:"parent_id"` // nil for root posts
	AuthorID     uuid.UUID  `json:"authorId" db:"author_id"`
	AuthorName   string     `json:"authorName" db:"author_name"`
	CategoryID   string     `json:"categoryId" db:"category_id"`
	Title        string     `json:"title" db:"title"`
	Body         string     `json:"body" db:"body"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
	Upvotes      int64      `json:"upvotes" db:"upvotes"`
	Downvotes    int64      `json:"downvotes" db:"downvotes"`
	CommentCount int64      `json:"commentCount" db:"comment_count"`
	Locked       bool       `json:"locked" db:"locked"`
	Sticky       bool       `json:"sticky" db:"sticky"`
}

// Counters returns the vote tallies and comment count of c.
func (c *Content) Counters() Counters {
	return Counters{Upvotes: c.Upvotes, Downvotes: c.Downvotes, CommentCount: c.CommentCount}
}

// Counters are the derived fields kept in step with votes and comments.
type Counters struct {
	Upvotes      int64 `json:"upvotes" db:"upvotes"`
	Downvotes    int64 `json:"downvotes" db:"downvotes"`
	CommentCount int64 `json:"commentCount" db:"comment_count"`
}

// SortOrder orders listings by creation time.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Page selects a window of a listing. Page numbers start at 1.
type Page struct {
	Number int
	Limit  int
	Sort   SortOrder
}

// Offset is the number of records skipped before this page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}
