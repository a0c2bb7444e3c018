package forum

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kick-haven/internal/database"
	"kick-haven/internal/logging"
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	msgInvalidTargetID   = "Invalid targetId format"
	msgInvalidVoteType   = "Invalid voteType. Must be 'upvote' or 'downvote'."
	msgVoteUnauth        = "Unauthorized. Please log in to vote."
	msgTargetNotFound    = "Target not found."
	msgPostNotFound      = "Post not found."
	msgCommentNotFound   = "Comment not found."
	msgCommentRequired   = "Comment text is required."
	msgAllFieldsRequired = "All fields are required."
	msgLoginRequired     = "Unauthorized. Please log in."

	userCacheSize = 1024

	DefaultCommentPage  = 1
	DefaultCommentLimit = 5
	MaxPageLimit        = 50
)

// VoteResult is returned to the voter.
type VoteResult struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Upvotes   int64            `json:"upvotes"`
	Downvotes int64            `json:"downvotes"`
	UserVote  *models.VoteType `json:"userVote"`
}

// Service is the canonical implementation of every forum operation. Handlers
// stay thin and call into it.
type Service struct {
	store      database.Store
	votes      *VoteStore
	counters   *ContentCounterUpdater
	threads    *CommentThreadMaintainer
	publisher  Publisher
	reconciler Reconciler
	metrics    *utils.MetricsCollector
	users      *lru.Cache[uuid.UUID, *models.User]
	now        func() time.Time
}

// NewService wires the components around an injected store. publisher and
// reconciler may be nil.
func NewService(store database.Store, metrics *utils.MetricsCollector, publisher Publisher, reconciler Reconciler) (*Service, error) {
	users, err := lru.New[uuid.UUID, *models.User](userCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create user cache: %w", err)
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if reconciler == nil {
		reconciler = noopReconciler{}
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &Service{
		store:      store,
		votes:      NewVoteStore(store),
		counters:   NewContentCounterUpdater(store),
		threads:    NewCommentThreadMaintainer(store),
		publisher:  publisher,
		reconciler: reconciler,
		metrics:    metrics,
		users:      users,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetReconciler replaces the reconciler. The engine is built after the
// service because it recomputes through it.
func (s *Service) SetReconciler(r Reconciler) {
	if r == nil {
		r = noopReconciler{}
	}
	s.reconciler = r
}

func (s *Service) observe(op string, start time.Time) {
	s.metrics.AddOperationLatency(op, time.Since(start))
}

func parseID(raw, message string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, utils.NewInvalidArgumentError(message)
	}
	return id, nil
}

// resolveUser loads the caller's account through the LRU cache.
func (s *Service) resolveUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s.users.Get(id); ok {
		return u, nil
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.users.Add(id, u)
	return u, nil
}

// getContent maps a missing record to message.
func getContent(ctx context.Context, load func(context.Context, uuid.UUID) (*models.Content, error), id uuid.UUID, message string) (*models.Content, error) {
	c, err := load(ctx, id)
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return nil, utils.NewNotFoundError(message)
	}
	return c, err
}

// Vote applies a vote toggle and the matching counter delta as one unit.
func (s *Service) Vote(ctx context.Context, caller Identity, rawTargetID, rawVoteType string) (*VoteResult, error) {
	defer s.observe("vote", time.Now())

	targetID, err := parseID(rawTargetID, msgInvalidTargetID)
	if err != nil {
		return nil, err
	}
	voteType, ok := models.ParseVoteType(rawVoteType)
	if !ok {
		return nil, utils.NewInvalidArgumentError(msgInvalidVoteType)
	}
	if err := requireIdentity(caller, msgVoteUnauth); err != nil {
		return nil, err
	}
	if _, err := s.resolveUser(ctx, caller.ID); err != nil {
		return nil, err
	}

	var (
		transition models.VoteTransition
		counters   models.Counters
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		target, err := getContent(ctx, s.store.LockContent, targetID, msgTargetNotFound)
		if err != nil {
			return err
		}
		if err := authorizeVote(target); err != nil {
			return err
		}

		transition, err = s.votes.ApplyVote(ctx, caller.ID, targetID, voteType)
		if err != nil {
			return err
		}

		counters, err = s.counters.ApplyCounterDelta(ctx, targetID, DeltaFor(transition))
		if err != nil {
			s.compensateVote(ctx, caller.ID, targetID, transition, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementVotes(transition.Action())
	s.publisher.Publish(Event{Type: EventVote, TargetID: targetID, Counters: counters})

	return &VoteResult{
		Success:   true,
		Message:   voteMessage(transition, voteType),
		Upvotes:   counters.Upvotes,
		Downvotes: counters.Downvotes,
		UserVote:  transition.New,
	}, nil
}

// compensateVote undoes the vote write when the store cannot roll back, and
// hands the target to the reconciler either way.
func (s *Service) compensateVote(ctx context.Context, voterID, targetID uuid.UUID, t models.VoteTransition, cause error) {
	if s.store.Transactional() {
		return
	}
	if err := s.votes.Revert(ctx, voterID, targetID, t); err != nil {
		logging.Error().Err(err).Str("target", targetID.String()).Str("action", t.Action()).Msg("failed to revert vote after counter write failed")
	}
	logging.Warn().Err(cause).Str("target", targetID.String()).Msg("counter write failed, target marked for reconciliation")
	s.reconciler.MarkDirty(targetID)
}

func voteMessage(t models.VoteTransition, requested models.VoteType) string {
	switch t.Action() {
	case "retract":
		return fmt.Sprintf("Removed your %s.", requested)
	case "switch":
		return fmt.Sprintf("Changed vote to %s.", requested)
	default:
		return fmt.Sprintf("%s registered successfully.", requested)
	}
}

// VoteStatus reports the tallies of a target and the caller's vote on it.
func (s *Service) VoteStatus(ctx context.Context, caller Identity, rawTargetID string) (*VoteResult, error) {
	targetID, err := parseID(rawTargetID, msgInvalidTargetID)
	if err != nil {
		return nil, err
	}
	if err := requireIdentity(caller, msgVoteUnauth); err != nil {
		return nil, err
	}
	target, err := getContent(ctx, s.store.GetContent, targetID, msgTargetNotFound)
	if err != nil {
		return nil, err
	}
	result := &VoteResult{Success: true, Upvotes: target.Upvotes, Downvotes: target.Downvotes}
	vote, err := s.store.GetVote(ctx, caller.ID, targetID)
	switch {
	case err == nil:
		result.UserVote = typePtr(vote.VoteType)
	case !utils.IsErrorCode(err, utils.ErrNotFound):
		return nil, err
	}
	return result, nil
}

// CreatePost stores a new root post authored by the caller.
func (s *Service) CreatePost(ctx context.Context, caller Identity, title, text, categoryID string) (*models.Content, error) {
	defer s.observe("create_post", time.Now())

	if err := requireIdentity(caller, msgLoginRequired); err != nil {
		return nil, err
	}
	title, text, categoryID = cleanText(title), cleanText(text), strings.TrimSpace(categoryID)
	if title == "" || text == "" || categoryID == "" {
		return nil, utils.NewInvalidArgumentError(msgAllFieldsRequired)
	}
	if err := checkPostFields(title, text); err != nil {
		return nil, err
	}
	if err := checkLength("Category", categoryID, MaxCategoryLength); err != nil {
		return nil, err
	}
	author, err := s.resolveUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	post := &models.Content{
		ID:         uuid.New(),
		IsRoot:     true,
		AuthorID:   author.ID,
		AuthorName: author.Username,
		CategoryID: categoryID,
		Title:      title,
		Body:       text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.InsertContent(ctx, post)
	}); err != nil {
		return nil, err
	}
	return post, nil
}

// GetPost returns a root post.
func (s *Service) GetPost(ctx context.Context, rawID string) (*models.Content, error) {
	id, err := parseID(rawID, "Invalid post ID format")
	if err != nil {
		return nil, err
	}
	post, err := getContent(ctx, s.store.GetContent, id, msgPostNotFound)
	if err != nil {
		return nil, err
	}
	if !post.IsRoot {
		return nil, utils.NewNotFoundError(msgPostNotFound)
	}
	return post, nil
}

// ListPostsByCategory lists the root posts filed under categoryID, sticky
// first, newest first.
func (s *Service) ListPostsByCategory(ctx context.Context, categoryID string, page models.Page) (*PostPage, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return nil, utils.NewInvalidArgumentError("categoryId is required.")
	}
	if err := checkLength("Category", categoryID, MaxCategoryLength); err != nil {
		return nil, err
	}
	posts, total, err := s.store.ListPostsByCategory(ctx, categoryID, page)
	if err != nil {
		return nil, err
	}
	return &PostPage{Posts: posts, Total: total, Page: page.Number, Limit: page.Limit}, nil
}

// EditPost replaces the title and body of the caller's own post.
func (s *Service) EditPost(ctx context.Context, caller Identity, rawID, title, text string) (*models.Content, error) {
	id, err := parseID(rawID, "Invalid post ID format")
	if err != nil {
		return nil, err
	}
	if err := requireIdentity(caller, msgLoginRequired); err != nil {
		return nil, err
	}
	title, text = cleanText(title), cleanText(text)
	if title == "" || text == "" {
		return nil, utils.NewInvalidArgumentError("Title and text are required.")
	}
	if err := checkPostFields(title, text); err != nil {
		return nil, err
	}

	var updated *models.Content
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		post, err := getContent(ctx, s.store.LockContent, id, msgPostNotFound)
		if err != nil {
			return err
		}
		if !post.IsRoot {
			return utils.NewNotFoundError(msgPostNotFound)
		}
		if err := authorizeEdit(caller, post); err != nil {
			return err
		}
		updated, err = s.store.UpdateContentText(ctx, id, title, text, s.now())
		return err
	})
	return updated, err
}

// DeletePost deletes the caller's own root post together with its comments
// and every vote cast on them. It returns the number of comments removed.
func (s *Service) DeletePost(ctx context.Context, caller Identity, rawID string) (int, error) {
	defer s.observe("delete_post", time.Now())

	id, err := parseID(rawID, "Invalid post ID format")
	if err != nil {
		return 0, err
	}
	if err := requireIdentity(caller, msgLoginRequired); err != nil {
		return 0, err
	}

	var commentIDs []uuid.UUID
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		post, err := getContent(ctx, s.store.LockContent, id, msgPostNotFound)
		if err != nil {
			return err
		}
		if !post.IsRoot {
			return utils.NewNotFoundError(msgPostNotFound)
		}
		if err := authorizeDelete(caller, post); err != nil {
			return err
		}

		commentIDs, err = s.store.DeleteComments(ctx, id)
		if err != nil {
			return err
		}
		if err := s.store.DeleteContent(ctx, id); err != nil {
			return err
		}
		_, err = s.store.DeleteVotesForTargets(ctx, append([]uuid.UUID{id}, commentIDs...))
		return err
	})
	if err != nil {
		if !s.store.Transactional() && len(commentIDs) > 0 {
			s.reconciler.MarkDirty(id)
		}
		return 0, err
	}

	s.publisher.Publish(Event{Type: EventPostDeleted, TargetID: id})
	return len(commentIDs), nil
}

// SetLocked locks or unlocks the caller's own root post.
func (s *Service) SetLocked(ctx context.Context, caller Identity, rawID string, locked bool) (*models.Content, error) {
	return s.setFlags(ctx, caller, rawID, &locked, nil)
}

// SetSticky pins or unpins the caller's own root post.
func (s *Service) SetSticky(ctx context.Context, caller Identity, rawID string, sticky bool) (*models.Content, error) {
	return s.setFlags(ctx, caller, rawID, nil, &sticky)
}

func (s *Service) setFlags(ctx context.Context, caller Identity, rawID string, locked, sticky *bool) (*models.Content, error) {
	id, err := parseID(rawID, "Invalid post ID format")
	if err != nil {
		return nil, err
	}
	if err := requireIdentity(caller, msgLoginRequired); err != nil {
		return nil, err
	}

	var updated *models.Content
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		post, err := getContent(ctx, s.store.LockContent, id, msgPostNotFound)
		if err != nil {
			return err
		}
		if !post.IsRoot {
			return utils.NewNotFoundError(msgPostNotFound)
		}
		if !isOwner(caller, post) {
			return utils.NewForbiddenError("Only the author can moderate this post.")
		}
		updated, err = s.store.SetContentFlags(ctx, id, locked, sticky)
		return err
	})
	return updated, err
}

// CommentResult carries a comment and its parent's count after the write.
type CommentResult struct {
	Comment      *models.Content `json:"comment"`
	CommentCount int64           `json:"commentCount"`
}

// CreateComment adds a reply to a root post and bumps its commentCount.
func (s *Service) CreateComment(ctx context.Context, caller Identity, rawParentID, text string) (*CommentResult, error) {
	defer s.observe("create_comment", time.Now())

	parentID, err := parseID(rawParentID, "Invalid parentPostId format")
	if err != nil {
		return nil, err
	}
	if err := requireIdentity(caller, "Unauthorized. Please log in to comment."); err != nil {
		return nil, err
	}
	text = cleanText(text)
	if text == "" {
		return nil, utils.NewInvalidArgumentError(msgCommentRequired)
	}
	if err := checkLength("Text", text, MaxBodyLength); err != nil {
		return nil, err
	}
	author, err := s.resolveUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	var (
		parent  *models.Content
		comment *models.Content
		count   int64
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		parent, err = getContent(ctx, s.store.LockContent, parentID, msgPostNotFound)
		if err != nil {
			return err
		}
		if err := authorizeComment(parent); err != nil {
			return err
		}

		comment = NewComment(parent, author, text, s.now())
		if err := s.store.InsertContent(ctx, comment); err != nil {
			return err
		}
		count, err = s.threads.OnCommentCreated(ctx, parentID)
		if err != nil && !s.store.Transactional() {
			if derr := s.store.DeleteContent(ctx, comment.ID); derr != nil {
				logging.Error().Err(derr).Str("comment", comment.ID.String()).Msg("failed to remove comment after count update failed")
			}
			s.reconciler.MarkDirty(parentID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	counters := parent.Counters()
	counters.CommentCount = count
	s.publisher.Publish(Event{Type: EventCommentCreated, TargetID: comment.ID, ParentID: &parentID, Counters: counters, Content: comment})
	if parent.AuthorID != author.ID {
		recipient := parent.AuthorID
		s.publisher.Publish(Event{Type: EventReply, TargetID: comment.ID, ParentID: &parentID, Content: comment, ActorName: author.Username, Recipient: &recipient})
	}
	return &CommentResult{Comment: comment, CommentCount: count}, nil
}

// loadComment finds commentID and checks it belongs to parentID.
func (s *Service) loadComment(ctx context.Context, parentID, commentID uuid.UUID) (*models.Content, error) {
	comment, err := getContent(ctx, s.store.GetContent, commentID, msgCommentNotFound)
	if err != nil {
		return nil, err
	}
	if comment.IsRoot || comment.ParentID == nil || *comment.ParentID != parentID {
		return nil, utils.NewNotFoundError(msgCommentNotFound)
	}
	return comment, nil
}

// EditComment replaces the text of the caller's own comment.
func (s *Service) EditComment(ctx context.Context, caller Identity, rawParentID, rawCommentID, text string) (*models.Content, error) {
	parentID, err := parseID(rawParentID, "Invalid parentPostId format")
	if err != nil {
		return nil, err
	}
	commentID, err := parseID(rawCommentID, "Invalid commentId format")
	if err != nil {
		return nil, err
	}
	if err := requireIdentity(caller, msgLoginRequired); err != nil {
		return nil, err
	}
	text = cleanText(text)
	if text == "" {
		return nil, utils.NewInvalidArgumentError(msgCommentRequired)
	}
	if err := checkLength("Text", text, MaxBodyLength); err != nil {
		return nil, err
	}

	var updated *models.Content
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		comment, err := s.loadComment(ctx, parentID, commentID)
		if err != nil {
			return err
		}
		if err := authorizeEdit(caller, comment); err != nil {
			return err
		}
		updated, err = s.store.UpdateContentText(ctx, commentID, comment.Title, text, s.now())
		return err
	})
	return updated, err
}

// DeleteComment removes the caller's own comment and decrements the parent's
// commentCount. It returns the count after the write.
func (s *Service) DeleteComment(ctx context.Context, caller Identity, rawParentID, rawCommentID string) (int64, error) {
	defer s.observe("delete_comment", time.Now())

	parentID, err := parseID(rawParentID, "Invalid parentPostId format")
	if err != nil {
		return 0, err
	}
	commentID, err := parseID(rawCommentID, "Invalid commentId format")
	if err != nil {
		return 0, err
	}
	if err := requireIdentity(caller, msgLoginRequired); err != nil {
		return 0, err
	}

	var count int64
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := getContent(ctx, s.store.LockContent, parentID, msgPostNotFound); err != nil {
			return err
		}
		comment, err := s.loadComment(ctx, parentID, commentID)
		if err != nil {
			return err
		}
		if err := authorizeDelete(caller, comment); err != nil {
			return err
		}

		if err := s.store.DeleteContent(ctx, commentID); err != nil {
			return err
		}
		count, err = s.threads.OnCommentDeleted(ctx, parentID)
		if err != nil {
			if !s.store.Transactional() {
				if rerr := s.store.InsertContent(ctx, comment); rerr != nil {
					logging.Error().Err(rerr).Str("comment", commentID.String()).Msg("failed to restore comment after count update failed")
				}
				s.reconciler.MarkDirty(parentID)
			}
			return err
		}
		// Votes go last so a restored comment keeps the votes its counters
		// were built from.
		if _, err := s.store.DeleteVotesForTargets(ctx, []uuid.UUID{commentID}); err != nil {
			if s.store.Transactional() {
				return err
			}
			logging.Warn().Err(err).Str("comment", commentID.String()).Msg("failed to remove votes of deleted comment")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.publisher.Publish(Event{Type: EventCommentDeleted, TargetID: commentID, ParentID: &parentID, Counters: models.Counters{CommentCount: count}})
	return count, nil
}

// CommentPage is one page of a thread.
type CommentPage struct {
	Comments []*models.Content `json:"comments"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// NormalizePage applies listing defaults and bounds.
func NormalizePage(page, limit int, sort string) (models.Page, error) {
	if page < 1 {
		page = DefaultCommentPage
	}
	if limit < 1 {
		limit = DefaultCommentLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	order := models.SortAsc
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "", "asc":
	case "desc":
		order = models.SortDesc
	default:
		return models.Page{}, utils.NewInvalidArgumentError("Invalid sort. Must be 'asc' or 'desc'.")
	}
	return models.Page{Number: page, Limit: limit, Sort: order}, nil
}

// ListComments returns one page of comments under a root post.
func (s *Service) ListComments(ctx context.Context, rawParentID string, page models.Page) (*CommentPage, error) {
	parentID, err := parseID(rawParentID, "Invalid parentPostId format")
	if err != nil {
		return nil, err
	}
	if _, err := getContent(ctx, s.store.GetContent, parentID, msgPostNotFound); err != nil {
		return nil, err
	}
	comments, total, err := s.store.ListComments(ctx, parentID, page)
	if err != nil {
		return nil, err
	}
	return &CommentPage{Comments: comments, Total: total, Page: page.Number, Limit: page.Limit}, nil
}
