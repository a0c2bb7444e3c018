package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
)

type voteKey struct {
	userID   uuid.UUID
	targetID uuid.UUID
}

type memTxKey struct{}

// MemoryStore keeps everything in maps. Writers serialise through RunInTx,
// which snapshots the maps and restores them if fn fails. Used for local
// development and tests.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	contents map[uuid.UUID]*models.Content
	votes    map[voteKey]*models.Vote
	users    map[uuid.UUID]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contents: make(map[uuid.UUID]*models.Content),
		votes:    make(map[voteKey]*models.Vote),
		users:    make(map[uuid.UUID]*models.User),
	}
}

type memSnapshot struct {
	contents map[uuid.UUID]*models.Content
	votes    map[voteKey]*models.Vote
	users    map[uuid.UUID]*models.User
}

func (s *MemoryStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memSnapshot{
		contents: make(map[uuid.UUID]*models.Content, len(s.contents)),
		votes:    make(map[voteKey]*models.Vote, len(s.votes)),
		users:    make(map[uuid.UUID]*models.User, len(s.users)),
	}
	for k, v := range s.contents {
		c := *v
		snap.contents[k] = &c
	}
	for k, v := range s.votes {
		c := *v
		snap.votes[k] = &c
	}
	for k, v := range s.users {
		c := *v
		snap.users[k] = &c
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents = snap.contents
	s.votes = snap.votes
	s.users = snap.users
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) Transactional() bool { return true }

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// Content

func (s *MemoryStore) InsertContent(ctx context.Context, content *models.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contents[content.ID]; exists {
		return utils.NewConflictError("Content already exists.")
	}
	c := *content
	s.contents[c.ID] = &c
	return nil
}

func (s *MemoryStore) GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[id]
	if !ok {
		return nil, utils.NewNotFoundError("Target not found.")
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) LockContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	return s.GetContent(ctx, id)
}

func (s *MemoryStore) UpdateContentText(ctx context.Context, id uuid.UUID, title, body string, at time.Time) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return nil, utils.NewNotFoundError("Target not found.")
	}
	c.Title = title
	c.Body = body
	c.UpdatedAt = at
	out := *c
	return &out, nil
}

func (s *MemoryStore) SetContentFlags(ctx context.Context, id uuid.UUID, locked, sticky *bool) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return nil, utils.NewNotFoundError("Target not found.")
	}
	if locked != nil {
		c.Locked = *locked
	}
	if sticky != nil {
		c.Sticky = *sticky
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) DeleteContent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contents[id]; !ok {
		return utils.NewNotFoundError("Target not found.")
	}
	delete(s.contents, id)
	return nil
}

func (s *MemoryStore) DeleteComments(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []uuid.UUID
	for id, c := range s.contents {
		if c.ParentID != nil && *c.ParentID == parentID {
			deleted = append(deleted, id)
			delete(s.contents, id)
		}
	}
	return deleted, nil
}

func (s *MemoryStore) ListComments(ctx context.Context, parentID uuid.UUID, page models.Page) ([]*models.Content, int64, error) {
	s.mu.RLock()
	var all []*models.Content
	for _, c := range s.contents {
		if c.ParentID != nil && *c.ParentID == parentID {
			out := *c
			all = append(all, &out)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if page.Sort == models.SortDesc {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return paginate(all, page), int64(len(all)), nil
}

func (s *MemoryStore) ListPostsByAuthor(ctx context.Context, authorID uuid.UUID, page models.Page) ([]*models.Content, int64, error) {
	return s.listPosts(func(c *models.Content) bool { return c.AuthorID == authorID }, page)
}

func (s *MemoryStore) ListPostsByCategory(ctx context.Context, categoryID string, page models.Page) ([]*models.Content, int64, error) {
	return s.listPosts(func(c *models.Content) bool { return c.CategoryID == categoryID }, page)
}

// listPosts returns root posts matching keep, sticky first, newest first.
func (s *MemoryStore) listPosts(keep func(*models.Content) bool, page models.Page) ([]*models.Content, int64, error) {
	s.mu.RLock()
	var all []*models.Content
	for _, c := range s.contents {
		if c.IsRoot && keep(c) {
			out := *c
			all = append(all, &out)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Sticky != all[j].Sticky {
			return all[i].Sticky
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return paginate(all, page), int64(len(all)), nil
}

func paginate(all []*models.Content, page models.Page) []*models.Content {
	start := page.Offset()
	if start >= len(all) {
		return []*models.Content{}
	}
	end := len(all)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	return all[start:end]
}

func (s *MemoryStore) CountComments(ctx context.Context, parentID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.contents {
		if c.ParentID != nil && *c.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ApplyCounterDelta(ctx context.Context, id uuid.UUID, delta models.CounterDelta) (models.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return models.Counters{}, utils.NewNotFoundError("Target not found.")
	}
	c.Upvotes = clampAdd(c.Upvotes, delta.Upvotes)
	c.Downvotes = clampAdd(c.Downvotes, delta.Downvotes)
	c.CommentCount = clampAdd(c.CommentCount, delta.CommentCount)
	return c.Counters(), nil
}

func clampAdd(v, d int64) int64 {
	if v+d < 0 {
		return 0
	}
	return v + d
}

func (s *MemoryStore) SetCounters(ctx context.Context, id uuid.UUID, counters models.Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return utils.NewNotFoundError("Target not found.")
	}
	c.Upvotes = counters.Upvotes
	c.Downvotes = counters.Downvotes
	c.CommentCount = counters.CommentCount
	return nil
}

// Votes

func (s *MemoryStore) GetVote(ctx context.Context, userID, targetID uuid.UUID) (*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[voteKey{userID, targetID}]
	if !ok {
		return nil, utils.NewNotFoundError("Vote not found.")
	}
	out := *v
	return &out, nil
}

func (s *MemoryStore) InsertVote(ctx context.Context, vote *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{vote.UserID, vote.TargetID}
	if _, exists := s.votes[key]; exists {
		return utils.NewConflictError("You have already voted on this item.")
	}
	v := *vote
	s.votes[key] = &v
	return nil
}

func (s *MemoryStore) UpdateVoteType(ctx context.Context, userID, targetID uuid.UUID, from, to models.VoteType, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[voteKey{userID, targetID}]
	if !ok || v.VoteType != from {
		return utils.NewConflictError("Your vote changed while this request was in flight.")
	}
	v.VoteType = to
	v.UpdatedAt = at
	return nil
}

func (s *MemoryStore) DeleteVote(ctx context.Context, userID, targetID uuid.UUID, voteType models.VoteType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{userID, targetID}
	v, ok := s.votes[key]
	if !ok || v.VoteType != voteType {
		return utils.NewConflictError("Your vote changed while this request was in flight.")
	}
	delete(s.votes, key)
	return nil
}

func (s *MemoryStore) DeleteVotesForTargets(ctx context.Context, targetIDs []uuid.UUID) (int64, error) {
	targets := make(map[uuid.UUID]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		targets[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key := range s.votes {
		if _, ok := targets[key.targetID]; ok {
			delete(s.votes, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountVotes(ctx context.Context, targetID uuid.UUID) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var up, down int64
	for key, v := range s.votes {
		if key.targetID != targetID {
			continue
		}
		if v.VoteType == models.Upvote {
			up++
		} else {
			down++
		}
	}
	return up, down, nil
}

// Users

func (s *MemoryStore) InsertUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) {
			return utils.NewConflictError("Username is already taken.")
		}
		if strings.EqualFold(u.Email, user.Email) {
			return utils.NewConflictError("Email is already registered.")
		}
	}
	u := *user
	s.users[u.ID] = &u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, utils.NewNotFoundError("User not found.")
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, id uuid.UUID, profile models.Profile) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, utils.NewNotFoundError("User not found.")
	}
	u.Bio = profile.Bio
	u.Location = profile.Location
	u.Birthdate = profile.Birthdate
	u.UpdatedAt = time.Now().UTC()
	out := *u
	return &out, nil
}

func (s *MemoryStore) UpdateSignature(ctx context.Context, id uuid.UUID, signature string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, utils.NewNotFoundError("User not found.")
	}
	u.Signature = signature
	u.UpdatedAt = time.Now().UTC()
	out := *u
	return &out, nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return utils.NewNotFoundError("User not found.")
	}
	u.HashedPassword = hashedPassword
	u.UpdatedAt = time.Now().UTC()
	return nil
}
