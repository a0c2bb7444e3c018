package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"kick-haven/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// picker draws users uniformly and posts by Zipf popularity. Not safe for
// concurrent use; each worker owns one.
type picker struct {
	rng   *rand.Rand
	zipf  *rand.Zipf
	users int
}

func (s *Simulator) newPicker(seed int64) *picker {
	rng := rand.New(rand.NewSource(seed))
	p := &picker{rng: rng, users: len(s.users)}
	if len(s.posts) > 1 {
		p.zipf = rand.NewZipf(rng, s.config.ZipfS, 1, uint64(len(s.posts)-1))
	}
	return p
}

func (p *picker) user() int { return p.rng.Intn(p.users) }
func (p *picker) post() int {
	if p.zipf == nil {
		return 0
	}
	return int(p.zipf.Uint64())
}

// SimulateActivities runs vote and comment workers until ctx ends.
func (s *Simulator) SimulateActivities(ctx context.Context) {
	voteLimiter := rate.NewLimiter(rate.Limit(s.config.VoteRate), s.config.Workers)
	commentLimiter := rate.NewLimiter(rate.Limit(s.config.CommentRate), s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		seed := time.Now().UnixNano() + int64(i)
		if s.config.VoteRate > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.runWorker(ctx, voteLimiter, s.newPicker(seed), s.simulateVote)
			}()
		}
		if s.config.CommentRate > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.runWorker(ctx, commentLimiter, s.newPicker(seed+1), s.simulateComment)
			}()
		}
	}
	wg.Wait()
}

func (s *Simulator) runWorker(ctx context.Context, limiter *rate.Limiter, p *picker, action func(context.Context, *picker) error) {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := action(ctx, p); err != nil && ctx.Err() == nil && !expected(err) {
			logging.Warn().Err(err).Msg("simulated action failed")
		}
	}
}

// expected reports whether err is a refusal the server is allowed to give
// under contention.
func expected(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	switch reqErr.Status {
	case http.StatusConflict, http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return true
	}
	return false
}

func (s *Simulator) simulateVote(ctx context.Context, p *picker) error {
	user := s.users[p.user()]
	post := s.posts[p.post()]
	voteType := "upvote"
	if p.rng.Float64() < 0.3 {
		voteType = "downvote"
	}

	data := map[string]interface{}{"targetId": post.String(), "voteType": voteType}
	if err := s.makeRequest(ctx, http.MethodPost, "/votes", user.Token, data, nil); err != nil {
		return err
	}
	s.stats.mu.Lock()
	s.stats.TotalVotes++
	s.stats.mu.Unlock()
	return nil
}

func (s *Simulator) simulateComment(ctx context.Context, p *picker) error {
	userIdx := p.user()
	post := s.posts[p.post()]

	if p.rng.Float64() < s.config.DeleteRate {
		if commentID, ok := s.takeComment(post, userIdx); ok {
			return s.deleteComment(ctx, post, commentID, userIdx)
		}
	}

	data := map[string]interface{}{"text": fmt.Sprintf("Simulated reply at %s", time.Now().Format(time.RFC3339Nano))}
	var result struct {
		Comment struct {
			ID uuid.UUID `json:"id"`
		} `json:"comment"`
	}
	if err := s.makeRequest(ctx, http.MethodPost, "/comments/"+post.String(), s.users[userIdx].Token, data, &result); err != nil {
		return err
	}

	s.mu.Lock()
	s.comments[post][result.Comment.ID] = userIdx
	s.mu.Unlock()
	s.stats.mu.Lock()
	s.stats.TotalComments++
	s.stats.mu.Unlock()
	return nil
}

// takeComment removes one of userIdx's live comments on post from the local
// model so no other worker deletes it too.
func (s *Simulator) takeComment(post uuid.UUID, userIdx int) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, author := range s.comments[post] {
		if author == userIdx {
			delete(s.comments[post], id)
			return id, true
		}
	}
	return uuid.Nil, false
}

func (s *Simulator) deleteComment(ctx context.Context, post, commentID uuid.UUID, userIdx int) error {
	err := s.makeRequest(ctx, http.MethodDelete, "/comments/"+post.String()+"/"+commentID.String(), s.users[userIdx].Token, nil, nil)
	if err != nil {
		var reqErr *RequestError
		if !errors.As(err, &reqErr) || reqErr.Status != http.StatusNotFound {
			// Unknown outcome; put it back and let verification decide.
			s.mu.Lock()
			s.comments[post][commentID] = userIdx
			s.mu.Unlock()
		}
		return err
	}
	s.stats.mu.Lock()
	s.stats.DeletedComments++
	s.stats.mu.Unlock()
	return nil
}

// VerifyReport lists every post whose stored counters disagree with the
// votes and comments behind them.
type VerifyReport struct {
	PostsChecked int
	Mismatches   []string
}

// OK reports whether every post checked out.
func (r *VerifyReport) OK() bool { return len(r.Mismatches) == 0 }

// Verify recounts each post from the outside: every user's own vote via
// GET /votes, and the live comments via the listing total.
func (s *Simulator) Verify(ctx context.Context) (*VerifyReport, error) {
	report := &VerifyReport{}
	for _, post := range s.posts {
		var status struct {
			Upvotes   int64 `json:"upvotes"`
			Downvotes int64 `json:"downvotes"`
		}
		var up, down int64
		for _, user := range s.users {
			var mine struct {
				Upvotes   int64   `json:"upvotes"`
				Downvotes int64   `json:"downvotes"`
				UserVote  *string `json:"userVote"`
			}
			if err := s.makeRequest(ctx, http.MethodGet, "/votes/"+post.String(), user.Token, nil, &mine); err != nil {
				return nil, err
			}
			status.Upvotes, status.Downvotes = mine.Upvotes, mine.Downvotes
			if mine.UserVote == nil {
				continue
			}
			switch *mine.UserVote {
			case "upvote":
				up++
			case "downvote":
				down++
			}
		}
		if status.Upvotes != up || status.Downvotes != down {
			report.Mismatches = append(report.Mismatches, fmt.Sprintf("post %s: counters %d/%d, votes %d/%d", post, status.Upvotes, status.Downvotes, up, down))
		}

		var postView struct {
			CommentCount int64 `json:"commentCount"`
		}
		if err := s.makeRequest(ctx, http.MethodGet, "/posts/"+post.String(), "", nil, &postView); err != nil {
			return nil, err
		}
		var listing struct {
			Total int64 `json:"total"`
		}
		if err := s.makeRequest(ctx, http.MethodGet, "/comments/"+post.String()+"?limit=1", "", nil, &listing); err != nil {
			return nil, err
		}
		if postView.CommentCount != listing.Total {
			report.Mismatches = append(report.Mismatches, fmt.Sprintf("post %s: commentCount %d, live comments %d", post, postView.CommentCount, listing.Total))
		}
		report.PostsChecked++
	}
	return report, nil
}
