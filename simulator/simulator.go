package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"kick-haven/internal/logging"
	"kick-haven/internal/middleware"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// SimConfig drives a load run against a live server.
type SimConfig struct {
	NumUsers       int
	NumPosts       int
	SimulationTime time.Duration
	// VoteRate and CommentRate are requests per second across all workers.
	VoteRate    float64
	CommentRate float64
	// DeleteRate is the share of comment actions that delete one of the
	// caller's own comments instead of adding one.
	DeleteRate float64
	Workers    int
	ZipfS      float64
	EngineURL  string
	// JWTSecret must match the server's so the simulator can mint tokens.
	JWTSecret string
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	// Conflicts and rate-limited responses are expected under contention.
	Conflicts       int64
	RateLimited     int64
	AverageLatency  time.Duration
	TotalPosts      int
	TotalComments   int
	DeletedComments int
	TotalVotes      int
}

// SimulatedUser is a registered account with a minted token.
type SimulatedUser struct {
	ID       uuid.UUID
	Username string
	Email    string
	Token    string
}

// RequestError is a non-2xx response.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

type Simulator struct {
	config SimConfig
	stats  *SimulationStats
	auth   *middleware.Authenticator
	client *http.Client

	mu    sync.RWMutex
	users []*SimulatedUser
	posts []uuid.UUID
	// live comments per post, keyed by comment id, valued by author index
	comments map[uuid.UUID]map[uuid.UUID]int
}

func NewSimulator(config SimConfig) *Simulator {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	return &Simulator{
		config:   config,
		stats:    &SimulationStats{StartTime: time.Now()},
		auth:     middleware.NewAuthenticator(config.JWTSecret, 0),
		client:   &http.Client{Timeout: 10 * time.Second},
		comments: make(map[uuid.UUID]map[uuid.UUID]int),
	}
}

// Run seeds users and posts, drives votes and comments until ctx ends or
// SimulationTime passes, then checks the counters against the server.
func (s *Simulator) Run(ctx context.Context) (*VerifyReport, error) {
	logging.Info().Int("users", s.config.NumUsers).Int("posts", s.config.NumPosts).Msg("starting simulation")

	if err := s.initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.SimulationTime)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SimulateActivities(runCtx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(runCtx)
	}()
	wg.Wait()

	// The run context is spent; verification gets its own budget.
	verifyCtx, cancelVerify := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancelVerify()
	return s.Verify(verifyCtx)
}

func (s *Simulator) initialize(ctx context.Context) error {
	if s.config.NumUsers < 1 || s.config.NumPosts < 1 {
		return errors.New("need at least one user and one post")
	}
	if err := s.createInitialUsers(ctx); err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	if err := s.createInitialPosts(ctx); err != nil {
		return fmt.Errorf("failed to create posts: %w", err)
	}
	logging.Info().Int("users", len(s.users)).Int("posts", len(s.posts)).Msg("initialization completed")
	return nil
}

func (s *Simulator) createInitialUsers(ctx context.Context) error {
	// Registration is bcrypt-bound on the server; keep it gentle.
	limiter := rate.NewLimiter(rate.Limit(20), 5)
	run := uuid.NewString()[:8]

	for i := 0; i < s.config.NumUsers; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		user := &SimulatedUser{
			Username: fmt.Sprintf("sim_%s_%d", run, i),
			Email:    fmt.Sprintf("sim_%s_%d@kickhaven.test", run, i),
		}
		if err := s.registerUser(ctx, user); err != nil {
			return err
		}
		s.users = append(s.users, user)
	}
	return nil
}

func (s *Simulator) registerUser(ctx context.Context, user *SimulatedUser) error {
	data := map[string]interface{}{
		"username": user.Username,
		"email":    user.Email,
		"password": "simulated-password",
	}
	var result struct {
		ID uuid.UUID `json:"id"`
	}
	if err := s.makeRequest(ctx, http.MethodPost, "/users", "", data, &result); err != nil {
		return fmt.Errorf("register %s: %w", user.Username, err)
	}
	token, err := s.auth.GenerateToken(result.ID, user.Username)
	if err != nil {
		return err
	}
	user.ID = result.ID
	user.Token = token
	return nil
}

func (s *Simulator) createInitialPosts(ctx context.Context) error {
	for i := 0; i < s.config.NumPosts; i++ {
		author := s.users[i%len(s.users)]
		data := map[string]interface{}{
			"title":      fmt.Sprintf("Simulated thread %d", i),
			"text":       "Load test post.",
			"categoryId": getRandomCategory(),
		}
		var result struct {
			PostID uuid.UUID `json:"postId"`
		}
		if err := s.makeRequest(ctx, http.MethodPost, "/posts", author.Token, data, &result); err != nil {
			return err
		}
		s.posts = append(s.posts, result.PostID)
		s.comments[result.PostID] = make(map[uuid.UUID]int)
	}
	s.stats.mu.Lock()
	s.stats.TotalPosts = len(s.posts)
	s.stats.mu.Unlock()
	return nil
}

func getRandomCategory() string {
	categories := []string{"general", "rock", "jazz", "gear", "news"}
	return categories[rand.Intn(len(categories))]
}

// makeRequest sends data as JSON and decodes a 2xx body into out.
func (s *Simulator) makeRequest(ctx context.Context, method, endpoint, token string, data, out interface{}) error {
	var body []byte
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.EngineURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.recordRequestMetrics(start, 0)
		}
		return err
	}
	defer resp.Body.Close()
	s.recordRequestMetrics(start, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		return &RequestError{Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (s *Simulator) recordRequestMetrics(start time.Time, status int) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++
	switch {
	case status == http.StatusConflict || status == http.StatusServiceUnavailable:
		s.stats.Conflicts++
	case status == http.StatusTooManyRequests:
		s.stats.RateLimited++
	case status == 0 || status >= 400:
		s.stats.FailedRequests++
	default:
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

func (s *Simulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			logging.Info().
				Int64("requests", m.TotalRequests).
				Int64("failed", m.FailedRequests).
				Int64("conflicts", m.Conflicts).
				Int("votes", m.TotalVotes).
				Int("comments", m.TotalComments).
				Dur("avg_latency", m.AverageLatency).
				Msg("simulation progress")
		}
	}
}

// SimulationMetrics is a snapshot of SimulationStats.
type SimulationMetrics struct {
	Elapsed         time.Duration
	TotalUsers      int
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	Conflicts       int64
	RateLimited     int64
	AverageLatency  time.Duration
	TotalPosts      int
	TotalComments   int
	DeletedComments int
	TotalVotes      int
}

func (s *Simulator) GetMetrics() SimulationMetrics {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	return SimulationMetrics{
		Elapsed:         time.Since(s.stats.StartTime),
		TotalUsers:      len(s.users),
		TotalRequests:   s.stats.TotalRequests,
		SuccessRequests: s.stats.SuccessRequests,
		FailedRequests:  s.stats.FailedRequests,
		Conflicts:       s.stats.Conflicts,
		RateLimited:     s.stats.RateLimited,
		AverageLatency:  s.stats.AverageLatency,
		TotalPosts:      s.stats.TotalPosts,
		TotalComments:   s.stats.TotalComments,
		DeletedComments: s.stats.DeletedComments,
		TotalVotes:      s.stats.TotalVotes,
	}
}
