package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kick-haven/internal/database"
	"kick-haven/internal/engine"
	"kick-haven/internal/forum"
	"kick-haven/internal/middleware"
	"kick-haven/internal/utils"
	"kick-haven/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	auth *middleware.Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := database.NewMemoryStore()
	metrics := utils.NewMetricsCollector()
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	svc, err := forum.NewService(store, metrics, hub, nil)
	require.NoError(t, err)
	eng := engine.NewEngine(actor.NewActorSystem(), forum.NewCounterAuditor(store, metrics), 0, time.Second)
	svc.SetReconciler(eng)

	auth := middleware.NewAuthenticator("handlers-test-secret", time.Hour)
	srv := NewServer(svc, eng, store, hub, metrics, auth)
	srv.VotesPerMinute = 1000

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		eng.Stop()
		cancel()
	})
	return &testServer{Server: ts, auth: auth}
}

// do sends body as JSON and decodes the response into a map.
func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// register creates a user and mints a token for it.
func (ts *testServer) register(t *testing.T, username string) (string, string) {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/users", "", map[string]string{
		"username": username,
		"email":    username + "@kickhaven.test",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, status, body)
	id := body["id"].(string)
	token, err := ts.auth.GenerateToken(uuid.MustParse(id), username)
	require.NoError(t, err)
	return id, token
}

func (ts *testServer) createPost(t *testing.T, token string) string {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/posts", token, map[string]string{
		"title": "Underrated drummers", "text": "Name them.", "categoryId": "jazz",
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body["postId"].(string)
}

func TestVoteEndpointScenario(t *testing.T) {
	ts := newTestServer(t)
	_, owner := ts.register(t, "owner")
	_, a := ts.register(t, "alice")
	_, b := ts.register(t, "bob")
	post := ts.createPost(t, owner)

	steps := []struct {
		token, voteType string
		up, down        float64
		userVote        interface{}
	}{
		{a, "upvote", 1, 0, "upvote"},
		{a, "upvote", 0, 0, nil},
		{a, "downvote", 0, 1, "downvote"},
		{b, "upvote", 1, 1, "upvote"},
	}
	for i, step := range steps {
		status, body := ts.do(t, http.MethodPost, "/votes", step.token, map[string]string{"targetId": post, "voteType": step.voteType})
		require.Equal(t, http.StatusOK, status, "step %d: %v", i, body)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, step.up, body["upvotes"], "step %d", i)
		assert.Equal(t, step.down, body["downvotes"], "step %d", i)
		assert.Equal(t, step.userVote, body["userVote"], "step %d", i)
	}
}

func TestVoteEndpointErrors(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")
	post := ts.createPost(t, token)

	cases := []struct {
		name    string
		token   string
		body    map[string]string
		status  int
		message string
	}{
		{"bad id", token, map[string]string{"targetId": "nope", "voteType": "upvote"}, http.StatusBadRequest, "Invalid targetId format"},
		{"bad type", token, map[string]string{"targetId": post, "voteType": "meh"}, http.StatusBadRequest, "Invalid voteType. Must be 'upvote' or 'downvote'."},
		{"anonymous", "", map[string]string{"targetId": post, "voteType": "upvote"}, http.StatusUnauthorized, "Unauthorized. Please log in to vote."},
		{"missing", token, map[string]string{"targetId": uuid.NewString(), "voteType": "upvote"}, http.StatusNotFound, "Target not found."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, "/votes", tc.token, tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.message, body["message"])
			assert.Len(t, body, 2, "errors carry only success and message")
		})
	}
}

func TestCommentAndCascadeEndpoints(t *testing.T) {
	ts := newTestServer(t)
	_, owner := ts.register(t, "owner")
	_, other := ts.register(t, "other")
	post := ts.createPost(t, owner)

	var commentIDs []string
	for i := 0; i < 3; i++ {
		status, body := ts.do(t, http.MethodPost, "/comments/"+post, other, map[string]string{"text": "so true"})
		require.Equal(t, http.StatusCreated, status, body)
		comment := body["comment"].(map[string]interface{})
		assert.Equal(t, "Re: Underrated drummers", comment["title"])
		assert.Equal(t, "jazz", comment["categoryId"])
		assert.Equal(t, post, comment["parentId"])
		commentIDs = append(commentIDs, comment["id"].(string))
	}

	status, body := ts.do(t, http.MethodPost, "/comments/"+post, other, map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Comment text is required.", body["message"])

	status, body = ts.do(t, http.MethodGet, "/comments/"+post+"?limit=2&sort=desc", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["comments"], 2)

	status, body = ts.do(t, http.MethodDelete, "/comments/"+post+"/"+commentIDs[0], owner, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, body = ts.do(t, http.MethodDelete, "/comments/"+post+"/"+commentIDs[0], other, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Comment deleted successfully.", body["message"])
	assert.Equal(t, float64(2), body["commentCount"])

	status, _ = ts.do(t, http.MethodDelete, "/posts/"+post, other, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, body = ts.do(t, http.MethodDelete, "/posts/"+post, owner, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Post deleted successfully.", body["message"])
	assert.Equal(t, float64(2), body["deletedComments"])

	status, _ = ts.do(t, http.MethodGet, "/comments/"+post, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLockEndpointBlocksVotes(t *testing.T) {
	ts := newTestServer(t)
	_, owner := ts.register(t, "owner")
	_, voter := ts.register(t, "voter")
	post := ts.createPost(t, owner)

	status, _ := ts.do(t, http.MethodPut, "/posts/"+post+"/lock", owner, map[string]bool{"locked": true})
	require.Equal(t, http.StatusOK, status)

	status, body := ts.do(t, http.MethodPost, "/votes", voter, map[string]string{"targetId": post, "voteType": "upvote"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Cannot vote on a locked post/comment.", body["message"])

	status, body = ts.do(t, http.MethodGet, "/posts/"+post, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["upvotes"])

	status, _ = ts.do(t, http.MethodPut, "/posts/"+post+"/lock", owner, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestReconcileAndHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "admin")
	post := ts.createPost(t, token)

	status, _ := ts.do(t, http.MethodPost, "/admin/reconcile/"+post, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := ts.do(t, http.MethodPost, "/admin/reconcile/"+post, token, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["repaired"])

	status, body = ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.NotNil(t, body["reconciler"])
}

func TestUserEndpoints(t *testing.T) {
	ts := newTestServer(t)
	id, token := ts.register(t, "geddy")

	status, body := ts.do(t, http.MethodPost, "/users", "", map[string]string{"username": "GEDDY", "email": "x@kickhaven.test", "password": "correct-horse"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, false, body["success"])

	status, body = ts.do(t, http.MethodPost, "/users", "", map[string]string{"username": "neil", "email": "not-an-email", "password": "correct-horse"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid email address.", body["message"])

	status, body = ts.do(t, http.MethodPut, "/users/me/profile", token, map[string]string{"bio": "Bass", "location": "Toronto", "birthdate": "1953-07-29"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Toronto", body["location"])
	assert.NotContains(t, body, "hashedPassword")

	status, body = ts.do(t, http.MethodPut, "/users/me/password", token, map[string]string{"currentPassword": "wrong-one", "newPassword": "tom-sawyer-1"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = ts.do(t, http.MethodGet, "/users/"+id, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bass", body["bio"])
	assert.Equal(t, "geddy", body["username"])
	assert.NotContains(t, body, "email")
	assert.NotContains(t, body, "hashedPassword")

	_, other := ts.register(t, "alex")
	status, body = ts.do(t, http.MethodGet, "/users/"+id, other, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "email")

	ts.createPost(t, token)
	status, body = ts.do(t, http.MethodGet, "/users/"+id+"/posts", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])
}

func TestPostLengthLimits(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")

	status, body := ts.do(t, http.MethodPost, "/posts", token, map[string]string{
		"title": strings.Repeat("t", 301), "text": "body", "categoryId": "rock",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "title must be at most 300 characters.", body["message"])

	status, _ = ts.do(t, http.MethodPost, "/posts", token, map[string]string{
		"title": "title", "text": "body", "categoryId": strings.Repeat("c", 65),
	})
	assert.Equal(t, http.StatusBadRequest, status)

	post := ts.createPost(t, token)
	status, _ = ts.do(t, http.MethodPut, "/posts/"+post, token, map[string]string{
		"title": strings.Repeat("t", 301), "text": "body",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = ts.do(t, http.MethodPost, "/comments/"+post, token, map[string]string{"text": strings.Repeat("x", 20001)})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListPostsByCategoryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")

	first := ts.createPost(t, token)
	second := ts.createPost(t, token)
	status, body := ts.do(t, http.MethodPost, "/posts", token, map[string]string{
		"title": "Fuzz pedals", "text": "Which one?", "categoryId": "gear",
	})
	require.Equal(t, http.StatusCreated, status, body)
	status, body = ts.do(t, http.MethodPut, "/posts/"+first+"/sticky", token, map[string]bool{"sticky": true})
	require.Equal(t, http.StatusOK, status, body)

	status, body = ts.do(t, http.MethodGet, "/posts?categoryId=jazz", "", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(2), body["total"])
	posts := body["posts"].([]interface{})
	require.Len(t, posts, 2)
	assert.Equal(t, first, posts[0].(map[string]interface{})["id"])
	assert.Equal(t, second, posts[1].(map[string]interface{})["id"])

	status, body = ts.do(t, http.MethodGet, "/posts?categoryId=jazz&limit=1&page=2", "", nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Len(t, body["posts"].([]interface{}), 1)

	status, body = ts.do(t, http.MethodGet, "/posts", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "categoryId is required.", body["message"])
}
