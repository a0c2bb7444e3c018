package forum

import (
	"context"
	"strings"
	"testing"

	"kick-haven/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Rock & Roll", "Rock & Roll"},
		{"  <b>Loud</b> riffs ", "Loud riffs"},
		{"<script>alert(1)</script>hi", "hi"},
		{"&lt;script&gt;alert(1)&lt;/script&gt;hi", "hi"},
		{"&amp;lt;b&amp;gt;bold", "bold"},
		{"5 &gt; 3", "5 > 3"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cleanText(tc.in), tc.in)
	}
}

func TestEncodedMarkupIsNotStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := seedUser(t, f.store, "alice")

	post, err := f.svc.CreatePost(ctx, a, "Setlist &lt;img src=x onerror=alert(1)&gt;", "hello &lt;script&gt;alert(1)&lt;/script&gt;", "rock")
	require.NoError(t, err)
	assert.NotContains(t, post.Title, "<")
	assert.NotContains(t, post.Body, "<")

	res, err := f.svc.CreateComment(ctx, a, post.ID.String(), "nice &lt;iframe src=//evil&gt;&lt;/iframe&gt;")
	require.NoError(t, err)
	assert.NotContains(t, res.Comment.Body, "<")
	assert.Equal(t, "nice", res.Comment.Body)
}

func TestFieldLengthLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := seedUser(t, f.store, "alice")

	_, err := f.svc.CreatePost(ctx, a, strings.Repeat("t", MaxTitleLength+1), "body", "rock")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidArgument))
	_, err = f.svc.CreatePost(ctx, a, "title", "body", strings.Repeat("c", MaxCategoryLength+1))
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidArgument))
	_, err = f.svc.CreatePost(ctx, a, "title", strings.Repeat("b", MaxBodyLength+1), "rock")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidArgument))

	// limits count characters, not bytes
	post, err := f.svc.CreatePost(ctx, a, strings.Repeat("é", MaxTitleLength), "body", "rock")
	require.NoError(t, err)

	_, err = f.svc.EditPost(ctx, a, post.ID.String(), strings.Repeat("t", MaxTitleLength+1), "body")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidArgument))
	_, err = f.svc.CreateComment(ctx, a, post.ID.String(), strings.Repeat("x", MaxBodyLength+1))
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidArgument))
}
