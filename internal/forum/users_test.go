package forum

import (
	"context"
	"testing"
	"time"

	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.RegisterUser(ctx, "slash", "slash@gnr.test", "paradise-city")
	require.NoError(t, err)
	assert.NotEqual(t, "paradise-city", u.HashedPassword)

	_, err = f.svc.RegisterUser(ctx, "SLASH", "other@gnr.test", "paradise-city")
	assert.True(t, utils.IsErrorCode(err, utils.ErrConflict))
	_, err = f.svc.RegisterUser(ctx, "axl", "axl@gnr.test", "short")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidArgument))

	me := Identity{ID: u.ID, Name: u.Username}
	err = f.svc.ChangePassword(ctx, me, "wrong-password", "november-rain")
	assert.True(t, utils.IsErrorCode(err, utils.ErrForbidden))
	require.NoError(t, f.svc.ChangePassword(ctx, me, "paradise-city", "november-rain"))
	require.NoError(t, f.svc.ChangePassword(ctx, me, "november-rain", "paradise-city"))
}

func TestProfileUpdatesInvalidateCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := seedUser(t, f.store, "duff")

	before, err := f.svc.GetUser(ctx, me.ID.String())
	require.NoError(t, err)
	assert.Empty(t, before.Signature)

	_, err = f.svc.UpdateSignature(ctx, me, "<i>Bass</i> player")
	require.NoError(t, err)
	birth := time.Date(1964, 2, 5, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.UpdateProfile(ctx, me, "Seattle born", "Seattle", &birth)
	require.NoError(t, err)

	after, err := f.svc.GetUser(ctx, me.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Bass player", after.Signature)
	assert.Equal(t, "Seattle", after.Location)

	future := time.Now().Add(48 * time.Hour)
	_, err = f.svc.UpdateProfile(ctx, me, "", "", &future)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidArgument))
}

func TestListUserPostsStickyFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := seedUser(t, f.store, "izzy")

	first := f.post(t, me)
	f.post(t, me)
	last := f.post(t, me)
	_, err := f.svc.SetSticky(ctx, me, first.ID.String(), true)
	require.NoError(t, err)

	page, err := f.svc.ListUserPosts(ctx, me.ID.String(), models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Posts, 3)
	assert.Equal(t, first.ID, page.Posts[0].ID)
	assert.Equal(t, last.ID, page.Posts[1].ID)
}

func TestListPostsByCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := seedUser(t, f.store, "slash")

	first := f.post(t, me)
	last := f.post(t, me)
	_, err := f.svc.CreatePost(ctx, me, "Les Paul or SG", "Fight.", "gear")
	require.NoError(t, err)
	_, err = f.svc.SetSticky(ctx, me, first.ID.String(), true)
	require.NoError(t, err)

	page, err := f.svc.ListPostsByCategory(ctx, " rock ", models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, first.ID, page.Posts[0].ID)
	assert.Equal(t, last.ID, page.Posts[1].ID)

	_, err = f.svc.ListPostsByCategory(ctx, "", models.Page{Number: 1, Limit: 10})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidArgument))
}
