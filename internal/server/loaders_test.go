package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

func TestBatchByID_KeyOrder(t *testing.T) {
	var calls [][]string
	fetch := func(_ context.Context, ids []string) ([]*models.User, error) {
		calls = append(calls, ids)
		// хранилище отдает в своем порядке и без отсутствующих
		return []*models.User{{ID: "b", Username: "bob"}, {ID: "a", Username: "ann"}}, nil
	}
	batch := batchByID(fetch, func(u *models.User) string { return u.ID })

	results := batch(context.Background(), []string{"a", "missing", "b"})
	require.Len(t, results, 3)
	require.Len(t, calls, 1)

	assert.Equal(t, "ann", results[0].Data.Username)
	assert.ErrorIs(t, results[1].Error, storage.ErrNotFound)
	assert.Equal(t, "bob", results[2].Data.Username)
}

func TestBatchByID_FetchError(t *testing.T) {
	boom := errors.New("нет соединения")
	batch := batchByID(func(context.Context, []string) ([]*models.Group, error) {
		return nil, boom
	}, func(g *models.Group) string { return g.ID })

	results := batch(context.Background(), []string{"g1", "g2"})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Error, boom)
	}
}

func TestLoadersPosts(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	g, err := e.svc.EnsureGroup(ctx, forms.GroupInput{Title: "Коты", Slug: "cats"})
	require.NoError(t, err)
	a, _ := e.user(t, "ann")
	b, _ := e.user(t, "bob")
	p1 := e.post(t, a.ID, "С группой", "cats")
	p2 := e.post(t, b.ID, "Без группы", "")
	p3 := e.post(t, a.ID, "Ещё один", "")

	views, err := newLoaders(e.svc).posts(ctx, []*models.Post{p1, p2, p3})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "ann", views[0].Author.Username)
	require.NotNil(t, views[0].Group)
	assert.Equal(t, g.Slug, views[0].Group.Slug)
	assert.Equal(t, "bob", views[1].Author.Username)
	assert.Nil(t, views[1].Group)
	assert.Equal(t, "ann", views[2].Author.Username)

	orphan := &models.Post{ID: "orphan", AuthorID: "nobody"}
	_, err = newLoaders(e.svc).posts(ctx, []*models.Post{orphan})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
