// Package storagetest - общий набор проверок для реализаций storage.Storage.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func suffix() string {
	return uuid.NewString()[:8]
}

func mkUser(t *testing.T, s storage.Storage, name string) *models.User {
	t.Helper()
	u := &models.User{ID: newID(), Username: name + "-" + suffix(), PasswordHash: "hash", CreatedAt: base}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func mkGroup(t *testing.T, s storage.Storage, slug string) *models.Group {
	t.Helper()
	g := &models.Group{ID: newID(), Title: "Группа " + slug, Slug: slug + "-" + suffix(), Description: "Описание"}
	require.NoError(t, s.CreateGroup(context.Background(), g))
	return g
}

func mkPost(t *testing.T, s storage.Storage, author *models.User, group *models.Group, at time.Time) *models.Post {
	t.Helper()
	p := &models.Post{ID: newID(), Text: "Пост " + at.Format(time.RFC3339), AuthorID: author.ID, CreatedAt: at}
	if group != nil {
		p.GroupID = &group.ID
	}
	require.NoError(t, s.CreatePost(context.Background(), p))
	return p
}

func ids(posts []*models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

// Run прогоняет все проверки. newStore должен возвращать пустое или
// изолированное хранилище; проверки создают уникальные имена и slug'и,
// поэтому одно хранилище можно переиспользовать.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	ctx := context.Background()

	t.Run("Users", func(t *testing.T) {
		s := newStore(t)
		u := mkUser(t, s, "leo")

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Username, got.Username)

		got, err = s.GetUserByUsername(ctx, u.Username)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		dup := &models.User{ID: newID(), Username: u.Username, CreatedAt: base}
		assert.ErrorIs(t, s.CreateUser(ctx, dup), storage.ErrAlreadyExists)

		_, err = s.GetUser(ctx, newID())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		other := mkUser(t, s, "tolstoy")
		users, err := s.GetUsersByIDs(ctx, []string{u.ID, other.ID, newID()})
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})

	t.Run("Groups", func(t *testing.T) {
		s := newStore(t)
		g := mkGroup(t, s, "news")

		got, err := s.GetGroupBySlug(ctx, g.Slug)
		require.NoError(t, err)
		assert.Equal(t, g.ID, got.ID)
		assert.Equal(t, g.Title, got.Title)

		dup := &models.Group{ID: newID(), Title: "x", Slug: g.Slug}
		assert.ErrorIs(t, s.CreateGroup(ctx, dup), storage.ErrAlreadyExists)

		_, err = s.GetGroupBySlug(ctx, "missing-"+newID())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		groups, err := s.GetGroupsByIDs(ctx, []string{g.ID})
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, g.Slug, groups[0].Slug)

		all, err := s.ListGroups(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, all)
	})

	t.Run("Posts ordering and pagination", func(t *testing.T) {
		s := newStore(t)
		author := mkUser(t, s, "author")
		var created []*models.Post
		for i := 0; i < 13; i++ {
			created = append(created, mkPost(t, s, author, nil, base.Add(time.Duration(i)*time.Minute)))
		}
		// Два поста с одинаковым временем: порядок по id
		same := base.Add(time.Hour)
		a := mkPost(t, s, author, nil, same)
		b := mkPost(t, s, author, nil, same)

		filter := models.PostFilter{AuthorID: author.ID}
		count, err := s.CountPosts(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, 15, count)

		first, err := s.ListPosts(ctx, filter, 10, 0)
		require.NoError(t, err)
		require.Len(t, first, 10)
		assert.Equal(t, b.ID, first[0].ID, "при равном времени первым идет больший id")
		assert.Equal(t, a.ID, first[1].ID)
		assert.Equal(t, created[12].ID, first[2].ID)

		second, err := s.ListPosts(ctx, filter, 10, 10)
		require.NoError(t, err)
		require.Len(t, second, 5)
		assert.Equal(t, created[0].ID, second[4].ID)

		all := append(ids(first), ids(second)...)
		seen := map[string]bool{}
		for _, id := range all {
			assert.False(t, seen[id], "пост %s встретился дважды", id)
			seen[id] = true
		}
		assert.Len(t, seen, 15)
	})

	t.Run("Posts filters", func(t *testing.T) {
		s := newStore(t)
		author := mkUser(t, s, "author")
		other := mkUser(t, s, "other")
		group := mkGroup(t, s, "cats")
		inGroup := mkPost(t, s, author, group, base)
		mkPost(t, s, other, nil, base.Add(time.Minute))

		posts, err := s.ListPosts(ctx, models.PostFilter{GroupID: group.ID}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{inGroup.ID}, ids(posts))

		got, err := s.GetPost(ctx, inGroup.ID)
		require.NoError(t, err)
		require.NotNil(t, got.GroupID)
		assert.Equal(t, group.ID, *got.GroupID)
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("Post references", func(t *testing.T) {
		s := newStore(t)
		p := &models.Post{ID: newID(), Text: "x", AuthorID: newID(), CreatedAt: base}
		assert.ErrorIs(t, s.CreatePost(ctx, p), storage.ErrNotFound)

		_, err := s.GetPost(ctx, newID())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdatePost keeps author and date", func(t *testing.T) {
		s := newStore(t)
		author := mkUser(t, s, "author")
		group := mkGroup(t, s, "edit")
		p := mkPost(t, s, author, nil, base)

		upd := *p
		upd.Text = "Изменённый текст"
		upd.GroupID = &group.ID
		upd.Image = "posts/small.gif"
		upd.AuthorID = newID()
		upd.CreatedAt = base.Add(48 * time.Hour)
		require.NoError(t, s.UpdatePost(ctx, &upd))

		got, err := s.GetPost(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Изменённый текст", got.Text)
		assert.Equal(t, "posts/small.gif", got.Image)
		assert.Equal(t, author.ID, got.AuthorID)
		assert.True(t, got.CreatedAt.Equal(base))
		require.NotNil(t, got.GroupID)
		assert.Equal(t, group.ID, *got.GroupID)

		missing := *p
		missing.ID = newID()
		assert.ErrorIs(t, s.UpdatePost(ctx, &missing), storage.ErrNotFound)
	})

	t.Run("Comments and post cascade", func(t *testing.T) {
		s := newStore(t)
		author := mkUser(t, s, "author")
		p := mkPost(t, s, author, nil, base)
		for i := 0; i < 3; i++ {
			c := &models.Comment{
				ID:        newID(),
				PostID:    p.ID,
				AuthorID:  author.ID,
				Text:      fmt.Sprintf("Комментарий %d", i),
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, s.CreateComment(ctx, c))
		}

		comments, err := s.ListComments(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, comments, 3)
		assert.Equal(t, "Комментарий 0", comments[0].Text, "старые комментарии первыми")

		bad := &models.Comment{ID: newID(), PostID: newID(), AuthorID: author.ID, Text: "x", CreatedAt: base}
		assert.ErrorIs(t, s.CreateComment(ctx, bad), storage.ErrNotFound)

		require.NoError(t, s.DeletePost(ctx, p.ID))
		_, err = s.GetPost(ctx, p.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		comments, err = s.ListComments(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, comments)

		assert.ErrorIs(t, s.DeletePost(ctx, p.ID), storage.ErrNotFound)
	})

	t.Run("DeleteGroup nulls post group", func(t *testing.T) {
		s := newStore(t)
		author := mkUser(t, s, "author")
		group := mkGroup(t, s, "gone")
		p := mkPost(t, s, author, group, base)

		require.NoError(t, s.DeleteGroup(ctx, group.ID))

		got, err := s.GetPost(ctx, p.ID)
		require.NoError(t, err)
		assert.Nil(t, got.GroupID)
		_, err = s.GetGroupBySlug(ctx, group.Slug)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Follows", func(t *testing.T) {
		s := newStore(t)
		user := mkUser(t, s, "reader")
		author := mkUser(t, s, "writer")
		stranger := mkUser(t, s, "stranger")
		var authorPosts []string
		for i := 0; i < 3; i++ {
			authorPosts = append(authorPosts, mkPost(t, s, author, nil, base.Add(time.Duration(i)*time.Minute)).ID)
		}
		mkPost(t, s, stranger, nil, base.Add(time.Hour))

		following, err := s.IsFollowing(ctx, user.ID, author.ID)
		require.NoError(t, err)
		assert.False(t, following)

		f := &models.Follow{UserID: user.ID, AuthorID: author.ID, CreatedAt: base}
		require.NoError(t, s.AddFollow(ctx, f))
		assert.ErrorIs(t, s.AddFollow(ctx, f), storage.ErrAlreadyExists)

		following, err = s.IsFollowing(ctx, user.ID, author.ID)
		require.NoError(t, err)
		assert.True(t, following)

		n, err := s.CountFollowers(ctx, author.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = s.CountFollowing(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		feed := models.PostFilter{FollowerID: user.ID}
		count, err := s.CountPosts(ctx, feed)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		posts, err := s.ListPosts(ctx, feed, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{authorPosts[2], authorPosts[1], authorPosts[0]}, ids(posts))

		strangerFeed, err := s.ListPosts(ctx, models.PostFilter{FollowerID: stranger.ID}, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, strangerFeed)

		require.NoError(t, s.RemoveFollow(ctx, user.ID, author.ID))
		require.NoError(t, s.RemoveFollow(ctx, user.ID, author.ID))
		following, err = s.IsFollowing(ctx, user.ID, author.ID)
		require.NoError(t, err)
		assert.False(t, following)
	})

	t.Run("DeleteUser cascades", func(t *testing.T) {
		s := newStore(t)
		victim := mkUser(t, s, "victim")
		reader := mkUser(t, s, "reader")
		own := mkPost(t, s, victim, nil, base)
		readerPost := mkPost(t, s, reader, nil, base)
		require.NoError(t, s.CreateComment(ctx, &models.Comment{
			ID: newID(), PostID: readerPost.ID, AuthorID: victim.ID, Text: "от жертвы", CreatedAt: base,
		}))
		require.NoError(t, s.CreateComment(ctx, &models.Comment{
			ID: newID(), PostID: own.ID, AuthorID: reader.ID, Text: "под постом жертвы", CreatedAt: base,
		}))
		require.NoError(t, s.AddFollow(ctx, &models.Follow{UserID: reader.ID, AuthorID: victim.ID, CreatedAt: base}))

		require.NoError(t, s.DeleteUser(ctx, victim.ID))

		_, err := s.GetPost(ctx, own.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		comments, err := s.ListComments(ctx, readerPost.ID)
		require.NoError(t, err)
		assert.Empty(t, comments)
		n, err := s.CountFollowing(ctx, reader.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		_, err = s.GetUser(ctx, victim.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
