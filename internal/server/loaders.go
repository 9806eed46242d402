package server

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/ButyrinIA/blog/internal/blog"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

const loaderWait = time.Millisecond

// loaders собирают авторов и группы одной страницы в два запроса к хранилищу.
// Живут один запрос.
type loaders struct {
	users  *dataloader.Loader[string, *models.User]
	groups *dataloader.Loader[string, *models.Group]
}

func newLoaders(svc *blog.Service) *loaders {
	return &loaders{
		users: dataloader.NewBatchedLoader(
			batchByID(svc.UsersByIDs, func(u *models.User) string { return u.ID }),
			dataloader.WithWait[string, *models.User](loaderWait),
		),
		groups: dataloader.NewBatchedLoader(
			batchByID(svc.GroupsByIDs, func(g *models.Group) string { return g.ID }),
			dataloader.WithWait[string, *models.Group](loaderWait),
		),
	}
}

// batchByID раскладывает ответ хранилища в порядке запрошенных ключей.
func batchByID[V any](fetch func(context.Context, []string) ([]V, error), id func(V) string) dataloader.BatchFunc[string, V] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[V] {
		results := make([]*dataloader.Result[V], len(keys))
		items, err := fetch(ctx, keys)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[V]{Error: err}
			}
			return results
		}

		byID := make(map[string]V, len(items))
		for _, item := range items {
			byID[id(item)] = item
		}
		for i, key := range keys {
			if item, ok := byID[key]; ok {
				results[i] = &dataloader.Result[V]{Data: item}
			} else {
				results[i] = &dataloader.Result[V]{Error: fmt.Errorf("%s: %w", key, storage.ErrNotFound)}
			}
		}
		return results
	}
}

func (l *loaders) posts(ctx context.Context, posts []*models.Post) ([]postView, error) {
	authors := make([]dataloader.Thunk[*models.User], len(posts))
	groups := make([]dataloader.Thunk[*models.Group], len(posts))
	for i, p := range posts {
		authors[i] = l.users.Load(ctx, p.AuthorID)
		if p.GroupID != nil {
			groups[i] = l.groups.Load(ctx, *p.GroupID)
		}
	}

	views := make([]postView, len(posts))
	for i, p := range posts {
		author, err := authors[i]()
		if err != nil {
			return nil, fmt.Errorf("автор поста %s: %w", p.ID, err)
		}
		views[i] = postView{Post: p, Author: author}
		if groups[i] != nil {
			if views[i].Group, err = groups[i](); err != nil {
				return nil, fmt.Errorf("группа поста %s: %w", p.ID, err)
			}
		}
	}
	return views, nil
}

func (l *loaders) post(ctx context.Context, p *models.Post) (*postView, error) {
	views, err := l.posts(ctx, []*models.Post{p})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (l *loaders) comments(ctx context.Context, comments []*models.Comment) ([]commentView, error) {
	authors := make([]dataloader.Thunk[*models.User], len(comments))
	for i, cm := range comments {
		authors[i] = l.users.Load(ctx, cm.AuthorID)
	}
	views := make([]commentView, len(comments))
	for i, cm := range comments {
		author, err := authors[i]()
		if err != nil {
			return nil, fmt.Errorf("автор комментария %s: %w", cm.ID, err)
		}
		views[i] = commentView{Comment: cm, Author: author}
	}
	return views, nil
}
