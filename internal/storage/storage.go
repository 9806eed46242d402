package storage

import (
	"context"
	"errors"

	"github.com/ButyrinIA/blog/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Storage - хранилище блога. Каскадные удаления реализации выполняют явно:
// DeletePost удаляет комментарии поста, DeleteGroup обнуляет группу у постов,
// DeleteUser удаляет подписки, комментарии и посты пользователя.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error)
	GetGroupsByIDs(ctx context.Context, ids []string) ([]*models.Group, error)
	ListGroups(ctx context.Context) ([]*models.Group, error)
	DeleteGroup(ctx context.Context, id string) error

	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, id string) error
	CountPosts(ctx context.Context, filter models.PostFilter) (int, error)
	ListPosts(ctx context.Context, filter models.PostFilter, limit, offset int) ([]*models.Post, error)

	CreateComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, postID string) ([]*models.Comment, error)

	AddFollow(ctx context.Context, follow *models.Follow) error
	RemoveFollow(ctx context.Context, userID, authorID string) error
	IsFollowing(ctx context.Context, userID, authorID string) (bool, error)
	CountFollowers(ctx context.Context, authorID string) (int, error)
	CountFollowing(ctx context.Context, userID string) (int, error)

	Close() error
}
