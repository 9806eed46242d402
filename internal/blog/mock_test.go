package blog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

// мок для интерфейса storage.Storage
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockStorage) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *mockStorage) DeleteUser(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	return m.Called(ctx, group).Error(0)
}

func (m *mockStorage) GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	args := m.Called(ctx, slug)
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *mockStorage) GetGroupsByIDs(ctx context.Context, ids []string) ([]*models.Group, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]*models.Group), args.Error(1)
}

func (m *mockStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Group), args.Error(1)
}

func (m *mockStorage) DeleteGroup(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStorage) CreatePost(ctx context.Context, post *models.Post) error {
	return m.Called(ctx, post).Error(0)
}

func (m *mockStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *mockStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	return m.Called(ctx, post).Error(0)
}

func (m *mockStorage) DeletePost(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStorage) CountPosts(ctx context.Context, filter models.PostFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *mockStorage) ListPosts(ctx context.Context, filter models.PostFilter, limit, offset int) ([]*models.Post, error) {
	args := m.Called(ctx, filter, limit, offset)
	return args.Get(0).([]*models.Post), args.Error(1)
}

func (m *mockStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	return m.Called(ctx, comment).Error(0)
}

func (m *mockStorage) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).([]*models.Comment), args.Error(1)
}

func (m *mockStorage) AddFollow(ctx context.Context, follow *models.Follow) error {
	return m.Called(ctx, follow).Error(0)
}

func (m *mockStorage) RemoveFollow(ctx context.Context, userID, authorID string) error {
	return m.Called(ctx, userID, authorID).Error(0)
}

func (m *mockStorage) IsFollowing(ctx context.Context, userID, authorID string) (bool, error) {
	args := m.Called(ctx, userID, authorID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStorage) CountFollowers(ctx context.Context, authorID string) (int, error) {
	args := m.Called(ctx, authorID)
	return args.Int(0), args.Error(1)
}

func (m *mockStorage) CountFollowing(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockStorage) Close() error {
	return m.Called().Error(0)
}

func TestHomeFeed_StorageError(t *testing.T) {
	store := &mockStorage{}
	store.On("CountPosts", mock.Anything, models.PostFilter{}).Return(0, errors.New("ошибка хранилища"))

	s := New(store, WithLogger(quietLogger()))
	feed, err := s.HomeFeed(context.Background(), "")
	assert.Error(t, err)
	assert.Nil(t, feed)
	assert.Equal(t, "failed to count posts: ошибка хранилища", err.Error())
	store.AssertExpectations(t)
}

func TestHomeFeed_ClampsBeforeQuery(t *testing.T) {
	store := &mockStorage{}
	store.On("CountPosts", mock.Anything, models.PostFilter{}).Return(25, nil)
	store.On("ListPosts", mock.Anything, models.PostFilter{}, 10, 20).Return([]*models.Post{{ID: "p1"}}, nil)

	s := New(store, WithLogger(quietLogger()), WithPageSize(10))
	feed, err := s.HomeFeed(context.Background(), "7")
	assert.NoError(t, err)
	assert.Equal(t, 3, feed.Page.Number)
	assert.Len(t, feed.Posts, 1)
	store.AssertExpectations(t)
}

func TestFollow_DuplicateIsSilent(t *testing.T) {
	store := &mockStorage{}
	store.On("AddFollow", mock.Anything, mock.MatchedBy(func(f *models.Follow) bool {
		return f.UserID == "u1" && f.AuthorID == "a1"
	})).Return(storage.ErrAlreadyExists)

	s := New(store, WithLogger(quietLogger()))
	assert.NoError(t, s.Follow(context.Background(), "u1", "a1"))
	store.AssertExpectations(t)
}

func TestCreatePost_StorageError(t *testing.T) {
	store := &mockStorage{}
	store.On("CreatePost", mock.Anything, mock.AnythingOfType("*models.Post")).Return(errors.New("диск переполнен"))

	s := New(store, WithLogger(quietLogger()))
	_, err := s.CreatePost(context.Background(), "u1", forms.PostInput{Text: "Пост"})
	assert.EqualError(t, err, "failed to create post: диск переполнен")
	store.AssertExpectations(t)
}
