// Package blog - прикладная логика блога: ленты, посты, комментарии и подписки
// поверх storage.Storage.
package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/paginator"
	"github.com/ButyrinIA/blog/internal/storage"
)

var (
	ErrForbidden  = errors.New("only the author can change the post")
	ErrSelfFollow = errors.New("cannot follow yourself")
)

// ValidationError - ввод не прошел проверку, в хранилище ничего не записано.
type ValidationError struct {
	Fields forms.Errors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func invalid(fields forms.Errors) error {
	return &ValidationError{Fields: fields}
}

type Service struct {
	store    storage.Storage
	pageSize int
	now      func() time.Time
	log      logrus.FieldLogger
}

type Option func(*Service)

func WithPageSize(size int) Option {
	return func(s *Service) { s.pageSize = size }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

func New(store storage.Storage, opts ...Option) *Service {
	s := &Service{
		store:    store,
		pageSize: paginator.DefaultPageSize,
		now:      time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) PageSize() int { return s.pageSize }

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Feed - одна страница ленты.
type Feed struct {
	Posts []*models.Post
	Page  paginator.Page
}

func (s *Service) feed(ctx context.Context, filter models.PostFilter, rawPage string) (*Feed, error) {
	count, err := s.store.CountPosts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}
	page := paginator.New(count, s.pageSize).Page(rawPage)

	posts, err := s.store.ListPosts(ctx, filter, page.Limit(), page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return &Feed{Posts: posts, Page: page}, nil
}

func (s *Service) HomeFeed(ctx context.Context, rawPage string) (*Feed, error) {
	return s.feed(ctx, models.PostFilter{}, rawPage)
}

func (s *Service) GroupFeed(ctx context.Context, slug, rawPage string) (*models.Group, *Feed, error) {
	group, err := s.store.GetGroupBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	feed, err := s.feed(ctx, models.PostFilter{GroupID: group.ID}, rawPage)
	if err != nil {
		return nil, nil, err
	}
	return group, feed, nil
}

func (s *Service) ProfileFeed(ctx context.Context, username, rawPage string) (*models.User, *Feed, error) {
	author, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	feed, err := s.feed(ctx, models.PostFilter{AuthorID: author.ID}, rawPage)
	if err != nil {
		return nil, nil, err
	}
	return author, feed, nil
}

// FollowFeed - посты авторов, на которых подписан userID.
func (s *Service) FollowFeed(ctx context.Context, userID, rawPage string) (*Feed, error) {
	return s.feed(ctx, models.PostFilter{FollowerID: userID}, rawPage)
}

func (s *Service) Post(ctx context.Context, id string) (*models.Post, error) {
	return s.store.GetPost(ctx, id)
}

func (s *Service) PostDetail(ctx context.Context, id string) (*models.Post, []*models.Comment, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.store.ListComments(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return post, comments, nil
}

// resolveGroup превращает slug из формы в ссылку на группу.
func (s *Service) resolveGroup(ctx context.Context, slug string) (*string, error) {
	if slug == "" {
		return nil, nil
	}
	group, err := s.store.GetGroupBySlug(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		errs := forms.Errors{}
		errs.Add("group", "Выберите корректную группу.")
		return nil, invalid(errs)
	}
	if err != nil {
		return nil, err
	}
	return &group.ID, nil
}

func (s *Service) CreatePost(ctx context.Context, authorID string, in forms.PostInput) (*models.Post, error) {
	res := forms.ValidatePost(in)
	if !res.Valid() {
		return nil, invalid(res.Errors)
	}
	groupID, err := s.resolveGroup(ctx, res.Value.GroupSlug)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:        newID(),
		Text:      res.Value.Text,
		AuthorID:  authorID,
		GroupID:   groupID,
		Image:     res.Value.Image,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	s.log.WithFields(logrus.Fields{"post_id": post.ID, "author_id": authorID}).Info("post created")
	return post, nil
}

// authorize загружает пост и проверяет, что actorID - его автор.
func (s *Service) authorize(ctx context.Context, actorID, postID string) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actorID {
		return post, ErrForbidden
	}
	return post, nil
}

// CanEdit сообщает, может ли actorID редактировать пост.
func (s *Service) CanEdit(ctx context.Context, actorID, postID string) (*models.Post, error) {
	return s.authorize(ctx, actorID, postID)
}

func (s *Service) EditPost(ctx context.Context, actorID, postID string, in forms.PostInput) (*models.Post, error) {
	post, err := s.authorize(ctx, actorID, postID)
	if err != nil {
		return post, err
	}
	res := forms.ValidatePost(in)
	if !res.Valid() {
		return post, invalid(res.Errors)
	}
	groupID, err := s.resolveGroup(ctx, res.Value.GroupSlug)
	if err != nil {
		return post, err
	}

	post.Text = res.Value.Text
	post.GroupID = groupID
	post.Image = res.Value.Image
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	s.log.WithFields(logrus.Fields{"post_id": post.ID, "author_id": actorID}).Info("post edited")
	return post, nil
}

func (s *Service) DeletePost(ctx context.Context, actorID, postID string) error {
	if _, err := s.authorize(ctx, actorID, postID); err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	s.log.WithFields(logrus.Fields{"post_id": postID, "author_id": actorID}).Info("post deleted")
	return nil
}

func (s *Service) AddComment(ctx context.Context, authorID, postID string, in forms.CommentInput) (*models.Comment, error) {
	res := forms.ValidateComment(in)
	if !res.Valid() {
		return nil, invalid(res.Errors)
	}
	comment := &models.Comment{
		ID:        newID(),
		PostID:    postID,
		AuthorID:  authorID,
		Text:      res.Value.Text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	s.log.WithFields(logrus.Fields{"post_id": postID, "comment_id": comment.ID}).Info("comment added")
	return comment, nil
}

// Follow добавляет подписку. Повторная подписка ничего не меняет.
func (s *Service) Follow(ctx context.Context, userID, authorID string) error {
	if userID == authorID {
		return ErrSelfFollow
	}
	err := s.store.AddFollow(ctx, &models.Follow{UserID: userID, AuthorID: authorID, CreatedAt: s.now().UTC()})
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		return nil
	case err != nil:
		return fmt.Errorf("failed to follow: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "author_id": authorID}).Info("follow added")
	return nil
}

func (s *Service) Unfollow(ctx context.Context, userID, authorID string) error {
	if err := s.store.RemoveFollow(ctx, userID, authorID); err != nil {
		return fmt.Errorf("failed to unfollow: %w", err)
	}
	return nil
}

func (s *Service) IsFollowing(ctx context.Context, userID, authorID string) (bool, error) {
	if userID == "" || userID == authorID {
		return false, nil
	}
	return s.store.IsFollowing(ctx, userID, authorID)
}

type FollowStats struct {
	Followers int
	Following int
}

func (s *Service) FollowStats(ctx context.Context, userID string) (FollowStats, error) {
	var st FollowStats
	var err error
	if st.Followers, err = s.store.CountFollowers(ctx, userID); err != nil {
		return st, err
	}
	if st.Following, err = s.store.CountFollowing(ctx, userID); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Service) Groups(ctx context.Context) ([]*models.Group, error) {
	return s.store.ListGroups(ctx)
}

// EnsureGroup создает группу или возвращает существующую с тем же slug.
func (s *Service) EnsureGroup(ctx context.Context, in forms.GroupInput) (*models.Group, error) {
	res := forms.ValidateGroup(in)
	if !res.Valid() {
		return nil, invalid(res.Errors)
	}
	if existing, err := s.store.GetGroupBySlug(ctx, res.Value.Slug); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	group := &models.Group{
		ID:          newID(),
		Title:       res.Value.Title,
		Slug:        res.Value.Slug,
		Description: res.Value.Description,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	s.log.WithField("slug", group.Slug).Info("group created")
	return group, nil
}

func (s *Service) DeleteGroup(ctx context.Context, slug string) error {
	group, err := s.store.GetGroupBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if err := s.store.DeleteGroup(ctx, group.ID); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	s.log.WithField("slug", slug).Info("group deleted")
	return nil
}
