package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

type followKey struct {
	userID   string
	authorID string
}

type MemoryStorage struct {
	users    map[string]*models.User
	groups   map[string]*models.Group
	posts    map[string]*models.Post
	comments map[string][]*models.Comment
	follows  map[followKey]*models.Follow
	mu       sync.RWMutex
}

func New() *MemoryStorage {
	s := &MemoryStorage{}
	s.reset()
	return s
}

func (s *MemoryStorage) reset() {
	s.users = make(map[string]*models.User)
	s.groups = make(map[string]*models.Group)
	s.posts = make(map[string]*models.Post)
	s.comments = make(map[string][]*models.Comment)
	s.follows = make(map[followKey]*models.Follow)
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, storage.ErrAlreadyExists)
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return fmt.Errorf("username %q: %w", user.Username, storage.ErrAlreadyExists)
		}
	}
	u := *user
	s.users[u.ID] = &u
	return nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (s *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, storage.ErrNotFound)
}

// GetUsersByIDs пропускает отсутствующие id, порядок результата не гарантирован.
func (s *MemoryStorage) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, exists := s.users[id]; exists {
			out := *u
			users = append(users, &out)
		}
	}
	return users, nil
}

func (s *MemoryStorage) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[id]; !exists {
		return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}

	for key := range s.follows {
		if key.userID == id || key.authorID == id {
			delete(s.follows, key)
		}
	}
	for postID, comments := range s.comments {
		s.comments[postID] = slices.DeleteFunc(comments, func(c *models.Comment) bool {
			return c.AuthorID == id
		})
	}
	for postID, p := range s.posts {
		if p.AuthorID == id {
			s.deletePostLocked(postID)
		}
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.Slug == group.Slug || g.ID == group.ID {
			return fmt.Errorf("group %q: %w", group.Slug, storage.ErrAlreadyExists)
		}
	}
	g := *group
	s.groups[g.ID] = &g
	return nil
}

func (s *MemoryStorage) GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.Slug == slug {
			out := *g
			return &out, nil
		}
	}
	return nil, fmt.Errorf("group %q: %w", slug, storage.ErrNotFound)
}

func (s *MemoryStorage) GetGroupsByIDs(ctx context.Context, ids []string) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		if g, exists := s.groups[id]; exists {
			out := *g
			groups = append(groups, &out)
		}
	}
	return groups, nil
}

func (s *MemoryStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]*models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out := *g
		groups = append(groups, &out)
	}
	slices.SortFunc(groups, func(a, b *models.Group) int { return cmp.Compare(a.Title, b.Title) })
	return groups, nil
}

func (s *MemoryStorage) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[id]; !exists {
		return fmt.Errorf("group %s: %w", id, storage.ErrNotFound)
	}
	// Посты переживают группу
	for _, p := range s.posts {
		if p.GroupID != nil && *p.GroupID == id {
			p.GroupID = nil
		}
	}
	delete(s.groups, id)
	return nil
}

func (s *MemoryStorage) checkRefsLocked(post *models.Post) error {
	if _, exists := s.users[post.AuthorID]; !exists {
		return fmt.Errorf("author %s: %w", post.AuthorID, storage.ErrNotFound)
	}
	if post.GroupID != nil {
		if _, exists := s.groups[*post.GroupID]; !exists {
			return fmt.Errorf("group %s: %w", *post.GroupID, storage.ErrNotFound)
		}
	}
	return nil
}

func clonePost(p *models.Post) *models.Post {
	out := *p
	if p.GroupID != nil {
		g := *p.GroupID
		out.GroupID = &g
	}
	return &out
}

func (s *MemoryStorage) CreatePost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[post.ID]; exists {
		return fmt.Errorf("post %s: %w", post.ID, storage.ErrAlreadyExists)
	}
	if err := s.checkRefsLocked(post); err != nil {
		return err
	}
	s.posts[post.ID] = clonePost(post)
	return nil
}

func (s *MemoryStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	return clonePost(post), nil
}

// UpdatePost меняет текст, группу и картинку. Автор и дата создания неизменны.
func (s *MemoryStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.posts[post.ID]
	if !exists {
		return fmt.Errorf("post %s: %w", post.ID, storage.ErrNotFound)
	}
	if post.GroupID != nil {
		if _, exists := s.groups[*post.GroupID]; !exists {
			return fmt.Errorf("group %s: %w", *post.GroupID, storage.ErrNotFound)
		}
	}
	updated := clonePost(post)
	updated.AuthorID = stored.AuthorID
	updated.CreatedAt = stored.CreatedAt
	s.posts[post.ID] = updated
	return nil
}

func (s *MemoryStorage) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[id]; !exists {
		return fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	s.deletePostLocked(id)
	return nil
}

func (s *MemoryStorage) deletePostLocked(id string) {
	delete(s.comments, id)
	delete(s.posts, id)
}

func (s *MemoryStorage) matchLocked(filter models.PostFilter) []*models.Post {
	var posts []*models.Post
	for _, p := range s.posts {
		if filter.GroupID != "" && (p.GroupID == nil || *p.GroupID != filter.GroupID) {
			continue
		}
		if filter.AuthorID != "" && p.AuthorID != filter.AuthorID {
			continue
		}
		if filter.FollowerID != "" {
			if _, ok := s.follows[followKey{userID: filter.FollowerID, authorID: p.AuthorID}]; !ok {
				continue
			}
		}
		posts = append(posts, p)
	}
	return posts
}

func (s *MemoryStorage) CountPosts(ctx context.Context, filter models.PostFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.matchLocked(filter)), nil
}

func (s *MemoryStorage) ListPosts(ctx context.Context, filter models.PostFilter, limit, offset int) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := s.matchLocked(filter)
	// Сначала новые, при равном времени - больший id
	slices.SortFunc(posts, func(a, b *models.Post) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if offset < 0 {
		offset = 0
	}
	if offset > len(posts) {
		offset = len(posts)
	}
	end := offset + limit
	if limit <= 0 || end > len(posts) {
		end = len(posts)
	}

	result := make([]*models.Post, 0, end-offset)
	for _, p := range posts[offset:end] {
		result = append(result, clonePost(p))
	}
	return result, nil
}

func (s *MemoryStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[comment.PostID]; !exists {
		return fmt.Errorf("post %s: %w", comment.PostID, storage.ErrNotFound)
	}
	if _, exists := s.users[comment.AuthorID]; !exists {
		return fmt.Errorf("author %s: %w", comment.AuthorID, storage.ErrNotFound)
	}
	c := *comment
	s.comments[c.PostID] = append(s.comments[c.PostID], &c)
	return nil
}

// ListComments - комментарии поста, старые первыми.
func (s *MemoryStorage) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comments := make([]*models.Comment, 0, len(s.comments[postID]))
	for _, c := range s.comments[postID] {
		out := *c
		comments = append(comments, &out)
	}
	slices.SortFunc(comments, func(a, b *models.Comment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return comments, nil
}

func (s *MemoryStorage) AddFollow(ctx context.Context, follow *models.Follow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{follow.UserID, follow.AuthorID} {
		if _, exists := s.users[id]; !exists {
			return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
		}
	}
	key := followKey{userID: follow.UserID, authorID: follow.AuthorID}
	if _, exists := s.follows[key]; exists {
		return fmt.Errorf("follow %s -> %s: %w", follow.UserID, follow.AuthorID, storage.ErrAlreadyExists)
	}
	f := *follow
	s.follows[key] = &f
	return nil
}

func (s *MemoryStorage) RemoveFollow(ctx context.Context, userID, authorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.follows, followKey{userID: userID, authorID: authorID})
	return nil
}

func (s *MemoryStorage) IsFollowing(ctx context.Context, userID, authorID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.follows[followKey{userID: userID, authorID: authorID}]
	return exists, nil
}

func (s *MemoryStorage) CountFollowers(ctx context.Context, authorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.follows {
		if key.authorID == authorID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) CountFollowing(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.follows {
		if key.userID == userID {
			n++
		}
	}
	return n, nil
}

// Close очищает хранилище.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return nil
}
