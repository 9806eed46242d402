package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Внешние ключи без ON DELETE: каскады выполняются явно в транзакциях.
const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		slug VARCHAR(50) NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT COLLATE "C" PRIMARY KEY,
		text TEXT NOT NULL,
		author_id TEXT NOT NULL REFERENCES users(id),
		group_id TEXT REFERENCES groups(id),
		image TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS comments (
		id TEXT COLLATE "C" PRIMARY KEY,
		post_id TEXT COLLATE "C" NOT NULL REFERENCES posts(id),
		author_id TEXT NOT NULL REFERENCES users(id),
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS follows (
		user_id TEXT NOT NULL REFERENCES users(id),
		author_id TEXT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT unique_author_user UNIQUE (author_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);
	CREATE INDEX IF NOT EXISTS idx_posts_group ON posts(group_id);
	CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);
	CREATE INDEX IF NOT EXISTS idx_follows_user ON follows(user_id);
`

type PostgresStorage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*PostgresStorage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// mapErr переводит ошибки ограничений в ошибки хранилища.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", what, storage.ErrAlreadyExists)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, storage.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *PostgresStorage) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	return mapErr(err, "create user")
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at FROM users WHERE id=$1`, id))
	return u, mapErr(err, "get user")
}

func (s *PostgresStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at FROM users WHERE username=$1`, username))
	return u, mapErr(err, "get user by username")
}

func (s *PostgresStorage) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, password_hash, created_at FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapErr(err, "get users")
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStorage) DeleteUser(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		steps := []string{
			`DELETE FROM follows WHERE user_id=$1 OR author_id=$1`,
			`DELETE FROM comments WHERE author_id=$1`,
			`DELETE FROM comments WHERE post_id IN (SELECT id FROM posts WHERE author_id=$1)`,
			`DELETE FROM posts WHERE author_id=$1`,
		}
		for _, q := range steps {
			if _, err := tx.Exec(ctx, q, id); err != nil {
				return mapErr(err, "delete user")
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
		if err != nil {
			return mapErr(err, "delete user")
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

func (s *PostgresStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO groups (id, title, slug, description)
		VALUES ($1, $2, $3, $4)`,
		group.ID, group.Title, group.Slug, group.Description)
	return mapErr(err, "create group")
}

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	if err := row.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStorage) GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx, `
		SELECT id, title, slug, description FROM groups WHERE slug=$1`, slug))
	return g, mapErr(err, "get group")
}

func (s *PostgresStorage) queryGroups(ctx context.Context, query string, args ...any) ([]*models.Group, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "list groups")
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *PostgresStorage) GetGroupsByIDs(ctx context.Context, ids []string) ([]*models.Group, error) {
	return s.queryGroups(ctx, `SELECT id, title, slug, description FROM groups WHERE id = ANY($1)`, ids)
}

func (s *PostgresStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return s.queryGroups(ctx, `SELECT id, title, slug, description FROM groups ORDER BY title`)
}

func (s *PostgresStorage) DeleteGroup(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE posts SET group_id=NULL WHERE group_id=$1`, id); err != nil {
			return mapErr(err, "delete group")
		}
		tag, err := tx.Exec(ctx, `DELETE FROM groups WHERE id=$1`, id)
		if err != nil {
			return mapErr(err, "delete group")
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("group %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

const postColumns = `id, text, author_id, group_id, image, created_at`

func scanPost(row pgx.Row) (*models.Post, error) {
	var p models.Post
	if err := row.Scan(&p.ID, &p.Text, &p.AuthorID, &p.GroupID, &p.Image, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStorage) CreatePost(ctx context.Context, post *models.Post) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		post.ID, post.Text, post.AuthorID, post.GroupID, post.Image, post.CreatedAt)
	return mapErr(err, "create post")
}

func (s *PostgresStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, id))
	return p, mapErr(err, "get post")
}

func (s *PostgresStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts SET text=$2, group_id=$3, image=$4 WHERE id=$1`,
		post.ID, post.Text, post.GroupID, post.Image)
	if err != nil {
		return mapErr(err, "update post")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %s: %w", post.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *PostgresStorage) DeletePost(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE post_id=$1`, id); err != nil {
			return mapErr(err, "delete post")
		}
		tag, err := tx.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
		if err != nil {
			return mapErr(err, "delete post")
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

// Пустое значение поля фильтра отключает условие.
const postWhere = `
	WHERE ($1 = '' OR group_id = $1)
	AND ($2 = '' OR author_id = $2)
	AND ($3 = '' OR author_id IN (SELECT author_id FROM follows WHERE user_id = $3))`

func (s *PostgresStorage) CountPosts(ctx context.Context, filter models.PostFilter) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`+postWhere,
		filter.GroupID, filter.AuthorID, filter.FollowerID).Scan(&count)
	return count, mapErr(err, "count posts")
}

func (s *PostgresStorage) ListPosts(ctx context.Context, filter models.PostFilter, limit, offset int) ([]*models.Post, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postColumns+` FROM posts`+postWhere+`
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5`,
		filter.GroupID, filter.AuthorID, filter.FollowerID, limit, offset)
	if err != nil {
		return nil, mapErr(err, "list posts")
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *PostgresStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO comments (id, post_id, author_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		comment.ID, comment.PostID, comment.AuthorID, comment.Text, comment.CreatedAt)
	return mapErr(err, "create comment")
}

func (s *PostgresStorage) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, post_id, author_id, text, created_at
		FROM comments
		WHERE post_id=$1
		ORDER BY created_at, id`, postID)
	if err != nil {
		return nil, mapErr(err, "list comments")
	}
	defer rows.Close()

	comments := []*models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

func (s *PostgresStorage) AddFollow(ctx context.Context, follow *models.Follow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO follows (user_id, author_id, created_at)
		VALUES ($1, $2, $3)`,
		follow.UserID, follow.AuthorID, follow.CreatedAt)
	return mapErr(err, "add follow")
}

func (s *PostgresStorage) RemoveFollow(ctx context.Context, userID, authorID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM follows WHERE user_id=$1 AND author_id=$2`, userID, authorID)
	return mapErr(err, "remove follow")
}

func (s *PostgresStorage) IsFollowing(ctx context.Context, userID, authorID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE user_id=$1 AND author_id=$2)`,
		userID, authorID).Scan(&exists)
	return exists, mapErr(err, "is following")
}

func (s *PostgresStorage) CountFollowers(ctx context.Context, authorID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE author_id=$1`, authorID).Scan(&n)
	return n, mapErr(err, "count followers")
}

func (s *PostgresStorage) CountFollowing(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE user_id=$1`, userID).Scan(&n)
	return n, mapErr(err, "count following")
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
