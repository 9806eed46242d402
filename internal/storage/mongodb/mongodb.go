// Package mongodb - реализация хранилища поверх MongoDB.
//
// Транзакции требуют replica set, поэтому каскадные удаления идут
// последовательно: сначала зависимые документы, потом сам документ.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

const (
	colUsers    = "users"
	colGroups   = "groups"
	colPosts    = "posts"
	colComments = "comments"
	colFollows  = "follows"
)

type MongoStorage struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *mongo.Collection
	groups   *mongo.Collection
	posts    *mongo.Collection
	comments *mongo.Collection
	follows  *mongo.Collection
}

func New(ctx context.Context, uri, database string) (*MongoStorage, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStorage{
		client:   client,
		db:       db,
		users:    db.Collection(colUsers),
		groups:   db.Collection(colGroups),
		posts:    db.Collection(colPosts),
		comments: db.Collection(colComments),
		follows:  db.Collection(colFollows),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStorage) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.users:  {{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique}},
		s.groups: {{Keys: bson.D{{Key: "slug", Value: 1}}, Options: unique}},
		s.posts: {
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "author_id", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}}},
		},
		s.comments: {{Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "created_at", Value: 1}}}},
		s.follows: {
			{Keys: bson.D{{Key: "author_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
	}
	for col, ims := range indexes {
		if _, err := col.Indexes().CreateMany(ctx, ims); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", col.Name(), err)
		}
	}
	return nil
}

func mapErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", what, storage.ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *MongoStorage) exists(ctx context.Context, col *mongo.Collection, id string) (bool, error) {
	n, err := col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// requireExists - замена внешнего ключа.
func (s *MongoStorage) requireExists(ctx context.Context, col *mongo.Collection, id string) error {
	ok, err := s.exists(ctx, col, id)
	if err != nil {
		return mapErr(err, col.Name())
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", col.Name(), id, storage.ErrNotFound)
	}
	return nil
}

func (s *MongoStorage) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.users.InsertOne(ctx, user)
	return mapErr(err, "create user")
}

func (s *MongoStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, mapErr(err, "get user")
	}
	return &u, nil
}

func (s *MongoStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"username": username}).Decode(&u); err != nil {
		return nil, mapErr(err, "get user by username")
	}
	return &u, nil
}

func (s *MongoStorage) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, mapErr(err, "get users")
	}
	var users []*models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, mapErr(err, "get users")
	}
	return users, nil
}

func (s *MongoStorage) DeleteUser(ctx context.Context, id string) error {
	if err := s.requireExists(ctx, s.users, id); err != nil {
		return err
	}

	if _, err := s.follows.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"user_id": id},
		bson.M{"author_id": id},
	}}); err != nil {
		return mapErr(err, "delete user follows")
	}
	if _, err := s.comments.DeleteMany(ctx, bson.M{"author_id": id}); err != nil {
		return mapErr(err, "delete user comments")
	}

	postIDs, err := s.postIDsBy(ctx, bson.M{"author_id": id})
	if err != nil {
		return err
	}
	if len(postIDs) > 0 {
		if _, err := s.comments.DeleteMany(ctx, bson.M{"post_id": bson.M{"$in": postIDs}}); err != nil {
			return mapErr(err, "delete user post comments")
		}
		if _, err := s.posts.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": postIDs}}); err != nil {
			return mapErr(err, "delete user posts")
		}
	}

	_, err = s.users.DeleteOne(ctx, bson.M{"_id": id})
	return mapErr(err, "delete user")
}

func (s *MongoStorage) postIDsBy(ctx context.Context, filter bson.M) ([]string, error) {
	cur, err := s.posts.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, mapErr(err, "find posts")
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapErr(err, "find posts")
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (s *MongoStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	_, err := s.groups.InsertOne(ctx, group)
	return mapErr(err, "create group")
}

func (s *MongoStorage) GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	var g models.Group
	if err := s.groups.FindOne(ctx, bson.M{"slug": slug}).Decode(&g); err != nil {
		return nil, mapErr(err, "get group")
	}
	return &g, nil
}

func (s *MongoStorage) findGroups(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOptions]) ([]*models.Group, error) {
	cur, err := s.groups.Find(ctx, filter, opts...)
	if err != nil {
		return nil, mapErr(err, "list groups")
	}
	var groups []*models.Group
	if err := cur.All(ctx, &groups); err != nil {
		return nil, mapErr(err, "list groups")
	}
	return groups, nil
}

func (s *MongoStorage) GetGroupsByIDs(ctx context.Context, ids []string) ([]*models.Group, error) {
	return s.findGroups(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (s *MongoStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return s.findGroups(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "title", Value: 1}}))
}

func (s *MongoStorage) DeleteGroup(ctx context.Context, id string) error {
	if err := s.requireExists(ctx, s.groups, id); err != nil {
		return err
	}
	if _, err := s.posts.UpdateMany(ctx,
		bson.M{"group_id": id},
		bson.M{"$set": bson.M{"group_id": nil}},
	); err != nil {
		return mapErr(err, "detach group posts")
	}
	_, err := s.groups.DeleteOne(ctx, bson.M{"_id": id})
	return mapErr(err, "delete group")
}

func (s *MongoStorage) checkPostRefs(ctx context.Context, post *models.Post) error {
	if post.GroupID != nil {
		if err := s.requireExists(ctx, s.groups, *post.GroupID); err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoStorage) CreatePost(ctx context.Context, post *models.Post) error {
	if err := s.requireExists(ctx, s.users, post.AuthorID); err != nil {
		return err
	}
	if err := s.checkPostRefs(ctx, post); err != nil {
		return err
	}
	_, err := s.posts.InsertOne(ctx, post)
	return mapErr(err, "create post")
}

func (s *MongoStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var p models.Post
	if err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, mapErr(err, "get post")
	}
	return &p, nil
}

func (s *MongoStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	if err := s.checkPostRefs(ctx, post); err != nil {
		return err
	}
	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": post.ID},
		bson.M{"$set": bson.M{
			"text":     post.Text,
			"group_id": post.GroupID,
			"image":    post.Image,
		}},
	)
	if err != nil {
		return mapErr(err, "update post")
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("post %s: %w", post.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *MongoStorage) DeletePost(ctx context.Context, id string) error {
	if err := s.requireExists(ctx, s.posts, id); err != nil {
		return err
	}
	if _, err := s.comments.DeleteMany(ctx, bson.M{"post_id": id}); err != nil {
		return mapErr(err, "delete post comments")
	}
	_, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	return mapErr(err, "delete post")
}

func (s *MongoStorage) postFilter(ctx context.Context, filter models.PostFilter) (bson.M, error) {
	m := bson.M{}
	if filter.GroupID != "" {
		m["group_id"] = filter.GroupID
	}
	if filter.FollowerID != "" {
		authors, err := s.followedAuthors(ctx, filter.FollowerID)
		if err != nil {
			return nil, err
		}
		m["author_id"] = bson.M{"$in": authors}
	}
	if filter.AuthorID != "" {
		if in, ok := m["author_id"]; ok {
			m["$and"] = bson.A{bson.M{"author_id": in}, bson.M{"author_id": filter.AuthorID}}
			delete(m, "author_id")
		} else {
			m["author_id"] = filter.AuthorID
		}
	}
	return m, nil
}

func (s *MongoStorage) followedAuthors(ctx context.Context, userID string) ([]string, error) {
	cur, err := s.follows.Find(ctx, bson.M{"user_id": userID}, options.Find().SetProjection(bson.M{"author_id": 1}))
	if err != nil {
		return nil, mapErr(err, "followed authors")
	}
	var follows []models.Follow
	if err := cur.All(ctx, &follows); err != nil {
		return nil, mapErr(err, "followed authors")
	}
	authors := make([]string, len(follows))
	for i, f := range follows {
		authors[i] = f.AuthorID
	}
	return authors, nil
}

func (s *MongoStorage) CountPosts(ctx context.Context, filter models.PostFilter) (int, error) {
	m, err := s.postFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	n, err := s.posts.CountDocuments(ctx, m)
	if err != nil {
		return 0, mapErr(err, "count posts")
	}
	return int(n), nil
}

func (s *MongoStorage) ListPosts(ctx context.Context, filter models.PostFilter, limit, offset int) ([]*models.Post, error) {
	m, err := s.postFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := s.posts.Find(ctx, m, opts)
	if err != nil {
		return nil, mapErr(err, "list posts")
	}
	var posts []*models.Post
	if err := cur.All(ctx, &posts); err != nil {
		return nil, mapErr(err, "list posts")
	}
	return posts, nil
}

func (s *MongoStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	if err := s.requireExists(ctx, s.posts, comment.PostID); err != nil {
		return err
	}
	if err := s.requireExists(ctx, s.users, comment.AuthorID); err != nil {
		return err
	}
	_, err := s.comments.InsertOne(ctx, comment)
	return mapErr(err, "create comment")
}

func (s *MongoStorage) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	cur, err := s.comments.Find(ctx, bson.M{"post_id": postID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapErr(err, "list comments")
	}
	comments := []*models.Comment{}
	if err := cur.All(ctx, &comments); err != nil {
		return nil, mapErr(err, "list comments")
	}
	return comments, nil
}

func (s *MongoStorage) AddFollow(ctx context.Context, follow *models.Follow) error {
	for _, id := range []string{follow.UserID, follow.AuthorID} {
		if err := s.requireExists(ctx, s.users, id); err != nil {
			return err
		}
	}
	_, err := s.follows.InsertOne(ctx, follow)
	return mapErr(err, "add follow")
}

func (s *MongoStorage) RemoveFollow(ctx context.Context, userID, authorID string) error {
	_, err := s.follows.DeleteOne(ctx, bson.M{"user_id": userID, "author_id": authorID})
	return mapErr(err, "remove follow")
}

func (s *MongoStorage) IsFollowing(ctx context.Context, userID, authorID string) (bool, error) {
	n, err := s.follows.CountDocuments(ctx, bson.M{"user_id": userID, "author_id": authorID}, options.Count().SetLimit(1))
	if err != nil {
		return false, mapErr(err, "is following")
	}
	return n > 0, nil
}

func (s *MongoStorage) CountFollowers(ctx context.Context, authorID string) (int, error) {
	n, err := s.follows.CountDocuments(ctx, bson.M{"author_id": authorID})
	if err != nil {
		return 0, mapErr(err, "count followers")
	}
	return int(n), nil
}

func (s *MongoStorage) CountFollowing(ctx context.Context, userID string) (int, error) {
	n, err := s.follows.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, mapErr(err, "count following")
	}
	return int(n), nil
}

func (s *MongoStorage) Close() error {
	return s.client.Disconnect(context.Background())
}
