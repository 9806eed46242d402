package models

import "time"

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

type Group struct {
	ID          string `json:"id" bson:"_id"`
	Title       string `json:"title" bson:"title"`
	Slug        string `json:"slug" bson:"slug"`
	Description string `json:"description" bson:"description"`
}

// Post - запись в ленте. GroupID == nil, если пост вне группы.
type Post struct {
	ID        string    `json:"id" bson:"_id"`
	Text      string    `json:"text" bson:"text"`
	AuthorID  string    `json:"authorId" bson:"author_id"`
	GroupID   *string   `json:"groupId" bson:"group_id"`
	Image     string    `json:"image" bson:"image"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

type Comment struct {
	ID        string    `json:"id" bson:"_id"`
	PostID    string    `json:"postId" bson:"post_id"`
	AuthorID  string    `json:"authorId" bson:"author_id"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// Follow - ребро "UserID подписан на AuthorID".
type Follow struct {
	UserID    string    `json:"userId" bson:"user_id"`
	AuthorID  string    `json:"authorId" bson:"author_id"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// PostFilter ограничивает выборку постов. Пустой фильтр - все посты.
type PostFilter struct {
	GroupID    string
	AuthorID   string
	FollowerID string
}
