package models

import "time"

// PostKind discriminates the community content collections. Forum, blog and
// event posts share one structural shape.
type PostKind string

const (
	PostKindForum PostKind = "FORUM"
	PostKindBlog  PostKind = "BLOG"
	PostKindEvent PostKind = "EVENT"
)

// PostStatus reflects the publication lifecycle of a community post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "DRAFT"
	PostStatusPublished PostStatus = "PUBLISHED"
	PostStatusArchived  PostStatus = "ARCHIVED"
)

// Post is an author-owned community content record. For events the author is
// the organizer and the event fields are populated.
type Post struct {
	ID            string     `db:"id" json:"id"`
	Kind          PostKind   `db:"kind" json:"kind"`
	AuthorID      string     `db:"author_id" json:"author_id"`
	Title         string     `db:"title" json:"title"`
	Body          string     `db:"body" json:"body"`
	Status        PostStatus `db:"status" json:"status"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
	EventStartsAt *time.Time `db:"event_starts_at" json:"event_starts_at,omitempty"`
	EventLocation string     `db:"event_location" json:"event_location,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// PostDetail enriches Post with author and engagement info.
type PostDetail struct {
	Post
	AuthorName        string `db:"author_name" json:"author_name"`
	LikeCount         int    `db:"like_count" json:"like_count"`
	CommentCount      int    `db:"comment_count" json:"comment_count"`
	RegistrationCount int    `db:"registration_count" json:"registration_count"`
}

// PostFilter provides filters for listing posts of one kind.
type PostFilter struct {
	AuthorID  string
	Status    PostStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Comment is an embedded discussion entry on a post.
type Comment struct {
	ID        string    `db:"id" json:"id"`
	PostID    string    `db:"post_id" json:"post_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CommentDetail enriches Comment with author info.
type CommentDetail struct {
	Comment
	AuthorName string `db:"author_name" json:"author_name"`
}

// EventRegistration marks an account's registration for an event post.
// An account registers at most once per event.
type EventRegistration struct {
	PostID       string    `db:"post_id" json:"post_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
}
