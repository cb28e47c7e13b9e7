package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillbridge/lms-api/internal/models"
)

const postDetailColumns = `p.id, p.kind, p.author_id, p.title, p.body, p.status, p.published_at, p.event_starts_at, p.event_location, p.created_at, p.updated_at,
        u.full_name AS author_name,
        (SELECT COUNT(*) FROM post_likes pl WHERE pl.post_id = p.id) AS like_count,
        (SELECT COUNT(*) FROM post_comments pc WHERE pc.post_id = p.id) AS comment_count,
        (SELECT COUNT(*) FROM event_registrations er WHERE er.post_id = p.id) AS registration_count`

// CommunityRepository handles persistence of forum, blog and event posts
// together with their engagement sub-lists.
type CommunityRepository struct {
	db *sqlx.DB
}

// NewCommunityRepository constructs the repository.
func NewCommunityRepository(db *sqlx.DB) *CommunityRepository {
	return &CommunityRepository{db: db}
}

// Create persists a new post.
func (r *CommunityRepository) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.Status == "" {
		post.Status = models.PostStatusDraft
	}
	const query = `INSERT INTO posts (id, kind, author_id, title, body, status, published_at, event_starts_at, event_location, created_at, updated_at)
        VALUES (:id, :kind, :author_id, :title, :body, :status, :published_at, :event_starts_at, :event_location, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// FindByID returns a post of the given kind.
func (r *CommunityRepository) FindByID(ctx context.Context, kind models.PostKind, id string) (*models.Post, error) {
	const query = `SELECT id, kind, author_id, title, body, status, published_at, event_starts_at, event_location, created_at, updated_at FROM posts WHERE id = $1 AND kind = $2 LIMIT 1`
	var post models.Post
	if err := r.db.GetContext(ctx, &post, query, id, kind); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find post by id: %w", err)
	}
	return &post, nil
}

// FindDetailByID returns a post with author and engagement info.
func (r *CommunityRepository) FindDetailByID(ctx context.Context, kind models.PostKind, id string) (*models.PostDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM posts p LEFT JOIN users u ON u.id = p.author_id WHERE p.id = $1 AND p.kind = $2 LIMIT 1`, postDetailColumns)
	var detail models.PostDetail
	if err := r.db.GetContext(ctx, &detail, query, id, kind); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find post detail: %w", err)
	}
	return &detail, nil
}

// List returns posts of one kind filtered by the provided criteria.
func (r *CommunityRepository) List(ctx context.Context, kind models.PostKind, filter models.PostFilter) ([]models.PostDetail, int, error) {
	base := `FROM posts p LEFT JOIN users u ON u.id = p.author_id`
	conditions := []string{"p.kind = $1"}
	args := []interface{}{kind}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.AuthorID != "" {
		conditions = append(conditions, fmt.Sprintf("p.author_id = $%d", len(args)+1))
		args = append(args, filter.AuthorID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.title) LIKE $%d OR LOWER(p.body) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"created_at":   "p.created_at",
		"published_at": "p.published_at",
		"title":        "p.title",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "p.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`, postDetailColumns, base+clause, orderBy, order, size, offset)

	var posts []models.PostDetail
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}
	return posts, total, nil
}

// Update persists the mutable post fields.
func (r *CommunityRepository) Update(ctx context.Context, post *models.Post) error {
	post.UpdatedAt = time.Now().UTC()
	const query = `UPDATE posts SET title = :title, body = :body, status = :status, published_at = :published_at,
        event_starts_at = :event_starts_at, event_location = :event_location, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

// Delete removes a post and its engagement sub-lists.
func (r *CommunityRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM posts WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// HasLike reports whether the account is present in the post's like set.
func (r *CommunityRepository) HasLike(ctx context.Context, postID, userID string) (bool, error) {
	const query = `SELECT 1 FROM post_likes WHERE post_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, postID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check post like: %w", err)
	}
	return true, nil
}

// AddLike inserts the account into the post's like set.
func (r *CommunityRepository) AddLike(ctx context.Context, postID, userID string) error {
	const query = `INSERT INTO post_likes (post_id, user_id, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, postID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add post like: %w", err)
	}
	return nil
}

// RemoveLike removes the account from the post's like set.
func (r *CommunityRepository) RemoveLike(ctx context.Context, postID, userID string) error {
	const query = `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, postID, userID); err != nil {
		return fmt.Errorf("remove post like: %w", err)
	}
	return nil
}

// CountLikes returns the size of the post's like set.
func (r *CommunityRepository) CountLikes(ctx context.Context, postID string) (int, error) {
	const query = `SELECT COUNT(*) FROM post_likes WHERE post_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, postID); err != nil {
		return 0, fmt.Errorf("count post likes: %w", err)
	}
	return count, nil
}

// CreateComment appends a comment to a post.
func (r *CommunityRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO post_comments (id, post_id, author_id, body, created_at)
        VALUES (:id, :post_id, :author_id, :body, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// FindCommentByID returns a comment by identifier.
func (r *CommunityRepository) FindCommentByID(ctx context.Context, id string) (*models.Comment, error) {
	const query = `SELECT id, post_id, author_id, body, created_at FROM post_comments WHERE id = $1 LIMIT 1`
	var comment models.Comment
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find comment by id: %w", err)
	}
	return &comment, nil
}

// ListComments returns a post's comments oldest first.
func (r *CommunityRepository) ListComments(ctx context.Context, postID string) ([]models.CommentDetail, error) {
	const query = `SELECT pc.id, pc.post_id, pc.author_id, pc.body, pc.created_at, u.full_name AS author_name
        FROM post_comments pc
        LEFT JOIN users u ON u.id = pc.author_id
        WHERE pc.post_id = $1
        ORDER BY pc.created_at ASC`
	var comments []models.CommentDetail
	if err := r.db.SelectContext(ctx, &comments, query, postID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// DeleteComment removes a comment.
func (r *CommunityRepository) DeleteComment(ctx context.Context, id string) error {
	const query = `DELETE FROM post_comments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// HasRegistration reports whether the account is registered for the event.
func (r *CommunityRepository) HasRegistration(ctx context.Context, postID, userID string) (bool, error) {
	const query = `SELECT 1 FROM event_registrations WHERE post_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, postID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check event registration: %w", err)
	}
	return true, nil
}

// AddRegistration registers the account for the event.
func (r *CommunityRepository) AddRegistration(ctx context.Context, postID, userID string) error {
	const query = `INSERT INTO event_registrations (post_id, user_id, registered_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, postID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add event registration: %w", err)
	}
	return nil
}

// RemoveRegistration cancels the account's registration.
func (r *CommunityRepository) RemoveRegistration(ctx context.Context, postID, userID string) error {
	const query = `DELETE FROM event_registrations WHERE post_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, postID, userID); err != nil {
		return fmt.Errorf("remove event registration: %w", err)
	}
	return nil
}
