package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
)

type communityRepository interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, kind models.PostKind, id string) (*models.Post, error)
	FindDetailByID(ctx context.Context, kind models.PostKind, id string) (*models.PostDetail, error)
	List(ctx context.Context, kind models.PostKind, filter models.PostFilter) ([]models.PostDetail, int, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id string) error
	HasLike(ctx context.Context, postID, userID string) (bool, error)
	AddLike(ctx context.Context, postID, userID string) error
	RemoveLike(ctx context.Context, postID, userID string) error
	CountLikes(ctx context.Context, postID string) (int, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	FindCommentByID(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, postID string) ([]models.CommentDetail, error)
	DeleteComment(ctx context.Context, id string) error
	HasRegistration(ctx context.Context, postID, userID string) (bool, error)
	AddRegistration(ctx context.Context, postID, userID string) error
	RemoveRegistration(ctx context.Context, postID, userID string) error
}

// CreatePostRequest carries a new community post. The event fields only
// apply to EVENT posts.
type CreatePostRequest struct {
	Title         string     `json:"title" validate:"required,min=3,max=200"`
	Body          string     `json:"body" validate:"required"`
	EventStartsAt *time.Time `json:"event_starts_at"`
	EventLocation string     `json:"event_location" validate:"max=300"`
}

// UpdatePostRequest carries a partial post update.
type UpdatePostRequest struct {
	Title         *string    `json:"title" validate:"omitempty,min=3,max=200"`
	Body          *string    `json:"body" validate:"omitempty,min=1"`
	EventStartsAt *time.Time `json:"event_starts_at"`
	EventLocation *string    `json:"event_location" validate:"omitempty,max=300"`
}

// CreateCommentRequest carries a new comment.
type CreateCommentRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}

// LikeState reports the caller's like flag and the post's total after a
// toggle.
type LikeState struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}

// CommunityService manages forum threads, blog posts and events. The three
// collections share one post shape, discriminated by kind.
type CommunityService struct {
	repo      communityRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCommunityService constructs CommunityService.
func NewCommunityService(repo communityRepository, validate *validator.Validate, logger *zap.Logger) *CommunityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommunityService{repo: repo, validator: validate, logger: logger}
}

// Create adds a post of the given kind in DRAFT status. Restricted to
// teachers and admins for every kind.
func (s *CommunityService) Create(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, req CreatePostRequest) (*models.Post, error) {
	if claims == nil || (claims.Role != models.RoleAdmin && claims.Role != models.RoleTeacher) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers and admins may create posts")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}
	if kind == models.PostKindEvent && req.EventStartsAt == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "events require a start time")
	}

	post := &models.Post{
		Kind:     kind,
		AuthorID: claims.UserID,
		Title:    req.Title,
		Body:     req.Body,
		Status:   models.PostStatusDraft,
	}
	if kind == models.PostKindEvent {
		post.EventStartsAt = req.EventStartsAt
		post.EventLocation = req.EventLocation
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create post")
	}
	return post, nil
}

// Update applies a partial update. The author or an admin only.
func (s *CommunityService) Update(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, postID string, req UpdatePostRequest) (*models.Post, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}

	post, err := s.loadPost(ctx, kind, postID)
	if err != nil {
		return nil, err
	}
	if !CanModifyPost(claims, post) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this post")
	}

	if req.Title != nil {
		post.Title = *req.Title
	}
	if req.Body != nil {
		post.Body = *req.Body
	}
	if kind == models.PostKindEvent {
		if req.EventStartsAt != nil {
			post.EventStartsAt = req.EventStartsAt
		}
		if req.EventLocation != nil {
			post.EventLocation = *req.EventLocation
		}
	}

	if err := s.repo.Update(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update post")
	}
	return post, nil
}

// Publish moves a post to PUBLISHED, stamping the publication time once.
func (s *CommunityService) Publish(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, postID string) (*models.Post, error) {
	post, err := s.loadPost(ctx, kind, postID)
	if err != nil {
		return nil, err
	}
	if !CanModifyPost(claims, post) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this post")
	}

	if post.Status != models.PostStatusPublished {
		post.Status = models.PostStatusPublished
		if post.PublishedAt == nil {
			now := time.Now().UTC()
			post.PublishedAt = &now
		}
		if err := s.repo.Update(ctx, post); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish post")
		}
	}
	return post, nil
}

// Delete removes a post. The author or an admin only.
func (s *CommunityService) Delete(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, postID string) error {
	post, err := s.loadPost(ctx, kind, postID)
	if err != nil {
		return err
	}
	if !CanModifyPost(claims, post) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this post")
	}
	if err := s.repo.Delete(ctx, post.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete post")
	}
	return nil
}

// List returns posts of one kind. Anonymous and regular callers see
// published posts; authors see their own drafts when filtering by
// themselves; admins see everything.
func (s *CommunityService) List(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, filter models.PostFilter) ([]models.PostDetail, *models.Pagination, error) {
	restricted := true
	if claims != nil {
		if claims.Role == models.RoleAdmin {
			restricted = false
		} else if filter.AuthorID == claims.UserID && filter.AuthorID != "" {
			restricted = false
		}
	}
	if restricted {
		filter.Status = models.PostStatusPublished
	}

	posts, total, err := s.repo.List(ctx, kind, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list posts")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return posts, pagination, nil
}

// Get returns one post with engagement counts. Drafts are visible only to
// their author and admins.
func (s *CommunityService) Get(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, postID string) (*models.PostDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, kind, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	if detail.Status != models.PostStatusPublished && !CanModifyPost(claims, &detail.Post) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
	}
	return detail, nil
}

// ToggleLike flips the caller's like on a published post and returns the
// resulting state. Toggling twice restores the original state.
func (s *CommunityService) ToggleLike(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, postID string) (*LikeState, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	post, err := s.loadPublishedPost(ctx, kind, postID)
	if err != nil {
		return nil, err
	}

	liked, err := s.repo.HasLike(ctx, post.ID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read like state")
	}

	if liked {
		err = s.repo.RemoveLike(ctx, post.ID, claims.UserID)
	} else {
		err = s.repo.AddLike(ctx, post.ID, claims.UserID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle like")
	}

	count, err := s.repo.CountLikes(ctx, post.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count likes")
	}
	return &LikeState{Liked: !liked, LikeCount: count}, nil
}

// AddComment appends a comment to a published post. Any authenticated
// account may comment.
func (s *CommunityService) AddComment(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, postID string, req CreateCommentRequest) (*models.Comment, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}

	post, err := s.loadPublishedPost(ctx, kind, postID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		PostID:   post.ID,
		AuthorID: claims.UserID,
		Body:     req.Body,
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}
	return comment, nil
}

// ListComments returns a published post's comments in chronological order.
func (s *CommunityService) ListComments(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, postID string) ([]models.CommentDetail, error) {
	post, err := s.loadPost(ctx, kind, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusPublished && !CanModifyPost(claims, post) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
	}

	comments, err := s.repo.ListComments(ctx, post.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// DeleteComment removes a comment. The comment author, the post author or
// an admin only.
func (s *CommunityService) DeleteComment(ctx context.Context, claims *models.JWTClaims, kind models.PostKind, postID, commentID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}

	post, err := s.loadPost(ctx, kind, postID)
	if err != nil {
		return err
	}

	comment, err := s.repo.FindCommentByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}
	if comment.PostID != post.ID {
		return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
	}
	if !CanModifyComment(claims, comment, post) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this comment")
	}

	if err := s.repo.DeleteComment(ctx, comment.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}
	return nil
}

// Register records the caller's registration for a published event. A
// second registration is a no-op conflict.
func (s *CommunityService) Register(ctx context.Context, claims *models.JWTClaims, postID string) (*models.EventRegistration, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	post, err := s.loadPublishedPost(ctx, models.PostKindEvent, postID)
	if err != nil {
		return nil, err
	}

	registered, err := s.repo.HasRegistration(ctx, post.ID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read registration state")
	}
	if registered {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already registered for this event")
	}

	if err := s.repo.AddRegistration(ctx, post.ID, claims.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register")
	}
	return &models.EventRegistration{PostID: post.ID, UserID: claims.UserID, RegisteredAt: time.Now().UTC()}, nil
}

// Unregister removes the caller's registration for an event.
func (s *CommunityService) Unregister(ctx context.Context, claims *models.JWTClaims, postID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}

	post, err := s.loadPost(ctx, models.PostKindEvent, postID)
	if err != nil {
		return err
	}
	if err := s.repo.RemoveRegistration(ctx, post.ID, claims.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unregister")
	}
	return nil
}

func (s *CommunityService) loadPost(ctx context.Context, kind models.PostKind, postID string) (*models.Post, error) {
	post, err := s.repo.FindByID(ctx, kind, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	return post, nil
}

func (s *CommunityService) loadPublishedPost(ctx context.Context, kind models.PostKind, postID string) (*models.Post, error) {
	post, err := s.loadPost(ctx, kind, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
	}
	return post, nil
}
