package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindBySlug(ctx context.Context, slug string) (*models.Course, error)
	FindDetailBySlug(ctx context.Context, slug string) (*models.CourseDetail, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	Update(ctx context.Context, course *models.Course) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateRating(ctx context.Context, rating *models.CourseRating) error
	RatingExists(ctx context.Context, courseID, studentID string) (bool, error)
}

type enrollmentChecker interface {
	Exists(ctx context.Context, courseID, studentID string) (bool, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheLookupRecorder interface {
	RecordCacheLookup(hit bool)
}

// CreateCourseRequest carries a new catalog entry.
type CreateCourseRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Category    string `json:"category" validate:"required,max=100"`
	Level       string `json:"level" validate:"required,oneof=BEGINNER INTERMEDIATE ADVANCED"`
	PriceCents  int64  `json:"price_cents" validate:"min=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
}

// UpdateCourseRequest carries a partial course update. The instructor is not
// editable.
type UpdateCourseRequest struct {
	Title       *string              `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string              `json:"description" validate:"omitempty,max=5000"`
	Category    *string              `json:"category" validate:"omitempty,max=100"`
	Level       *string              `json:"level" validate:"omitempty,oneof=BEGINNER INTERMEDIATE ADVANCED"`
	PriceCents  *int64               `json:"price_cents" validate:"omitempty,min=0"`
	Currency    *string              `json:"currency" validate:"omitempty,len=3"`
	Status      *models.CourseStatus `json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED ARCHIVED"`
}

// RateCourseRequest carries a student rating.
type RateCourseRequest struct {
	Stars   int    `json:"stars" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

const (
	catalogCachePattern = "catalog:*"
	catalogCacheVersion = "v1"
)

var slugStripper = regexp.MustCompile(`[^a-z0-9]+`)

// CourseService manages the course catalog.
type CourseService struct {
	repo        courseRepository
	enrollments enrollmentChecker
	cache       catalogCache
	cacheTTL    time.Duration
	metrics     cacheLookupRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs CourseService. cache may be nil, which
// disables catalog caching.
func NewCourseService(repo courseRepository, enrollments enrollmentChecker, cache catalogCache, cacheTTL time.Duration, metrics cacheLookupRecorder, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CourseService{repo: repo, enrollments: enrollments, cache: cache, cacheTTL: cacheTTL, metrics: metrics, validator: validate, logger: logger}
}

// Create adds a course to the catalog in DRAFT status. Teachers own what
// they create; admins must name themselves as instructor too, since the
// instructor reference is immutable afterwards.
func (s *CourseService) Create(ctx context.Context, claims *models.JWTClaims, req CreateCourseRequest) (*models.Course, error) {
	if claims == nil || (claims.Role != models.RoleAdmin && claims.Role != models.RoleTeacher) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers and admins may create courses")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	slug, err := s.uniqueSlug(ctx, req.Title)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	course := &models.Course{
		Slug:         slug,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Category:     req.Category,
		Level:        req.Level,
		PriceCents:   req.PriceCents,
		Currency:     currency,
		InstructorID: claims.UserID,
		Status:       models.CourseStatusDraft,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCatalog(ctx)
	return course, nil
}

// Update applies a partial update. Restricted to admins and the course
// instructor.
func (s *CourseService) Update(ctx context.Context, claims *models.JWTClaims, slug string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !CanManageCourse(claims, course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this course")
	}

	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.Category != nil {
		course.Category = *req.Category
	}
	if req.Level != nil {
		course.Level = *req.Level
	}
	if req.PriceCents != nil {
		course.PriceCents = *req.PriceCents
	}
	if req.Currency != nil {
		course.Currency = strings.ToUpper(*req.Currency)
	}
	if req.Status != nil {
		course.Status = *req.Status
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCatalog(ctx)
	return course, nil
}

// List returns catalog entries. Unauthenticated and student callers only
// see published courses; teachers additionally see their own drafts when
// filtering by themselves; admins see everything.
func (s *CourseService) List(ctx context.Context, claims *models.JWTClaims, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	publicView := s.restrictFilter(claims, &filter)

	if publicView && s.cache != nil {
		key := s.cacheKey(filter)
		var cached cachedCatalogPage
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(err == nil)
		}
		if err == nil {
			return cached.Courses, cached.Pagination, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
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

	if publicView && s.cache != nil {
		key := s.cacheKey(filter)
		if err := s.cache.Set(ctx, key, cachedCatalogPage{Courses: courses, Pagination: pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return courses, pagination, nil
}

type cachedCatalogPage struct {
	Courses    []models.CourseDetail `json:"courses"`
	Pagination *models.Pagination    `json:"pagination"`
}

// restrictFilter clamps the status filter to what the caller may see and
// reports whether the result is the public published-only view.
func (s *CourseService) restrictFilter(claims *models.JWTClaims, filter *models.CourseFilter) bool {
	if claims != nil && claims.Role == models.RoleAdmin {
		return false
	}
	if claims != nil && claims.Role == models.RoleTeacher && filter.InstructorID == claims.UserID {
		return false
	}
	filter.Status = models.CourseStatusPublished
	return true
}

// Get returns a single catalog entry by slug. Drafts and archived courses
// are visible only to admins and their instructor.
func (s *CourseService) Get(ctx context.Context, claims *models.JWTClaims, slug string) (*models.CourseDetail, error) {
	detail, err := s.repo.FindDetailBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if detail.Status != models.CourseStatusPublished && !CanManageCourse(claims, &detail.Course) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return detail, nil
}

// Rate records a student's rating. Only enrolled students may rate, and
// only once per course.
func (s *CourseService) Rate(ctx context.Context, claims *models.JWTClaims, slug string, req RateCourseRequest) (*models.CourseRating, error) {
	if claims == nil || claims.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may rate courses")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rating payload")
	}

	course, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrolled, err := s.enrollments.Exists(ctx, course.ID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only enrolled students may rate this course")
	}

	rated, err := s.repo.RatingExists(ctx, course.ID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate rating")
	}
	if rated {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already rated")
	}

	rating := &models.CourseRating{
		CourseID:  course.ID,
		StudentID: claims.UserID,
		Stars:     req.Stars,
		Comment:   req.Comment,
	}
	if err := s.repo.CreateRating(ctx, rating); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create rating")
	}

	s.invalidateCatalog(ctx)
	return rating, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, catalogCachePattern); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func (s *CourseService) cacheKey(filter models.CourseFilter) string {
	return fmt.Sprintf("catalog:%s:%s:%s:%s:%s:%d:%d:%s:%s",
		catalogCacheVersion, filter.Category, filter.Level, filter.InstructorID, filter.Search,
		filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

// uniqueSlug derives a URL slug from the title, suffixing on collision.
func (s *CourseService) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := slugify(title)
	if base == "" {
		base = "course"
	}
	slug := base
	for attempt := 0; attempt < 3; attempt++ {
		exists, err := s.repo.SlugExists(ctx, slug)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate slug")
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
	}
	return slug, nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStripper.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
