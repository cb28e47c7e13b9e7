package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
)

type lessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
	NextOrderIndex(ctx context.Context, courseID string) (int, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, lesson *models.Lesson) error
	Delete(ctx context.Context, id string) error
}

type lessonCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindBySlug(ctx context.Context, slug string) (*models.Course, error)
}

type lessonEnrollmentReader interface {
	FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
}

// CreateLessonRequest carries a new lesson.
type CreateLessonRequest struct {
	Title           string `json:"title" validate:"required,min=3,max=200"`
	IsFree          bool   `json:"is_free"`
	VideoURL        string `json:"video_url" validate:"omitempty,url"`
	Transcript      string `json:"transcript"`
	DurationMinutes int    `json:"duration_minutes" validate:"min=0"`
}

// UpdateLessonRequest carries a partial lesson update.
type UpdateLessonRequest struct {
	Title           *string              `json:"title" validate:"omitempty,min=3,max=200"`
	OrderIndex      *int                 `json:"order_index" validate:"omitempty,min=1"`
	IsFree          *bool                `json:"is_free"`
	Status          *models.LessonStatus `json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED ARCHIVED"`
	VideoURL        *string              `json:"video_url" validate:"omitempty,url"`
	Transcript      *string              `json:"transcript"`
	DurationMinutes *int                 `json:"duration_minutes" validate:"omitempty,min=0"`
}

// LessonService manages lessons and gates read access to their content.
type LessonService struct {
	repo        lessonRepository
	courses     lessonCourseReader
	enrollments lessonEnrollmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewLessonService constructs LessonService.
func NewLessonService(repo lessonRepository, courses lessonCourseReader, enrollments lessonEnrollmentReader, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{repo: repo, courses: courses, enrollments: enrollments, validator: validate, logger: logger}
}

func (s *LessonService) loadCourseBySlug(ctx context.Context, slug string) (*models.Course, error) {
	course, err := s.courses.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create appends a lesson at the end of the course, as DRAFT.
func (s *LessonService) Create(ctx context.Context, claims *models.JWTClaims, courseSlug string, req CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	course, err := s.loadCourseBySlug(ctx, courseSlug)
	if err != nil {
		return nil, err
	}
	if !CanManageCourse(claims, course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this course")
	}

	next, err := s.repo.NextOrderIndex(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to place lesson")
	}

	lesson := &models.Lesson{
		CourseID:        course.ID,
		Title:           req.Title,
		OrderIndex:      next,
		IsFree:          req.IsFree,
		Status:          models.LessonStatusDraft,
		VideoURL:        req.VideoURL,
		Transcript:      req.Transcript,
		DurationMinutes: req.DurationMinutes,
	}
	if err := s.repo.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// Update applies a partial update to a lesson of the course.
func (s *LessonService) Update(ctx context.Context, claims *models.JWTClaims, courseSlug, lessonID string, req UpdateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	course, err := s.loadCourseBySlug(ctx, courseSlug)
	if err != nil {
		return nil, err
	}
	if !CanManageCourse(claims, course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this course")
	}

	lesson, err := s.loadLesson(ctx, course, lessonID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		lesson.Title = *req.Title
	}
	if req.OrderIndex != nil {
		lesson.OrderIndex = *req.OrderIndex
	}
	if req.IsFree != nil {
		lesson.IsFree = *req.IsFree
	}
	if req.Status != nil {
		lesson.Status = *req.Status
	}
	if req.VideoURL != nil {
		lesson.VideoURL = *req.VideoURL
	}
	if req.Transcript != nil {
		lesson.Transcript = *req.Transcript
	}
	if req.DurationMinutes != nil {
		lesson.DurationMinutes = *req.DurationMinutes
	}

	if err := s.repo.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return lesson, nil
}

// Delete removes a lesson from the course.
func (s *LessonService) Delete(ctx context.Context, claims *models.JWTClaims, courseSlug, lessonID string) error {
	course, err := s.loadCourseBySlug(ctx, courseSlug)
	if err != nil {
		return err
	}
	if !CanManageCourse(claims, course) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this course")
	}

	lesson, err := s.loadLesson(ctx, course, lessonID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, lesson.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}
	return nil
}

// List returns the course's lessons as summaries, each flagged with
// whether the caller could read its content. Course managers see drafts;
// everyone else sees published lessons only.
func (s *LessonService) List(ctx context.Context, claims *models.JWTClaims, courseSlug string) ([]models.LessonSummary, error) {
	course, err := s.loadCourseBySlug(ctx, courseSlug)
	if err != nil {
		return nil, err
	}

	manager := CanManageCourse(claims, course)
	if course.Status != models.CourseStatusPublished && !manager {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	lessons, err := s.repo.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}

	enrollment := s.callerEnrollment(ctx, claims, course.ID)

	summaries := make([]models.LessonSummary, 0, len(lessons))
	for i := range lessons {
		lesson := &lessons[i]
		if lesson.Status != models.LessonStatusPublished && !manager {
			continue
		}
		accessible := manager || DecideLessonAccess(claims, course, lesson, enrollment) == LessonAccessGranted
		summaries = append(summaries, lesson.Summary(accessible))
	}
	return summaries, nil
}

// Get returns full lesson content, gated per the access rules. Unpublished
// lessons read as not found on this path; managers use the listing plus
// Update to work with drafts.
func (s *LessonService) Get(ctx context.Context, claims *models.JWTClaims, courseSlug, lessonID string) (*models.Lesson, error) {
	course, err := s.loadCourseBySlug(ctx, courseSlug)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusPublished && !CanManageCourse(claims, course) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	lesson, err := s.loadLesson(ctx, course, lessonID)
	if err != nil {
		return nil, err
	}

	enrollment := s.callerEnrollment(ctx, claims, course.ID)

	switch DecideLessonAccess(claims, course, lesson, enrollment) {
	case LessonAccessGranted:
		return lesson, nil
	case LessonAccessNotFound:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	case LessonAccessUnauthenticated:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "active enrollment required")
	}
}

func (s *LessonService) loadLesson(ctx context.Context, course *models.Course, lessonID string) (*models.Lesson, error) {
	lesson, err := s.repo.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if lesson.CourseID != course.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	return lesson, nil
}

func (s *LessonService) callerEnrollment(ctx context.Context, claims *models.JWTClaims, courseID string) *models.Enrollment {
	if claims == nil || claims.Role != models.RoleStudent {
		return nil
	}
	enrollment, err := s.enrollments.FindByCourseAndStudent(ctx, courseID, claims.UserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load caller enrollment", zap.Error(err))
		}
		return nil
	}
	return enrollment
}
