package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
	"github.com/skillbridge/lms-api/pkg/export"
)

type enrollmentRepository interface {
	Exists(ctx context.Context, courseID, studentID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByCourse(ctx context.Context, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListAllByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentCourse, error)
	UpdateStatusProgress(ctx context.Context, id string, status *models.EnrollmentStatus, progress *int, completedAt *time.Time) error
	SetCertificate(ctx context.Context, id, certificateID string) error
}

type enrollmentCourseReader interface {
	FindBySlug(ctx context.Context, slug string) (*models.Course, error)
}

type enrollmentUserReader interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type certificateIssuer interface {
	Issue(ctx context.Context, enrollment *models.Enrollment, course *models.Course, student *models.User) (*models.Certificate, error)
}

// EnrollRequest registers a named student onto a course ledger.
type EnrollRequest struct {
	StudentEmail string `json:"student_email" validate:"required,email"`
	Kind         string `json:"kind" validate:"omitempty,oneof=FREE PAID"`
}

// UpdateEnrollmentRequest carries a partial status/progress update. Only
// supplied fields change.
type UpdateEnrollmentRequest struct {
	Status   *models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=ACTIVE SUSPENDED COMPLETED"`
	Progress *int                     `json:"progress" validate:"omitempty,min=0,max=100"`
}

// EnrollmentService orchestrates the enrollment workflow.
type EnrollmentService struct {
	repo         enrollmentRepository
	courses      enrollmentCourseReader
	users        enrollmentUserReader
	certificates certificateIssuer
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses enrollmentCourseReader, users enrollmentUserReader, certificates certificateIssuer, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, users: users, certificates: certificates, validator: validate, logger: logger}
}

func (s *EnrollmentService) loadCourse(ctx context.Context, slug string) (*models.Course, error) {
	course, err := s.courses.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Enroll registers a student, looked up by email, onto a course. Only
// admins and the course instructor may do this; students use SelfEnroll.
func (s *EnrollmentService) Enroll(ctx context.Context, claims *models.JWTClaims, courseSlug string, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	course, err := s.loadCourse(ctx, courseSlug)
	if err != nil {
		return nil, err
	}
	if !CanManageCourse(claims, course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to enroll students on this course")
	}

	student, err := s.users.FindByEmail(ctx, req.StudentEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	return s.create(ctx, claims, course, student, models.EnrollmentKind(req.Kind))
}

// SelfEnroll lets a student enroll themself onto a published course.
func (s *EnrollmentService) SelfEnroll(ctx context.Context, claims *models.JWTClaims, courseSlug string, kind models.EnrollmentKind) (*models.Enrollment, error) {
	if claims == nil || claims.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may self-enroll")
	}
	switch kind {
	case "", models.EnrollmentKindFree, models.EnrollmentKindPaid:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment kind must be FREE or PAID")
	}

	course, err := s.loadCourse(ctx, courseSlug)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	student, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	return s.create(ctx, claims, course, student, kind)
}

func (s *EnrollmentService) create(ctx context.Context, claims *models.JWTClaims, course *models.Course, student *models.User, kind models.EnrollmentKind) (*models.Enrollment, error) {
	exists, err := s.repo.Exists(ctx, course.ID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course")
	}

	enrollment := &models.Enrollment{
		CourseID:  course.ID,
		StudentID: student.ID,
		Kind:      kind,
		Status:    models.EnrollmentStatusActive,
		Progress:  0,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrConflict.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionEnroll,
		Resource:   "enrollment",
		ResourceID: &enrollment.ID,
		NewValues:  []byte(fmt.Sprintf(`{"course_id":%q,"student_id":%q}`, course.ID, student.ID)),
	}); err != nil {
		s.logger.Warn("failed to record enrollment audit log", zap.Error(err))
	}

	return enrollment, nil
}

// List returns a course's ledger with pagination metadata. Restricted to
// admins and the course instructor.
func (s *EnrollmentService) List(ctx context.Context, claims *models.JWTClaims, courseSlug string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	course, err := s.loadCourse(ctx, courseSlug)
	if err != nil {
		return nil, nil, err
	}
	if !CanManageCourse(claims, course) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this ledger")
	}

	enrollments, total, err := s.repo.ListByCourse(ctx, course.ID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// UpdateStatus applies a partial status/progress update to a ledger entry.
// Students have no self-service path here. A transition to COMPLETED stamps
// the completion time and issues a certificate.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, claims *models.JWTClaims, courseSlug, enrollmentID string, req UpdateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment update payload")
	}

	course, err := s.loadCourse(ctx, courseSlug)
	if err != nil {
		return nil, err
	}
	if !CanManageCourse(claims, course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update this ledger")
	}

	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.CourseID != course.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}

	var completedAt *time.Time
	completing := req.Status != nil && *req.Status == models.EnrollmentStatusCompleted && enrollment.Status != models.EnrollmentStatusCompleted
	if completing {
		now := time.Now().UTC()
		completedAt = &now
	}

	if err := s.repo.UpdateStatusProgress(ctx, enrollmentID, req.Status, req.Progress, completedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}

	if req.Status != nil {
		enrollment.Status = *req.Status
	}
	if req.Progress != nil {
		enrollment.Progress = *req.Progress
	}
	if completedAt != nil {
		enrollment.CompletedAt = completedAt
	}

	if completing && s.certificates != nil && enrollment.CertificateID == nil {
		s.issueCertificate(ctx, claims, enrollment, course)
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionEnrollUpdate,
		Resource:   "enrollment",
		ResourceID: &enrollment.ID,
		NewValues:  []byte(fmt.Sprintf(`{"status":%q,"progress":%d}`, enrollment.Status, enrollment.Progress)),
	}); err != nil {
		s.logger.Warn("failed to record enrollment update audit log", zap.Error(err))
	}

	return enrollment, nil
}

func (s *EnrollmentService) issueCertificate(ctx context.Context, claims *models.JWTClaims, enrollment *models.Enrollment, course *models.Course) {
	student, err := s.users.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		s.logger.Warn("failed to load student for certificate", zap.Error(err))
		return
	}

	cert, err := s.certificates.Issue(ctx, enrollment, course, student)
	if err != nil {
		s.logger.Warn("failed to issue certificate", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		return
	}

	if err := s.repo.SetCertificate(ctx, enrollment.ID, cert.ID); err != nil {
		s.logger.Warn("failed to link certificate", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		return
	}
	enrollment.CertificateID = &cert.ID

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionCertIssue,
		Resource:   "certificate",
		ResourceID: &cert.ID,
	}); err != nil {
		s.logger.Warn("failed to record certificate audit log", zap.Error(err))
	}
}

// ExportRoster renders a course's full ledger as CSV. Same authorization as
// List.
func (s *EnrollmentService) ExportRoster(ctx context.Context, claims *models.JWTClaims, courseSlug string) ([]byte, string, error) {
	course, err := s.loadCourse(ctx, courseSlug)
	if err != nil {
		return nil, "", err
	}
	if !CanManageCourse(claims, course) {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "not allowed to export this roster")
	}

	enrollments, err := s.repo.ListAllByCourse(ctx, course.ID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{
		Headers: []string{"Student Name", "Email", "Kind", "Status", "Progress", "Enrolled At", "Completed At"},
	}
	for _, e := range enrollments {
		completed := ""
		if e.CompletedAt != nil {
			completed = e.CompletedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student Name": e.StudentName,
			"Email":        e.StudentEmail,
			"Kind":         string(e.Kind),
			"Status":       string(e.Status),
			"Progress":     fmt.Sprintf("%d%%", e.Progress),
			"Enrolled At":  e.EnrolledAt.UTC().Format(time.RFC3339),
			"Completed At": completed,
		})
	}

	content, err := export.NewCSVExporter().Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	filename := fmt.Sprintf("roster-%s.csv", course.Slug)
	return content, filename, nil
}

// MyCourses derives the caller's course list from the ledger.
func (s *EnrollmentService) MyCourses(ctx context.Context, claims *models.JWTClaims) ([]models.StudentCourse, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	courses, err := s.repo.ListByStudent(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled courses")
	}
	return courses, nil
}
