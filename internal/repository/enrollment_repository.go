package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
)

// EnrollmentRepository handles persistence of the enrollment ledger. The
// enrollments table is the single source of truth; the student-side course
// view is derived from it on read.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Exists checks whether the student is already on the course ledger,
// regardless of status. Enrollment is not idempotent: duplicates are
// rejected, never merged.
func (r *EnrollmentRepository) Exists(ctx context.Context, courseID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record. The table carries a unique index
// on (course_id, student_id); a violation from a racing insert comes back as
// a conflict rather than an internal error.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	if enrollment.Kind == "" {
		enrollment.Kind = models.EnrollmentKindFree
	}
	const query = `INSERT INTO enrollments (id, course_id, student_id, kind, status, progress, enrolled_at)
        VALUES (:id, :course_id, :student_id, :kind, :status, :progress, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course")
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, course_id, student_id, kind, status, progress, enrolled_at, completed_at, certificate_id FROM enrollments WHERE id = $1 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment by id: %w", err)
	}
	return &enrollment, nil
}

// FindByCourseAndStudent returns the student's entry on a course ledger.
func (r *EnrollmentRepository) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	const query = `SELECT id, course_id, student_id, kind, status, progress, enrolled_at, completed_at, certificate_id FROM enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, courseID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// ListByCourse returns a course's ledger with student info.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users s ON s.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	conditions := []string{"e.course_id = $1"}
	args := []interface{}{courseID}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
		"progress":     "e.progress",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrolled_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
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

	query := fmt.Sprintf(`SELECT e.id, e.course_id, e.student_id, e.kind, e.status, e.progress, e.enrolled_at, e.completed_at, e.certificate_id,
        s.full_name AS student_name, s.email AS student_email, c.title AS course_title, c.slug AS course_slug
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListAllByCourse returns the full ledger of a course without pagination,
// for roster exports.
func (r *EnrollmentRepository) ListAllByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.course_id, e.student_id, e.kind, e.status, e.progress, e.enrolled_at, e.completed_at, e.certificate_id,
        s.full_name AS student_name, s.email AS student_email, c.title AS course_title, c.slug AS course_slug
        FROM enrollments e
        LEFT JOIN users s ON s.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.course_id = $1
        ORDER BY e.enrolled_at ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return enrollments, nil
}

// ListByStudent derives the student-side course view from the ledger.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.StudentCourse, error) {
	const query = `SELECT c.id AS course_id, c.slug, c.title, c.category, c.level,
        e.id AS enrollment_id, e.status, e.progress, e.enrolled_at, e.completed_at, e.certificate_id
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1
        ORDER BY e.enrolled_at DESC`
	var courses []models.StudentCourse
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	return courses, nil
}

// UpdateStatusProgress applies a partial update to status and/or progress.
func (r *EnrollmentRepository) UpdateStatusProgress(ctx context.Context, id string, status *models.EnrollmentStatus, progress *int, completedAt *time.Time) error {
	sets := make([]string, 0, 3)
	args := []interface{}{id}

	if status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *status)
	}
	if progress != nil {
		sets = append(sets, fmt.Sprintf("progress = $%d", len(args)+1))
		args = append(args, *progress)
	}
	if completedAt != nil {
		sets = append(sets, fmt.Sprintf("completed_at = $%d", len(args)+1))
		args = append(args, *completedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE enrollments SET %s WHERE id = $1`, strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// SetCertificate links an issued certificate to the enrollment.
func (r *EnrollmentRepository) SetCertificate(ctx context.Context, id, certificateID string) error {
	const query = `UPDATE enrollments SET certificate_id = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, certificateID); err != nil {
		return fmt.Errorf("set enrollment certificate: %w", err)
	}
	return nil
}
