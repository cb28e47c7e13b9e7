package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
)

func TestEnrollmentExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("c1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	exists, err := repo.Exists(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("c1", "s2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	exists, err = repo.Exists(context.Background(), "c1", "s2")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{CourseID: "c1", StudentID: "s1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, models.EnrollmentKindFree, enrollment.Kind)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCreateUniqueViolationIsConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_course_id_student_id_key"})

	err := repo.Create(context.Background(), &models.Enrollment{CourseID: "c1", StudentID: "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentListByCourse(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "course_id", "student_id", "kind", "status", "progress", "enrolled_at", "completed_at", "certificate_id", "student_name", "student_email", "course_title", "course_slug"}).
		AddRow("e1", "c1", "s1", "PAID", "ACTIVE", 40, now, nil, nil, "Student One", "s1@example.com", "Intro to Go", "intro-to-go")
	mock.ExpectQuery("SELECT e.id, e.course_id, e.student_id").
		WithArgs("c1", models.EnrollmentStatusActive).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("c1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.ListByCourse(context.Background(), "c1", models.EnrollmentFilter{Status: models.EnrollmentStatusActive})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Student One", enrollments[0].StudentName)
	assert.Equal(t, "intro-to-go", enrollments[0].CourseSlug)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentListByStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"course_id", "slug", "title", "category", "level", "enrollment_id", "status", "progress", "enrolled_at", "completed_at", "certificate_id"}).
		AddRow("c1", "intro-to-go", "Intro to Go", "programming", "BEGINNER", "e1", "ACTIVE", 40, now, nil, nil)
	mock.ExpectQuery("SELECT c.id AS course_id, c.slug").
		WithArgs("s1").
		WillReturnRows(rows)

	courses, err := repo.ListByStudent(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "intro-to-go", courses[0].Slug)
	assert.Equal(t, models.EnrollmentStatusActive, courses[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentUpdateStatusProgress(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	status := models.EnrollmentStatusCompleted
	progress := 100
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, progress = $3, completed_at = $4 WHERE id = $1")).
		WithArgs("e1", status, progress, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatusProgress(context.Background(), "e1", &status, &progress, &now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentUpdateStatusProgressNoFieldsIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	require.NoError(t, repo.UpdateStatusProgress(context.Background(), "e1", nil, nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentSetCertificate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET certificate_id = $2 WHERE id = $1")).
		WithArgs("e1", "cert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetCertificate(context.Background(), "e1", "cert-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
