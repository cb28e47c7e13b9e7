package service

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
	"github.com/skillbridge/lms-api/pkg/storage"
)

type mockCertRepo struct {
	certs map[string]*models.Certificate
}

func (m *mockCertRepo) Create(ctx context.Context, cert *models.Certificate) error {
	if m.certs == nil {
		m.certs = make(map[string]*models.Certificate)
	}
	m.certs[cert.ID] = cert
	return nil
}

func (m *mockCertRepo) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	if c, ok := m.certs[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockCertCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCertCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockCertUserReader struct {
	users map[string]*models.User
}

func (m *mockCertUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func newCertificateService(t *testing.T, repo *mockCertRepo) *CertificateService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	courses := &mockCertCourseReader{courses: map[string]*models.Course{
		"c1": {ID: "c1", Title: "Intro to Go", InstructorID: "t1"},
	}}
	users := &mockCertUserReader{users: map[string]*models.User{
		"s1": {ID: "s1", FullName: "Student One", Role: models.RoleStudent},
		"t1": {ID: "t1", FullName: "Teacher One", Role: models.RoleTeacher},
	}}
	return NewCertificateService(repo, courses, users, store, signer, zap.NewNop())
}

func completedEnrollment() *models.Enrollment {
	now := time.Now().UTC()
	return &models.Enrollment{ID: "e1", CourseID: "c1", StudentID: "s1", Status: models.EnrollmentStatusCompleted, Progress: 100, CompletedAt: &now}
}

func TestCertificateServiceIssueAndResolve(t *testing.T) {
	repo := &mockCertRepo{}
	svc := newCertificateService(t, repo)

	course := &models.Course{ID: "c1", Title: "Intro to Go", InstructorID: "t1"}
	student := &models.User{ID: "s1", FullName: "Student One", Role: models.RoleStudent}

	cert, err := svc.Issue(context.Background(), completedEnrollment(), course, student)
	require.NoError(t, err)
	assert.NotEmpty(t, cert.ID)
	assert.Equal(t, "e1.pdf", cert.FilePath)

	link, err := svc.Link(context.Background(), studentClaims("s1"), cert.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, link.Token)

	resolved, file, err := svc.Resolve(context.Background(), link.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, cert.ID, resolved.ID)

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, len(content) > 0)
	assert.Equal(t, "%PDF", string(content[:4]))
}

func TestCertificateServiceLinkAuthorization(t *testing.T) {
	repo := &mockCertRepo{certs: map[string]*models.Certificate{
		"cert-1": {ID: "cert-1", EnrollmentID: "e1", StudentID: "s1", CourseID: "c1", FilePath: "e1.pdf"},
	}}
	svc := newCertificateService(t, repo)

	_, err := svc.Link(context.Background(), studentClaims("s2"), "cert-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Link(context.Background(), teacherClaims("t2"), "cert-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Instructor of the course and admins may mint links.
	_, err = svc.Link(context.Background(), teacherClaims("t1"), "cert-1")
	require.NoError(t, err)
	_, err = svc.Link(context.Background(), adminClaims("a1"), "cert-1")
	require.NoError(t, err)
}

func TestCertificateServiceResolveRejectsTamperedToken(t *testing.T) {
	repo := &mockCertRepo{}
	svc := newCertificateService(t, repo)

	course := &models.Course{ID: "c1", Title: "Intro to Go", InstructorID: "t1"}
	student := &models.User{ID: "s1", FullName: "Student One"}
	cert, err := svc.Issue(context.Background(), completedEnrollment(), course, student)
	require.NoError(t, err)

	link, err := svc.Link(context.Background(), adminClaims("a1"), cert.ID)
	require.NoError(t, err)

	_, _, err = svc.Resolve(context.Background(), link.Token+"x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
