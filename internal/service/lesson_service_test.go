package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
)

type mockLessonRepo struct {
	lessons map[string]models.Lesson
	next    int
	created *models.Lesson
	updated *models.Lesson
	deleted []string
}

func (m *mockLessonRepo) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	if l, ok := m.lessons[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLessonRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	var list []models.Lesson
	for _, l := range m.lessons {
		if l.CourseID == courseID {
			list = append(list, l)
		}
	}
	return list, nil
}

func (m *mockLessonRepo) NextOrderIndex(ctx context.Context, courseID string) (int, error) {
	if m.next == 0 {
		m.next = 1
	}
	return m.next, nil
}

func (m *mockLessonRepo) Create(ctx context.Context, lesson *models.Lesson) error {
	if m.lessons == nil {
		m.lessons = make(map[string]models.Lesson)
	}
	if lesson.ID == "" {
		lesson.ID = "new-lesson"
	}
	m.lessons[lesson.ID] = *lesson
	m.created = lesson
	return nil
}

func (m *mockLessonRepo) Update(ctx context.Context, lesson *models.Lesson) error {
	m.lessons[lesson.ID] = *lesson
	m.updated = lesson
	return nil
}

func (m *mockLessonRepo) Delete(ctx context.Context, id string) error {
	delete(m.lessons, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockLessonCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockLessonCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	for _, c := range m.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockLessonCourseReader) FindBySlug(ctx context.Context, slug string) (*models.Course, error) {
	if c, ok := m.courses[slug]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockLessonEnrollmentReader struct {
	enrollments map[string]*models.Enrollment
}

func (m *mockLessonEnrollmentReader) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[courseID+":"+studentID]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func lessonFixtures() (*mockLessonRepo, *mockLessonCourseReader, *mockLessonEnrollmentReader) {
	repo := &mockLessonRepo{lessons: map[string]models.Lesson{
		"l-free": {ID: "l-free", CourseID: "c1", Title: "Welcome", OrderIndex: 1, IsFree: true, Status: models.LessonStatusPublished},
		"l-paid": {ID: "l-paid", CourseID: "c1", Title: "Deep Dive", OrderIndex: 2, Status: models.LessonStatusPublished, Transcript: "full text"},
		"l-draft": {ID: "l-draft", CourseID: "c1", Title: "Unfinished", OrderIndex: 3, Status: models.LessonStatusDraft},
	}}
	courses := &mockLessonCourseReader{courses: map[string]*models.Course{
		"intro-to-go": {ID: "c1", Slug: "intro-to-go", InstructorID: "t1", Status: models.CourseStatusPublished},
	}}
	enrollments := &mockLessonEnrollmentReader{enrollments: map[string]*models.Enrollment{}}
	return repo, courses, enrollments
}

func newLessonService(repo *mockLessonRepo, courses *mockLessonCourseReader, enrollments *mockLessonEnrollmentReader) *LessonService {
	return NewLessonService(repo, courses, enrollments, validator.New(), zap.NewNop())
}

func TestLessonServiceCreate(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	repo.next = 4
	svc := newLessonService(repo, courses, enrollments)

	lesson, err := svc.Create(context.Background(), teacherClaims("t1"), "intro-to-go", CreateLessonRequest{Title: "Closing Thoughts"})
	require.NoError(t, err)
	assert.Equal(t, 4, lesson.OrderIndex)
	assert.Equal(t, models.LessonStatusDraft, lesson.Status)
	assert.Equal(t, "c1", lesson.CourseID)
}

func TestLessonServiceCreateForbidden(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	svc := newLessonService(repo, courses, enrollments)

	_, err := svc.Create(context.Background(), teacherClaims("t2"), "intro-to-go", CreateLessonRequest{Title: "Hijacked"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceUpdateRejectsForeignLesson(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	repo.lessons["l-other"] = models.Lesson{ID: "l-other", CourseID: "c2", Status: models.LessonStatusPublished}
	svc := newLessonService(repo, courses, enrollments)

	title := "Renamed"
	_, err := svc.Update(context.Background(), adminClaims("a1"), "intro-to-go", "l-other", UpdateLessonRequest{Title: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceDelete(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	svc := newLessonService(repo, courses, enrollments)

	require.NoError(t, svc.Delete(context.Background(), teacherClaims("t1"), "intro-to-go", "l-draft"))
	assert.Contains(t, repo.deleted, "l-draft")
}

func TestLessonServiceListSkipsDraftsForNonManagers(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	svc := newLessonService(repo, courses, enrollments)

	summaries, err := svc.List(context.Background(), nil, "intro-to-go")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.NotEqual(t, "l-draft", s.ID)
	}
}

func TestLessonServiceListManagerSeesDraftsAndAccess(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	svc := newLessonService(repo, courses, enrollments)

	summaries, err := svc.List(context.Background(), teacherClaims("t1"), "intro-to-go")
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	for _, s := range summaries {
		assert.True(t, s.Accessible)
	}
}

func TestLessonServiceListMarksAccessibility(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	svc := newLessonService(repo, courses, enrollments)

	summaries, err := svc.List(context.Background(), studentClaims("s1"), "intro-to-go")
	require.NoError(t, err)
	byID := map[string]models.LessonSummary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}
	assert.True(t, byID["l-free"].Accessible)
	assert.False(t, byID["l-paid"].Accessible)

	enrollments.enrollments["c1:s1"] = &models.Enrollment{CourseID: "c1", StudentID: "s1", Status: models.EnrollmentStatusActive}
	summaries, err = svc.List(context.Background(), studentClaims("s1"), "intro-to-go")
	require.NoError(t, err)
	for _, s := range summaries {
		assert.True(t, s.Accessible)
	}
}

func TestLessonServiceListHidesUnpublishedCourse(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	courses.courses["intro-to-go"].Status = models.CourseStatusDraft
	svc := newLessonService(repo, courses, enrollments)

	_, err := svc.List(context.Background(), studentClaims("s1"), "intro-to-go")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	summaries, err := svc.List(context.Background(), teacherClaims("t1"), "intro-to-go")
	require.NoError(t, err)
	assert.Len(t, summaries, 3)
}

func TestLessonServiceGetFreeLessonAnonymous(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	svc := newLessonService(repo, courses, enrollments)

	lesson, err := svc.Get(context.Background(), nil, "intro-to-go", "l-free")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", lesson.Title)
}

func TestLessonServiceGetPaidLessonRequiresCredential(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	svc := newLessonService(repo, courses, enrollments)

	_, err := svc.Get(context.Background(), nil, "intro-to-go", "l-paid")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceGetPaidLessonRequiresActiveEnrollment(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	svc := newLessonService(repo, courses, enrollments)

	_, err := svc.Get(context.Background(), studentClaims("s1"), "intro-to-go", "l-paid")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	enrollments.enrollments["c1:s1"] = &models.Enrollment{CourseID: "c1", StudentID: "s1", Status: models.EnrollmentStatusSuspended}
	_, err = svc.Get(context.Background(), studentClaims("s1"), "intro-to-go", "l-paid")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	enrollments.enrollments["c1:s1"] = &models.Enrollment{CourseID: "c1", StudentID: "s1", Status: models.EnrollmentStatusActive}
	lesson, err := svc.Get(context.Background(), studentClaims("s1"), "intro-to-go", "l-paid")
	require.NoError(t, err)
	assert.Equal(t, "full text", lesson.Transcript)
}

func TestLessonServiceGetDraftReadsAsNotFound(t *testing.T) {
	repo, courses, enrollments := lessonFixtures()
	svc := newLessonService(repo, courses, enrollments)

	// Even the instructor gets not-found on the read path.
	_, err := svc.Get(context.Background(), teacherClaims("t1"), "intro-to-go", "l-draft")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
