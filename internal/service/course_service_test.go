package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
)

type mockCourseRepo struct {
	courses     map[string]*models.Course
	details     []models.CourseDetail
	lastFilter  models.CourseFilter
	listCalls   int
	ratings     map[string]bool
	enrolled    map[string]bool
	created     *models.Course
	slugsInUse  map[string]bool
	lastRating  *models.CourseRating
	lastUpdated *models.Course
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "new-course"
	}
	m.created = course
	return nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	for _, c := range m.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) FindBySlug(ctx context.Context, slug string) (*models.Course, error) {
	if c, ok := m.courses[slug]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) FindDetailBySlug(ctx context.Context, slug string) (*models.CourseDetail, error) {
	if c, ok := m.courses[slug]; ok {
		return &models.CourseDetail{Course: *c}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	m.listCalls++
	m.lastFilter = filter
	return m.details, len(m.details), nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.lastUpdated = course
	return nil
}

func (m *mockCourseRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	return m.slugsInUse[slug], nil
}

func (m *mockCourseRepo) CreateRating(ctx context.Context, rating *models.CourseRating) error {
	if rating.ID == "" {
		rating.ID = "new-rating"
	}
	m.lastRating = rating
	return nil
}

func (m *mockCourseRepo) RatingExists(ctx context.Context, courseID, studentID string) (bool, error) {
	return m.ratings[courseID+":"+studentID], nil
}

type mockEnrollmentChecker struct {
	enrolled map[string]bool
}

func (m *mockEnrollmentChecker) Exists(ctx context.Context, courseID, studentID string) (bool, error) {
	return m.enrolled[courseID+":"+studentID], nil
}

type fakeCatalogCache struct {
	entries map[string][]byte
	deletes []string
}

func (f *fakeCatalogCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCatalogCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if f.entries == nil {
		f.entries = make(map[string][]byte)
	}
	f.entries[key] = raw
	return nil
}

func (f *fakeCatalogCache) DeleteByPattern(ctx context.Context, pattern string) error {
	f.deletes = append(f.deletes, pattern)
	f.entries = nil
	return nil
}

type fakeLookupRecorder struct {
	hits   int
	misses int
}

func (f *fakeLookupRecorder) RecordCacheLookup(hit bool) {
	if hit {
		f.hits++
	} else {
		f.misses++
	}
}

func newCourseService(repo *mockCourseRepo, cache *fakeCatalogCache, metrics *fakeLookupRecorder) *CourseService {
	var c catalogCache
	if cache != nil {
		c = cache
	}
	var m cacheLookupRecorder
	if metrics != nil {
		m = metrics
	}
	return NewCourseService(repo, &mockEnrollmentChecker{enrolled: repo.enrolled}, c, time.Minute, m, validator.New(), zap.NewNop())
}

func TestCourseServiceCreate(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), teacherClaims("t1"), CreateCourseRequest{
		Title:      "Introduction to Go!",
		Category:   "programming",
		Level:      "BEGINNER",
		PriceCents: 4900,
	})
	require.NoError(t, err)
	assert.Equal(t, "introduction-to-go", course.Slug)
	assert.Equal(t, models.CourseStatusDraft, course.Status)
	assert.Equal(t, "t1", course.InstructorID)
	assert.Equal(t, "USD", course.Currency)
}

func TestCourseServiceCreateForbiddenForStudents(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newCourseService(repo, nil, nil)

	_, err := svc.Create(context.Background(), studentClaims("s1"), CreateCourseRequest{Title: "A Course", Category: "x", Level: "BEGINNER"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestCourseServiceCreateSuffixesTakenSlug(t *testing.T) {
	repo := &mockCourseRepo{slugsInUse: map[string]bool{"introduction-to-go": true}}
	svc := newCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), teacherClaims("t1"), CreateCourseRequest{
		Title:    "Introduction to Go",
		Category: "programming",
		Level:    "BEGINNER",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "introduction-to-go", course.Slug)
	assert.Contains(t, course.Slug, "introduction-to-go-")
}

func TestCourseServiceListRestrictsPublicView(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newCourseService(repo, nil, nil)

	_, _, err := svc.List(context.Background(), nil, models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPublished, repo.lastFilter.Status)

	_, _, err = svc.List(context.Background(), studentClaims("s1"), models.CourseFilter{Status: models.CourseStatusDraft})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPublished, repo.lastFilter.Status)
}

func TestCourseServiceListAdminSeesEverything(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newCourseService(repo, nil, nil)

	_, _, err := svc.List(context.Background(), adminClaims("a1"), models.CourseFilter{Status: models.CourseStatusDraft})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusDraft, repo.lastFilter.Status)
}

func TestCourseServiceListTeacherSeesOwnDrafts(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newCourseService(repo, nil, nil)

	_, _, err := svc.List(context.Background(), teacherClaims("t1"), models.CourseFilter{InstructorID: "t1", Status: models.CourseStatusDraft})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusDraft, repo.lastFilter.Status)

	// Filtering someone else's catalog falls back to the public view.
	_, _, err = svc.List(context.Background(), teacherClaims("t1"), models.CourseFilter{InstructorID: "t2", Status: models.CourseStatusDraft})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPublished, repo.lastFilter.Status)
}

func TestCourseServiceListCachesPublicView(t *testing.T) {
	repo := &mockCourseRepo{details: []models.CourseDetail{{Course: models.Course{ID: "c1", Slug: "intro", Status: models.CourseStatusPublished}}}}
	cache := &fakeCatalogCache{}
	metrics := &fakeLookupRecorder{}
	svc := newCourseService(repo, cache, metrics)

	_, _, err := svc.List(context.Background(), nil, models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, 1, metrics.misses)

	courses, pagination, err := svc.List(context.Background(), nil, models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls, "second lookup should be served from cache")
	assert.Equal(t, 1, metrics.hits)
	require.Len(t, courses, 1)
	assert.Equal(t, "intro", courses[0].Slug)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestCourseServiceUpdateInvalidatesCatalog(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{"intro": {ID: "c1", Slug: "intro", InstructorID: "t1", Status: models.CourseStatusDraft}}}
	cache := &fakeCatalogCache{entries: map[string][]byte{"catalog:v1:::::1:20::": []byte("{}")}}
	svc := newCourseService(repo, cache, nil)

	status := models.CourseStatusPublished
	course, err := svc.Update(context.Background(), teacherClaims("t1"), "intro", UpdateCourseRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPublished, course.Status)
	assert.Contains(t, cache.deletes, "catalog:*")
}

func TestCourseServiceUpdateForbiddenForOtherTeacher(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{"intro": {ID: "c1", Slug: "intro", InstructorID: "t1"}}}
	svc := newCourseService(repo, nil, nil)

	title := "New Title"
	_, err := svc.Update(context.Background(), teacherClaims("t2"), "intro", UpdateCourseRequest{Title: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceGetHidesDrafts(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{"intro": {ID: "c1", Slug: "intro", InstructorID: "t1", Status: models.CourseStatusDraft}}}
	svc := newCourseService(repo, nil, nil)

	_, err := svc.Get(context.Background(), nil, "intro")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	detail, err := svc.Get(context.Background(), teacherClaims("t1"), "intro")
	require.NoError(t, err)
	assert.Equal(t, "intro", detail.Slug)
}

func TestCourseServiceRate(t *testing.T) {
	repo := &mockCourseRepo{
		courses:  map[string]*models.Course{"intro": {ID: "c1", Slug: "intro", InstructorID: "t1", Status: models.CourseStatusPublished}},
		enrolled: map[string]bool{"c1:s1": true},
	}
	svc := newCourseService(repo, nil, nil)

	rating, err := svc.Rate(context.Background(), studentClaims("s1"), "intro", RateCourseRequest{Stars: 5, Comment: "great"})
	require.NoError(t, err)
	assert.Equal(t, 5, rating.Stars)
	assert.Equal(t, "s1", rating.StudentID)
}

func TestCourseServiceRateRequiresEnrollment(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{"intro": {ID: "c1", Slug: "intro", InstructorID: "t1", Status: models.CourseStatusPublished}}}
	svc := newCourseService(repo, nil, nil)

	_, err := svc.Rate(context.Background(), studentClaims("s1"), "intro", RateCourseRequest{Stars: 4})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceRateOncePerCourse(t *testing.T) {
	repo := &mockCourseRepo{
		courses:  map[string]*models.Course{"intro": {ID: "c1", Slug: "intro", InstructorID: "t1", Status: models.CourseStatusPublished}},
		enrolled: map[string]bool{"c1:s1": true},
		ratings:  map[string]bool{"c1:s1": true},
	}
	svc := newCourseService(repo, nil, nil)

	_, err := svc.Rate(context.Background(), studentClaims("s1"), "intro", RateCourseRequest{Stars: 3})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
