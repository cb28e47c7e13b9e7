package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillbridge/lms-api/internal/models"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
)

type mockCommunityRepo struct {
	posts         map[string]models.Post
	comments      map[string]models.Comment
	likes         map[string]bool
	registrations map[string]bool
	lastFilter    models.PostFilter
	created       *models.Post
	deleted       []string
}

func newMockCommunityRepo() *mockCommunityRepo {
	return &mockCommunityRepo{
		posts:         map[string]models.Post{},
		comments:      map[string]models.Comment{},
		likes:         map[string]bool{},
		registrations: map[string]bool{},
	}
}

func (m *mockCommunityRepo) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = "new-post"
	}
	m.posts[post.ID] = *post
	m.created = post
	return nil
}

func (m *mockCommunityRepo) FindByID(ctx context.Context, kind models.PostKind, id string) (*models.Post, error) {
	if p, ok := m.posts[id]; ok && p.Kind == kind {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCommunityRepo) FindDetailByID(ctx context.Context, kind models.PostKind, id string) (*models.PostDetail, error) {
	if p, ok := m.posts[id]; ok && p.Kind == kind {
		return &models.PostDetail{Post: p}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCommunityRepo) List(ctx context.Context, kind models.PostKind, filter models.PostFilter) ([]models.PostDetail, int, error) {
	m.lastFilter = filter
	var list []models.PostDetail
	for _, p := range m.posts {
		if p.Kind != kind {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		list = append(list, models.PostDetail{Post: p})
	}
	return list, len(list), nil
}

func (m *mockCommunityRepo) Update(ctx context.Context, post *models.Post) error {
	m.posts[post.ID] = *post
	return nil
}

func (m *mockCommunityRepo) Delete(ctx context.Context, id string) error {
	delete(m.posts, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCommunityRepo) HasLike(ctx context.Context, postID, userID string) (bool, error) {
	return m.likes[postID+":"+userID], nil
}

func (m *mockCommunityRepo) AddLike(ctx context.Context, postID, userID string) error {
	m.likes[postID+":"+userID] = true
	return nil
}

func (m *mockCommunityRepo) RemoveLike(ctx context.Context, postID, userID string) error {
	delete(m.likes, postID+":"+userID)
	return nil
}

func (m *mockCommunityRepo) CountLikes(ctx context.Context, postID string) (int, error) {
	count := 0
	for key, liked := range m.likes {
		if liked && len(key) > len(postID) && key[:len(postID)] == postID {
			count++
		}
	}
	return count, nil
}

func (m *mockCommunityRepo) CreateComment(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = "new-comment"
	}
	m.comments[comment.ID] = *comment
	return nil
}

func (m *mockCommunityRepo) FindCommentByID(ctx context.Context, id string) (*models.Comment, error) {
	if c, ok := m.comments[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCommunityRepo) ListComments(ctx context.Context, postID string) ([]models.CommentDetail, error) {
	var list []models.CommentDetail
	for _, c := range m.comments {
		if c.PostID == postID {
			list = append(list, models.CommentDetail{Comment: c})
		}
	}
	return list, nil
}

func (m *mockCommunityRepo) DeleteComment(ctx context.Context, id string) error {
	delete(m.comments, id)
	return nil
}

func (m *mockCommunityRepo) HasRegistration(ctx context.Context, postID, userID string) (bool, error) {
	return m.registrations[postID+":"+userID], nil
}

func (m *mockCommunityRepo) AddRegistration(ctx context.Context, postID, userID string) error {
	m.registrations[postID+":"+userID] = true
	return nil
}

func (m *mockCommunityRepo) RemoveRegistration(ctx context.Context, postID, userID string) error {
	delete(m.registrations, postID+":"+userID)
	return nil
}

func newCommunityService(repo *mockCommunityRepo) *CommunityService {
	return NewCommunityService(repo, validator.New(), zap.NewNop())
}

func publishedPost(id string, kind models.PostKind, authorID string) models.Post {
	now := time.Now().UTC()
	return models.Post{ID: id, Kind: kind, AuthorID: authorID, Title: "Title", Body: "Body", Status: models.PostStatusPublished, PublishedAt: &now}
}

func TestCommunityServiceCreateForbiddenForStudents(t *testing.T) {
	repo := newMockCommunityRepo()
	svc := newCommunityService(repo)

	_, err := svc.Create(context.Background(), studentClaims("s1"), models.PostKindForum, CreatePostRequest{Title: "A Thread", Body: "hello"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCommunityServiceCreateStartsAsDraft(t *testing.T) {
	repo := newMockCommunityRepo()
	svc := newCommunityService(repo)

	post, err := svc.Create(context.Background(), teacherClaims("t1"), models.PostKindBlog, CreatePostRequest{Title: "A Post", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	assert.Equal(t, "t1", post.AuthorID)
}

func TestCommunityServiceCreateEventRequiresStartTime(t *testing.T) {
	repo := newMockCommunityRepo()
	svc := newCommunityService(repo)

	_, err := svc.Create(context.Background(), teacherClaims("t1"), models.PostKindEvent, CreatePostRequest{Title: "Meetup", Body: "join us"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	starts := time.Now().Add(48 * time.Hour)
	event, err := svc.Create(context.Background(), teacherClaims("t1"), models.PostKindEvent, CreatePostRequest{Title: "Meetup", Body: "join us", EventStartsAt: &starts, EventLocation: "Room 4"})
	require.NoError(t, err)
	assert.NotNil(t, event.EventStartsAt)
	assert.Equal(t, "Room 4", event.EventLocation)
}

func TestCommunityServiceUpdateOwnership(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["p1"] = publishedPost("p1", models.PostKindForum, "t1")
	svc := newCommunityService(repo)

	title := "Edited"
	_, err := svc.Update(context.Background(), teacherClaims("t2"), models.PostKindForum, "p1", UpdatePostRequest{Title: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	post, err := svc.Update(context.Background(), teacherClaims("t1"), models.PostKindForum, "p1", UpdatePostRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Edited", post.Title)
}

func TestCommunityServicePublishStampsOnce(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["p1"] = models.Post{ID: "p1", Kind: models.PostKindBlog, AuthorID: "t1", Title: "Draft", Body: "b", Status: models.PostStatusDraft}
	svc := newCommunityService(repo)

	post, err := svc.Publish(context.Background(), teacherClaims("t1"), models.PostKindBlog, "p1")
	require.NoError(t, err)
	require.NotNil(t, post.PublishedAt)
	first := *post.PublishedAt

	post, err = svc.Publish(context.Background(), teacherClaims("t1"), models.PostKindBlog, "p1")
	require.NoError(t, err)
	assert.Equal(t, first, *post.PublishedAt)
}

func TestCommunityServiceListRestrictsToPublished(t *testing.T) {
	repo := newMockCommunityRepo()
	svc := newCommunityService(repo)

	_, _, err := svc.List(context.Background(), nil, models.PostKindForum, models.PostFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, repo.lastFilter.Status)

	// Authors filtering by themselves see their drafts.
	_, _, err = svc.List(context.Background(), teacherClaims("t1"), models.PostKindForum, models.PostFilter{AuthorID: "t1", Status: models.PostStatusDraft})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, repo.lastFilter.Status)
}

func TestCommunityServiceGetHidesDrafts(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["p1"] = models.Post{ID: "p1", Kind: models.PostKindBlog, AuthorID: "t1", Status: models.PostStatusDraft}
	svc := newCommunityService(repo)

	_, err := svc.Get(context.Background(), studentClaims("s1"), models.PostKindBlog, "p1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	detail, err := svc.Get(context.Background(), teacherClaims("t1"), models.PostKindBlog, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", detail.ID)
}

func TestCommunityServiceGetRejectsKindMismatch(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["p1"] = publishedPost("p1", models.PostKindForum, "t1")
	svc := newCommunityService(repo)

	_, err := svc.Get(context.Background(), nil, models.PostKindBlog, "p1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCommunityServiceToggleLikeRoundTrip(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["p1"] = publishedPost("p1", models.PostKindForum, "t1")
	svc := newCommunityService(repo)

	state, err := svc.ToggleLike(context.Background(), studentClaims("s1"), models.PostKindForum, "p1")
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.Equal(t, 1, state.LikeCount)

	state, err = svc.ToggleLike(context.Background(), studentClaims("s1"), models.PostKindForum, "p1")
	require.NoError(t, err)
	assert.False(t, state.Liked)
	assert.Equal(t, 0, state.LikeCount)
}

func TestCommunityServiceToggleLikeRequiresPublishedPost(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["p1"] = models.Post{ID: "p1", Kind: models.PostKindForum, AuthorID: "t1", Status: models.PostStatusDraft}
	svc := newCommunityService(repo)

	_, err := svc.ToggleLike(context.Background(), studentClaims("s1"), models.PostKindForum, "p1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCommunityServiceComments(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["p1"] = publishedPost("p1", models.PostKindForum, "t1")
	svc := newCommunityService(repo)

	comment, err := svc.AddComment(context.Background(), studentClaims("s1"), models.PostKindForum, "p1", CreateCommentRequest{Body: "nice thread"})
	require.NoError(t, err)
	assert.Equal(t, "s1", comment.AuthorID)

	comments, err := svc.ListComments(context.Background(), nil, models.PostKindForum, "p1")
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestCommunityServiceDeleteCommentOwnership(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["p1"] = publishedPost("p1", models.PostKindForum, "t1")
	repo.comments["cm1"] = models.Comment{ID: "cm1", PostID: "p1", AuthorID: "s1", Body: "mine"}
	svc := newCommunityService(repo)

	err := svc.DeleteComment(context.Background(), studentClaims("s2"), models.PostKindForum, "p1", "cm1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// The post author moderates comments on their post.
	require.NoError(t, svc.DeleteComment(context.Background(), teacherClaims("t1"), models.PostKindForum, "p1", "cm1"))
	assert.Empty(t, repo.comments)
}

func TestCommunityServiceDeleteCommentRejectsForeignPost(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["p1"] = publishedPost("p1", models.PostKindForum, "t1")
	repo.comments["cm1"] = models.Comment{ID: "cm1", PostID: "p2", AuthorID: "s1"}
	svc := newCommunityService(repo)

	err := svc.DeleteComment(context.Background(), studentClaims("s1"), models.PostKindForum, "p1", "cm1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCommunityServiceEventRegistrationAtMostOnce(t *testing.T) {
	repo := newMockCommunityRepo()
	repo.posts["ev1"] = publishedPost("ev1", models.PostKindEvent, "t1")
	svc := newCommunityService(repo)

	reg, err := svc.Register(context.Background(), studentClaims("s1"), "ev1")
	require.NoError(t, err)
	assert.Equal(t, "ev1", reg.PostID)

	_, err = svc.Register(context.Background(), studentClaims("s1"), "ev1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Unregister(context.Background(), studentClaims("s1"), "ev1"))
	_, err = svc.Register(context.Background(), studentClaims("s1"), "ev1")
	require.NoError(t, err)
}
