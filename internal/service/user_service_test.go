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

type mockUserRepo struct {
	users   map[string]*models.User
	updated *models.User
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	m.updated = user
	return nil
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var list []models.User
	for _, u := range m.users {
		list = append(list, *u)
	}
	return list, len(list), nil
}

func newUserService(repo *mockUserRepo) *UserService {
	return NewUserService(repo, validator.New(), zap.NewNop())
}

func TestUserServiceGet(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1", Email: "u1@example.com", FullName: "User One", Role: models.RoleStudent, Status: models.UserStatusActive}}}
	svc := newUserService(repo)

	user, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", user.Email)

	_, err = svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateProfileSelf(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1", FullName: "User One", Role: models.RoleStudent, Status: models.UserStatusActive}}}
	svc := newUserService(repo)

	name := "Renamed User"
	bio := "learning Go"
	user, err := svc.UpdateProfile(context.Background(), studentClaims("u1"), "u1", UpdateProfileRequest{FullName: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Renamed User", user.FullName)
	assert.Equal(t, "learning Go", user.Bio)
}

func TestUserServiceUpdateProfileForbiddenForOthers(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1", Role: models.RoleStudent}}}
	svc := newUserService(repo)

	name := "Hijacked"
	_, err := svc.UpdateProfile(context.Background(), studentClaims("u2"), "u1", UpdateProfileRequest{FullName: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUserServiceStatusChangeIsAdminOnly(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1", Role: models.RoleStudent, Status: models.UserStatusActive}}}
	svc := newUserService(repo)

	status := models.UserStatusSuspended
	_, err := svc.UpdateProfile(context.Background(), studentClaims("u1"), "u1", UpdateProfileRequest{Status: &status})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	user, err := svc.UpdateProfile(context.Background(), adminClaims("a1"), "u1", UpdateProfileRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusSuspended, user.Status)
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Role: models.RoleStudent},
		"u2": {ID: "u2", Role: models.RoleTeacher},
	}}
	svc := newUserService(repo)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
}
