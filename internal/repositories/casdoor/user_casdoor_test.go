package casdoor

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

type fakeClient struct {
	users map[string]*casdoorsdk.User
	calls int
}

func (f *fakeClient) GetUserByUserId(id string) (*casdoorsdk.User, error) {
	f.calls++
	return f.users[id], nil
}

func TestGetByIDMapsRolesAndCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	client := &fakeClient{users: map[string]*casdoorsdk.User{
		"t1": {Id: "t1", DisplayName: "Teacher", Roles: []*casdoorsdk.Role{{Name: "Lecturer"}}},
		"a1": {Id: "a1", Roles: []*casdoorsdk.Role{{Name: "teacher"}}, IsAdmin: true},
		"s1": {Id: "s1"},
	}}
	repo := newUserCasdoor(client, rdb)
	ctx := context.Background()

	tests := []struct {
		id   string
		want models.UserRole
	}{
		{"t1", models.RoleTeacher},
		{"a1", models.RoleAdmin},
		{"s1", models.RoleStudent},
	}
	for _, tt := range tests {
		user, err := repo.GetByID(ctx, tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, user.Role, tt.id)
	}

	_, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
	assert.True(t, mr.Exists("user:id:t1"))
}

func TestGetByIDNotFound(t *testing.T) {
	repo := newUserCasdoor(&fakeClient{users: map[string]*casdoorsdk.User{}}, nil)

	_, err := repo.GetByID(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repositories.ErrUserNotFound))
	assert.True(t, repositories.IsNotFoundError(err))

	users, err := repo.GetByIDs(context.Background(), []string{"ghost"})
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestMapRole(t *testing.T) {
	assert.Equal(t, models.RoleProctor, MapRole("Supervisor"))
	assert.Equal(t, models.RoleAdmin, MapRole("administrator"))
	assert.Equal(t, models.RoleStudent, MapRole("unknown"))
}
