package organisations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/internal/shared"
)

type stubRepo struct {
	created  string
	defaults map[string][]string
}

func (s *stubRepo) Get(_ context.Context, id int64) (Organisation, error) {
	return Organisation{ID: id, Name: "Demo", IsActive: true}, nil
}

func (s *stubRepo) ListActive(_ context.Context) ([]Organisation, error) {
	return []Organisation{{ID: 1, Name: "Demo", IsActive: true}}, nil
}

func (s *stubRepo) CreateWithDefaultRoles(_ context.Context, name string, defaults map[string][]string) (Organisation, error) {
	s.created = name
	s.defaults = defaults
	return Organisation{ID: 1, Name: name, IsActive: true}, nil
}

func (s *stubRepo) Rename(_ context.Context, id int64, name string) (Organisation, error) {
	return Organisation{ID: id, Name: name, IsActive: true}, nil
}

func (s *stubRepo) SoftDelete(_ context.Context, id int64) error { return nil }

func TestCreateSeedsDefaultRoles(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	org, err := svc.Create(context.Background(), "  Demo University ")
	require.NoError(t, err)
	require.Equal(t, "Demo University", org.Name)
	require.Equal(t, "Demo University", repo.created)

	for _, roleName := range rbac.DefaultRoleNames() {
		require.Contains(t, repo.defaults, roleName)
	}
	require.Contains(t, repo.defaults[rbac.RoleNameAdmin], shared.PermPermissionsManage)
	require.NotContains(t, repo.defaults[rbac.RoleNameViewer], shared.PermYearsEditLive)

	_, err = svc.Create(context.Background(), "  ")
	require.Error(t, err)
}

func TestDefaultRolePermissionTiers(t *testing.T) {
	defaults := DefaultRolePermissions()

	// Visibility narrows going down the tier list.
	require.Contains(t, defaults[rbac.RoleNameAdmin], shared.PermYearsViewArchived)
	require.NotContains(t, defaults[rbac.RoleNameManager], shared.PermYearsViewArchived)
	require.Contains(t, defaults[rbac.RoleNameManager], shared.PermYearsEditStaging)
	require.Contains(t, defaults[rbac.RoleNameLecturer], shared.PermYearsViewStaging)
	require.NotContains(t, defaults[rbac.RoleNameLecturer], shared.PermYearsEditLive)
	require.Equal(t, []string{shared.PermYearsViewLive}, defaults[rbac.RoleNameViewer])
}
