package organisations

import (
	"context"
	"errors"
	"strings"

	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/internal/shared"
)

// RepositoryPort defines data access methods for organisations.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Organisation, error)
	ListActive(ctx context.Context) ([]Organisation, error)
	CreateWithDefaultRoles(ctx context.Context, name string, defaults map[string][]string) (Organisation, error)
	Rename(ctx context.Context, id int64, name string) (Organisation, error)
	SoftDelete(ctx context.Context, id int64) error
}

// Service handles organisation provisioning.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get fetches an organisation by id.
func (s *Service) Get(ctx context.Context, id int64) (Organisation, error) {
	return s.repo.Get(ctx, id)
}

// ListActive returns all active organisations.
func (s *Service) ListActive(ctx context.Context) ([]Organisation, error) {
	return s.repo.ListActive(ctx)
}

// Create provisions an organisation with its four seeded default roles.
func (s *Service) Create(ctx context.Context, name string) (Organisation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organisation{}, errors.New("organisations: name required")
	}
	return s.repo.CreateWithDefaultRoles(ctx, name, DefaultRolePermissions())
}

// Rename updates the organisation name.
func (s *Service) Rename(ctx context.Context, id int64, name string) (Organisation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organisation{}, errors.New("organisations: name required")
	}
	return s.repo.Rename(ctx, id, name)
}

// SoftDelete deactivates an organisation.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	return s.repo.SoftDelete(ctx, id)
}

// DefaultRolePermissions returns the baseline explicit grants seeded per
// default role. Catalog defaults layer on top of these at resolution time.
func DefaultRolePermissions() map[string][]string {
	return map[string][]string{
		rbac.RoleNameAdmin: {
			shared.PermUsersView, shared.PermUsersEdit, shared.PermUsersInvite, shared.PermUsersDelete,
			shared.PermRolesView, shared.PermRolesEdit,
			shared.PermPermissionsView, shared.PermPermissionsManage,
			shared.PermOrganisationsView, shared.PermOrganisationsEdit,
			shared.PermAuditView,
			shared.PermYearsViewArchived, shared.PermYearsViewStaging, shared.PermYearsViewLive,
			shared.PermYearsEditArchived, shared.PermYearsEditStaging, shared.PermYearsEditLive,
			shared.PermYearsCreate, shared.PermYearsSetDefault,
		},
		rbac.RoleNameManager: {
			shared.PermUsersView,
			shared.PermRolesView,
			shared.PermYearsViewStaging, shared.PermYearsViewLive,
			shared.PermYearsEditStaging, shared.PermYearsEditLive,
			shared.PermYearsCreate,
		},
		rbac.RoleNameLecturer: {
			shared.PermYearsViewStaging, shared.PermYearsViewLive,
		},
		rbac.RoleNameViewer: {
			shared.PermYearsViewLive,
		},
	}
}
