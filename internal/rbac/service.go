package rbac

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// Store defines the persistence surface the Service depends on.
type Store interface {
	FindActorBySubject(ctx context.Context, subject string) (Actor, error)
	UserOrganisation(ctx context.Context, userID int64) (int64, error)

	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context, organisationID int64) ([]Role, error)
	RolesByIDs(ctx context.Context, ids []int64) ([]Role, error)
	InsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	SoftDeleteRole(ctx context.Context, roleID int64) error
	AddPermissionToRole(ctx context.Context, roleID int64, permissionID string) (bool, error)

	ActiveAssignments(ctx context.Context, userID, organisationID int64) ([]RoleAssignment, error)
	ActiveAssignment(ctx context.Context, userID, organisationID int64) (*RoleAssignment, error)
	ReplaceAssignments(ctx context.Context, userID, organisationID int64, roleIDs []int64, assignedBy int64) error

	ActiveOrganisationIDs(ctx context.Context) ([]int64, error)
}

// Service orchestrates RBAC write paths and actor resolution. Permission
// checks themselves live in Resolver; callers are expected to have already
// authorized an operation before invoking a write here.
type Service struct {
	store   Store
	catalog *Catalog
}

// NewService constructs a Service.
func NewService(store Store, catalog *Catalog) *Service {
	return &Service{store: store, catalog: catalog}
}

// Catalog exposes the system-permission catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// ResolveActor maps an identity-provider subject to an Actor. A missing or
// inactive record fails with ErrActorNotFound; callers must treat that as
// unauthenticated, never as an implicit allow.
func (s *Service) ResolveActor(ctx context.Context, subject string) (Actor, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Actor{}, ErrActorNotFound
	}
	return s.store.FindActorBySubject(ctx, subject)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// ListRoles returns the active roles of an organisation.
func (s *Service) ListRoles(ctx context.Context, organisationID int64) ([]Role, error) {
	return s.store.ListRoles(ctx, organisationID)
}

// CreateRole inserts a new role. The permission set is deduplicated and
// the name must be unique within the organisation (case-folded).
func (s *Service) CreateRole(ctx context.Context, organisationID int64, name, description string, permissions []string, isDefault bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role := Role{
		OrganisationID: organisationID,
		Name:           name,
		Description:    strings.TrimSpace(description),
		Permissions:    normalizePermissionSet(permissions),
		IsDefault:      isDefault,
	}
	return s.store.InsertRole(ctx, role)
}

// UpdateRole replaces the mutable fields of a role.
func (s *Service) UpdateRole(ctx context.Context, roleID int64, name, description string, permissions []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	existing, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if !existing.IsActive {
		return Role{}, ErrRoleInactiveOrMissing
	}
	existing.Name = name
	existing.Description = strings.TrimSpace(description)
	existing.Permissions = normalizePermissionSet(permissions)
	return s.store.UpdateRole(ctx, existing)
}

// SoftDeleteRole deactivates a role. Fails with ErrRoleInUse while any
// active assignment references it; roles are never hard-deleted.
func (s *Service) SoftDeleteRole(ctx context.Context, roleID int64) error {
	return s.store.SoftDeleteRole(ctx, roleID)
}

// ActiveAssignment is the legacy single-role read path.
func (s *Service) ActiveAssignment(ctx context.Context, userID, organisationID int64) (*RoleAssignment, error) {
	return s.store.ActiveAssignment(ctx, userID, organisationID)
}

// ActiveAssignments is the merge-model read path.
func (s *Service) ActiveAssignments(ctx context.Context, userID, organisationID int64) ([]RoleAssignment, error) {
	return s.store.ActiveAssignments(ctx, userID, organisationID)
}

// AssignSingle replaces the user's active assignments with exactly one.
func (s *Service) AssignSingle(ctx context.Context, userID, roleID, assignedBy int64) error {
	return s.AssignMultiple(ctx, userID, []int64{roleID}, assignedBy)
}

// AssignMultiple atomically replaces the user's active assignment set with
// the given roles. All roles must be active and share one organisation,
// and the user must belong to it.
func (s *Service) AssignMultiple(ctx context.Context, userID int64, roleIDs []int64, assignedBy int64) error {
	if len(roleIDs) == 0 {
		return errors.New("rbac: at least one role required")
	}
	roleIDs = dedupeIDs(roleIDs)

	roles, err := s.store.RolesByIDs(ctx, roleIDs)
	if err != nil {
		return err
	}
	active := make(map[int64]Role, len(roles))
	for _, role := range roles {
		if role.IsActive {
			active[role.ID] = role
		}
	}
	var organisationID int64
	for _, roleID := range roleIDs {
		role, ok := active[roleID]
		if !ok {
			return ErrRoleInactiveOrMissing
		}
		if organisationID == 0 {
			organisationID = role.OrganisationID
		} else if role.OrganisationID != organisationID {
			return ErrCrossOrganisationRoleSet
		}
	}

	userOrg, err := s.store.UserOrganisation(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotInOrganisation
		}
		return err
	}
	if userOrg != organisationID {
		return ErrUserNotInOrganisation
	}

	return s.store.ReplaceAssignments(ctx, userID, organisationID, roleIDs, assignedBy)
}

func normalizePermissionSet(permissions []string) []string {
	unique := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	sort.Strings(normalized)
	return normalized
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
