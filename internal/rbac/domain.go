package rbac

import (
	"errors"
	"time"

	"golang.org/x/text/cases"
)

// System role tags that bypass organisation-scoped permission checks
// unconditionally. The source data historically used slightly different
// sets per call site ("admin" in some, "dev" in others); this is the one
// canonical set, applied everywhere.
var SystemBypassRoles = []string{"admin", "sysadmin", "developer", "dev"}

// Default role names seeded for every organisation. Catalog defaults match
// against these names, not role ids, so every organisation's own "Admin"
// row picks up the same defaults.
const (
	RoleNameAdmin    = "Admin"
	RoleNameManager  = "Manager"
	RoleNameLecturer = "Lecturer"
	RoleNameViewer   = "Viewer"
)

// DefaultRoleNames lists the seeded defaults in display order.
func DefaultRoleNames() []string {
	return []string{RoleNameAdmin, RoleNameManager, RoleNameLecturer, RoleNameViewer}
}

// Permission scopes for catalog entries.
const (
	ScopeOrganisation = "organisation"
	ScopeSystem       = "system"
)

var (
	// ErrActorNotFound indicates the subject does not resolve to an active
	// user record. Treated as an authentication failure, never a denial.
	ErrActorNotFound = errors.New("rbac: actor not found")
	// ErrRoleInUse indicates a role still has active assignments.
	ErrRoleInUse = errors.New("rbac: role has active assignments")
	// ErrRoleInactiveOrMissing indicates a referenced role is not active.
	ErrRoleInactiveOrMissing = errors.New("rbac: role inactive or missing")
	// ErrUserNotInOrganisation indicates the target user belongs to a
	// different organisation than the role.
	ErrUserNotInOrganisation = errors.New("rbac: user not in role organisation")
	// ErrCrossOrganisationRoleSet indicates a multi-assign mixing roles
	// from more than one organisation.
	ErrCrossOrganisationRoleSet = errors.New("rbac: role set spans organisations")
	// ErrDuplicateRoleName indicates a role name collision within an
	// organisation (compared case-folded).
	ErrDuplicateRoleName = errors.New("rbac: role name already in use")
	// ErrPermissionDenied is the sentinel matched by PermissionDeniedError.
	ErrPermissionDenied = errors.New("rbac: permission denied")
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
)

// PermissionDeniedError carries the permission id that failed resolution.
// It matches ErrPermissionDenied under errors.Is.
type PermissionDeniedError struct {
	PermissionID string
}

func (e *PermissionDeniedError) Error() string {
	return "rbac: permission denied: " + e.PermissionID
}

// Is reports whether target is the ErrPermissionDenied sentinel.
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Actor is an authenticated subject resolved into system context.
type Actor struct {
	UserID         int64
	Subject        string
	OrganisationID int64
	SystemRoles    []string
}

// IsSystemUser reports whether the actor carries any bypass tag.
func (a Actor) IsSystemUser() bool {
	for _, tag := range a.SystemRoles {
		for _, bypass := range SystemBypassRoles {
			if tag == bypass {
				return true
			}
		}
	}
	return false
}

// Role is an organisation-scoped named bundle of permission ids.
type Role struct {
	ID             int64
	OrganisationID int64
	Name           string
	Description    string
	Permissions    []string
	IsDefault      bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasGrant reports whether the role explicitly grants the permission id.
func (r Role) HasGrant(permissionID string) bool {
	for _, p := range r.Permissions {
		if p == permissionID {
			return true
		}
	}
	return false
}

// RoleAssignment links a user to a role within an organisation. Rows are
// deactivated, never deleted.
type RoleAssignment struct {
	ID             int64
	UserID         int64
	RoleID         int64
	OrganisationID int64
	AssignedBy     int64
	IsActive       bool
	CreatedAt      time.Time
}

// SystemPermission is a global catalog entry describing a permission id and
// the role names that receive it by default.
type SystemPermission struct {
	ID           string
	Group        string
	Description  string
	DefaultRoles []string
	Scope        string
	IsActive     bool
	UpdatedAt    time.Time
}

// DefaultsTo reports whether roleName is listed in the entry's default
// roles. Comparison is case-folded, matching the seeded role names across
// organisations regardless of how operators typed them.
func (p SystemPermission) DefaultsTo(roleName string) bool {
	folded := FoldName(roleName)
	for _, name := range p.DefaultRoles {
		if FoldName(name) == folded {
			return true
		}
	}
	return false
}

// FoldName normalizes a role name for comparison and uniqueness checks.
// A fresh Caser per call: Casers are stateful and not goroutine-safe.
func FoldName(name string) string {
	return cases.Fold().String(name)
}
