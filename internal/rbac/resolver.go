package rbac

import (
	"context"
	"fmt"
)

// AssignmentSource reads active role assignments.
type AssignmentSource interface {
	// ActiveAssignments returns every active assignment for the user in
	// the organisation (merge model).
	ActiveAssignments(ctx context.Context, userID, organisationID int64) ([]RoleAssignment, error)
	// ActiveAssignment returns the most recently created active assignment,
	// or nil when none exists (legacy single-role model).
	ActiveAssignment(ctx context.Context, userID, organisationID int64) (*RoleAssignment, error)
}

// RoleSource reads active roles by id.
type RoleSource interface {
	RolesByIDs(ctx context.Context, ids []int64) ([]Role, error)
}

// OrganisationSource reports whether an organisation exists and is active.
type OrganisationSource interface {
	OrganisationActive(ctx context.Context, organisationID int64) (bool, error)
}

// CatalogSource supplies the current system-permission catalog snapshot.
type CatalogSource interface {
	Snapshot(ctx context.Context) (CatalogSnapshot, error)
}

// Mode selects how multiple active assignments are interpreted.
type Mode int

const (
	// ModeMerge unions the permission sets of every active assignment.
	ModeMerge Mode = iota
	// ModeLegacy considers only the most recently created assignment.
	ModeLegacy
)

// DecisionHook observes resolution outcomes, e.g. for metrics. Must not
// block or fail.
type DecisionHook func(permissionID string, allowed bool)

// Resolver is the single permission-resolution decision core. Every call
// site depends on it; none re-derives role or bypass logic locally.
type Resolver struct {
	assignments   AssignmentSource
	roles         RoleSource
	organisations OrganisationSource
	catalog       CatalogSource
	mode          Mode
	hook          DecisionHook
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithMode sets the assignment interpretation mode.
func WithMode(mode Mode) ResolverOption {
	return func(r *Resolver) { r.mode = mode }
}

// WithDecisionHook installs an observer invoked after every decision.
func WithDecisionHook(hook DecisionHook) ResolverOption {
	return func(r *Resolver) { r.hook = hook }
}

// NewResolver constructs a Resolver.
func NewResolver(assignments AssignmentSource, roles RoleSource, organisations OrganisationSource, catalog CatalogSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{assignments: assignments, roles: roles, organisations: organisations, catalog: catalog, mode: ModeMerge}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasPermission decides whether the actor may perform permissionID within
// organisationID. The five steps run in strict order; each assumes the
// previous ones did not short-circuit.
func (r *Resolver) HasPermission(ctx context.Context, actor Actor, permissionID string, organisationID int64) (bool, error) {
	allowed, err := r.resolve(ctx, actor, permissionID, organisationID)
	if err == nil && r.hook != nil {
		r.hook(permissionID, allowed)
	}
	return allowed, err
}

// RequirePermission is the strict variant: a completed denial becomes a
// PermissionDeniedError carrying the permission id. Lookup failures
// propagate unchanged and are never folded into a denial.
func (r *Resolver) RequirePermission(ctx context.Context, actor Actor, permissionID string, organisationID int64) error {
	allowed, err := r.HasPermission(ctx, actor, permissionID, organisationID)
	if err != nil {
		return err
	}
	if !allowed {
		return &PermissionDeniedError{PermissionID: permissionID}
	}
	return nil
}

func (r *Resolver) resolve(ctx context.Context, actor Actor, permissionID string, organisationID int64) (bool, error) {
	// Step 1: system bypass.
	if actor.IsSystemUser() {
		return true, nil
	}

	// Step 2: organisation scope. A deactivated organisation denies
	// everything inside it, explicit grants included.
	orgActive, err := r.organisations.OrganisationActive(ctx, organisationID)
	if err != nil {
		return false, fmt.Errorf("rbac: organisation lookup: %w", err)
	}
	if !orgActive {
		return false, nil
	}

	snapshot, err := r.catalog.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("rbac: load catalog: %w", err)
	}
	entry, known := snapshot.Lookup(permissionID)

	// System-scoped catalog entries are not bound to an organisation;
	// everything else requires an exact match.
	if !known || entry.Scope != ScopeSystem {
		if actor.OrganisationID != organisationID {
			return false, nil
		}
	}

	// Step 3: active role lookup.
	roles, err := r.activeRoles(ctx, actor.UserID, organisationID)
	if err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return false, nil
	}

	// Step 4: explicit grant in any resolved role.
	for _, role := range roles {
		if role.HasGrant(permissionID) {
			return true, nil
		}
	}

	// Step 5: name-based default-role fallback against the catalog.
	if !known {
		return false, nil
	}
	for _, role := range roles {
		if entry.DefaultsTo(role.Name) {
			return true, nil
		}
	}
	return false, nil
}

// activeRoles resolves the actor's assignments to active roles according
// to the configured mode.
func (r *Resolver) activeRoles(ctx context.Context, userID, organisationID int64) ([]Role, error) {
	var roleIDs []int64
	switch r.mode {
	case ModeLegacy:
		assignment, err := r.assignments.ActiveAssignment(ctx, userID, organisationID)
		if err != nil {
			return nil, err
		}
		if assignment == nil {
			return nil, nil
		}
		roleIDs = []int64{assignment.RoleID}
	default:
		assignments, err := r.assignments.ActiveAssignments(ctx, userID, organisationID)
		if err != nil {
			return nil, err
		}
		if len(assignments) == 0 {
			return nil, nil
		}
		roleIDs = make([]int64, 0, len(assignments))
		for _, a := range assignments {
			roleIDs = append(roleIDs, a.RoleID)
		}
	}

	roles, err := r.roles.RolesByIDs(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	active := roles[:0]
	for _, role := range roles {
		if role.IsActive {
			active = append(active, role)
		}
	}
	return active, nil
}
