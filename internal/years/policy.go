package years

import (
	"context"

	"github.com/campusworks/campusworks/internal/rbac"
)

// Policy maps a year's lifecycle state to the permission id governing it
// and delegates the decision to the permission resolver. It never
// re-derives bypass or role logic locally.
type Policy struct {
	resolver *rbac.Resolver
}

// NewPolicy constructs a Policy.
func NewPolicy(resolver *rbac.Resolver) *Policy {
	return &Policy{resolver: resolver}
}

// CanView decides whether the actor may read the year.
func (p *Policy) CanView(ctx context.Context, actor rbac.Actor, year AcademicYear) (bool, error) {
	return p.resolver.HasPermission(ctx, actor, ViewPermission(year.LifecycleState()), year.OrganisationID)
}

// CanEdit decides whether the actor may mutate the year in its current
// lifecycle state.
func (p *Policy) CanEdit(ctx context.Context, actor rbac.Actor, year AcademicYear) (bool, error) {
	return p.resolver.HasPermission(ctx, actor, EditPermission(year.LifecycleState()), year.OrganisationID)
}

// RequireView is the strict variant of CanView.
func (p *Policy) RequireView(ctx context.Context, actor rbac.Actor, year AcademicYear) error {
	return p.resolver.RequirePermission(ctx, actor, ViewPermission(year.LifecycleState()), year.OrganisationID)
}

// RequireEdit is the strict variant of CanEdit.
func (p *Policy) RequireEdit(ctx context.Context, actor rbac.Actor, year AcademicYear) error {
	return p.resolver.RequirePermission(ctx, actor, EditPermission(year.LifecycleState()), year.OrganisationID)
}

// ViewableStates evaluates view eligibility once per state for the actor
// in the organisation. The result feeds the list query's state predicate
// so filtering happens in the store, not after the fact.
func (p *Policy) ViewableStates(ctx context.Context, actor rbac.Actor, organisationID int64) ([]State, error) {
	var states []State
	for _, state := range AllStates() {
		allowed, err := p.resolver.HasPermission(ctx, actor, ViewPermission(state), organisationID)
		if err != nil {
			return nil, err
		}
		if allowed {
			states = append(states, state)
		}
	}
	return states, nil
}
