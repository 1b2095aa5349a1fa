package rbac

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// PushReport summarizes a push-defaults run.
type PushReport struct {
	PermissionID  string `json:"permission_id"`
	Organisations int64  `json:"organisations_scanned"`
	RolesGranted  int64  `json:"roles_granted"`
}

// PushPermissionToOrganisations materializes a catalog entry's default
// grants: for every active organisation, every active role whose name is
// in the entry's default roles receives the permission id unless it
// already holds it. Idempotent; a second run grants zero roles.
func (s *Service) PushPermissionToOrganisations(ctx context.Context, permissionID string) (PushReport, error) {
	snapshot, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return PushReport{}, fmt.Errorf("rbac: load catalog: %w", err)
	}
	entry, ok := snapshot.Lookup(permissionID)
	if !ok {
		return PushReport{}, ErrNotFound
	}

	organisationIDs, err := s.store.ActiveOrganisationIDs(ctx)
	if err != nil {
		return PushReport{}, err
	}

	report := PushReport{PermissionID: permissionID}
	var granted atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, organisationID := range organisationIDs {
		organisationID := organisationID
		group.Go(func() error {
			roles, err := s.store.ListRoles(groupCtx, organisationID)
			if err != nil {
				return err
			}
			for _, role := range roles {
				if !entry.DefaultsTo(role.Name) {
					continue
				}
				added, err := s.store.AddPermissionToRole(groupCtx, role.ID, permissionID)
				if err != nil {
					return err
				}
				if added {
					granted.Add(1)
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return PushReport{}, err
	}

	report.Organisations = int64(len(organisationIDs))
	report.RolesGranted = granted.Load()
	return report, nil
}
