package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusworks/campusworks/internal/platform/db"
)

const pgUniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for the RBAC core.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindActorBySubject resolves an identity-provider subject to an actor.
// Inactive records do not resolve.
func (r *Repository) FindActorBySubject(ctx context.Context, subject string) (Actor, error) {
	var actor Actor
	err := r.pool.QueryRow(ctx, `SELECT id, subject, organisation_id, system_roles FROM users WHERE subject = $1 AND is_active`, subject).
		Scan(&actor.UserID, &actor.Subject, &actor.OrganisationID, &actor.SystemRoles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrActorNotFound
		}
		return Actor{}, err
	}
	return actor, nil
}

// UserOrganisation returns the organisation of an active user.
func (r *Repository) UserOrganisation(ctx context.Context, userID int64) (int64, error) {
	var organisationID int64
	err := r.pool.QueryRow(ctx, `SELECT organisation_id FROM users WHERE id = $1 AND is_active`, userID).Scan(&organisationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return organisationID, nil
}

const roleColumns = `id, organisation_id, name, description, permissions, is_default, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.OrganisationID, &role.Name, &role.Description, &role.Permissions, &role.IsDefault, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// GetRole fetches a role by id regardless of active state.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns the active roles of an organisation ordered by name.
func (r *Repository) ListRoles(ctx context.Context, organisationID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE organisation_id = $1 AND is_active ORDER BY name, id`, organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// RolesByIDs returns the roles matching ids, active or not. Callers filter
// on IsActive as needed.
func (r *Repository) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// InsertRole persists a new role. A name collision within the organisation
// (unique index on the case-folded name) maps to ErrDuplicateRoleName.
func (r *Repository) InsertRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO roles (organisation_id, name, name_fold, description, permissions, is_default, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		 RETURNING `+roleColumns,
		role.OrganisationID, role.Name, FoldName(role.Name), role.Description, role.Permissions, role.IsDefault)
	inserted, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicateRoleName
		}
		return Role{}, err
	}
	return inserted, nil
}

// UpdateRole updates name, description and permission set of a role.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, name_fold = $3, description = $4, permissions = $5, updated_at = NOW()
		 WHERE id = $1 AND is_active
		 RETURNING `+roleColumns,
		role.ID, role.Name, FoldName(role.Name), role.Description, role.Permissions)
	updated, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicateRoleName
		}
		return Role{}, err
	}
	return updated, nil
}

// SoftDeleteRole deactivates a role unless any active assignment still
// references it. Both conditions are checked in one statement so the
// in-use guard cannot race a concurrent assignment.
func (r *Repository) SoftDeleteRole(ctx context.Context, roleID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET is_active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND is_active
		   AND NOT EXISTS (SELECT 1 FROM role_assignments WHERE role_id = $1 AND is_active)`,
		roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing role from one that is still assigned.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1 AND is_active)`, roleID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrRoleInUse
		}
		return ErrNotFound
	}
	return nil
}

// AddPermissionToRole appends the permission id to the role's set if it is
// not already present. Returns true when a grant was actually added, which
// keeps the push-defaults materialization idempotent and countable.
func (r *Repository) AddPermissionToRole(ctx context.Context, roleID int64, permissionID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET permissions = array_append(permissions, $2), updated_at = NOW()
		 WHERE id = $1 AND is_active AND NOT ($2 = ANY(permissions))`,
		roleID, permissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ActiveAssignments returns every active assignment for the user within
// the organisation, newest first.
func (r *Repository) ActiveAssignments(ctx context.Context, userID, organisationID int64) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, role_id, organisation_id, assigned_by, is_active, created_at
		 FROM role_assignments
		 WHERE user_id = $1 AND organisation_id = $2 AND is_active
		 ORDER BY created_at DESC, id DESC`,
		userID, organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.OrganisationID, &a.AssignedBy, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// ActiveAssignment returns the most recently created active assignment, or
// nil when the user holds none in the organisation.
func (r *Repository) ActiveAssignment(ctx context.Context, userID, organisationID int64) (*RoleAssignment, error) {
	assignments, err := r.ActiveAssignments(ctx, userID, organisationID)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}
	return &assignments[0], nil
}

// ReplaceAssignments reconciles the user's active assignment set in the
// organisation against the desired role-id set inside one transaction:
// stale rows are deactivated, missing rows inserted, rows already matching
// are left untouched. Re-running with the same arguments is a no-op.
func (r *Repository) ReplaceAssignments(ctx context.Context, userID, organisationID int64, roleIDs []int64, assignedBy int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id, role_id FROM role_assignments
			 WHERE user_id = $1 AND organisation_id = $2 AND is_active
			 FOR UPDATE`,
			userID, organisationID)
		if err != nil {
			return err
		}
		current := make(map[int64]int64) // role id -> assignment id
		for rows.Next() {
			var assignmentID, roleID int64
			if err := rows.Scan(&assignmentID, &roleID); err != nil {
				rows.Close()
				return err
			}
			current[roleID] = assignmentID
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		desired := make(map[int64]struct{}, len(roleIDs))
		for _, roleID := range roleIDs {
			desired[roleID] = struct{}{}
		}

		for roleID, assignmentID := range current {
			if _, keep := desired[roleID]; keep {
				continue
			}
			if _, err := tx.Exec(ctx, `UPDATE role_assignments SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, assignmentID); err != nil {
				return err
			}
		}
		for roleID := range desired {
			if _, exists := current[roleID]; exists {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_assignments (user_id, role_id, organisation_id, assigned_by, is_active)
				 VALUES ($1, $2, $3, $4, TRUE)`,
				userID, roleID, organisationID, assignedBy); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListSystemPermissions returns every catalog entry, including inactive
// ones.
func (r *Repository) ListSystemPermissions(ctx context.Context) ([]SystemPermission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, perm_group, description, default_roles, scope, is_active, updated_at FROM system_permissions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []SystemPermission
	for rows.Next() {
		var entry SystemPermission
		if err := rows.Scan(&entry.ID, &entry.Group, &entry.Description, &entry.DefaultRoles, &entry.Scope, &entry.IsActive, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// UpsertSystemPermission inserts or updates a catalog entry.
func (r *Repository) UpsertSystemPermission(ctx context.Context, entry SystemPermission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO system_permissions (id, perm_group, description, default_roles, scope, is_active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET perm_group = EXCLUDED.perm_group, description = EXCLUDED.description,
		     default_roles = EXCLUDED.default_roles, scope = EXCLUDED.scope,
		     is_active = TRUE, updated_at = NOW()`,
		entry.ID, entry.Group, entry.Description, entry.DefaultRoles, entry.Scope)
	return err
}

// SoftDeleteSystemPermission deactivates a catalog entry.
func (r *Repository) SoftDeleteSystemPermission(ctx context.Context, permissionID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE system_permissions SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ForceDeleteSystemPermission removes the catalog row and strips the id
// from every role's permission set in one transaction.
func (r *Repository) ForceDeleteSystemPermission(ctx context.Context, permissionID string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE roles SET permissions = array_remove(permissions, $1), updated_at = NOW() WHERE $1 = ANY(permissions)`, permissionID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM system_permissions WHERE id = $1`, permissionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// OrganisationActive reports whether the organisation exists and is active.
func (r *Repository) OrganisationActive(ctx context.Context, organisationID int64) (bool, error) {
	var active bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM organisations WHERE id = $1 AND is_active)`, organisationID).Scan(&active)
	if err != nil {
		return false, err
	}
	return active, nil
}

// ActiveOrganisationIDs lists the ids of active organisations.
func (r *Repository) ActiveOrganisationIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM organisations WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

var (
	_ AssignmentSource   = (*Repository)(nil)
	_ RoleSource         = (*Repository)(nil)
	_ OrganisationSource = (*Repository)(nil)
	_ CatalogStore       = (*Repository)(nil)
)
