package organisations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusworks/campusworks/internal/platform/db"
	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches an organisation by id.
func (r *Repository) Get(ctx context.Context, id int64) (Organisation, error) {
	var org Organisation
	err := r.pool.QueryRow(ctx, `SELECT id, name, is_active, created_at, updated_at FROM organisations WHERE id = $1`, id).
		Scan(&org.ID, &org.Name, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organisation{}, shared.ErrNotFound
		}
		return Organisation{}, err
	}
	return org, nil
}

// ListActive returns all active organisations ordered by name.
func (r *Repository) ListActive(ctx context.Context) ([]Organisation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, is_active, created_at, updated_at FROM organisations WHERE is_active ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orgs []Organisation
	for rows.Next() {
		var org Organisation
		if err := rows.Scan(&org.ID, &org.Name, &org.IsActive, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orgs, nil
}

// CreateWithDefaultRoles inserts the organisation and seeds its four
// default roles in one transaction.
func (r *Repository) CreateWithDefaultRoles(ctx context.Context, name string, defaults map[string][]string) (Organisation, error) {
	var org Organisation
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO organisations (name, is_active) VALUES ($1, TRUE) RETURNING id, name, is_active, created_at, updated_at`,
			name).Scan(&org.ID, &org.Name, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
		if err != nil {
			return err
		}
		for _, roleName := range rbac.DefaultRoleNames() {
			permissions := defaults[roleName]
			if permissions == nil {
				permissions = []string{}
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO roles (organisation_id, name, name_fold, description, permissions, is_default, is_active)
				 VALUES ($1, $2, $3, '', $4, TRUE, TRUE)`,
				org.ID, roleName, rbac.FoldName(roleName), permissions); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Organisation{}, err
	}
	return org, nil
}

// Rename updates the organisation name.
func (r *Repository) Rename(ctx context.Context, id int64, name string) (Organisation, error) {
	var org Organisation
	err := r.pool.QueryRow(ctx,
		`UPDATE organisations SET name = $2, updated_at = NOW() WHERE id = $1 AND is_active RETURNING id, name, is_active, created_at, updated_at`,
		id, name).Scan(&org.ID, &org.Name, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organisation{}, shared.ErrNotFound
		}
		return Organisation{}, err
	}
	return org, nil
}

// SoftDelete deactivates an organisation.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE organisations SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
