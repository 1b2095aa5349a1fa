package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

const userColumns = `id, subject, email, name, organisation_id, system_roles, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Subject, &u.Email, &u.Name, &u.OrganisationID, &u.SystemRoles, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// List returns the organisation's users ordered by name.
func (r *Repository) List(ctx context.Context, organisationID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE organisation_id = $1 AND is_active ORDER BY name, id`, organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertBySubject creates or refreshes the record bound to an
// identity-provider subject.
func (r *Repository) UpsertBySubject(ctx context.Context, subject, email, name string, organisationID int64) (User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (subject, email, name, organisation_id, system_roles, is_active)
		 VALUES ($1, $2, $3, $4, '{}', TRUE)
		 ON CONFLICT (subject) DO UPDATE
		 SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = NOW()
		 RETURNING `+userColumns,
		subject, email, name, organisationID)
	return scanUser(row)
}

// SetSystemRoles replaces the user's system role tags.
func (r *Repository) SetSystemRoles(ctx context.Context, id int64, systemRoles []string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET system_roles = $2, updated_at = NOW() WHERE id = $1 AND is_active`, id, systemRoles)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SoftDelete deactivates a user.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HardDelete removes a user record entirely. Admin-only escape hatch; the
// default lifecycle is soft delete.
func (r *Repository) HardDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateInvite stores a pending invite with the hashed token.
func (r *Repository) CreateInvite(ctx context.Context, invite Invite) (Invite, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO invites (email, organisation_id, role_id, token_hash, invited_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		invite.Email, invite.OrganisationID, invite.RoleID, invite.TokenHash, invite.InvitedBy, invite.ExpiresAt).
		Scan(&invite.ID, &invite.CreatedAt)
	if err != nil {
		return Invite{}, err
	}
	return invite, nil
}

// GetInvite fetches an invite by id.
func (r *Repository) GetInvite(ctx context.Context, id int64) (Invite, error) {
	var invite Invite
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, organisation_id, role_id, token_hash, invited_by, expires_at, accepted_at, created_at FROM invites WHERE id = $1`, id).
		Scan(&invite.ID, &invite.Email, &invite.OrganisationID, &invite.RoleID, &invite.TokenHash, &invite.InvitedBy, &invite.ExpiresAt, &invite.AcceptedAt, &invite.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invite{}, shared.ErrNotFound
		}
		return Invite{}, err
	}
	return invite, nil
}

// MarkInviteAccepted stamps the invite. Guarded so an invite accepts only
// once.
func (r *Repository) MarkInviteAccepted(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invites SET accepted_at = NOW() WHERE id = $1 AND accepted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
