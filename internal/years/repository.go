package years

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusworks/campusworks/internal/platform/db"
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

const yearColumns = `id, organisation_id, name, start_date, end_date, status, staging, is_default, is_active, created_at, updated_at`

func scanYear(row pgx.Row) (AcademicYear, error) {
	var y AcademicYear
	err := row.Scan(&y.ID, &y.OrganisationID, &y.Name, &y.StartDate, &y.EndDate, &y.Status, &y.Staging, &y.IsDefault, &y.IsActive, &y.CreatedAt, &y.UpdatedAt)
	return y, err
}

// Get fetches an active academic year by id.
func (r *Repository) Get(ctx context.Context, id int64) (AcademicYear, error) {
	year, err := scanYear(r.pool.QueryRow(ctx, `SELECT `+yearColumns+` FROM academic_years WHERE id = $1 AND is_active`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AcademicYear{}, shared.ErrNotFound
		}
		return AcademicYear{}, err
	}
	return year, nil
}

// statePredicate returns the SQL predicate selecting years in the given
// derived state. The three predicates are mutually exclusive and cover
// every row, mirroring LifecycleState.
func statePredicate(state State) string {
	switch state {
	case StateArchived:
		return `(status = 'archived')`
	case StateStaging:
		return `(status <> 'archived' AND (staging OR status = 'draft'))`
	default:
		return `(status = 'published' AND NOT staging)`
	}
}

// ListForStates returns the organisation's active years whose derived
// state is in states, ordered by start date descending. An empty state set
// yields no rows: the caller saw no view permission at all.
func (r *Repository) ListForStates(ctx context.Context, organisationID int64, states []State) ([]AcademicYear, error) {
	if len(states) == 0 {
		return nil, nil
	}
	predicates := make([]string, 0, len(states))
	for _, state := range states {
		predicates = append(predicates, statePredicate(state))
	}
	query := `SELECT ` + yearColumns + ` FROM academic_years WHERE organisation_id = $1 AND is_active AND (` +
		strings.Join(predicates, " OR ") + `) ORDER BY start_date DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []AcademicYear
	for rows.Next() {
		year, err := scanYear(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, year)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Insert persists a new academic year in draft status.
func (r *Repository) Insert(ctx context.Context, year AcademicYear) (AcademicYear, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO academic_years (organisation_id, name, start_date, end_date, status, staging, is_default, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		 RETURNING `+yearColumns,
		year.OrganisationID, year.Name, year.StartDate, year.EndDate, year.Status, year.Staging, year.IsDefault)
	return scanYear(row)
}

// Update replaces the mutable fields of a year.
func (r *Repository) Update(ctx context.Context, year AcademicYear) (AcademicYear, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE academic_years
		 SET name = $2, start_date = $3, end_date = $4, status = $5, staging = $6, updated_at = NOW()
		 WHERE id = $1 AND is_active
		 RETURNING `+yearColumns,
		year.ID, year.Name, year.StartDate, year.EndDate, year.Status, year.Staging)
	updated, err := scanYear(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AcademicYear{}, shared.ErrNotFound
		}
		return AcademicYear{}, err
	}
	return updated, nil
}

// SetDefault flips the organisation's default flag to the target year
// inside one transaction: clear every sibling, then set the target. At
// commit exactly one default remains.
func (r *Repository) SetDefault(ctx context.Context, organisationID, yearID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE academic_years SET is_default = FALSE, updated_at = NOW()
			 WHERE organisation_id = $1 AND is_default AND id <> $2`,
			organisationID, yearID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE academic_years SET is_default = TRUE, updated_at = NOW()
			 WHERE id = $2 AND organisation_id = $1 AND is_active`,
			organisationID, yearID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// SoftDelete deactivates a year.
func (r *Repository) SoftDelete(ctx context.Context, yearID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE academic_years SET is_active = FALSE, is_default = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, yearID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
