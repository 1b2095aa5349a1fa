package audit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow queries audit rows ordered newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	var (
		conditions []string
		args       []any
	)
	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if !filters.From.IsZero() {
		addCondition("occurred_at >= ?", filters.From)
	}
	if !filters.To.IsZero() {
		addCondition("occurred_at <= ?", filters.To)
	}
	if actor := strings.TrimSpace(filters.Actor); actor != "" {
		addCondition("actor_subject = ?", actor)
	}
	if entity := strings.TrimSpace(filters.Entity); entity != "" {
		addCondition("entity = ?", entity)
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		addCondition("action = ?", action)
	}

	query := `SELECT occurred_at, actor_subject, action, entity, entity_id, meta FROM audit_logs`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, limit, offset)
	query += ` ORDER BY occurred_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteOlderThan removes audit rows before the cutoff.
func (r *PGRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
