package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed audit repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, `SELECT actor_id, module, action, entity, entity_id, meta, occurred_at
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text = '' OR module = $3)
  AND ($4::text = '' OR entity = $4)
  AND ($5::text = '' OR action = $5)
ORDER BY occurred_at DESC, entity_id DESC
OFFSET $6 LIMIT $7`,
		nullTime(filters.From), nullTime(filters.To),
		filters.Module, filters.Entity, filters.Action,
		offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.ActorID, &row.Module, &row.Action, &row.Entity, &row.EntityID, &meta, &row.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &row.Meta)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
