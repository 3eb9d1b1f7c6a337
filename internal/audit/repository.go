package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window returns at most limit rows newest first, skipping offset rows.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := timelineWhere(filters)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT id, occurred_at, actor_id, actor_role, action, entity, entity_id, request_id, meta
FROM audit_logs%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	return r.query(ctx, query, args...)
}

// All returns every matching row oldest first.
func (r *PGRepository) All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	where, args := timelineWhere(filters)
	query := `SELECT id, occurred_at, actor_id, actor_role, action, entity, entity_id, request_id, meta
FROM audit_logs` + where + ` ORDER BY occurred_at ASC, id ASC`
	return r.query(ctx, query, args...)
}

func (r *PGRepository) query(ctx context.Context, query string, args ...any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var out TimelineRow
		var meta []byte
		if err := row.Scan(&out.ID, &out.At, &out.ActorID, &out.ActorRole, &out.Action, &out.Entity, &out.EntityID, &out.RequestID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return TimelineRow{}, fmt.Errorf("decode audit meta %d: %w", out.ID, err)
			}
		}
		return out, nil
	})
}

func timelineWhere(f TimelineFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	if f.ActorID != 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if v := strings.TrimSpace(f.Entity); v != "" {
		add("entity = $%d", v)
	}
	if v := strings.TrimSpace(f.EntityID); v != "" {
		add("entity_id = $%d", v)
	}
	if v := strings.TrimSpace(f.Action); v != "" {
		add("action = $%d", v)
	}
	if v := strings.TrimSpace(f.RequestID); v != "" {
		add("request_id = $%d", v)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
