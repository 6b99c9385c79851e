package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository reads audit_logs from Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres-backed audit reader.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Timeline runs the filtered, paged audit query.
func (r *PgRepository) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	where := []string{"tenant_id=$1"}
	args := []any{q.TenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !q.From.IsZero() {
		add("occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at < $%d", q.To)
	}
	if q.ActorID != 0 {
		add("actor_id=$%d", q.ActorID)
	}
	if q.Domain != "" {
		add("domain=$%d", q.Domain)
	}
	if q.EntityID != "" {
		add("entity_id=$%d", q.EntityID)
	}
	if q.Action != "" {
		add("action=$%d", q.Action)
	}
	args = append(args, q.Limit, q.Offset)
	query := fmt.Sprintf(`SELECT id, occurred_at, actor_id, domain, action, entity_id, message, before_state, after_state, meta
FROM audit_logs WHERE %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out                 TimelineRow
			actor               pgtype.Int8
			before, after, meta []byte
		)
		if err := row.Scan(&out.ID, &out.At, &actor, &out.Domain, &out.Action, &out.EntityID, &out.Message, &before, &after, &meta); err != nil {
			return TimelineRow{}, err
		}
		out.ActorID = actor.Int64
		var err error
		if out.Before, err = decodeState(before); err != nil {
			return TimelineRow{}, err
		}
		if out.After, err = decodeState(after); err != nil {
			return TimelineRow{}, err
		}
		if out.Meta, err = decodeState(meta); err != nil {
			return TimelineRow{}, err
		}
		return out, nil
	})
}

func decodeState(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("audit: decode state: %w", err)
	}
	return state, nil
}
