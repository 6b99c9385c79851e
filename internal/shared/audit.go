package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a fact stored in audit_logs.
type AuditLog struct {
	TenantID int64
	ActorID  int64
	Domain   string
	Action   string
	EntityID string
	Message  string
	Before   map[string]any
	After    map[string]any
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Domain == "" || log.Action == "" || log.EntityID == "" {
		return errors.New("audit log requires domain/action/entity_id")
	}
	before, err := marshalState(log.Before)
	if err != nil {
		return err
	}
	after, err := marshalState(log.After)
	if err != nil {
		return err
	}
	meta, err := marshalState(log.Meta)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (tenant_id, actor_id, domain, action, entity_id, message, before_state, after_state, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))`,
		log.TenantID, log.ActorID, log.Domain, log.Action, log.EntityID, log.Message, before, after, meta, at)
	return err
}

func marshalState(state map[string]any) ([]byte, error) {
	if state == nil {
		return nil, nil
	}
	return json.Marshal(state)
}
