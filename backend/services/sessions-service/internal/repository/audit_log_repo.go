package repository

import (
	"context"
	"database/sql"
	"fmt"

	"evroaming/backend/services/sessions-service/internal/auditlog"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AuditLogRepository appends audit records to Postgres.
type AuditLogRepository struct {
	db execer
}

// NewAuditLogRepository ctor.
func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (r *AuditLogRepository) EnsureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS audit_log (
			id          BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL,
			store       TEXT NOT NULL,
			verb        TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			tag         TEXT NOT NULL DEFAULT '',
			payload     JSONB
		);
		CREATE INDEX IF NOT EXISTS audit_log_entity_idx ON audit_log (store, entity_id, recorded_at)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("repository: ensure audit schema: %w", err)
	}
	return nil
}

// Write stores one record. It implements auditlog.Sink.
func (r *AuditLogRepository) Write(ctx context.Context, rec auditlog.Record) error {
	const query = `
		INSERT INTO audit_log (recorded_at, store, verb, entity_id, tag, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	var payload any
	if len(rec.Payload) > 0 {
		payload = []byte(rec.Payload)
	}
	_, err := r.db.ExecContext(ctx, query, rec.Timestamp, rec.Store, rec.Verb, rec.ID, rec.Tag, payload)
	return err
}
