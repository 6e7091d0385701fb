package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// AuditEventRepository is the durable sink for pipeline audit events.
type AuditEventRepository struct {
	db *sqlx.DB
}

// NewAuditEventRepository creates a new audit event repository.
func NewAuditEventRepository(db *sqlx.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

// Insert writes one audit event. The context map is stored as JSONB.
func (r *AuditEventRepository) Insert(ctx context.Context, level, message string, fields map[string]any, at time.Time) error {
	contextJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal audit context: %w", err)
	}

	query := `
		INSERT INTO audit_events (level, message, context, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.ExecContext(ctx, query, level, message, contextJSON, at); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}
