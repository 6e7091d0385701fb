package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lexwatch/tribsync/internal/domain"
)

// SyncLogRepository handles database operations for sync run audit logs.
type SyncLogRepository struct {
	db *sqlx.DB
}

// NewSyncLogRepository creates a new sync log repository.
func NewSyncLogRepository(db *sqlx.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Create inserts a new sync log row with status running. Called before
// any external work so a crash still leaves an audit trace.
func (r *SyncLogRepository) Create(ctx context.Context, log *domain.SyncLog) error {
	query := `
		INSERT INTO sync_logs (
			id, user_id, status, previous_watermark, started_at
		)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		log.ID,
		log.UserID,
		log.Status,
		log.PreviousWatermark,
		log.StartedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	return nil
}

// Finalize writes the run outcome. It is called exactly once per run,
// on both the success and failure paths.
func (r *SyncLogRepository) Finalize(ctx context.Context, log *domain.SyncLog) error {
	query := `
		UPDATE sync_logs
		SET status = $1,
		    new_watermark = $2,
		    documents_found = $3,
		    documents_processed = $4,
		    documents_failed = $5,
		    error_message = $6,
		    step = $7,
		    completed_at = $8
		WHERE id = $9
	`

	now := time.Now()
	log.CompletedAt = &now

	_, err := r.db.ExecContext(
		ctx,
		query,
		log.Status,
		log.NewWatermark,
		log.DocumentsFound,
		log.DocumentsProcessed,
		log.DocumentsFailed,
		log.ErrorMessage,
		log.Step,
		log.CompletedAt,
		log.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to finalize sync log: %w", err)
	}

	return nil
}

// ReconcileStale marks running rows older than the cutoff as failed.
// A run that crashed before finalization leaves a running row behind;
// this sweep keeps the audit trail honest.
func (r *SyncLogRepository) ReconcileStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE sync_logs
		SET status = $1,
		    error_message = 'reconciled: run never finalized',
		    completed_at = $2
		WHERE status = $3 AND started_at < $4
	`

	now := time.Now()
	result, err := r.db.ExecContext(
		ctx,
		query,
		domain.SyncStatusFailed,
		now,
		domain.SyncStatusRunning,
		now.Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile stale sync logs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// ListByUser returns a user's sync logs, newest first.
func (r *SyncLogRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.SyncLog, error) {
	query := `
		SELECT id, user_id, status, previous_watermark, new_watermark,
		       documents_found, documents_processed, documents_failed,
		       error_message, step, started_at, completed_at
		FROM sync_logs
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	var logs []*domain.SyncLog
	if err := r.db.SelectContext(ctx, &logs, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}

	return logs, nil
}
