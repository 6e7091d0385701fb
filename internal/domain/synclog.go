package domain

import (
	"time"
)

// SyncLog status values.
const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncLog is the audit row for one orchestrator invocation. It is
// created with status running before any external call and finalized
// exactly once when the run ends, whatever the outcome. A row stuck in
// running marks a crash and is swept by the reconciliation pass.
type SyncLog struct {
	ID     string `db:"id"      json:"id"`
	UserID string `db:"user_id" json:"user_id"`

	Status string `db:"status" json:"status"` // running, completed, failed

	PreviousWatermark *int64 `db:"previous_watermark" json:"previous_watermark,omitempty"`
	NewWatermark      *int64 `db:"new_watermark"      json:"new_watermark,omitempty"`

	DocumentsFound     int `db:"documents_found"     json:"documents_found"`
	DocumentsProcessed int `db:"documents_processed" json:"documents_processed"`
	DocumentsFailed    int `db:"documents_failed"    json:"documents_failed"`

	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`
	// Step records the last pipeline step reached before a failure, so
	// operators can see how far the run got.
	Step *string `db:"step" json:"step,omitempty"`

	StartedAt   time.Time  `db:"started_at"   json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
