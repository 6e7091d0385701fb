// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// Credential status values.
const (
	CredentialStatusActive = "active"
	CredentialStatusFailed = "failed"
)

// Credential holds one user's portal access material. The secret fields
// are opaque vault references, never the secrets themselves. The
// watermark is the highest document sequence number already processed
// for this user; a nil watermark means the user has never been synced.
type Credential struct {
	ID     string `db:"id"      json:"id"`
	UserID string `db:"user_id" json:"user_id"`
	Email  string `db:"email"   json:"email"`

	// Vault secret references
	PasswordRef string `db:"password_ref"  json:"password_ref"`
	KeyFileRef  string `db:"key_file_ref"  json:"key_file_ref"`
	CertFileRef string `db:"cert_file_ref" json:"cert_file_ref"`

	// Sync state, mutated by the orchestrator after every run
	Watermark  *int64     `db:"watermark"    json:"watermark,omitempty"`
	Status     string     `db:"status"       json:"status"` // active, failed
	LastError  *string    `db:"last_error"   json:"last_error,omitempty"`
	LastSyncAt *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
