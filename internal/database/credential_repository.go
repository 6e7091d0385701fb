package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lexwatch/tribsync/internal/domain"
)

// ErrCredentialNotFound is returned when no credential exists for a user.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialRepository handles database operations for portal credentials.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `
	id, user_id, email, password_ref, key_file_ref, cert_file_ref,
	watermark, status, last_error, last_sync_at, created_at, updated_at
`

// ListActive returns all credentials eligible for a sync run, ordered
// by user for deterministic scheduling.
func (r *CredentialRepository) ListActive(ctx context.Context) ([]*domain.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM portal_credentials
		WHERE status = $1
		ORDER BY user_id
	`

	var creds []*domain.Credential
	if err := r.db.SelectContext(ctx, &creds, query, domain.CredentialStatusActive); err != nil {
		return nil, fmt.Errorf("failed to list active credentials: %w", err)
	}

	return creds, nil
}

// GetByUserID retrieves the credential for a single user.
func (r *CredentialRepository) GetByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM portal_credentials
		WHERE user_id = $1
	`

	var cred domain.Credential
	err := r.db.GetContext(ctx, &cred, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return &cred, nil
}

// UpdateSyncState records the outcome of a sync run on the credential.
// The watermark only moves forward: the WHERE clause refuses a write
// that would lower it.
func (r *CredentialRepository) UpdateSyncState(
	ctx context.Context,
	userID string,
	watermark *int64,
	status string,
	lastError *string,
) error {
	query := `
		UPDATE portal_credentials
		SET watermark = COALESCE(GREATEST(watermark, $2), $2, watermark),
		    status = $3,
		    last_error = $4,
		    last_sync_at = $5,
		    updated_at = $5
		WHERE user_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, userID, watermark, status, lastError, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update credential sync state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrCredentialNotFound
	}

	return nil
}
