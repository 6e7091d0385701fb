package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lexwatch/tribsync/internal/domain"
)

// PreferenceRepository handles database operations for notification
// contact profiles.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository creates a new preference repository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// GetByUserID returns the user's contact profile, or (nil, nil) when
// the user has none. Absence is a normal state, not an error: the
// notifier resolves it to the no_profile terminal status.
func (r *PreferenceRepository) GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	query := `
		SELECT user_id, whatsapp_enabled, phone_number, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`

	var pref domain.NotificationPreference
	err := r.db.GetContext(ctx, &pref, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification preference: %w", err)
	}

	return &pref, nil
}
