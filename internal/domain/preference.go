package domain

import (
	"time"
)

// NotificationPreference is a user's contact profile for alert
// delivery. Absence of a row means the user never set one up.
type NotificationPreference struct {
	UserID          string    `db:"user_id"          json:"user_id"`
	WhatsAppEnabled bool      `db:"whatsapp_enabled" json:"whatsapp_enabled"`
	PhoneNumber     *string   `db:"phone_number"     json:"phone_number,omitempty"`
	UpdatedAt       time.Time `db:"updated_at"       json:"updated_at"`
}
