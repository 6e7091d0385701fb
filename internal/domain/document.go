package domain

import (
	"time"
)

// Delivery status values for PersistedDocument.
const (
	DeliveryStatusPending = "pending"
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"
	DeliveryStatusSkipped = "skipped"
)

// Delivery detail values recorded when a notification is skipped.
const (
	SkipReasonNoProfile = "no_profile"
	SkipReasonDisabled  = "disabled"
	SkipReasonNoAddress = "no_address"
)

// DocumentRecord is one row scraped from the portal's document list.
// It is ephemeral until persisted. Rows missing the case-file
// identifier (Expediente) are dropped during extraction.
type DocumentRecord struct {
	Numero          int64     `json:"numero"`
	Expediente      string    `json:"expediente"`
	Juzgado         string    `json:"juzgado"`
	PublicationDate time.Time `json:"publication_date"`
	City            string    `json:"city"`
	Description     string    `json:"description"`
	RelatedFilings  int       `json:"related_filings"`

	// DownloadRef is the inline handler reference used by the portal's
	// AJAX surface to resolve the download token. Empty when the row
	// carried no download handle.
	DownloadRef string `json:"download_ref,omitempty"`
}

// PersistedDocument is a DocumentRecord plus the pipeline-stage results.
// Uniqueness is (user_id, expediente, numero); duplicate inserts are a
// no-op. PDFPath and Summary stay nil when their stages failed — the
// later stages degrade rather than abort.
type PersistedDocument struct {
	ID     string `db:"id"      json:"id"`
	UserID string `db:"user_id" json:"user_id"`

	Numero          int64     `db:"numero"           json:"numero"`
	Expediente      string    `db:"expediente"       json:"expediente"`
	Juzgado         string    `db:"juzgado"          json:"juzgado"`
	PublicationDate time.Time `db:"publication_date" json:"publication_date"`
	City            string    `db:"city"             json:"city"`
	Description     string    `db:"description"      json:"description"`
	RelatedFilings  int       `db:"related_filings"  json:"related_filings"`

	PDFPath        *string `db:"pdf_path"        json:"pdf_path,omitempty"`
	Summary        *string `db:"summary"         json:"summary,omitempty"`
	DeliveryStatus string  `db:"delivery_status" json:"delivery_status"`
	DeliveryDetail *string `db:"delivery_detail" json:"delivery_detail,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewPersistedDocument builds a PersistedDocument from a scraped record
// with delivery pending and no stage results yet.
func NewPersistedDocument(id, userID string, rec *DocumentRecord) *PersistedDocument {
	return &PersistedDocument{
		ID:              id,
		UserID:          userID,
		Numero:          rec.Numero,
		Expediente:      rec.Expediente,
		Juzgado:         rec.Juzgado,
		PublicationDate: rec.PublicationDate,
		City:            rec.City,
		Description:     rec.Description,
		RelatedFilings:  rec.RelatedFilings,
		DeliveryStatus:  DeliveryStatusPending,
	}
}
