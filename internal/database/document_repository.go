package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lexwatch/tribsync/internal/domain"
)

// DocumentRepository handles database operations for persisted tribunal
// documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Insert persists a new document. It returns false with a nil error
// when the (user_id, expediente, numero) natural key already exists:
// the document was processed by an earlier run and must not be
// re-notified.
func (r *DocumentRepository) Insert(ctx context.Context, doc *domain.PersistedDocument) (bool, error) {
	query := `
		INSERT INTO tribunal_documents (
			id, user_id, numero, expediente, juzgado,
			publication_date, city, description, related_filings,
			pdf_path, summary, delivery_status, delivery_detail,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`

	now := time.Now()
	_, err := r.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.Numero,
		doc.Expediente,
		doc.Juzgado,
		doc.PublicationDate,
		doc.City,
		doc.Description,
		doc.RelatedFilings,
		doc.PDFPath,
		doc.Summary,
		doc.DeliveryStatus,
		doc.DeliveryDetail,
		now,
	)

	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert document: %w", err)
	}

	doc.CreatedAt = now
	doc.UpdatedAt = now
	return true, nil
}

// UpdateStages writes the pipeline-stage results (PDF path, summary,
// delivery outcome) onto an existing document row.
func (r *DocumentRepository) UpdateStages(ctx context.Context, doc *domain.PersistedDocument) error {
	query := `
		UPDATE tribunal_documents
		SET pdf_path = $1,
		    summary = $2,
		    delivery_status = $3,
		    delivery_detail = $4,
		    updated_at = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		doc.PDFPath,
		doc.Summary,
		doc.DeliveryStatus,
		doc.DeliveryDetail,
		time.Now(),
		doc.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update document stages: %w", err)
	}

	return nil
}

// ListByUser returns a user's documents, newest first.
func (r *DocumentRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.PersistedDocument, error) {
	query := `
		SELECT id, user_id, numero, expediente, juzgado,
		       publication_date, city, description, related_filings,
		       pdf_path, summary, delivery_status, delivery_detail,
		       created_at, updated_at
		FROM tribunal_documents
		WHERE user_id = $1
		ORDER BY numero DESC
		LIMIT $2 OFFSET $3
	`

	var docs []*domain.PersistedDocument
	if err := r.db.SelectContext(ctx, &docs, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return docs, nil
}
