package database_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexwatch/tribsync/internal/database"
	"github.com/lexwatch/tribsync/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func testRecord() *domain.DocumentRecord {
	return &domain.DocumentRecord{
		Numero:      14,
		Expediente:  "123/2025",
		Juzgado:     "Juzgado Primero Familiar de Culiacán",
		City:        "Culiacán",
		Description: "Acuerdo de trámite",
	}
}

func TestDocumentRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDocumentRepository(db)
	doc := domain.NewPersistedDocument("doc-1", "user-1", testRecord())

	mock.ExpectExec("INSERT INTO tribunal_documents").
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.Insert(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.False(t, doc.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_Insert_DuplicateIsSkip(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDocumentRepository(db)
	doc := domain.NewPersistedDocument("doc-1", "user-1", testRecord())

	mock.ExpectExec("INSERT INTO tribunal_documents").
		WillReturnError(&pq.Error{Code: "23505"})

	inserted, err := repo.Insert(context.Background(), doc)
	require.NoError(t, err, "a duplicate is an idempotent skip, not a failure")
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_Insert_DatabaseError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDocumentRepository(db)
	doc := domain.NewPersistedDocument("doc-1", "user-1", testRecord())

	mock.ExpectExec("INSERT INTO tribunal_documents").
		WillReturnError(sql.ErrConnDone)

	inserted, err := repo.Insert(context.Background(), doc)
	require.Error(t, err)
	assert.False(t, inserted)
}

func TestDocumentRepository_UpdateStages(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDocumentRepository(db)

	doc := domain.NewPersistedDocument("doc-1", "user-1", testRecord())
	path := "user-1/tribunal/2025-03-14/123-2025_1.pdf"
	doc.PDFPath = &path
	doc.DeliveryStatus = domain.DeliveryStatusSent

	mock.ExpectExec("UPDATE tribunal_documents").
		WithArgs(path, nil, domain.DeliveryStatusSent, nil, sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStages(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_ListByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDocumentRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "numero", "expediente", "juzgado",
		"publication_date", "city", "description", "related_filings",
		"pdf_path", "summary", "delivery_status", "delivery_detail",
		"created_at", "updated_at",
	}).
		AddRow("doc-2", "user-1", int64(15), "124/2025", "Juzgado Segundo", now, "Mazatlán", "Sentencia", 2, "/blobs/a.pdf", "Resumen.", "sent", nil, now, now).
		AddRow("doc-1", "user-1", int64(14), "123/2025", "Juzgado Primero", now, "Culiacán", "Acuerdo", 0, nil, nil, "skipped", "no_profile", now, now)

	mock.ExpectQuery("SELECT (.+) FROM tribunal_documents").
		WithArgs("user-1", 50, 0).
		WillReturnRows(rows)

	docs, err := repo.ListByUser(context.Background(), "user-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(15), docs[0].Numero)
	assert.Equal(t, 2, docs[0].RelatedFilings)
	assert.Zero(t, docs[1].RelatedFilings)
	assert.Nil(t, docs[1].PDFPath)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, database.IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, database.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, database.IsUniqueViolation(sql.ErrConnDone))
	assert.False(t, database.IsUniqueViolation(nil))
}
