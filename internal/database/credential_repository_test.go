package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexwatch/tribsync/internal/database"
	"github.com/lexwatch/tribsync/internal/domain"
)

var credentialRows = []string{
	"id", "user_id", "email", "password_ref", "key_file_ref", "cert_file_ref",
	"watermark", "status", "last_error", "last_sync_at", "created_at", "updated_at",
}

func TestCredentialRepository_ListActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCredentialRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(credentialRows).
		AddRow("c1", "user-1", "a@example.com", "pw1", "key1", "cert1",
			int64(12), domain.CredentialStatusActive, nil, now, now, now).
		AddRow("c2", "user-2", "b@example.com", "pw2", "key2", "cert2",
			nil, domain.CredentialStatusActive, nil, nil, now, now)

	mock.ExpectQuery("SELECT(.|\n)*FROM portal_credentials").
		WithArgs(domain.CredentialStatusActive).
		WillReturnRows(rows)

	creds, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 2)

	require.NotNil(t, creds[0].Watermark)
	assert.Equal(t, int64(12), *creds[0].Watermark)
	assert.Nil(t, creds[1].Watermark, "never-synced credential carries no watermark")
}

func TestCredentialRepository_GetByUserID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCredentialRepository(db)

	mock.ExpectQuery("SELECT(.|\n)*FROM portal_credentials").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(credentialRows))

	_, err := repo.GetByUserID(context.Background(), "ghost")
	assert.ErrorIs(t, err, database.ErrCredentialNotFound)
}

func TestCredentialRepository_UpdateSyncState(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCredentialRepository(db)

	wm := int64(21)
	mock.ExpectExec("UPDATE portal_credentials").
		WithArgs("user-1", wm, domain.CredentialStatusActive, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateSyncState(context.Background(), "user-1", &wm, domain.CredentialStatusActive, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_UpdateSyncState_AuthFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCredentialRepository(db)

	detail := "portal rejected authentication: certificado inválido"
	mock.ExpectExec("UPDATE portal_credentials").
		WithArgs("user-1", nil, domain.CredentialStatusFailed, detail, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateSyncState(context.Background(), "user-1", nil, domain.CredentialStatusFailed, &detail)
	require.NoError(t, err)
}

func TestCredentialRepository_UpdateSyncState_UnknownUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCredentialRepository(db)

	mock.ExpectExec("UPDATE portal_credentials").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateSyncState(context.Background(), "ghost", nil, domain.CredentialStatusActive, nil)
	assert.ErrorIs(t, err, database.ErrCredentialNotFound)
}
