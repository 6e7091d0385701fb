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

func TestSyncLogRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSyncLogRepository(db)

	prev := int64(12)
	log := &domain.SyncLog{
		ID:                "run-1",
		UserID:            "user-1",
		Status:            domain.SyncStatusRunning,
		PreviousWatermark: &prev,
		StartedAt:         time.Now(),
	}

	mock.ExpectExec("INSERT INTO sync_logs").
		WithArgs("run-1", "user-1", domain.SyncStatusRunning, prev, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), log))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncLogRepository_Finalize(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSyncLogRepository(db)

	wm := int64(15)
	log := &domain.SyncLog{
		ID:                 "run-1",
		UserID:             "user-1",
		Status:             domain.SyncStatusCompleted,
		NewWatermark:       &wm,
		DocumentsFound:     3,
		DocumentsProcessed: 3,
	}

	mock.ExpectExec("UPDATE sync_logs").
		WithArgs(domain.SyncStatusCompleted, wm, 3, 3, 0, nil, nil, sqlmock.AnyArg(), "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Finalize(context.Background(), log))
	assert.NotNil(t, log.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncLogRepository_ReconcileStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSyncLogRepository(db)

	mock.ExpectExec("UPDATE sync_logs").
		WithArgs(domain.SyncStatusFailed, sqlmock.AnyArg(), domain.SyncStatusRunning, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	swept, err := repo.ReconcileStale(context.Background(), 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)
}
