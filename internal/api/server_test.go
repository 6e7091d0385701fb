package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexwatch/tribsync/internal/api"
	"github.com/lexwatch/tribsync/internal/domain"
	"github.com/lexwatch/tribsync/internal/logger"
)

type fakeSyncLogs struct {
	logs []*domain.SyncLog
	err  error

	userID string
	limit  int
	offset int
}

func (f *fakeSyncLogs) ListByUser(_ context.Context, userID string, limit, offset int) ([]*domain.SyncLog, error) {
	f.userID, f.limit, f.offset = userID, limit, offset
	return f.logs, f.err
}

type fakeDocuments struct {
	docs []*domain.PersistedDocument
	err  error
}

func (f *fakeDocuments) ListByUser(context.Context, string, int, int) ([]*domain.PersistedDocument, error) {
	return f.docs, f.err
}

func newTestServer(logs *fakeSyncLogs, docs *fakeDocuments) *api.Server {
	if logs == nil {
		logs = &fakeSyncLogs{}
	}
	if docs == nil {
		docs = &fakeDocuments{}
	}
	return api.NewServer(logs, docs, logger.NewNoOp())
}

func get(t *testing.T, srv *api.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListSyncLogs(t *testing.T) {
	completed := domain.SyncStatusCompleted
	logs := &fakeSyncLogs{logs: []*domain.SyncLog{
		{ID: "run-1", UserID: "user-1", Status: completed, StartedAt: time.Now().UTC()},
	}}
	rec := get(t, newTestServer(logs, nil), "/api/v1/users/user-1/sync-logs?limit=10&offset=20")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", logs.userID)
	assert.Equal(t, 10, logs.limit)
	assert.Equal(t, 20, logs.offset)

	var body struct {
		SyncLogs []domain.SyncLog `json:"sync_logs"`
		Limit    int              `json:"limit"`
		Offset   int              `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.SyncLogs, 1)
	assert.Equal(t, "run-1", body.SyncLogs[0].ID)
	assert.Equal(t, 10, body.Limit)
}

func TestListSyncLogs_EmptyIsAnArray(t *testing.T) {
	rec := get(t, newTestServer(&fakeSyncLogs{}, nil), "/api/v1/users/user-1/sync-logs")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sync_logs":[]`)
}

func TestListSyncLogs_StorageError(t *testing.T) {
	logs := &fakeSyncLogs{err: errors.New("db down")}
	rec := get(t, newTestServer(logs, nil), "/api/v1/users/user-1/sync-logs")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// The storage error text never leaks to the client.
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestListDocuments(t *testing.T) {
	path := "/blobs/user-1/doc.pdf"
	docs := &fakeDocuments{docs: []*domain.PersistedDocument{
		{ID: "doc-1", UserID: "user-1", Numero: 15, Expediente: "123/2026", PDFPath: &path, DeliveryStatus: domain.DeliveryStatusSent},
	}}
	rec := get(t, newTestServer(nil, docs), "/api/v1/users/user-1/documents")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Documents []domain.PersistedDocument `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Documents, 1)
	assert.Equal(t, int64(15), body.Documents[0].Numero)
}

func TestPaginationClamping(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantLimit: 50, wantOffset: 0},
		{name: "limit too large", query: "?limit=1000", wantLimit: 50, wantOffset: 0},
		{name: "limit zero", query: "?limit=0", wantLimit: 50, wantOffset: 0},
		{name: "negative offset", query: "?offset=-5", wantLimit: 50, wantOffset: 0},
		{name: "garbage", query: "?limit=abc&offset=xyz", wantLimit: 50, wantOffset: 0},
		{name: "valid", query: "?limit=200&offset=400", wantLimit: 200, wantOffset: 400},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs := &fakeSyncLogs{}
			rec := get(t, newTestServer(logs, nil), "/api/v1/users/user-1/sync-logs"+tc.query)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.wantLimit, logs.limit)
			assert.Equal(t, tc.wantOffset, logs.offset)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
