package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/salesync/internal/pipeline"
	"example.com/salesync/internal/runlog"
	"example.com/salesync/internal/sqliteutil"
)

type fakeOrchestrator struct {
	asyncErr error
	started  int
}

func (f *fakeOrchestrator) RunSync(context.Context) (pipeline.RunReport, error) {
	return pipeline.RunReport{}, nil
}

func (f *fakeOrchestrator) RunSyncAsync(context.Context) error {
	if f.asyncErr != nil {
		return f.asyncErr
	}
	f.started++
	return nil
}

func newTestServer(t *testing.T, orch pipeline.Orchestrator) (*Server, *runlog.Store) {
	t.Helper()
	db, err := sqliteutil.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runs := runlog.NewStore(db)
	require.NoError(t, runs.Init(context.Background()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(runs, orch, logger), runs
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, &fakeOrchestrator{})

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
}

func TestListRuns(t *testing.T) {
	server, runs := newTestServer(t, &fakeOrchestrator{})

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	done := base.Add(time.Minute)
	require.NoError(t, runs.Record(context.Background(), runlog.Run{ID: "run-1", StartedAt: base, CompletedAt: &done, Synced: 2}))
	require.NoError(t, runs.Record(context.Background(), runlog.Run{ID: "run-2", StartedAt: base.Add(time.Hour)}))

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Runs []runlog.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Runs, 2)
	assert.Equal(t, "run-2", payload.Runs[0].ID)
	assert.Equal(t, "run-1", payload.Runs[1].ID)
}

func TestListRunsEmpty(t *testing.T) {
	server, _ := newTestServer(t, &fakeOrchestrator{})

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/runs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs": []}`, rec.Body.String())
}

func TestListRunsRejectsBadLimit(t *testing.T) {
	server, _ := newTestServer(t, &fakeOrchestrator{})

	for _, limit := range []string{"abc", "0", "-5"} {
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/runs?limit="+limit, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestTriggerSync(t *testing.T) {
	orch := &fakeOrchestrator{}
	server, _ := newTestServer(t, orch)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/sync", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, orch.started)
}

func TestTriggerSyncConflictWhileRunning(t *testing.T) {
	server, _ := newTestServer(t, &fakeOrchestrator{asyncErr: pipeline.ErrRunInProgress})

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/sync", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}
