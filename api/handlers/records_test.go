package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remote-agent-terminal/claude-terminal/internal/model"
)

type fakeStore struct {
	records   []*model.Session
	err       error
	lastLimit int
	deleted   []string
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*model.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, model.ErrSessionNotFound
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	for i, rec := range f.records {
		if rec.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return model.ErrSessionNotFound
}

func (f *fakeStore) List(_ context.Context, limit int) ([]*model.Session, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type fakePicker struct {
	path string
	ok   bool
	err  error
}

func (f fakePicker) SelectDirectory(context.Context) (string, bool, error) {
	return f.path, f.ok, f.err
}

func setupRecordsRouter(store SessionStore, picker DirectoryPicker) *gin.Engine {
	r := gin.New()
	NewRecordsHandler(store, picker).RegisterRoutes(r.Group("/api"))
	return r
}

func TestListHistory(t *testing.T) {
	exit := 0
	store := &fakeStore{records: []*model.Session{
		{ID: "session-2", Mode: model.ModeBypass, State: model.SessionStateRunning, CreatedAt: time.Now()},
		{ID: "session-1", Mode: model.ModeNormal, State: model.SessionStateExited, ExitCode: &exit, CreatedAt: time.Now()},
	}}
	r := setupRecordsRouter(store, fakePicker{})

	w := doRequest(t, r, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "session-2", list[0].ID)
	require.NotNil(t, list[1].ExitCode)
	assert.Equal(t, 0, *list[1].ExitCode)
	assert.Equal(t, defaultHistoryLimit, store.lastLimit)

	w = doRequest(t, r, http.MethodGet, "/api/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	doRequest(t, r, http.MethodGet, "/api/history?limit=100000", nil)
	assert.Equal(t, maxHistoryLimit, store.lastLimit)
}

func TestListHistoryErrors(t *testing.T) {
	r := setupRecordsRouter(&fakeStore{}, fakePicker{})
	for _, limit := range []string{"0", "-3", "many"} {
		w := doRequest(t, r, http.MethodGet, "/api/history?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}

	r = setupRecordsRouter(&fakeStore{err: errors.New("database is locked")}, fakePicker{})
	w := doRequest(t, r, http.MethodGet, "/api/history", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetAndDeleteRecord(t *testing.T) {
	exit := 1
	store := &fakeStore{records: []*model.Session{
		{ID: "session-live", State: model.SessionStateRunning},
		{ID: "session-done", State: model.SessionStateExited, ExitCode: &exit},
	}}
	r := setupRecordsRouter(store, fakePicker{})

	w := doRequest(t, r, http.MethodGet, "/api/history/session-done", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "exited", rec.State)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 1, *rec.ExitCode)

	w = doRequest(t, r, http.MethodGet, "/api/history/session-none", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, r, http.MethodDelete, "/api/history/session-live", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SESSION_RUNNING", decodeError(t, w).Code)

	w = doRequest(t, r, http.MethodDelete, "/api/history/session-done", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"session-done"}, store.deleted)

	w = doRequest(t, r, http.MethodDelete, "/api/history/session-done", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectDirectory(t *testing.T) {
	tests := []struct {
		name       string
		picker     fakePicker
		wantStatus int
		wantBody   string
	}{
		{"chosen", fakePicker{path: "/home/me/project", ok: true}, http.StatusOK, `{"path":"/home/me/project"}`},
		{"cancelled", fakePicker{}, http.StatusOK, `{"path":null}`},
		{"failed", fakePicker{err: errors.New("zenity not found")}, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRecordsRouter(&fakeStore{}, tt.picker)

			w := doRequest(t, r, http.MethodPost, "/api/dialog/directory", nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestEventsRouteUpgrades(t *testing.T) {
	upgraded := make(chan struct{})
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		close(upgraded)
		conn.Close()
	})

	r := gin.New()
	NewEventsHandler(stream).RegisterRoutes(r.Group("/api"))
	server := httptest.NewServer(r)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-upgraded:
	case <-time.After(2 * time.Second):
		t.Fatal("events route did not reach the stream handler")
	}
}
