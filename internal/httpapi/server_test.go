package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agentworkforce/taskboard/internal/taskboard"
)

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *taskboard.Store) {
	t.Helper()
	store, err := taskboard.NewStoreWithOptions(taskboard.StoreOptions{
		Root:           t.TempDir(),
		Journal:        taskboard.NewInMemoryJournal(),
		DisableWatcher: true,
	})
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewServerWithConfig(store, cfg), store
}

func doJSON(t *testing.T, server http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Correlation-Id", "test-corr")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response failed: %v (%s)", err, rec.Body.String())
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{AuthToken: "sekrit"})
	rec := doJSON(t, server, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBearerTokenEnforcedWhenConfigured(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{AuthToken: "sekrit"})

	rec := doJSON(t, server, http.MethodGet, "/v1/board", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/board", nil, map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/board", nil, map[string]string{"Authorization": "Bearer sekrit"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})

	rec := doJSON(t, server, http.MethodPost, "/v1/tasks", map[string]any{
		"column": "col-backlog",
		"title":  "wire the api",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)
	if created.ID != "TASK-001" {
		t.Fatalf("expected TASK-001, got %q", created.ID)
	}

	rec = doJSON(t, server, http.MethodPatch, "/v1/tasks/"+created.ID, map[string]any{"status": "doing"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated taskboard.Task
	decodeBody(t, rec, &updated)
	if updated.Status != "doing" || updated.Title != "wire the api" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/tasks/"+created.ID+"/move", map[string]any{"column": "col-done"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodGet, "/v1/board", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("board: expected 200, got %d", rec.Code)
	}
	var snapshot taskboard.BoardSnapshot
	decodeBody(t, rec, &snapshot)
	if snapshot.Tasks[created.ID].Column != "col-done" {
		t.Fatalf("expected task in col-done, got %+v", snapshot.Tasks[created.ID])
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/tasks/"+created.ID+"/archive", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, server, http.MethodPost, "/v1/tasks/"+created.ID+"/archive", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-archive: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodGet, "/v1/archive", nil, nil)
	var archive struct {
		Entries []string `json:"entries"`
	}
	decodeBody(t, rec, &archive)
	if len(archive.Entries) != 1 {
		t.Fatalf("expected one archive entry, got %v", archive.Entries)
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/archive/"+archive.Entries[0]+"/restore", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodDelete, "/v1/tasks/"+created.ID, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, server, http.MethodDelete, "/v1/tasks/"+created.ID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("re-delete: expected 404, got %d", rec.Code)
	}
}

func TestErrorPayloadCarriesCorrelationID(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	rec := doJSON(t, server, http.MethodGet, "/v1/tasks/TASK-404", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var payload struct {
		Code          string `json:"code"`
		CorrelationID string `json:"correlationId"`
	}
	decodeBody(t, rec, &payload)
	if payload.Code != "not_found" || payload.CorrelationID != "test-corr" {
		t.Fatalf("unexpected error payload: %+v", payload)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})

	rec := doJSON(t, server, http.MethodPost, "/v1/tasks", map[string]any{"title": "no column"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing column, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPost, "/v1/tasks", map[string]any{"column": "col-nope", "title": "x"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown column, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader("{broken"))
	rec2 := httptest.NewRecorder()
	server.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken json, got %d", rec2.Code)
	}
}

func TestBodyLimitEnforced(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{MaxBodyBytes: 64})
	big := strings.Repeat("x", 1024)
	rec := doJSON(t, server, http.MethodPost, "/v1/tasks", map[string]any{"column": "col-backlog", "title": big}, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestFocusEndpoints(t *testing.T) {
	server, store := newTestServer(t, ServerConfig{})
	id, err := store.CreateTask("col-backlog", taskboard.TaskDraft{Title: "focused"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec := doJSON(t, server, http.MethodPut, "/v1/focus", map[string]any{"taskId": id}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("set focus: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/focus", nil, nil)
	var focus struct {
		TaskID string `json:"taskId"`
	}
	decodeBody(t, rec, &focus)
	if focus.TaskID != id {
		t.Fatalf("expected focus %s, got %q", id, focus.TaskID)
	}

	rec = doJSON(t, server, http.MethodDelete, "/v1/focus", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear focus: expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/focus", nil, nil)
	decodeBody(t, rec, &focus)
	if focus.TaskID != "" {
		t.Fatalf("expected focus cleared, got %q", focus.TaskID)
	}
	rec = doJSON(t, server, http.MethodPut, "/v1/focus", map[string]any{"taskId": "TASK-404"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown focus target, got %d", rec.Code)
	}
}

func TestNarrativeEndpoints(t *testing.T) {
	server, store := newTestServer(t, ServerConfig{})
	id, err := store.CreateTask("col-backlog", taskboard.TaskDraft{Title: "logged"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec := doJSON(t, server, http.MethodPost, "/v1/tasks/"+id+"/narrative", map[string]any{"text": "kickoff"}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("append: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/tasks/"+id+"/narrative", nil, nil)
	var narrative struct {
		Narrative string `json:"narrative"`
	}
	decodeBody(t, rec, &narrative)
	if narrative.Narrative != "kickoff\n" {
		t.Fatalf("unexpected narrative %q", narrative.Narrative)
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/tasks/"+id+"/narrative", map[string]any{"text": ""}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", rec.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	server, store := newTestServer(t, ServerConfig{})
	if _, err := store.CreateTask("col-backlog", taskboard.TaskDraft{Title: "observed"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec := doJSON(t, server, http.MethodGet, "/v1/events?limit=10", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Events []taskboard.Event `json:"events"`
	}
	decodeBody(t, rec, &payload)
	if len(payload.Events) != 1 || payload.Events[0].Type != taskboard.EventTaskCreated {
		t.Fatalf("unexpected events: %+v", payload.Events)
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	rec := doJSON(t, server, http.MethodGet, "/v1/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBoardFeedDeliversRefreshSignals(t *testing.T) {
	root := t.TempDir()
	store, err := taskboard.NewStoreWithOptions(taskboard.StoreOptions{Root: root})
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	defer store.Close()
	server := NewServer(store)
	ts := httptest.NewServer(server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, strings.Replace(ts.URL, "http://", "ws://", 1)+"/v1/board/feed", nil)
	if err != nil {
		t.Fatalf("dial feed failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Give the subscription a moment to register before mutating.
	time.Sleep(100 * time.Millisecond)
	if _, err := store.CreateTask("col-backlog", taskboard.TaskDraft{Title: "ping"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var msg struct {
		Type string `json:"type"`
	}
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read feed failed: %v", err)
	}
	if msg.Type != "board.refresh" {
		t.Fatalf("unexpected feed message %+v", msg)
	}
}
