package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentworkforce/taskboard/internal/taskboard"
)

type ServerConfig struct {
	// AuthToken enables static bearer auth when non-empty; every route
	// except /health then requires it.
	AuthToken    string
	MaxBodyBytes int64
	Logger       taskboard.Logger
}

type Server struct {
	store *taskboard.Store
	cfg   ServerConfig
}

func NewServer(store *taskboard.Store) *Server {
	return NewServerWithConfig(store, ServerConfig{})
}

func NewServerWithConfig(store *taskboard.Store, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{store: store, cfg: cfg}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	correlationID := getCorrelationID(r)
	if authErr := s.authorize(r); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "board" && r.Method == http.MethodGet:
		s.handleBoard(w, correlationID)
	case len(parts) == 3 && parts[1] == "board" && parts[2] == "feed" && r.Method == http.MethodGet:
		s.handleFeed(w, r)
	case len(parts) == 2 && parts[1] == "tasks" && r.Method == http.MethodPost:
		s.handleCreateTask(w, r, correlationID)
	case len(parts) == 3 && parts[1] == "tasks" && r.Method == http.MethodGet:
		s.handleGetTask(w, parts[2], correlationID)
	case len(parts) == 3 && parts[1] == "tasks" && r.Method == http.MethodPatch:
		s.handleUpdateTask(w, r, parts[2], correlationID)
	case len(parts) == 3 && parts[1] == "tasks" && r.Method == http.MethodDelete:
		s.handleDeleteTask(w, parts[2], correlationID)
	case len(parts) == 4 && parts[1] == "tasks" && parts[3] == "move" && r.Method == http.MethodPost:
		s.handleMoveTask(w, r, parts[2], correlationID)
	case len(parts) == 4 && parts[1] == "tasks" && parts[3] == "archive" && r.Method == http.MethodPost:
		s.handleArchiveTask(w, parts[2], correlationID)
	case len(parts) == 4 && parts[1] == "tasks" && parts[3] == "narrative" && r.Method == http.MethodGet:
		s.handleReadNarrative(w, parts[2], correlationID)
	case len(parts) == 4 && parts[1] == "tasks" && parts[3] == "narrative" && r.Method == http.MethodPost:
		s.handleAppendNarrative(w, r, parts[2], correlationID)
	case len(parts) == 2 && parts[1] == "archive" && r.Method == http.MethodGet:
		s.handleListArchive(w, correlationID)
	case len(parts) == 4 && parts[1] == "archive" && parts[3] == "restore" && r.Method == http.MethodPost:
		s.handleRestoreTask(w, parts[2], correlationID)
	case len(parts) == 2 && parts[1] == "focus" && r.Method == http.MethodGet:
		s.handleGetFocus(w, correlationID)
	case len(parts) == 2 && parts[1] == "focus" && r.Method == http.MethodPut:
		s.handleSetFocus(w, r, correlationID)
	case len(parts) == 2 && parts[1] == "focus" && r.Method == http.MethodDelete:
		s.handleClearFocus(w, correlationID)
	case len(parts) == 2 && parts[1] == "events" && r.Method == http.MethodGet:
		s.handleEvents(w, r, correlationID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

type authFailure struct {
	status  int
	code    string
	message string
}

// authorize checks the static bearer token when one is configured. The
// comparison runs over digests so mismatched lengths leak nothing.
func (s *Server) authorize(r *http.Request) *authFailure {
	if s.cfg.AuthToken == "" {
		return nil
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return &authFailure{status: http.StatusUnauthorized, code: "unauthorized", message: "missing or invalid bearer token"}
	}
	presented := sha256.Sum256([]byte(strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))))
	expected := sha256.Sum256([]byte(s.cfg.AuthToken))
	if !hmac.Equal(presented[:], expected[:]) {
		return &authFailure{status: http.StatusUnauthorized, code: "unauthorized", message: "token mismatch"}
	}
	return nil
}

func (s *Server) handleBoard(w http.ResponseWriter, correlationID string) {
	snapshot, err := s.store.ReadBoard()
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, correlationID string) {
	var body struct {
		Column string `json:"column"`
		taskboard.TaskDraft
	}
	if !s.decodeJSONBody(w, r, correlationID, &body) {
		return
	}
	if strings.TrimSpace(body.Column) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing column", correlationID)
		return
	}
	id, err := s.store.CreateTask(body.Column, body.TaskDraft)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetTask(w http.ResponseWriter, id, correlationID string) {
	snapshot, err := s.store.ReadBoard()
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	task, ok := snapshot.Tasks[id]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	var update taskboard.TaskUpdate
	if !s.decodeJSONBody(w, r, correlationID, &update) {
		return
	}
	task, err := s.store.UpdateTask(id, update)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, id, correlationID string) {
	if err := s.store.DeleteTask(id); err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveTask(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	var body struct {
		Column string `json:"column"`
	}
	if !s.decodeJSONBody(w, r, correlationID, &body) {
		return
	}
	if err := s.store.MoveTask(id, body.Column); err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "column": body.Column})
}

func (s *Server) handleArchiveTask(w http.ResponseWriter, id, correlationID string) {
	if _, err := s.store.ArchiveTask(id); err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleListArchive(w http.ResponseWriter, correlationID string) {
	entries, err := s.store.ListArchive()
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"entries": entries})
}

func (s *Server) handleRestoreTask(w http.ResponseWriter, entry, correlationID string) {
	id, err := s.store.RestoreTask(entry)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleReadNarrative(w http.ResponseWriter, id, correlationID string) {
	narrative, err := s.store.ReadNarrative(id)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "narrative": narrative})
}

func (s *Server) handleAppendNarrative(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	var body struct {
		Text string `json:"text"`
	}
	if !s.decodeJSONBody(w, r, correlationID, &body) {
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing text", correlationID)
		return
	}
	if err := s.store.AppendNarrative(id, body.Text); err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleGetFocus(w http.ResponseWriter, correlationID string) {
	id, err := s.store.GetFocusedTask()
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"taskId": id})
}

func (s *Server) handleSetFocus(w http.ResponseWriter, r *http.Request, correlationID string) {
	var body struct {
		TaskID string `json:"taskId"`
	}
	if !s.decodeJSONBody(w, r, correlationID, &body) {
		return
	}
	if err := s.store.SetFocusedTask(body.TaskID); err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"taskId": body.TaskID})
}

func (s *Server) handleClearFocus(w http.ResponseWriter, correlationID string) {
	if err := s.store.SetFocusedTask(""); err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, correlationID string) {
	journal := s.store.Journal()
	if journal == nil {
		writeError(w, http.StatusNotFound, "not_found", "no event journal configured", correlationID)
		return
	}
	limit := parseBoundedInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	events, err := journal.Tail(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]taskboard.Event{"events": events})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, taskboard.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), correlationID)
	case errors.Is(err, taskboard.ErrAlreadyArchived):
		writeError(w, http.StatusConflict, "already_archived", err.Error(), correlationID)
	case errors.Is(err, taskboard.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
	case errors.Is(err, taskboard.ErrCorruptDocument):
		writeError(w, http.StatusUnprocessableEntity, "corrupt_document", err.Error(), correlationID)
	case errors.Is(err, taskboard.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error(), correlationID)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
	}
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func parseBoundedInt(raw string, fallback, min, max int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	if parsed < min {
		return fallback
	}
	if parsed > max {
		return max
	}
	return parsed
}
