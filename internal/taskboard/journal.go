package taskboard

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	EventTaskCreated        = "task.created"
	EventTaskUpdated        = "task.updated"
	EventTaskMoved          = "task.moved"
	EventTaskDeleted        = "task.deleted"
	EventTaskArchived       = "task.archived"
	EventTaskRestored       = "task.restored"
	EventBoardRepaired      = "board.repaired"
	EventBoardReset         = "board.reset"
	EventMigrationCompleted = "migration.completed"
)

type Event struct {
	Type      string `json:"type"`
	TaskID    string `json:"taskId,omitempty"`
	Column    string `json:"column,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EventJournal is the append-only audit log of store mutations. Journal
// failures never fail the originating operation; the store logs and moves
// on.
type EventJournal interface {
	Record(event Event) error
	Tail(limit int) ([]Event, error)
	Close() error
}

// FileJournal appends one JSON document per line. Partial trailing lines
// from a crash are skipped on read.
type FileJournal struct {
	mu   sync.Mutex
	path string
}

func NewFileJournal(path string) (*FileJournal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &FileJournal{path: filepath.Clean(path)}, nil
}

func (j *FileJournal) Record(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (j *FileJournal) Tail(limit int) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Event{}, nil
		}
		return nil, err
	}
	defer f.Close()

	events := []Event{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (j *FileJournal) Close() error {
	return nil
}

type InMemoryJournal struct {
	mu     sync.Mutex
	events []Event
}

func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{}
}

func (j *InMemoryJournal) Record(event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
	return nil
}

func (j *InMemoryJournal) Tail(limit int) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	events := append([]Event(nil), j.events...)
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (j *InMemoryJournal) Close() error {
	return nil
}
