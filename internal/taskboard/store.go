package taskboard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	tasksDirName   = "tasks"
	archiveDirName = "archive"
	focusFileName  = ".current-task"
)

type StoreOptions struct {
	Root           string
	Logger         Logger
	Journal        EventJournal
	JournalDSN     string
	DebounceWindow time.Duration
	DisableWatcher bool
}

// Store is the consumer-facing facade over the index, the bundles, the
// archive and the notifier. One mutex serializes in-process operations;
// out-of-band writers (external editors, manual deletion) are recovered from
// by reconciliation on the next read, not prevented.
type Store struct {
	mu       sync.Mutex
	root     string
	codec    *BundleCodec
	index    *IndexStore
	archive  *ArchiveManager
	journal  EventJournal
	notifier *Notifier
	logger   Logger
	warnings []MigrationWarning
	now      func() time.Time

	closeOnce sync.Once
}

// BoardSnapshot is what a read returns: the (possibly repaired) board plus
// the content of every referenced task. Excluded lists tasks whose bundle is
// present but corrupt; they are left out of Tasks without failing the read.
type BoardSnapshot struct {
	Board    Board           `json:"board"`
	Tasks    map[string]Task `json:"tasks"`
	Repaired bool            `json:"repaired"`
	Excluded []string        `json:"excluded,omitempty"`
}

// TaskDraft carries the caller-supplied fields of a new task.
type TaskDraft struct {
	Title     string          `json:"title"`
	Body      string          `json:"body,omitempty"`
	Status    string          `json:"status,omitempty"`
	Priority  string          `json:"priority,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Artifacts []string        `json:"artifacts,omitempty"`
	Checklist []ChecklistItem `json:"checklist,omitempty"`
}

func NewStore(root string) (*Store, error) {
	return NewStoreWithOptions(StoreOptions{Root: root})
}

func NewStoreWithOptions(opts StoreOptions) (*Store, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, fmt.Errorf("%w: store root is required", ErrInvalidInput)
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Join(root, tasksDirName), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	journal := opts.Journal
	if journal == nil && strings.TrimSpace(opts.JournalDSN) != "" {
		var err error
		journal, err = BuildJournalFromDSN(opts.JournalDSN)
		if err != nil {
			return nil, err
		}
	}

	s := &Store{
		root:    root,
		codec:   NewBundleCodec(filepath.Join(root, tasksDirName)),
		index:   NewIndexStore(root, opts.Logger),
		archive: NewArchiveManager(root),
		journal: journal,
		logger:  opts.Logger,
		now:     time.Now,
	}

	warnings, err := NewMigrator(root, opts.Logger).Migrate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.warnings = warnings
	if len(warnings) > 0 {
		s.record(EventMigrationCompleted, "", "", fmt.Sprintf("%d item(s) left in legacy shape", len(warnings)))
	}

	if !opts.DisableWatcher {
		notifier, err := NewNotifier(root, opts.DebounceWindow, opts.Logger)
		if err != nil {
			return nil, err
		}
		s.notifier = notifier
	}
	return s, nil
}

// MigrationWarnings reports the items the open-time migration pass left in
// their legacy shape; they are retried on the next open.
func (s *Store) MigrationWarnings() []MigrationWarning {
	return append([]MigrationWarning(nil), s.warnings...)
}

// ReadBoard loads the index, reconciles it against the bundles on disk, and
// persists any repair before returning. A read can therefore write; repeated
// reads over an unchanged store are stable and write nothing.
func (s *Store) ReadBoard() (BoardSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readBoardLocked()
}

func (s *Store) readBoardLocked() (BoardSnapshot, error) {
	board, err := s.loadBoardLocked()
	if err != nil {
		return BoardSnapshot{}, err
	}

	report, err := reconcileBoard(&board, s.codec, s.logger)
	if err != nil {
		return BoardSnapshot{}, err
	}
	if report.Changed {
		if err := s.index.Save(board); err != nil {
			return BoardSnapshot{}, err
		}
		s.record(EventBoardRepaired, "", "", fmt.Sprintf(
			"dropped=%d adopted=%d reassigned=%d",
			len(report.DroppedRefs), len(report.Adopted), len(report.Reassigned)))
	}

	snapshot := BoardSnapshot{
		Board:    board,
		Tasks:    make(map[string]Task),
		Repaired: report.Changed,
		Excluded: append([]string(nil), report.Excluded...),
	}
	for _, col := range board.Columns {
		for _, id := range col.TaskIDs {
			task, err := s.codec.Load(id)
			if err != nil {
				if errors.Is(err, ErrCorruptDocument) {
					snapshot.Excluded = append(snapshot.Excluded, id)
					logf(s.logger, "read: excluding corrupt task %s: %v", id, err)
					continue
				}
				if errors.Is(err, ErrNotFound) {
					// Deleted between listing and load; the next read
					// repairs the reference.
					continue
				}
				return BoardSnapshot{}, err
			}
			snapshot.Tasks[id] = task
		}
	}
	return snapshot, nil
}

func (s *Store) loadBoardLocked() (Board, error) {
	board, reset, err := s.index.Load()
	if err != nil {
		return Board{}, err
	}
	if reset {
		if err := s.index.Save(board); err != nil {
			return Board{}, err
		}
		s.record(EventBoardReset, "", "", "corrupt index replaced by default board")
	}
	return board, nil
}

// CreateTask allocates the next TASK-<n> id, saves the bundle, and appends
// the id to the target column. Identifiers are never reused, even after
// deletion or archival.
func (s *Store) CreateTask(columnID string, draft TaskDraft) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, err := s.loadBoardLocked()
	if err != nil {
		return "", err
	}
	col := board.column(columnID)
	if col == nil {
		return "", fmt.Errorf("%w: column %s", ErrNotFound, columnID)
	}

	seq, err := s.nextSeqLocked(board)
	if err != nil {
		return "", err
	}
	id := FormatTaskID(seq)
	task := Task{
		ID:        id,
		Column:    columnID,
		Title:     draft.Title,
		Body:      draft.Body,
		Status:    draft.Status,
		Priority:  draft.Priority,
		Tags:      draft.Tags,
		Artifacts: draft.Artifacts,
		Checklist: draft.Checklist,
	}
	if err := s.codec.Save(task); err != nil {
		return "", err
	}

	col.TaskIDs = append(col.TaskIDs, id)
	board.NextTaskSeq = seq + 1
	if err := s.index.Save(board); err != nil {
		return "", err
	}
	s.record(EventTaskCreated, id, columnID, draft.Title)
	return id, nil
}

// nextSeqLocked floors the persisted counter against everything on disk, so
// a stale or reset index can never hand out an id an active or archived
// bundle already carries.
func (s *Store) nextSeqLocked(board Board) (int, error) {
	seq := board.NextTaskSeq
	active, err := s.codec.ListIDs()
	if err != nil {
		return 0, err
	}
	for id := range active {
		if n, ok := ParseTaskSeq(id); ok && n >= seq {
			seq = n + 1
		}
	}
	archived, err := s.archive.List()
	if err != nil {
		return 0, err
	}
	for _, entry := range archived {
		if n, ok := ParseTaskSeq(archiveEntryTaskID(entry)); ok && n >= seq {
			seq = n + 1
		}
	}
	if seq < 1 {
		seq = 1
	}
	return seq, nil
}

// UpdateTask applies the non-nil fields of update to the task's bundle.
func (s *Store) UpdateTask(id string, update TaskUpdate) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.codec.Load(id)
	if err != nil {
		return Task{}, err
	}
	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Body != nil {
		task.Body = *update.Body
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.Tags != nil {
		task.Tags = *update.Tags
	}
	if update.Artifacts != nil {
		task.Artifacts = *update.Artifacts
	}
	if update.Checklist != nil {
		task.Checklist = *update.Checklist
	}
	if err := s.codec.Save(task); err != nil {
		return Task{}, err
	}
	s.record(EventTaskUpdated, id, task.Column, "")
	return task, nil
}

// MoveTask reassigns the task to another column, updating both the bundle's
// own column field and the index ordering (appended at the end of the target
// column).
func (s *Store) MoveTask(id, columnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, err := s.loadBoardLocked()
	if err != nil {
		return err
	}
	col := board.column(columnID)
	if col == nil {
		return fmt.Errorf("%w: column %s", ErrNotFound, columnID)
	}
	task, err := s.codec.Load(id)
	if err != nil {
		return err
	}
	task.Column = columnID
	if err := s.codec.Save(task); err != nil {
		return err
	}
	board.removeTaskRef(id)
	col.TaskIDs = append(col.TaskIDs, id)
	if err := s.index.Save(board); err != nil {
		return err
	}
	s.record(EventTaskMoved, id, columnID, "")
	return nil
}

// DeleteTask removes the bundle and prunes the index reference. The focus
// pointer is cleared when it named the deleted task.
func (s *Store) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.codec.ListIDs()
	if err != nil {
		return err
	}
	if _, ok := active[id]; !ok {
		return ErrNotFound
	}
	if err := s.codec.Delete(id); err != nil {
		return err
	}
	if err := s.pruneTaskRefLocked(id); err != nil {
		return err
	}
	s.clearFocusIfLocked(id)
	s.record(EventTaskDeleted, id, "", "")
	return nil
}

// ArchiveTask relocates the bundle into the archive area and prunes the
// index reference. Archiving an absent task fails with NotFound; archiving a
// task that only exists in the archive fails with AlreadyArchived.
func (s *Store) ArchiveTask(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.archive.Archive(id)
	if err != nil {
		return "", err
	}
	if err := s.pruneTaskRefLocked(id); err != nil {
		return "", err
	}
	s.clearFocusIfLocked(id)
	s.record(EventTaskArchived, id, "", path)
	return path, nil
}

// RestoreTask moves an archive entry back into the active set and reattaches
// it to the column its document names (or the fallback column).
func (s *Store) RestoreTask(entry string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.archive.Restore(entry)
	if err != nil {
		return "", err
	}
	board, err := s.loadBoardLocked()
	if err != nil {
		return "", err
	}
	board.removeTaskRef(id)
	var col *Column
	if task, loadErr := s.codec.Load(id); loadErr == nil {
		col = board.column(task.Column)
	}
	if col == nil {
		col = board.fallbackColumn()
	}
	if col != nil {
		col.TaskIDs = append(col.TaskIDs, id)
	}
	if err := s.index.Save(board); err != nil {
		return "", err
	}
	s.record(EventTaskRestored, id, "", entry)
	return id, nil
}

// ListArchive returns the archive entry names, sorted.
func (s *Store) ListArchive() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archive.List()
}

func (s *Store) pruneTaskRefLocked(id string) error {
	board, err := s.loadBoardLocked()
	if err != nil {
		return err
	}
	if !board.removeTaskRef(id) {
		return nil
	}
	return s.index.Save(board)
}

func (s *Store) AppendNarrative(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec.AppendNarrative(id, text)
}

func (s *Store) ReadNarrative(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec.ReadNarrative(id)
}

func (s *Store) focusPath() string {
	return filepath.Join(s.root, focusFileName)
}

// SetFocusedTask points the single-value focus pointer at id; an empty id
// clears it. The pointer is set on claim and cleared when the focused task
// is deleted or archived.
func (s *Store) SetFocusedTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	if id == "" {
		if err := os.Remove(s.focusPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	active, err := s.codec.ListIDs()
	if err != nil {
		return err
	}
	if _, ok := active[id]; !ok {
		return ErrNotFound
	}
	return writeFileAtomic(s.focusPath(), []byte(id+"\n"), 0o644)
}

// GetFocusedTask returns the focused task id, or empty when no task is
// focused. A pointer left behind by an out-of-band deletion reads as empty
// and is lazily cleared.
func (s *Store) GetFocusedTask() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.focusPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", nil
	}
	active, err := s.codec.ListIDs()
	if err != nil {
		return "", err
	}
	if _, ok := active[id]; !ok {
		_ = os.Remove(s.focusPath())
		return "", nil
	}
	return id, nil
}

func (s *Store) clearFocusIfLocked(id string) {
	data, err := os.ReadFile(s.focusPath())
	if err != nil {
		return
	}
	if strings.TrimSpace(string(data)) == id {
		_ = os.Remove(s.focusPath())
	}
}

// Subscribe returns a debounced refresh channel plus its cancel func. With
// the watcher disabled the channel is closed and never fires.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return ch, func() {}
	}
	return s.notifier.Subscribe()
}

// Journal exposes the configured event journal; nil when none is wired.
func (s *Store) Journal() EventJournal {
	return s.journal
}

func (s *Store) record(eventType, taskID, column, detail string) {
	if s.journal == nil {
		return
	}
	event := Event{
		Type:      eventType,
		TaskID:    taskID,
		Column:    column,
		Detail:    detail,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.journal.Record(event); err != nil {
		logf(s.logger, "journal %s: %v", eventType, err)
	}
}

func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.notifier != nil {
			err = s.notifier.Close()
		}
		if s.journal != nil {
			if cerr := s.journal.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}
