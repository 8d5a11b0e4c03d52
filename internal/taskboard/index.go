package taskboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const indexFileName = "index.json"

// IndexStore persists the lightweight board index: columns and per-column
// task-id ordering, never task content. Keeping it separate from the bundles
// keeps the hot, frequently-rewritten document small and keeps unrelated
// task writes independent.
type IndexStore struct {
	path   string
	logger Logger
	now    func() time.Time
}

func NewIndexStore(storeRoot string, logger Logger) *IndexStore {
	return &IndexStore{
		path:   filepath.Join(filepath.Clean(storeRoot), indexFileName),
		logger: logger,
		now:    time.Now,
	}
}

func (s *IndexStore) Path() string {
	return s.path
}

// Load returns the persisted board, or the default board when no index file
// exists (without writing one). A corrupt index is backed up alongside the
// original and replaced by the default board; reset reports that recovery.
func (s *IndexStore) Load() (board Board, reset bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultBoard(), false, nil
		}
		return Board{}, false, err
	}
	if err := validateIndexDocument(s.path, data); err != nil {
		return s.recoverCorrupt(err)
	}
	var loaded Board
	if err := json.Unmarshal(data, &loaded); err != nil {
		return s.recoverCorrupt(&CorruptDocumentError{Path: s.path, Reason: err.Error()})
	}
	normalizeBoard(&loaded)
	return loaded, false, nil
}

func (s *IndexStore) recoverCorrupt(cause error) (Board, bool, error) {
	backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().UTC().UnixNano())
	if err := os.Rename(s.path, backup); err != nil {
		return Board{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	logf(s.logger, "index reset: %v (corrupt file preserved at %s)", cause, backup)
	return DefaultBoard(), true, nil
}

// Save persists structural shape only; callers never hand it task content.
func (s *IndexStore) Save(board Board) error {
	normalizeBoard(&board)
	data, err := json.MarshalIndent(board, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(s.path, data, 0o644)
}

func normalizeBoard(board *Board) {
	if board.Version == 0 {
		board.Version = CurrentSchemaVersion
	}
	if board.NextTaskSeq < 1 {
		board.NextTaskSeq = 1
	}
	if len(board.Columns) == 0 {
		board.Columns = DefaultBoard().Columns
	}
	for i := range board.Columns {
		if board.Columns[i].TaskIDs == nil {
			board.Columns[i].TaskIDs = []string{}
		}
	}
	board.sortColumns()
}
