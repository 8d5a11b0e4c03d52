package taskboard

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyArchived  = errors.New("already archived")
	ErrCorruptDocument  = errors.New("corrupt document")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidInput     = errors.New("invalid input")
)

// CorruptDocumentError carries the path of the document that failed to decode
// or validate. It matches ErrCorruptDocument via errors.Is.
type CorruptDocumentError struct {
	Path   string
	Reason string
}

func (e *CorruptDocumentError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("corrupt document: %s", e.Path)
	}
	return fmt.Sprintf("corrupt document %s: %s", e.Path, e.Reason)
}

func (e *CorruptDocumentError) Is(target error) bool {
	return target == ErrCorruptDocument
}

// MigrationWarning describes one item the open-time migration pass could not
// convert. The item stays in its legacy shape and is retried on the next
// open; warnings are reported, never fatal.
type MigrationWarning struct {
	TaskID string
	Path   string
	Err    error
}

func (w MigrationWarning) String() string {
	id := w.TaskID
	if id == "" {
		id = w.Path
	}
	return fmt.Sprintf("%s: %v", id, w.Err)
}
