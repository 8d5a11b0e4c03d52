package taskboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Migrator rewrites legacy on-disk shapes into the current bundle layout.
// It is idempotent and safe on every open: each item converts independently,
// so a crash mid-pass leaves untouched items in their still-valid legacy
// shape, and a failed item stays legacy and is retried on the next open.
type Migrator struct {
	storeRoot string
	tasksRoot string
	indexPath string
	logger    Logger
}

func NewMigrator(storeRoot string, logger Logger) *Migrator {
	root := filepath.Clean(storeRoot)
	return &Migrator{
		storeRoot: root,
		tasksRoot: filepath.Join(root, tasksDirName),
		indexPath: filepath.Join(root, indexFileName),
		logger:    logger,
	}
}

// legacyIndexDocument is the version-tagged loose shape used only while
// migrating; post-migration everything collapses to the strongly-typed
// Board.
type legacyIndexDocument struct {
	Version     int            `json:"version"`
	NextTaskSeq int            `json:"nextTaskSeq,omitempty"`
	Columns     []legacyColumn `json:"columns"`
}

type legacyColumn struct {
	ID       string            `json:"id"`
	Name     string            `json:"name,omitempty"`
	Position int               `json:"position"`
	TaskIDs  []string          `json:"taskIds,omitempty"`
	Tasks    []json.RawMessage `json:"tasks,omitempty"`
}

func (m *Migrator) Migrate() ([]MigrationWarning, error) {
	var warnings []MigrationWarning

	flatWarnings, err := m.migrateFlatFiles()
	warnings = append(warnings, flatWarnings...)
	if err != nil {
		return warnings, err
	}

	embeddedWarnings, err := m.migrateEmbeddedIndex()
	warnings = append(warnings, embeddedWarnings...)
	if err != nil {
		return warnings, err
	}

	for _, w := range warnings {
		logf(m.logger, "migration warning: %s", w.String())
	}
	return warnings, nil
}

// migrateFlatFiles wraps every legacy tasks/<id>.json file into a bundle
// directory, relocating the matching tasks/<id>.log narrative, preserving
// the primary document byte for byte.
func (m *Migrator) migrateFlatFiles() ([]MigrationWarning, error) {
	entries, err := os.ReadDir(m.tasksRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || isTempArtifact(name) || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var warnings []MigrationWarning
	for _, name := range names {
		id := strings.TrimSuffix(name, ".json")
		flatPath := filepath.Join(m.tasksRoot, name)
		if err := m.wrapFlatFile(id, flatPath); err != nil {
			warnings = append(warnings, MigrationWarning{TaskID: id, Path: flatPath, Err: err})
		}
	}
	return warnings, nil
}

func (m *Migrator) wrapFlatFile(id, flatPath string) error {
	data, err := os.ReadFile(flatPath)
	if err != nil {
		return err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return &CorruptDocumentError{Path: flatPath, Reason: err.Error()}
	}

	bundleDir := filepath.Join(m.tasksRoot, id)
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(bundleDir, primaryFileName), data, 0o644); err != nil {
		return err
	}
	if err := m.relocateLegacyNarrative(id); err != nil {
		return err
	}
	// Removing the flat file commits the conversion; a crash before this
	// point just repeats the wrap on next open.
	return os.Remove(flatPath)
}

// migrateEmbeddedIndex extracts full task payloads embedded in a version-1
// index into bundles, then strips the index to structural data only.
func (m *Migrator) migrateEmbeddedIndex() ([]MigrationWarning, error) {
	data, err := os.ReadFile(m.indexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var doc legacyIndexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		// Corrupt index recovery belongs to the Index Store, not the
		// migrator.
		return nil, nil
	}

	embedded := 0
	for _, col := range doc.Columns {
		embedded += len(col.Tasks)
	}
	if embedded == 0 && doc.Version >= CurrentSchemaVersion {
		return nil, nil
	}

	var warnings []MigrationWarning
	failed := 0
	for i := range doc.Columns {
		col := &doc.Columns[i]
		remaining := col.Tasks[:0]
		for _, raw := range col.Tasks {
			id, err := m.extractEmbeddedTask(col.ID, raw)
			if err != nil {
				warnings = append(warnings, MigrationWarning{TaskID: id, Path: m.indexPath, Err: err})
				remaining = append(remaining, raw)
				failed++
				continue
			}
			if !containsString(col.TaskIDs, id) {
				col.TaskIDs = append(col.TaskIDs, id)
			}
		}
		col.Tasks = remaining
	}

	if failed == 0 {
		doc.Version = CurrentSchemaVersion
		for i := range doc.Columns {
			doc.Columns[i].Tasks = nil
		}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return warnings, err
	}
	if err := writeFileAtomic(m.indexPath, out, 0o644); err != nil {
		return warnings, err
	}
	return warnings, nil
}

func (m *Migrator) extractEmbeddedTask(columnID string, raw json.RawMessage) (string, error) {
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return "", &CorruptDocumentError{Path: m.indexPath, Reason: err.Error()}
	}
	if strings.TrimSpace(task.ID) == "" {
		return "", fmt.Errorf("embedded task without id in column %s", columnID)
	}
	if task.Column == "" {
		task.Column = columnID
	}

	bundleDir := filepath.Join(m.tasksRoot, task.ID)
	primary := filepath.Join(bundleDir, primaryFileName)
	if _, err := os.Stat(primary); err == nil {
		// Already extracted by an earlier, interrupted pass.
		return task.ID, nil
	}
	payload, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return task.ID, err
	}
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return task.ID, err
	}
	if err := writeFileAtomic(primary, payload, 0o644); err != nil {
		return task.ID, err
	}
	if err := m.relocateLegacyNarrative(task.ID); err != nil {
		return task.ID, err
	}
	return task.ID, nil
}

// relocateLegacyNarrative moves a freestanding tasks/<id>.log file into the
// owning bundle.
func (m *Migrator) relocateLegacyNarrative(id string) error {
	legacy := filepath.Join(m.tasksRoot, id+".log")
	if _, err := os.Stat(legacy); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.Rename(legacy, filepath.Join(m.tasksRoot, id, narrativeFileName))
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
