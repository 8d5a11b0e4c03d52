package taskboard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const archiveTimestampLayout = "20060102T150405"

// ArchiveManager relocates task bundles out of the active set. It never
// touches the index; the caller prunes the column reference and persists the
// board, keeping this contract symmetric with the Bundle Codec.
type ArchiveManager struct {
	tasksRoot   string
	archiveRoot string
	now         func() time.Time
}

func NewArchiveManager(storeRoot string) *ArchiveManager {
	root := filepath.Clean(storeRoot)
	return &ArchiveManager{
		tasksRoot:   filepath.Join(root, tasksDirName),
		archiveRoot: filepath.Join(root, archiveDirName),
		now:         time.Now,
	}
}

// Archive moves the bundle directory for id into the archive area under the
// same id, appending a timestamp suffix instead of overwriting on collision.
func (m *ArchiveManager) Archive(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrInvalidInput
	}
	source := filepath.Join(m.tasksRoot, id)
	if _, err := os.Stat(filepath.Join(source, primaryFileName)); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		entries, listErr := m.entriesFor(id)
		if listErr != nil {
			return "", listErr
		}
		if len(entries) > 0 {
			return "", ErrAlreadyArchived
		}
		return "", ErrNotFound
	}

	if err := os.MkdirAll(m.archiveRoot, 0o755); err != nil {
		return "", err
	}
	target := filepath.Join(m.archiveRoot, id)
	if _, err := os.Stat(target); err == nil {
		stamp := m.now().UTC().Format(archiveTimestampLayout)
		target = filepath.Join(m.archiveRoot, fmt.Sprintf("%s_%s", id, stamp))
		if _, err := os.Stat(target); err == nil {
			target = filepath.Join(m.archiveRoot, fmt.Sprintf("%s_%d", id, m.now().UTC().UnixNano()))
		}
	}
	if err := os.Rename(source, target); err != nil {
		return "", err
	}
	return target, nil
}

// Restore moves an archive entry back into the active set and returns the
// task id it now lives under.
func (m *ArchiveManager) Restore(entry string) (string, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", ErrInvalidInput
	}
	source := filepath.Join(m.archiveRoot, entry)
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	id := archiveEntryTaskID(entry)
	target := filepath.Join(m.tasksRoot, id)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%w: task %s is already active", ErrInvalidInput, id)
	}
	if err := os.MkdirAll(m.tasksRoot, 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(source, target); err != nil {
		return "", err
	}
	return id, nil
}

// List returns every archive entry name, sorted.
func (m *ArchiveManager) List() ([]string, error) {
	dirEntries, err := os.ReadDir(m.archiveRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if !entry.IsDir() || isTempArtifact(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (m *ArchiveManager) entriesFor(id string) ([]string, error) {
	all, err := m.List()
	if err != nil {
		return nil, err
	}
	matches := make([]string, 0, 1)
	for _, entry := range all {
		if archiveEntryTaskID(entry) == id {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

// archiveEntryTaskID strips the collision timestamp suffix; task ids never
// contain underscores.
func archiveEntryTaskID(entry string) string {
	if idx := strings.Index(entry, "_"); idx > 0 {
		return entry[:idx]
	}
	return entry
}
