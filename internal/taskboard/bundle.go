package taskboard

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	primaryFileName   = "primary.json"
	narrativeFileName = "narrative.log"
)

// BundleCodec reads and writes one task's canonical on-disk content: the
// primary document plus its append-only narrative log, both inside
// <tasksRoot>/<task-id>/.
type BundleCodec struct {
	tasksRoot string
	now       func() time.Time
}

func NewBundleCodec(tasksRoot string) *BundleCodec {
	return &BundleCodec{
		tasksRoot: filepath.Clean(tasksRoot),
		now:       time.Now,
	}
}

func (c *BundleCodec) bundleDir(id string) string {
	return filepath.Join(c.tasksRoot, id)
}

func (c *BundleCodec) primaryPath(id string) string {
	return filepath.Join(c.bundleDir(id), primaryFileName)
}

func (c *BundleCodec) narrativePath(id string) string {
	return filepath.Join(c.bundleDir(id), narrativeFileName)
}

func (c *BundleCodec) Load(id string) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, ErrInvalidInput
	}
	path := c.primaryPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	if err := validateTaskDocument(path, data); err != nil {
		return Task{}, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, &CorruptDocumentError{Path: path, Reason: err.Error()}
	}
	if task.ID == "" {
		task.ID = id
	}
	return task, nil
}

// Save creates the bundle directory if absent and stamps the last-modified
// timestamp before writing.
func (c *BundleCodec) Save(task Task) error {
	if strings.TrimSpace(task.ID) == "" {
		return ErrInvalidInput
	}
	task.UpdatedAt = c.now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.bundleDir(task.ID), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(c.primaryPath(task.ID), data, 0o644)
}

// Delete removes the whole bundle; deleting an absent bundle is a no-op.
func (c *BundleCodec) Delete(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidInput
	}
	return os.RemoveAll(c.bundleDir(id))
}

// ListIDs returns the set of task ids that have a bundle on disk. Unrelated
// files and directories under the tasks root are ignored.
func (c *BundleCodec) ListIDs() (map[string]struct{}, error) {
	entries, err := os.ReadDir(c.tasksRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	ids := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || isTempArtifact(entry.Name()) {
			continue
		}
		if _, err := os.Stat(c.primaryPath(entry.Name())); err != nil {
			continue
		}
		ids[entry.Name()] = struct{}{}
	}
	return ids, nil
}

// AppendNarrative appends one entry to the task's narrative log, creating
// the log (and bundle directory) if needed. A trailing newline is added when
// the entry lacks one.
func (c *BundleCodec) AppendNarrative(id, text string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidInput
	}
	if _, err := os.Stat(c.primaryPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	f, err := os.OpenFile(c.narrativePath(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *BundleCodec) ReadNarrative(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrInvalidInput
	}
	data, err := os.ReadFile(c.narrativePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// A bundle without a narrative log reads as empty; a missing
			// bundle is NotFound.
			if _, statErr := os.Stat(c.primaryPath(id)); statErr == nil {
				return "", nil
			}
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}
