package taskboard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBundleSaveLoadRoundTrip(t *testing.T) {
	codec := NewBundleCodec(t.TempDir())
	task := Task{
		ID:       "TASK-001",
		Column:   "col-backlog",
		Title:    "Wire the parser",
		Body:     "details",
		Status:   "open",
		Priority: "high",
		Tags:     []string{"parser"},
	}
	if err := codec.Save(task); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := codec.Load("TASK-001")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Title != "Wire the parser" || loaded.Column != "col-backlog" {
		t.Fatalf("unexpected task content: %+v", loaded)
	}
	if loaded.UpdatedAt == "" {
		t.Fatalf("expected save to stamp updatedAt")
	}
}

func TestBundleLoadMissingIsNotFound(t *testing.T) {
	codec := NewBundleCodec(t.TempDir())
	if _, err := codec.Load("TASK-404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBundleLoadCorruptDocument(t *testing.T) {
	root := t.TempDir()
	codec := NewBundleCodec(root)
	dir := filepath.Join(root, "TASK-001")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, primaryFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt primary failed: %v", err)
	}
	if _, err := codec.Load("TASK-001"); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}

	// Structurally valid JSON that violates the document schema.
	if err := os.WriteFile(filepath.Join(dir, primaryFileName), []byte(`{"id": 7}`), 0o644); err != nil {
		t.Fatalf("seed invalid primary failed: %v", err)
	}
	if _, err := codec.Load("TASK-001"); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected schema violation to be ErrCorruptDocument, got %v", err)
	}
}

func TestBundleDeleteIsIdempotent(t *testing.T) {
	codec := NewBundleCodec(t.TempDir())
	if err := codec.Save(Task{ID: "TASK-001", Column: "col-backlog"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := codec.Delete("TASK-001"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := codec.Delete("TASK-001"); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

func TestBundleListIDsToleratesUnrelatedEntries(t *testing.T) {
	root := t.TempDir()
	codec := NewBundleCodec(root)
	if err := codec.Save(Task{ID: "TASK-001", Column: "col-backlog"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "README.txt"), []byte("stray"), 0o644); err != nil {
		t.Fatalf("seed stray file failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "no-primary"), 0o755); err != nil {
		t.Fatalf("seed stray dir failed: %v", err)
	}

	ids, err := codec.ListIDs()
	if err != nil {
		t.Fatalf("listIds failed: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected exactly one id, got %v", ids)
	}
	if _, ok := ids["TASK-001"]; !ok {
		t.Fatalf("expected TASK-001 in listing, got %v", ids)
	}
}

func TestNarrativeAppendAndRead(t *testing.T) {
	codec := NewBundleCodec(t.TempDir())
	if err := codec.Save(Task{ID: "TASK-001", Column: "col-backlog"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if got, err := codec.ReadNarrative("TASK-001"); err != nil || got != "" {
		t.Fatalf("expected empty narrative for fresh bundle, got %q err %v", got, err)
	}
	if err := codec.AppendNarrative("TASK-001", "started work"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := codec.AppendNarrative("TASK-001", "blocked on review\n"); err != nil {
		t.Fatalf("second append failed: %v", err)
	}

	narrative, err := codec.ReadNarrative("TASK-001")
	if err != nil {
		t.Fatalf("read narrative failed: %v", err)
	}
	if narrative != "started work\nblocked on review\n" {
		t.Fatalf("unexpected narrative: %q", narrative)
	}
	if !strings.HasSuffix(narrative, "\n") {
		t.Fatalf("expected trailing newline, got %q", narrative)
	}

	if err := codec.AppendNarrative("TASK-404", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing bundle, got %v", err)
	}
	if _, err := codec.ReadNarrative("TASK-404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing bundle, got %v", err)
	}
}
