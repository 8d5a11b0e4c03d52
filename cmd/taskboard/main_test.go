package main

import (
	"bytes"
	"strings"
	"testing"
)

func runCLI(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(append([]string{"-root", root}, args...), &out)
	return out.String(), err
}

func TestCreateAndBoard(t *testing.T) {
	root := t.TempDir()

	out, err := runCLI(t, root, "create", "col-backlog", "write", "the", "cli")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if strings.TrimSpace(out) != "TASK-001" {
		t.Fatalf("expected TASK-001, got %q", out)
	}

	out, err = runCLI(t, root, "board")
	if err != nil {
		t.Fatalf("board failed: %v", err)
	}
	if !strings.Contains(out, "Backlog (col-backlog)") || !strings.Contains(out, "TASK-001  write the cli") {
		t.Fatalf("unexpected board output:\n%s", out)
	}
}

func TestMoveArchiveRestoreDelete(t *testing.T) {
	root := t.TempDir()
	if _, err := runCLI(t, root, "create", "col-backlog", "cycled"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := runCLI(t, root, "move", "TASK-001", "col-done"); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if _, err := runCLI(t, root, "archive", "TASK-001"); err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	out, err := runCLI(t, root, "archive-list")
	if err != nil {
		t.Fatalf("archive-list failed: %v", err)
	}
	entry := strings.TrimSpace(out)
	if entry == "" {
		t.Fatalf("expected an archive entry")
	}

	out, err = runCLI(t, root, "restore", entry)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if strings.TrimSpace(out) != "TASK-001" {
		t.Fatalf("expected restored TASK-001, got %q", out)
	}

	if _, err := runCLI(t, root, "delete", "TASK-001"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := runCLI(t, root, "delete", "TASK-001"); err == nil {
		t.Fatalf("expected an error deleting a missing task")
	}
}

func TestFocusCommand(t *testing.T) {
	root := t.TempDir()
	if _, err := runCLI(t, root, "create", "col-backlog", "focused"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	out, err := runCLI(t, root, "focus")
	if err != nil {
		t.Fatalf("focus read failed: %v", err)
	}
	if strings.TrimSpace(out) != "(none)" {
		t.Fatalf("expected no focus, got %q", out)
	}

	if _, err := runCLI(t, root, "focus", "TASK-001"); err != nil {
		t.Fatalf("focus set failed: %v", err)
	}
	out, _ = runCLI(t, root, "focus")
	if strings.TrimSpace(out) != "TASK-001" {
		t.Fatalf("expected TASK-001 focused, got %q", out)
	}

	// The focused task is starred in board output.
	out, _ = runCLI(t, root, "board")
	if !strings.Contains(out, "*TASK-001") {
		t.Fatalf("expected focus marker in board output:\n%s", out)
	}

	if _, err := runCLI(t, root, "focus", "-"); err != nil {
		t.Fatalf("focus clear failed: %v", err)
	}
	out, _ = runCLI(t, root, "focus")
	if strings.TrimSpace(out) != "(none)" {
		t.Fatalf("expected cleared focus, got %q", out)
	}
}

func TestLogCommand(t *testing.T) {
	root := t.TempDir()
	if _, err := runCLI(t, root, "create", "col-backlog", "logged"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := runCLI(t, root, "log", "TASK-001", "started", "work"); err != nil {
		t.Fatalf("log append failed: %v", err)
	}
	out, err := runCLI(t, root, "log", "TASK-001")
	if err != nil {
		t.Fatalf("log read failed: %v", err)
	}
	if out != "started work\n" {
		t.Fatalf("unexpected narrative %q", out)
	}
}

func TestEventsCommand(t *testing.T) {
	root := t.TempDir()
	t.Setenv("TASKBOARD_JOURNAL_DSN", "file://"+root+"/events.jsonl")
	if _, err := runCLI(t, root, "create", "col-backlog", "observed"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	out, err := runCLI(t, root, "events", "5")
	if err != nil {
		t.Fatalf("events failed: %v", err)
	}
	if !strings.Contains(out, "task.created TASK-001") {
		t.Fatalf("unexpected events output:\n%s", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := runCLI(t, t.TempDir(), "frobnicate"); err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
}
