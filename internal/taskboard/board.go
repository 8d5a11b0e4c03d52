package taskboard

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CurrentSchemaVersion is the index document version written by this code.
// Version 1 indexes embed full task payloads inside columns and are migrated
// on open.
const CurrentSchemaVersion = 2

const taskIDPrefix = "TASK-"

var taskIDPattern = regexp.MustCompile(`^TASK-(\d+)$`)

type Board struct {
	Version     int      `json:"version"`
	NextTaskSeq int      `json:"nextTaskSeq"`
	Columns     []Column `json:"columns"`
}

type Column struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Position int      `json:"position"`
	TaskIDs  []string `json:"taskIds"`
}

type Task struct {
	ID        string          `json:"id"`
	Column    string          `json:"column"`
	Title     string          `json:"title"`
	Body      string          `json:"body,omitempty"`
	Status    string          `json:"status,omitempty"`
	Priority  string          `json:"priority,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Artifacts []string        `json:"artifacts,omitempty"`
	Checklist []ChecklistItem `json:"checklist,omitempty"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
}

type ChecklistItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// TaskUpdate carries partial field updates; nil fields are left untouched.
type TaskUpdate struct {
	Title     *string          `json:"title,omitempty"`
	Body      *string          `json:"body,omitempty"`
	Status    *string          `json:"status,omitempty"`
	Priority  *string          `json:"priority,omitempty"`
	Tags      *[]string        `json:"tags,omitempty"`
	Artifacts *[]string        `json:"artifacts,omitempty"`
	Checklist *[]ChecklistItem `json:"checklist,omitempty"`
}

// DefaultBoard is the well-defined empty board used when no index exists.
func DefaultBoard() Board {
	return Board{
		Version:     CurrentSchemaVersion,
		NextTaskSeq: 1,
		Columns: []Column{
			{ID: "col-backlog", Name: "Backlog", Position: 0, TaskIDs: []string{}},
			{ID: "col-in-progress", Name: "In Progress", Position: 1, TaskIDs: []string{}},
			{ID: "col-done", Name: "Done", Position: 2, TaskIDs: []string{}},
		},
	}
}

func (b Board) Clone() Board {
	clone := b
	clone.Columns = make([]Column, len(b.Columns))
	for i, col := range b.Columns {
		clone.Columns[i] = col
		clone.Columns[i].TaskIDs = append([]string(nil), col.TaskIDs...)
	}
	return clone
}

func (b *Board) column(id string) *Column {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return &b.Columns[i]
		}
	}
	return nil
}

// fallbackColumn is where bundles with an unknown column land: the
// lowest-position column.
func (b *Board) fallbackColumn() *Column {
	if len(b.Columns) == 0 {
		return nil
	}
	best := &b.Columns[0]
	for i := range b.Columns[1:] {
		if b.Columns[i+1].Position < best.Position {
			best = &b.Columns[i+1]
		}
	}
	return best
}

// removeTaskRef prunes id from every column list and reports whether any
// reference was removed.
func (b *Board) removeTaskRef(id string) bool {
	removed := false
	for i := range b.Columns {
		ids := b.Columns[i].TaskIDs
		kept := ids[:0]
		for _, ref := range ids {
			if ref == id {
				removed = true
				continue
			}
			kept = append(kept, ref)
		}
		b.Columns[i].TaskIDs = kept
	}
	return removed
}

func (b *Board) sortColumns() {
	sort.SliceStable(b.Columns, func(i, j int) bool {
		return b.Columns[i].Position < b.Columns[j].Position
	})
}

// FormatTaskID renders the canonical TASK-<n> identifier.
func FormatTaskID(seq int) string {
	return fmt.Sprintf("%s%03d", taskIDPrefix, seq)
}

// ParseTaskSeq extracts the numeric sequence from a TASK-<n> identifier.
func ParseTaskSeq(id string) (int, bool) {
	match := taskIDPattern.FindStringSubmatch(strings.TrimSpace(id))
	if match == nil {
		return 0, false
	}
	seq, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return seq, true
}
