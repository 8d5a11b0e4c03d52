package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/agentworkforce/taskboard/internal/taskboard"
)

const usageText = `usage: taskboard [-root DIR] COMMAND [ARGS]

Commands:
  board                      print the board with its tasks
  create COLUMN TITLE        create a task in COLUMN
  move ID COLUMN             move a task to another column
  delete ID                  delete a task permanently
  archive ID                 move a task into the archive
  restore ENTRY              restore an archive entry
  archive-list               list archive entries
  focus [ID]                 show, set (ID) or clear ("-") the focused task
  log ID [TEXT]              print a task's narrative, or append TEXT
  events [N]                 print the last N journal events
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "taskboard: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("taskboard", flag.ContinueOnError)
	flags.SetOutput(out)
	root := flags.String("root", "", "store root directory (default $TASKBOARD_ROOT or .taskboard)")
	jsonOut := flags.Bool("json", false, "print machine-readable JSON")
	flags.Usage = func() { fmt.Fprint(out, usageText) }
	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return fmt.Errorf("missing command")
	}

	storeRoot := strings.TrimSpace(*root)
	if storeRoot == "" {
		storeRoot = strings.TrimSpace(os.Getenv("TASKBOARD_ROOT"))
	}
	if storeRoot == "" {
		storeRoot = ".taskboard"
	}

	store, err := taskboard.NewStoreWithOptions(taskboard.StoreOptions{
		Root:           storeRoot,
		JournalDSN:     os.Getenv("TASKBOARD_JOURNAL_DSN"),
		DisableWatcher: true,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	for _, warning := range store.MigrationWarnings() {
		fmt.Fprintf(os.Stderr, "taskboard: migration: %s\n", warning.String())
	}

	command, commandArgs := rest[0], rest[1:]
	switch command {
	case "board":
		return printBoard(store, out, *jsonOut)
	case "create":
		if len(commandArgs) < 2 {
			return fmt.Errorf("create needs COLUMN and TITLE")
		}
		id, err := store.CreateTask(commandArgs[0], taskboard.TaskDraft{
			Title: strings.Join(commandArgs[1:], " "),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, id)
		return nil
	case "move":
		if len(commandArgs) != 2 {
			return fmt.Errorf("move needs ID and COLUMN")
		}
		return store.MoveTask(commandArgs[0], commandArgs[1])
	case "delete":
		if len(commandArgs) != 1 {
			return fmt.Errorf("delete needs ID")
		}
		return store.DeleteTask(commandArgs[0])
	case "archive":
		if len(commandArgs) != 1 {
			return fmt.Errorf("archive needs ID")
		}
		path, err := store.ArchiveTask(commandArgs[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	case "restore":
		if len(commandArgs) != 1 {
			return fmt.Errorf("restore needs ENTRY")
		}
		id, err := store.RestoreTask(commandArgs[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, id)
		return nil
	case "archive-list":
		entries, err := store.ListArchive()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Fprintln(out, entry)
		}
		return nil
	case "focus":
		return runFocus(store, out, commandArgs)
	case "log":
		return runLog(store, out, commandArgs)
	case "events":
		return runEvents(store, out, commandArgs)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printBoard(store *taskboard.Store, out io.Writer, asJSON bool) error {
	snapshot, err := store.ReadBoard()
	if err != nil {
		return err
	}
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snapshot)
	}
	focused, _ := store.GetFocusedTask()
	for _, col := range snapshot.Board.Columns {
		fmt.Fprintf(out, "%s (%s)\n", col.Name, col.ID)
		for _, id := range col.TaskIDs {
			task, ok := snapshot.Tasks[id]
			if !ok {
				fmt.Fprintf(out, "  %s  <unreadable>\n", id)
				continue
			}
			marker := " "
			if id == focused {
				marker = "*"
			}
			fmt.Fprintf(out, " %s%s  %s\n", marker, id, task.Title)
		}
	}
	if len(snapshot.Excluded) > 0 {
		sorted := append([]string(nil), snapshot.Excluded...)
		sort.Strings(sorted)
		fmt.Fprintf(out, "excluded (corrupt): %s\n", strings.Join(sorted, ", "))
	}
	return nil
}

func runFocus(store *taskboard.Store, out io.Writer, args []string) error {
	switch {
	case len(args) == 0:
		id, err := store.GetFocusedTask()
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Fprintln(out, "(none)")
		} else {
			fmt.Fprintln(out, id)
		}
		return nil
	case args[0] == "-":
		return store.SetFocusedTask("")
	default:
		return store.SetFocusedTask(args[0])
	}
}

func runLog(store *taskboard.Store, out io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("log needs ID")
	}
	if len(args) == 1 {
		narrative, err := store.ReadNarrative(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(out, narrative)
		return nil
	}
	return store.AppendNarrative(args[0], strings.Join(args[1:], " "))
}

func runEvents(store *taskboard.Store, out io.Writer, args []string) error {
	journal := store.Journal()
	if journal == nil {
		return fmt.Errorf("no event journal configured (set TASKBOARD_JOURNAL_DSN)")
	}
	limit := 20
	if len(args) > 0 {
		if _, err := fmt.Sscanf(args[0], "%d", &limit); err != nil || limit < 1 {
			return fmt.Errorf("events needs a positive count")
		}
	}
	events, err := journal.Tail(limit)
	if err != nil {
		return err
	}
	for _, event := range events {
		line := event.Type
		if event.TaskID != "" {
			line += " " + event.TaskID
		}
		if event.Column != "" {
			line += " -> " + event.Column
		}
		fmt.Fprintf(out, "%s  %s\n", event.Timestamp, line)
	}
	return nil
}
