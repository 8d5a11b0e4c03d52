package taskboard

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresJournalTableName       = "taskboard_journal"
	postgresJournalOperationWindow = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresJournal writes board events to a Postgres table, one row per
// event. The connection and schema are established lazily on first use.
type PostgresJournal struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresJournal(dsn string) (*PostgresJournal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresJournal{
		dsn:       dsn,
		tableName: postgresJournalTableName,
		openDB:    sql.Open,
	}, nil
}

func (j *PostgresJournal) Record(event Event) error {
	if err := j.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresJournalOperationWindow)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (event_type, task_id, column_id, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`, postgresQuoteIdentifier(j.tableName))
	_, err := j.db.ExecContext(ctx, query, event.Type, event.TaskID, event.Column, event.Detail, event.Timestamp)
	return err
}

func (j *PostgresJournal) Tail(limit int) ([]Event, error) {
	if err := j.ensureReady(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresJournalOperationWindow)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT event_type, task_id, column_id, detail, recorded_at
		FROM %s ORDER BY id DESC LIMIT $1`, postgresQuoteIdentifier(j.tableName))
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.Type, &event.TaskID, &event.Column, &event.Detail, &event.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Rows came newest-first; callers expect append order.
	for i, k := 0, len(events)-1; i < k; i, k = i+1, k-1 {
		events[i], events[k] = events[k], events[i]
	}
	return events, nil
}

func (j *PostgresJournal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *PostgresJournal) ensureReady() error {
	j.initOnce.Do(func() {
		db, err := j.openDB("postgres", j.dsn)
		if err != nil {
			j.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresJournalOperationWindow)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				event_type TEXT NOT NULL,
				task_id TEXT NOT NULL DEFAULT '',
				column_id TEXT NOT NULL DEFAULT '',
				detail TEXT NOT NULL DEFAULT '',
				recorded_at TEXT NOT NULL
			)`, postgresQuoteIdentifier(j.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			j.initErr = err
			return
		}
		j.db = db
	})
	return j.initErr
}

func postgresQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
