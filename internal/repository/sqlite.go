package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/Shivanand-hulikatti/eventhub/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
    position INTEGER NOT NULL,
    event_id TEXT PRIMARY KEY,
    doc TEXT NOT NULL
);
`

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLiteStore keeps each event as a JSON document row, ordered by position.
// The underlying *sql.DB must be limited to one connection (see
// database.OpenSQLite), which serializes transactions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore constructs a SQLiteStore.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Ensure creates the events table if it does not exist.
func (s *SQLiteStore) Ensure(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return writeErr("apply sqlite schema", err)
	}
	return nil
}

// LoadAll returns all events ordered by position.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]model.Event, error) {
	return sqliteLoad(ctx, s.db)
}

// SaveAll replaces every row inside one transaction.
func (s *SQLiteStore) SaveAll(ctx context.Context, events []model.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := sqliteReplace(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return writeErr("commit transaction", err)
	}
	return nil
}

// Update loads, mutates and saves inside one transaction.
func (s *SQLiteStore) Update(ctx context.Context, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeErr("begin transaction", err)
	}
	defer tx.Rollback()

	events, err := sqliteLoad(ctx, tx)
	if err != nil {
		return err
	}

	events, err = fn(events)
	if err != nil {
		return err
	}

	if err := sqliteReplace(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return writeErr("commit transaction", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteLoad(ctx context.Context, q sqlQuerier) ([]model.Event, error) {
	rows, err := q.QueryContext(ctx, `SELECT doc FROM events ORDER BY position ASC`)
	if err != nil {
		return nil, readErr("query events", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, readErr("scan event", err)
		}
		var e model.Event
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, readErr("decode event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("iterate events", err)
	}
	return normalize(events), nil
}

func sqliteReplace(ctx context.Context, q sqlQuerier, events []model.Event) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return writeErr("clear events", err)
	}
	for i, e := range normalize(events) {
		doc, err := json.Marshal(e)
		if err != nil {
			return writeErr("encode event", err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO events (position, event_id, doc) VALUES (?, ?, ?)`,
			i, e.EventID, string(doc),
		); err != nil {
			return writeErr("insert event", err)
		}
	}
	return nil
}
