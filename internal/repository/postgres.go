package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/eventhub/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS events (
    position INTEGER NOT NULL,
    event_id TEXT PRIMARY KEY,
    doc JSONB NOT NULL
);
`

// collectionLockKey identifies the advisory lock guarding the events collection.
const collectionLockKey int64 = 0x45564e54 // "EVNT"

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore keeps each event as a JSONB document row, ordered by position.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ensure creates the events table if it does not exist.
func (s *PostgresStore) Ensure(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return writeErr("apply postgres schema", err)
	}
	return nil
}

// LoadAll returns all events ordered by position.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]model.Event, error) {
	return pgLoad(ctx, s.db)
}

// SaveAll replaces every row inside one transaction.
func (s *PostgresStore) SaveAll(ctx context.Context, events []model.Event) error {
	return s.withLock(ctx, func(tx pgx.Tx) error {
		return pgReplace(ctx, tx, events)
	})
}

// Update performs the read-modify-write cycle under a transaction-scoped
// advisory lock.
//
// Without the lock two requests could both read the collection, both see a
// free seat on the same event, and both write back their own copy: the event
// ends up over capacity or one registration is silently lost. The lock is held
// from before the read until COMMIT, so every cycle observes the previous
// cycle's writes, across processes as well as goroutines.
func (s *PostgresStore) Update(ctx context.Context, fn UpdateFunc) error {
	return s.withLock(ctx, func(tx pgx.Tx) error {
		events, err := pgLoad(ctx, tx)
		if err != nil {
			return err
		}

		events, err = fn(events)
		if err != nil {
			return err
		}

		return pgReplace(ctx, tx, events)
	})
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) withLock(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return writeErr("begin transaction", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, collectionLockKey); err != nil {
		return writeErr("acquire collection lock", err)
	}

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return writeErr("commit transaction", err)
	}
	return nil
}

func pgLoad(ctx context.Context, q pgQuerier) ([]model.Event, error) {
	rows, err := q.Query(ctx, `SELECT doc FROM events ORDER BY position ASC`)
	if err != nil {
		return nil, readErr("query events", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, readErr("scan event", err)
		}
		var e model.Event
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, readErr("decode event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("iterate events", err)
	}
	return normalize(events), nil
}

func pgReplace(ctx context.Context, q pgQuerier, events []model.Event) error {
	events = normalize(events)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM events`)
	for i, e := range events {
		doc, err := json.Marshal(e)
		if err != nil {
			return writeErr("encode event", err)
		}
		batch.Queue(
			`INSERT INTO events (position, event_id, doc) VALUES ($1, $2, $3::jsonb)`,
			i, e.EventID, string(doc),
		)
	}

	br := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return writeErr(fmt.Sprintf("batch statement %d", i), err)
		}
	}
	if err := br.Close(); err != nil {
		return writeErr("close batch", err)
	}
	return nil
}
