// Package repository persists the event collection. The whole collection is
// the unit of persistence: it is read in full, mutated in memory and written
// back in full. Update makes that cycle atomic so concurrent registrations
// cannot overrun an event's capacity or lose each other's writes.
package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/eventhub/internal/config"
	"github.com/Shivanand-hulikatti/eventhub/internal/database"
	"github.com/Shivanand-hulikatti/eventhub/internal/model"
)

// ErrNotFound is returned when a requested event does not exist.
var ErrNotFound = errors.New("event not found")

// ErrEventFull is returned when an event has no remaining capacity.
var ErrEventFull = errors.New("event is full")

// ErrStoreRead wraps failures to read or decode the persisted collection.
var ErrStoreRead = errors.New("store read failed")

// ErrStoreWrite wraps failures to encode or persist the collection.
var ErrStoreWrite = errors.New("store write failed")

// UpdateFunc receives the current collection and returns the collection to
// persist. Returning an error aborts the update without writing anything.
type UpdateFunc func(events []model.Event) ([]model.Event, error)

// Store loads and saves the full event collection.
type Store interface {
	// Ensure initializes the storage location with an empty collection if absent.
	Ensure(ctx context.Context) error
	// LoadAll returns every event in insertion order. Never nil.
	LoadAll(ctx context.Context) ([]model.Event, error)
	// SaveAll replaces the persisted collection with events.
	SaveAll(ctx context.Context, events []model.Event) error
	// Update runs a serialized load-mutate-save cycle.
	Update(ctx context.Context, fn UpdateFunc) error
	Close() error
}

// Open builds the Store selected by cfg.StoreDriver and ensures it is initialized.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.StoreDriver {
	case config.DriverFile:
		store = NewFileStore(cfg.EventsFile())
	case config.DriverSQLite:
		db, openErr := database.OpenSQLite(cfg.SQLitePath)
		if openErr != nil {
			return nil, openErr
		}
		store = NewSQLiteStore(db)
	case config.DriverPostgres:
		pool, poolErr := database.NewPool(ctx, cfg.Postgres, logger)
		if poolErr != nil {
			return nil, poolErr
		}
		store = NewPostgresStore(pool)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if err = store.Ensure(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// FindByID returns a pointer into events for the event with the given ID, by
// linear scan, or ErrNotFound.
func FindByID(events []model.Event, id string) (*model.Event, error) {
	for i := range events {
		if events[i].EventID == id {
			return &events[i], nil
		}
	}
	return nil, ErrNotFound
}

// normalize replaces nil slices so the collection always encodes as JSON arrays.
func normalize(events []model.Event) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	for i := range events {
		if events[i].Attendees == nil {
			events[i].Attendees = []model.Attendee{}
		}
	}
	return events
}

func readErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreRead, op, err)
}

func writeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreWrite, op, err)
}
