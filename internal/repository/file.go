package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Shivanand-hulikatti/eventhub/internal/model"
)

// FileStore keeps the collection as a pretty-printed JSON array in one file.
type FileStore struct {
	path string

	// mu serializes Update cycles; one writer per process.
	mu sync.Mutex
}

// NewFileStore constructs a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Ensure creates the data directory and an empty collection if the file is missing.
// It is idempotent.
func (s *FileStore) Ensure(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return writeErr("create data dir", err)
	}

	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if err := os.WriteFile(s.path, []byte("[]"), 0o644); err != nil {
			return writeErr("init events file", err)
		}
		return nil
	default:
		return readErr("stat events file", err)
	}
}

// LoadAll reads and decodes the whole file. An empty payload is an empty collection.
func (s *FileStore) LoadAll(ctx context.Context) ([]model.Event, error) {
	if err := s.Ensure(ctx); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, readErr("read events file", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []model.Event{}, nil
	}

	var events []model.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, readErr("decode events file", err)
	}
	return normalize(events), nil
}

// SaveAll encodes events and atomically replaces the file contents.
func (s *FileStore) SaveAll(ctx context.Context, events []model.Event) error {
	raw, err := json.MarshalIndent(normalize(events), "", "  ")
	if err != nil {
		return writeErr("encode events", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeErr("create data dir", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return writeErr("create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return writeErr("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return writeErr("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return writeErr("close temp file", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return writeErr("chmod temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return writeErr("replace events file", err)
	}
	return nil
}

// Update holds the store mutex across load, fn and save.
func (s *FileStore) Update(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	events, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}

	events, err = fn(events)
	if err != nil {
		return err
	}

	return s.SaveAll(ctx, events)
}

// Close is a no-op; the file is opened per operation.
func (s *FileStore) Close() error {
	return nil
}
