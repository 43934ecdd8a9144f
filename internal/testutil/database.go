// Package testutil provides test helpers for the hours-must-flow project:
// isolated document stores and fluent builders for meetings and tasks.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/Veraticus/the-hours-must-flow/internal/storage"
	"github.com/spf13/afero"
)

// TestStore is a document store with associated test utilities.
type TestStore struct {
	Store service.DocumentStore
	Fs    afero.Fs
	t     *testing.T
}

// SetupTestDB creates a migrated in-memory SQLite document store.
// It automatically handles cleanup.
func SetupTestDB(t *testing.T) *TestStore {
	t.Helper()

	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestStore{Store: store, t: t}
}

// SetupFileStore creates a file store on an in-memory filesystem.
// Fs is exposed so tests can plant or inspect raw files.
func SetupFileStore(t *testing.T) *TestStore {
	t.Helper()

	fs := afero.NewMemMapFs()
	store, err := storage.NewFileStore(fs, "/hours")
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	return &TestStore{Store: store, Fs: fs, t: t}
}

// WriteRaw stores raw bytes for a collection, bypassing encoding.
func (s *TestStore) WriteRaw(collection string, data []byte) {
	s.t.Helper()
	if err := s.Store.Save(context.Background(), collection, data); err != nil {
		s.t.Fatalf("failed to write %s: %v", collection, err)
	}
}

// ReadRaw returns the raw bytes of a collection.
func (s *TestStore) ReadRaw(collection string) []byte {
	s.t.Helper()
	data, err := s.Store.Load(context.Background(), collection)
	if err != nil {
		s.t.Fatalf("failed to read %s: %v", collection, err)
	}
	return data
}
