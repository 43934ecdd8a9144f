package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/config"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/spf13/afero"
)

// Collection names.
const (
	CollectionMeetings  = "meetings"
	CollectionReviews   = "reviews"
	CollectionDecisions = "decisions"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open creates a document store for the given backend. For the file backend
// path is a directory; for sqlite it is the database file.
func Open(ctx context.Context, backend, path string) (service.DocumentStore, error) {
	path = config.ExpandPath(path)

	switch strings.ToLower(backend) {
	case BackendFile, "":
		return NewFileStore(afero.NewOsFs(), path)
	case BackendSQLite:
		if filepath.Ext(path) == "" && path != ":memory:" {
			path = filepath.Join(path, "hours.db")
		}
		store, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", common.ErrInvalidConfig, backend)
	}
}

// Initializer is implemented by documents whose empty form is not the zero
// value, typically to encode absent lists as [] rather than null.
type Initializer interface {
	Init()
}

func initialize[T any](doc *T) {
	if d, ok := any(doc).(Initializer); ok {
		d.Init()
	}
}

// LoadCollection reads and decodes a collection document into T.
// A missing document yields the zero value. A document that cannot be
// decoded is backed up, the collection is reset to the zero value, and no
// error is returned; only store failures are reported.
func LoadCollection[T any](ctx context.Context, store service.DocumentStore, collection string, logger *slog.Logger) (T, error) {
	var doc T

	data, err := store.Load(ctx, collection)
	if err != nil {
		return doc, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		backup, backupErr := store.Backup(ctx, collection, data)
		if backupErr != nil {
			return doc, fmt.Errorf("%w: %s unreadable and backup failed: %w", common.ErrDocumentCorrupted, collection, backupErr)
		}
		logger.Warn("Collection was unreadable, reset to empty",
			"collection", collection,
			"backup", backup,
			"error", err)

		var empty T
		initialize(&empty)
		if saveErr := SaveCollection(ctx, store, collection, empty); saveErr != nil {
			return empty, saveErr
		}
		return empty, nil
	}

	return doc, nil
}

// SaveCollection encodes doc as indented JSON and replaces the collection.
func SaveCollection[T any](ctx context.Context, store service.DocumentStore, collection string, doc T) error {
	initialize(&doc)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", collection, err)
	}
	return store.Save(ctx, collection, data)
}
