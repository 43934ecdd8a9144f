package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FileStore keeps each collection in its own JSON file under a directory.
type FileStore struct {
	fs  afero.Fs
	now func() time.Time
	dir string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if err := validateString(dir, "dir"); err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{fs: fs, dir: dir, now: time.Now}, nil
}

func (s *FileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// Load reads a collection document. A missing file yields (nil, nil).
func (s *FileStore) Load(ctx context.Context, collection string) ([]byte, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, s.path(collection))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}

	return bytes.TrimPrefix(data, utf8BOM), nil
}

// Save replaces a collection document atomically via a temp file and rename.
func (s *FileStore) Save(ctx context.Context, collection string, data []byte) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCollection(collection); err != nil {
		return err
	}

	target := s.path(collection)
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", collection, err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", collection, err)
	}
	return nil
}

// Backup writes data to corrupted-<collection>-<unix millis>.json and returns the path.
func (s *FileStore) Backup(ctx context.Context, collection string, data []byte) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateCollection(collection); err != nil {
		return "", err
	}

	name := fmt.Sprintf("corrupted-%s-%d.json", collection, s.now().UnixMilli())
	path := filepath.Join(s.dir, name)
	if err := afero.WriteFile(s.fs, path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup for %s: %w", collection, err)
	}
	return path, nil
}

// Close is a no-op for file storage.
func (s *FileStore) Close() error {
	return nil
}
