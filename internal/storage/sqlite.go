package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore keeps collection documents as rows in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections; one connection also
	// keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Load returns the stored document for collection, or (nil, nil) if none.
func (s *SQLiteStore) Load(ctx context.Context, collection string) ([]byte, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ?`, collection).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}
	return data, nil
}

// Save upserts the document for collection.
func (s *SQLiteStore) Save(ctx context.Context, collection string, data []byte) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCollection(collection); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(collection) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`,
		collection, data)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", collection, err)
	}
	return nil
}

// Backup stores unreadable data in document_backups and returns a locator for it.
func (s *SQLiteStore) Backup(ctx context.Context, collection string, data []byte) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateCollection(collection); err != nil {
		return "", err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO document_backups (collection, data) VALUES (?, ?)`, collection, data)
	if err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", collection, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read backup id: %w", err)
	}
	return fmt.Sprintf("%s#document_backups/%d", s.dbPath, id), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
