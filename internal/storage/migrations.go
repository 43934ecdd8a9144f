package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the schema version this build reads and writes.
const ExpectedSchemaVersion = 2

// Migration is one forward-only schema step.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Document collections",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS documents (
				collection TEXT PRIMARY KEY,
				data BLOB NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`)
			return err
		},
	},
	{
		Version:     2,
		Description: "Backups of unreadable documents",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS document_backups (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					collection TEXT NOT NULL,
					data BLOB NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_document_backups_collection ON document_backups(collection)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// Migrate brings the schema up to ExpectedSchemaVersion. Each migration
// runs in its own transaction together with the user_version bump.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		slog.Info("Applied migration",
			"version", m.Version,
			"description", m.Description)
	}

	final, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, final)
	}
	return nil
}

func (s *SQLiteStore) apply(ctx context.Context, m Migration) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = m.Up(tx); err != nil {
		return fmt.Errorf("migration %d failed: %w", m.Version, err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// SchemaVersion reports the database's current user_version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
