package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-hours-must-flow/internal/cli"
	"github.com/Veraticus/the-hours-must-flow/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Prepare storage and upgrade stored data",
		Long: `Create or update the storage schema, then rewrite legacy ledger
fingerprints so duplicate detection recognizes older postings.

Safe to run repeatedly.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("Running storage migrations",
		"backend", a.cfg.Storage.Backend,
		"path", a.cfg.Storage.Path)

	if db, ok := a.store.(*storage.SQLiteStore); ok {
		version, err := db.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}
		writeLine(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Database schema at version %d", version)))
	}

	return migrateLedger(cmd, a)
}
