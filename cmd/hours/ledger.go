package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/cli"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/spf13/cobra"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the record of posted meetings",
	}
	cmd.AddCommand(ledgerListCmd())
	cmd.AddCommand(ledgerMigrateCmd())
	return cmd
}

func ledgerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posted meetings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			days, _ := cmd.Flags().GetInt("days")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.ledger.ListForUser(cmd.Context(), a.userID())
			if err != nil {
				return err
			}
			if days > 0 {
				cutoff := time.Now().AddDate(0, 0, -days)
				kept := entries[:0]
				for _, e := range entries {
					if e.StartTime.After(cutoff) {
						kept = append(kept, e)
					}
				}
				entries = kept
			}
			if len(entries) == 0 {
				writeLine(cmd.OutOrStdout(), cli.FormatInfo("No posted meetings"))
				return nil
			}
			writeLine(cmd.OutOrStdout(), renderLedgerTable(entries, a.cfg.Timezone()))
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "only show meetings from the last N days (0 = all)")
	return cmd
}

func renderLedgerTable(entries []model.PostedEntry, loc *time.Location) string {
	sorted := append([]model.PostedEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})

	var total float64
	rows := make([][]string, 0, len(sorted))
	for _, e := range sorted {
		hours, task, entryID := "", "", ""
		if e.TimeEntry != nil {
			hours = fmt.Sprintf("%.2f", e.TimeEntry.Hours)
			task = e.TimeEntry.TaskID
			entryID = e.TimeEntry.ID
			total += e.TimeEntry.Hours
		}
		start := ""
		if !e.StartTime.IsZero() {
			start = e.StartTime.In(loc).Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{start, truncate(subjectOrID(e.Subject, e.Fingerprint), 40), hours, task, entryID})
	}
	return cli.RenderTable([]string{"Start", "Subject", "Hours", "Task", "Entry"}, rows) +
		"\n\n" + cli.BoldStyle.Render(fmt.Sprintf("%d meetings, %.2f hours", len(sorted), total))
}

func ledgerMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite legacy ledger fingerprints to the canonical form",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return migrateLedger(cmd, a)
		},
	}
}

func migrateLedger(cmd *cobra.Command, a *app) error {
	report, err := a.ledger.MigrateLegacy(cmd.Context())
	if err != nil {
		return fmt.Errorf("ledger migration failed: %w", err)
	}
	writeLine(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
		"Ledger migrated: %d rewritten, %d merged duplicates dropped, %d unrecognized kept",
		report.Rewritten, report.Dropped, report.Unrecognized)))
	return nil
}
