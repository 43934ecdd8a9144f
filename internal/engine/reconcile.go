package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/identity"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
)

// ReconcileReport lists ledger records restored from the time tracker.
type ReconcileReport struct {
	Repaired []model.PostedEntry
	Checked  int
}

// Reconcile looks for meetings that already have an entry in the time
// tracker but no ledger record, and writes the missing records. An entry
// matches a meeting when the date, description and hours agree; each entry
// repairs at most one meeting.
func (r *Runner) Reconcile(ctx context.Context, userID string, meetings []model.Meeting, dateRange service.DateRange) (ReconcileReport, error) {
	var report ReconcileReport
	if r.deps.Entries == nil || r.deps.Ledger == nil {
		return report, fmt.Errorf("%w: reconcile needs an entry lister and a ledger", common.ErrMissingConfig)
	}
	if r.cfg.PersonID == "" {
		return report, fmt.Errorf("%w: reconcile needs a person id", common.ErrMissingConfig)
	}

	index, err := r.deps.Ledger.Index(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("failed to read ledger: %w", err)
	}

	entries, err := r.deps.Entries.ListTimeEntries(ctx, r.cfg.PersonID, dateRange)
	if err != nil {
		return report, fmt.Errorf("failed to list time entries: %w", err)
	}
	used := make([]bool, len(entries))

	for _, m := range meetings {
		fingerprint := identity.Fingerprint(userID, m.Subject, m.Start)
		if _, ok := index[fingerprint]; ok {
			continue
		}
		seconds := m.DurationFor(userID)
		if seconds <= 0 {
			continue
		}
		report.Checked++

		date := m.Start.In(r.cfg.Location).Format(model.DateLayout)
		hours := model.HoursFromSeconds(seconds)
		for i, e := range entries {
			if used[i] || !entryMatches(e, date, m.Subject, hours) {
				continue
			}
			used[i] = true

			entry := e
			record := model.PostedEntry{
				PostedAt:        r.now().UTC(),
				StartTime:       m.Start.UTC(),
				Fingerprint:     fingerprint,
				MeetingID:       m.ID,
				UserID:          userID,
				Subject:         m.Subject,
				TimeEntry:       &entry,
				DurationSeconds: seconds,
			}
			if err := r.deps.Poster.Record(ctx, record); err != nil {
				return report, fmt.Errorf("failed to repair ledger for meeting %s: %w", m.ID, err)
			}
			r.logger.Info("Recovered ledger record from time tracker",
				"meeting_id", m.ID,
				"user_id", userID,
				"entry_id", e.ID)
			report.Repaired = append(report.Repaired, record)
			break
		}
	}
	return report, nil
}

func entryMatches(e model.TimeEntry, date, subject string, hours float64) bool {
	return e.Date == date &&
		strings.EqualFold(strings.TrimSpace(e.Description), strings.TrimSpace(subject)) &&
		math.Abs(e.Hours-hours) < 0.005
}
