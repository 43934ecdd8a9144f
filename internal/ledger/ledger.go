// Package ledger records meetings that have been posted as time entries.
// It is the source of truth for "already handled" across runs.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/identity"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/Veraticus/the-hours-must-flow/internal/storage"
)

// document is the persisted shape of the meetings collection.
type document struct {
	Meetings []model.PostedEntry `json:"meetings"`
}

// Init encodes an empty ledger as an empty list.
func (d *document) Init() {
	if d.Meetings == nil {
		d.Meetings = []model.PostedEntry{}
	}
}

// rawDocument defers record decoding so one bad record cannot discard the rest.
type rawDocument struct {
	Meetings []json.RawMessage `json:"meetings"`
}

func (d *rawDocument) Init() {
	if d.Meetings == nil {
		d.Meetings = []json.RawMessage{}
	}
}

// Ledger is an append-only set of posted entries keyed by (user, fingerprint).
type Ledger struct {
	store  service.DocumentStore
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a ledger over the given document store.
func New(store service.DocumentStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

func sameUser(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// load reads all entries, adopting keys from older records and dropping
// records that cannot be decoded or fail validation.
func (l *Ledger) load(ctx context.Context) ([]model.PostedEntry, error) {
	doc, err := storage.LoadCollection[rawDocument](ctx, l.store, storage.CollectionMeetings, l.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	entries := make([]model.PostedEntry, 0, len(doc.Meetings))
	for i, raw := range doc.Meetings {
		var e model.PostedEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			l.logger.Warn("Dropping undecodable ledger record",
				"index", i,
				"error", err)
			continue
		}
		if e.Fingerprint == "" {
			e.Fingerprint = e.MeetingID
		}
		if err := storage.ValidateRecord(e); err != nil {
			l.logger.Warn("Dropping malformed ledger record",
				"meeting_id", e.MeetingID,
				"user_id", e.UserID,
				"error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *Ledger) save(ctx context.Context, entries []model.PostedEntry) error {
	if err := storage.SaveCollection(ctx, l.store, storage.CollectionMeetings, document{Meetings: entries}); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// Add records a posted entry. Adding a (user, fingerprint) pair that already
// exists is a no-op and reports false.
func (l *Ledger) Add(ctx context.Context, entry model.PostedEntry) (bool, error) {
	if err := storage.ValidateRecord(entry); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		if sameUser(e.UserID, entry.UserID) && e.Fingerprint == entry.Fingerprint {
			l.logger.Debug("Ledger entry already exists",
				"fingerprint", entry.Fingerprint,
				"user_id", entry.UserID)
			return false, nil
		}
	}

	entries = append(entries, entry)
	if err := l.save(ctx, entries); err != nil {
		return false, err
	}
	return true, nil
}

// IsPosted reports whether a ledger entry exists for the user and fingerprint.
func (l *Ledger) IsPosted(ctx context.Context, userID, fingerprint string) (bool, error) {
	_, err := l.Get(ctx, userID, fingerprint)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Get returns the entry for the user and fingerprint, or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, userID, fingerprint string) (*model.PostedEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if sameUser(entries[i].UserID, userID) && entries[i].Fingerprint == fingerprint {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("ledger entry %s: %w", fingerprint, common.ErrNotFound)
}

// ListForUser returns the user's entries, most recently posted first.
func (l *Ledger) ListForUser(ctx context.Context, userID string) ([]model.PostedEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.PostedEntry
	for _, e := range entries {
		if sameUser(e.UserID, userID) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PostedAt.After(out[j].PostedAt)
	})
	return out, nil
}

// Index returns the user's entries keyed by fingerprint for repeated lookups.
func (l *Ledger) Index(ctx context.Context, userID string) (map[string]model.PostedEntry, error) {
	entries, err := l.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]model.PostedEntry, len(entries))
	for _, e := range entries {
		if _, exists := idx[e.Fingerprint]; !exists {
			idx[e.Fingerprint] = e
		}
	}
	return idx, nil
}

// MigrateLegacy rewrites entries whose fingerprint is not canonical.
// Entries carrying subject and start time are re-keyed from those fields;
// others are decoded from the legacy doubled-subject format. Entries that
// collapse onto an existing key are dropped, keeping the earliest posting.
func (l *Ledger) MigrateLegacy(ctx context.Context) (MigrationReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		return MigrationReport{}, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PostedAt.Before(entries[j].PostedAt)
	})

	var report MigrationReport
	seen := make(map[string]bool, len(entries))
	kept := make([]model.PostedEntry, 0, len(entries))

	for _, e := range entries {
		canonical, ok := canonicalFingerprint(e)
		switch {
		case !ok:
			report.Unrecognized++
		case canonical != e.Fingerprint:
			l.logger.Info("Rewriting legacy fingerprint",
				"from", e.Fingerprint,
				"to", canonical)
			backfill(&e)
			if e.MeetingID == "" {
				e.MeetingID = e.Fingerprint
			}
			e.Fingerprint = canonical
			report.Rewritten++
		case backfill(&e):
			report.Rewritten++
		}

		key := strings.ToLower(e.UserID) + "\x00" + e.Fingerprint
		if seen[key] {
			report.Dropped++
			continue
		}
		seen[key] = true
		kept = append(kept, e)
	}

	if report.Rewritten == 0 && report.Dropped == 0 {
		return report, nil
	}
	if err := l.save(ctx, kept); err != nil {
		return report, err
	}
	return report, nil
}

// MigrationReport summarizes a MigrateLegacy pass.
type MigrationReport struct {
	Rewritten    int
	Dropped      int
	Unrecognized int
}

// backfill fills the subject, start time and attended duration that older
// records only carried inside their key and time entry. It reports whether
// anything changed.
func backfill(e *model.PostedEntry) bool {
	changed := false
	if e.Subject == "" || e.StartTime.IsZero() {
		if legacy, ok := identity.ParseLegacy(e.UserID, e.Fingerprint); ok {
			if e.Subject == "" {
				e.Subject = legacy.Subject
				changed = true
			}
			if e.StartTime.IsZero() {
				e.StartTime = legacy.Start
				changed = true
			}
		}
	}
	if e.DurationSeconds == 0 && e.TimeEntry != nil && e.TimeEntry.Hours > 0 {
		e.DurationSeconds = int(math.Round(e.TimeEntry.Hours * 3600))
		changed = true
	}
	return changed
}

func canonicalFingerprint(e model.PostedEntry) (string, bool) {
	if e.Subject != "" && !e.StartTime.IsZero() {
		return identity.Fingerprint(e.UserID, e.Subject, e.StartTime), true
	}
	return identity.Canonicalize(e.UserID, e.Fingerprint)
}
