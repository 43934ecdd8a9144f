// Package poster turns a matched (meeting, task) pair into a time entry and
// records it in the ledger.
package poster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/identity"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
)

// Recorder is the ledger as the poster sees it.
type Recorder interface {
	Add(ctx context.Context, entry model.PostedEntry) (bool, error)
	IsPosted(ctx context.Context, userID, fingerprint string) (bool, error)
}

// Config carries the fields every time entry shares.
type Config struct {
	Location   *time.Location
	WorktypeID string
	PersonID   string
	Billable   bool
}

// Request is one meeting to post against one task.
type Request struct {
	Meeting model.Meeting
	Task    model.Task
	UserID  string
}

// Poster writes time entries.
type Poster struct {
	sink   service.TimeEntrySink
	ledger Recorder
	logger *slog.Logger
	now    func() time.Time
	cfg    Config
}

// New creates a poster.
func New(sink service.TimeEntrySink, ledger Recorder, cfg Config, logger *slog.Logger) *Poster {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{
		sink:   sink,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
		cfg:    cfg,
	}
}

// BuildEntry checks preconditions and assembles the time entry for req.
func (p *Poster) BuildEntry(req Request) (model.TimeEntry, error) {
	fail := func(err error) (model.TimeEntry, error) {
		return model.TimeEntry{}, &PreconditionError{Err: err, MeetingID: req.Meeting.ID, TaskID: req.Task.ID}
	}

	if !req.Task.Resolvable() {
		return fail(ErrUnresolvedTask)
	}
	seconds := req.Meeting.DurationFor(req.UserID)
	if seconds <= 0 {
		return fail(ErrZeroDuration)
	}
	hours := model.HoursFromSeconds(seconds)
	if hours <= 0 {
		return fail(fmt.Errorf("%w: %d seconds rounds to %.2f hours", ErrNonPositiveHours, seconds, hours))
	}

	description := strings.TrimSpace(req.Meeting.Subject)
	return model.TimeEntry{
		ProjectID:   req.Task.ProjectID,
		ModuleID:    req.Task.ModuleID,
		TaskID:      req.Task.ID,
		WorktypeID:  p.cfg.WorktypeID,
		PersonID:    p.cfg.PersonID,
		Date:        req.Meeting.Start.In(p.cfg.Location).Format(model.DateLayout),
		Description: description,
		Hours:       hours,
		Billable:    p.cfg.Billable,
	}, nil
}

// Post writes the time entry and then the ledger record. Precondition
// failures return *PreconditionError; a ledger failure after the external
// write returns *UnrecordedError.
func (p *Poster) Post(ctx context.Context, req Request) (*model.PostedEntry, error) {
	entry, err := p.BuildEntry(req)
	if err != nil {
		return nil, err
	}

	fingerprint := identity.Fingerprint(req.UserID, req.Meeting.Subject, req.Meeting.Start)
	posted, err := p.ledger.IsPosted(ctx, req.UserID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger: %w", err)
	}
	if posted {
		return nil, &PreconditionError{Err: ErrAlreadyPosted, MeetingID: req.Meeting.ID, TaskID: req.Task.ID}
	}

	result, err := p.sink.PostTimeEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to post time entry for meeting %s: %w", req.Meeting.ID, err)
	}
	entry.ID = result.ID

	record := model.PostedEntry{
		PostedAt:        p.now().UTC(),
		StartTime:       req.Meeting.Start.UTC(),
		Fingerprint:     fingerprint,
		MeetingID:       req.Meeting.ID,
		UserID:          req.UserID,
		Subject:         req.Meeting.Subject,
		RawResponse:     result.Raw,
		TimeEntry:       &entry,
		DurationSeconds: req.Meeting.DurationFor(req.UserID),
	}

	if err := p.Record(ctx, record); err != nil {
		return &record, err
	}

	p.logger.Info("Posted time entry",
		"meeting_id", req.Meeting.ID,
		"task_id", req.Task.ID,
		"hours", entry.Hours,
		"entry_id", entry.ID)
	return &record, nil
}

// Record writes a ledger entry for a time entry that already exists
// externally. It is how an *UnrecordedError is retried.
func (p *Poster) Record(ctx context.Context, record model.PostedEntry) error {
	if _, err := p.ledger.Add(ctx, record); err != nil {
		p.logger.Error("Time entry posted but ledger write failed",
			"meeting_id", record.MeetingID,
			"fingerprint", record.Fingerprint,
			"error", err)
		return &UnrecordedError{Err: err, Entry: record}
	}
	return nil
}
