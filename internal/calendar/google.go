package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleSource reads events from Google Calendar. Google exposes no
// attendance reports, so attendees who accepted are credited with the
// scheduled length of the event.
type GoogleSource struct {
	svc    *gcal.Service
	logger *slog.Logger
}

// GoogleConfig configures Google Calendar access.
type GoogleConfig struct {
	CredentialsFile string
}

// NewGoogleSource creates a Google Calendar source. Extra client options
// are appended after the credentials.
func NewGoogleSource(ctx context.Context, cfg GoogleConfig, logger *slog.Logger, opts ...option.ClientOption) (*GoogleSource, error) {
	var all []option.ClientOption
	if cfg.CredentialsFile != "" {
		all = append(all, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	all = append(all, option.WithScopes(gcal.CalendarReadonlyScope))
	all = append(all, opts...)
	if len(all) == 1 {
		return nil, fmt.Errorf("%w: google credentials file is required", common.ErrMissingConfig)
	}

	svc, err := gcal.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleSource{svc: svc, logger: logger}, nil
}

// FetchMeetings lists single event instances in the range. Cancelled and
// all-day events are skipped.
func (g *GoogleSource) FetchMeetings(ctx context.Context, userID string, dateRange service.DateRange) ([]model.Meeting, error) {
	var meetings []model.Meeting
	call := g.svc.Events.List(userID).
		TimeMin(dateRange.Start.UTC().Format(time.RFC3339)).
		TimeMax(dateRange.End.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, ev := range page.Items {
			if ev.Status == "cancelled" || ev.Start == nil || ev.Start.DateTime == "" {
				continue
			}
			m, err := googleMeeting(ev)
			if err != nil {
				g.logger.Warn("Skipping event with unreadable times",
					"meeting_id", ev.Id,
					"error", err)
				continue
			}
			meetings = append(meetings, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list events for %s: %w", common.ErrCalendarUnavailable, userID, err)
	}

	g.logger.Debug("Fetched calendar events",
		"user_id", userID,
		"count", len(meetings))
	return meetings, nil
}

func googleMeeting(ev *gcal.Event) (model.Meeting, error) {
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return model.Meeting{}, fmt.Errorf("invalid start %q: %w", ev.Start.DateTime, err)
	}
	if ev.End == nil {
		return model.Meeting{}, fmt.Errorf("event %s has no end", ev.Id)
	}
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	if err != nil {
		return model.Meeting{}, fmt.Errorf("invalid end %q: %w", ev.End.DateTime, err)
	}

	m := model.Meeting{
		ID:          ev.Id,
		Subject:     ev.Summary,
		Start:       start.UTC(),
		End:         end.UTC(),
		BodyPreview: ev.Description,
		JoinURL:     ev.HangoutLink,
		IsOnline:    ev.HangoutLink != "" || ev.ConferenceData != nil,
	}
	if ev.Organizer != nil {
		m.Organizer = ev.Organizer.Email
	}
	for _, a := range ev.Attendees {
		m.Attendees = append(m.Attendees, model.Attendee{
			Email: a.Email,
			Name:  a.DisplayName,
			Role:  a.ResponseStatus,
		})
	}
	return m, nil
}

// FetchAttendance credits accepted attendees, and the organizer, with the
// scheduled duration.
func (g *GoogleSource) FetchAttendance(_ context.Context, _ string, m model.Meeting) ([]model.RawAttendance, error) {
	seconds := int(m.ScheduledDuration().Seconds())
	if seconds <= 0 {
		return nil, nil
	}

	var out []model.RawAttendance
	for _, a := range m.Attendees {
		accepted := a.Role == "accepted"
		organizer := strings.EqualFold(a.Email, m.Organizer)
		if !accepted && !organizer {
			continue
		}
		out = append(out, model.RawAttendance{
			DisplayName:     a.Name,
			Email:           a.Email,
			Role:            a.Role,
			DurationSeconds: seconds,
			Intervals: []model.AttendanceInterval{{
				JoinTime:        m.Start,
				LeaveTime:       m.End,
				DurationSeconds: seconds,
			}},
		})
	}
	return out, nil
}
