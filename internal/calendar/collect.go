// Package calendar provides calendar sources and collects normalized
// meetings with their attendance.
package calendar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-hours-must-flow/internal/meeting"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"golang.org/x/sync/errgroup"
)

// AttendanceConcurrency bounds parallel attendance requests.
const AttendanceConcurrency = 4

// Collect fetches the user's meetings in the range and folds in their
// attendance. A failed attendance fetch leaves that meeting with no
// attendance instead of failing the run. Order follows the source.
func Collect(ctx context.Context, src service.CalendarSource, userID string, dateRange service.DateRange, logger *slog.Logger) ([]model.Meeting, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := src.FetchMeetings(ctx, userID, dateRange)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meetings: %w", err)
	}

	meetings := make([]model.Meeting, len(raw))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(AttendanceConcurrency)

	for i := range raw {
		g.Go(func() error {
			m := raw[i]
			if err := m.Validate(); err != nil {
				logger.Warn("Meeting failed validation, attendance not fetched",
					"meeting_id", m.ID,
					"error", err)
				meetings[i] = meeting.Normalize(m, nil)
				return nil
			}

			records, err := src.FetchAttendance(gctx, userID, m)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("Failed to fetch attendance",
					"meeting_id", m.ID,
					"user_id", userID,
					"error", err)
				records = nil
			}
			meetings[i] = meeting.Normalize(m, records)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("attendance collection interrupted: %w", err)
	}

	logger.Info("Collected meetings",
		"user_id", userID,
		"count", len(meetings))
	return meetings, nil
}
