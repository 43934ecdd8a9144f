package calendar

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultGraphURL = "https://graph.microsoft.com/v1.0"
	graphScope      = "https://graph.microsoft.com/.default"
	graphTimeLayout = "2006-01-02T15:04:05.9999999"
	eventSelect     = "id,subject,start,end,organizer,attendees,bodyPreview,isCancelled,isOnlineMeeting,onlineMeeting"
)

const (
	threadPattern    = `(19:meeting_[^@]+@thread\.v2)`
	organizerPattern = `"Oid":"([^"]+)"`
)

// GraphConfig configures app-only access to Microsoft Graph.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// BaseURL and TokenURL override the public Graph endpoints.
	BaseURL  string
	TokenURL string
}

// GraphSource reads calendar events and Teams attendance reports from
// Microsoft Graph.
type GraphSource struct {
	client  *http.Client
	logger  *slog.Logger
	userIDs map[string]string
	baseURL string
	retry   service.RetryOptions
	mu      sync.Mutex
}

// NewGraphSource creates a Graph source authenticated with the client
// credentials grant.
func NewGraphSource(ctx context.Context, cfg GraphConfig, logger *slog.Logger) (*GraphSource, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: graph client id and secret are required", common.ErrMissingConfig)
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		if cfg.TenantID == "" {
			return nil, fmt.Errorf("%w: graph tenant id is required", common.ErrMissingConfig)
		}
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGraphURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}
	client := cc.Client(ctx)
	client.Timeout = 30 * time.Second

	return &GraphSource{
		client:  client,
		logger:  logger,
		userIDs: make(map[string]string),
		baseURL: baseURL,
		retry:   service.DefaultRetryOptions(),
	}, nil
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEmail struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type graphEvent struct {
	Start     graphDateTime `json:"start"`
	End       graphDateTime `json:"end"`
	Organizer struct {
		EmailAddress graphEmail `json:"emailAddress"`
	} `json:"organizer"`
	OnlineMeeting *struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	BodyPreview string `json:"bodyPreview"`
	Attendees   []struct {
		EmailAddress graphEmail `json:"emailAddress"`
		Type         string     `json:"type"`
	} `json:"attendees"`
	IsCancelled     bool `json:"isCancelled"`
	IsOnlineMeeting bool `json:"isOnlineMeeting"`
}

type eventPage struct {
	NextLink string       `json:"@odata.nextLink"`
	Value    []graphEvent `json:"value"`
}

type graphAttendanceRecord struct {
	Identity struct {
		DisplayName string `json:"displayName"`
	} `json:"identity"`
	EmailAddress string `json:"emailAddress"`
	Role         string `json:"role"`
	Intervals    []struct {
		JoinDateTime    time.Time `json:"joinDateTime"`
		LeaveDateTime   time.Time `json:"leaveDateTime"`
		DurationSeconds int       `json:"durationInSeconds"`
	} `json:"attendanceIntervals"`
	TotalSeconds int `json:"totalAttendanceInSeconds"`
}

func (g *GraphSource) header() http.Header {
	h := http.Header{}
	h.Set("Prefer", `outlook.timezone="UTC"`)
	return h
}

// FetchMeetings lists the user's calendar view for the range, with recurring
// meetings expanded into instances. Cancelled events are skipped.
func (g *GraphSource) FetchMeetings(ctx context.Context, userID string, dateRange service.DateRange) ([]model.Meeting, error) {
	q := url.Values{}
	q.Set("startDateTime", dateRange.Start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", dateRange.End.UTC().Format(time.RFC3339))
	q.Set("$select", eventSelect)
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", "100")
	next := fmt.Sprintf("%s/users/%s/calendarView?%s", g.baseURL, url.PathEscape(userID), q.Encode())

	var meetings []model.Meeting
	for next != "" {
		var page eventPage
		if err := getJSON(ctx, g.client, next, g.header(), g.retry, &page); err != nil {
			return nil, fmt.Errorf("%w: failed to list events for %s: %w", common.ErrCalendarUnavailable, userID, err)
		}
		for _, ev := range page.Value {
			if ev.IsCancelled {
				continue
			}
			m, err := ev.toMeeting()
			if err != nil {
				g.logger.Warn("Skipping event with unreadable times",
					"meeting_id", ev.ID,
					"error", err)
				continue
			}
			meetings = append(meetings, m)
		}
		next = page.NextLink
	}

	g.logger.Debug("Fetched calendar events",
		"user_id", userID,
		"count", len(meetings))
	return meetings, nil
}

func (ev graphEvent) toMeeting() (model.Meeting, error) {
	start, err := parseGraphTime(ev.Start)
	if err != nil {
		return model.Meeting{}, err
	}
	end, err := parseGraphTime(ev.End)
	if err != nil {
		return model.Meeting{}, err
	}

	m := model.Meeting{
		ID:          ev.ID,
		Subject:     ev.Subject,
		Start:       start,
		End:         end,
		Organizer:   ev.Organizer.EmailAddress.Address,
		BodyPreview: ev.BodyPreview,
		IsOnline:    ev.IsOnlineMeeting,
	}
	if ev.OnlineMeeting != nil {
		m.JoinURL = ev.OnlineMeeting.JoinURL
		m.IsOnline = m.IsOnline || m.JoinURL != ""
	}
	for _, a := range ev.Attendees {
		m.Attendees = append(m.Attendees, model.Attendee{
			Email: a.EmailAddress.Address,
			Name:  a.EmailAddress.Name,
			Role:  a.Type,
		})
	}
	return m, nil
}

func parseGraphTime(dt graphDateTime) (time.Time, error) {
	loc := time.UTC
	if dt.TimeZone != "" && !strings.EqualFold(dt.TimeZone, "UTC") {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(graphTimeLayout, dt.DateTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid graph time %q: %w", dt.DateTime, err)
	}
	return t.UTC(), nil
}

// ParseJoinURL extracts the Teams thread id and organizer object id from a
// meeting join URL. ok is false when either is missing.
func ParseJoinURL(joinURL string) (threadID, organizerID string, ok bool) {
	decoded, err := url.QueryUnescape(joinURL)
	if err != nil {
		decoded = joinURL
	}
	threadID, ok = common.FirstSubmatch(threadPattern, decoded)
	if !ok {
		return "", "", false
	}
	organizerID, ok = common.FirstSubmatch(organizerPattern, decoded)
	if !ok {
		return "", "", false
	}
	return threadID, organizerID, true
}

// OnlineMeetingID builds the Graph online meeting id for a Teams thread.
func OnlineMeetingID(threadID, organizerID string) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("1*%s*0**%s", organizerID, threadID)))
}

func (g *GraphSource) resolveUser(ctx context.Context, userID string) (string, error) {
	g.mu.Lock()
	id, ok := g.userIDs[userID]
	g.mu.Unlock()
	if ok {
		return id, nil
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := getJSON(ctx, g.client, fmt.Sprintf("%s/users/%s", g.baseURL, url.PathEscape(userID)), nil, g.retry, &user); err != nil {
		return "", fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}

	g.mu.Lock()
	g.userIDs[userID] = user.ID
	g.mu.Unlock()
	return user.ID, nil
}

// FetchAttendance reads the first attendance report of a Teams meeting.
// Meetings without a parseable join URL or without a report have no
// attendance and return an empty result.
func (g *GraphSource) FetchAttendance(ctx context.Context, userID string, m model.Meeting) ([]model.RawAttendance, error) {
	threadID, organizerID, ok := ParseJoinURL(m.JoinURL)
	if !ok {
		g.logger.Debug("No Teams meeting info in join URL", "meeting_id", m.ID)
		return nil, nil
	}

	objectID, err := g.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("%s/users/%s/onlineMeetings/%s/attendanceReports",
		g.baseURL, url.PathEscape(objectID), url.PathEscape(OnlineMeetingID(threadID, organizerID)))

	var reports struct {
		Value []struct {
			ID string `json:"id"`
		} `json:"value"`
	}
	if err := getJSON(ctx, g.client, base, nil, g.retry, &reports); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list attendance reports for %s: %w", m.ID, err)
	}
	if len(reports.Value) == 0 {
		return nil, nil
	}

	var records struct {
		Value []graphAttendanceRecord `json:"value"`
	}
	recordsURL := fmt.Sprintf("%s/%s/attendanceRecords", base, url.PathEscape(reports.Value[0].ID))
	if err := getJSON(ctx, g.client, recordsURL, nil, g.retry, &records); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch attendance records for %s: %w", m.ID, err)
	}

	out := make([]model.RawAttendance, 0, len(records.Value))
	for _, r := range records.Value {
		raw := model.RawAttendance{
			DisplayName:     r.Identity.DisplayName,
			Email:           r.EmailAddress,
			Role:            r.Role,
			DurationSeconds: r.TotalSeconds,
		}
		for _, iv := range r.Intervals {
			raw.Intervals = append(raw.Intervals, model.AttendanceInterval{
				JoinTime:        iv.JoinDateTime,
				LeaveTime:       iv.LeaveDateTime,
				DurationSeconds: iv.DurationSeconds,
			})
		}
		out = append(out, raw)
	}
	return out, nil
}
