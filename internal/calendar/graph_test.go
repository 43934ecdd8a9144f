package calendar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const joinURL = "https://teams.microsoft.com/l/meetup-join/19%3ameeting_abc123%40thread.v2/0?context=%7b%22Tid%22%3a%22t1%22%2c%22Oid%22%3a%22org-1%22%7d"

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type graphServer struct {
	*httptest.Server
	routes       map[string]http.HandlerFunc
	unauthorized atomic.Int32
}

func newGraphServer(t *testing.T) *graphServer {
	t.Helper()
	gs := &graphServer{routes: make(map[string]http.HandlerFunc)}
	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			writeJSON(w, map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			gs.unauthorized.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if h, ok := gs.routes[r.URL.Path]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(gs.Close)
	return gs
}

func (gs *graphServer) source(t *testing.T) *GraphSource {
	t.Helper()
	src, err := NewGraphSource(context.Background(), GraphConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		BaseURL:      gs.URL,
		TokenURL:     gs.URL + "/token",
	}, nil)
	require.NoError(t, err)
	src.retry = service.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return src
}

func TestNewGraphSource_RequiresCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  GraphConfig
	}{
		{"no client id", GraphConfig{ClientSecret: "s", TenantID: "t"}},
		{"no secret", GraphConfig{ClientID: "c", TenantID: "t"}},
		{"no tenant", GraphConfig{ClientID: "c", ClientSecret: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraphSource(context.Background(), tt.cfg, nil)
			assert.ErrorIs(t, err, common.ErrMissingConfig)
		})
	}
}

func TestParseJoinURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantThread string
		wantOrg    string
		wantOK     bool
	}{
		{"encoded teams url", joinURL, "19:meeting_abc123@thread.v2", "org-1", true},
		{"decoded teams url", `https://teams.microsoft.com/l/meetup-join/19:meeting_x@thread.v2/0?context={"Oid":"o-2"}`, "19:meeting_x@thread.v2", "o-2", true},
		{"missing organizer", "https://teams.microsoft.com/l/meetup-join/19%3ameeting_abc%40thread.v2/0", "", "", false},
		{"not teams", "https://zoom.us/j/123", "", "", false},
		{"empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thread, org, ok := ParseJoinURL(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantThread, thread)
			assert.Equal(t, tt.wantOrg, org)
		})
	}
}

func TestOnlineMeetingID(t *testing.T) {
	id := OnlineMeetingID("19:meeting_abc123@thread.v2", "org-1")
	decoded, err := base64.StdEncoding.DecodeString(id)
	require.NoError(t, err)
	assert.Equal(t, "1*org-1*0**19:meeting_abc123@thread.v2", string(decoded))
}

func TestGraphSource_FetchMeetings(t *testing.T) {
	gs := newGraphServer(t)
	gs.routes["/users/u@x.com/calendarView"] = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-01-06T00:00:00Z", r.URL.Query().Get("startDateTime"))
		assert.Equal(t, `outlook.timezone="UTC"`, r.Header.Get("Prefer"))
		writeJSON(w, map[string]any{
			"@odata.nextLink": gs.URL + "/page2",
			"value": []map[string]any{
				{
					"id":      "m1",
					"subject": " Sprint Planning ",
					"start":   map[string]string{"dateTime": "2025-01-06T10:00:00.0000000", "timeZone": "UTC"},
					"end":     map[string]string{"dateTime": "2025-01-06T11:00:00.0000000", "timeZone": "UTC"},
					"organizer": map[string]any{
						"emailAddress": map[string]string{"address": "lead@x.com", "name": "Lead"},
					},
					"attendees": []map[string]any{
						{"emailAddress": map[string]string{"address": "u@x.com", "name": "U"}, "type": "required"},
					},
					"onlineMeeting": map[string]string{"joinUrl": joinURL},
				},
				{
					"id":          "m-cancelled",
					"subject":     "Cancelled",
					"isCancelled": true,
					"start":       map[string]string{"dateTime": "2025-01-06T12:00:00", "timeZone": "UTC"},
					"end":         map[string]string{"dateTime": "2025-01-06T13:00:00", "timeZone": "UTC"},
				},
			},
		})
	}
	gs.routes["/page2"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"value": []map[string]any{
			{
				"id":      "m2",
				"subject": "Standup",
				"start":   map[string]string{"dateTime": "2025-01-07T09:00:00", "timeZone": "Europe/Berlin"},
				"end":     map[string]string{"dateTime": "2025-01-07T09:15:00", "timeZone": "Europe/Berlin"},
			},
			{
				"id":    "m-bad",
				"start": map[string]string{"dateTime": "yesterday"},
				"end":   map[string]string{"dateTime": "today"},
			},
		}})
	}

	src := gs.source(t)
	meetings, err := src.FetchMeetings(context.Background(), "u@x.com", service.DateRange{
		Start: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, meetings, 2)

	m := meetings[0]
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), m.Start)
	assert.Equal(t, "lead@x.com", m.Organizer)
	assert.Equal(t, joinURL, m.JoinURL)
	assert.True(t, m.IsOnline)
	require.Len(t, m.Attendees, 1)
	assert.Equal(t, "u@x.com", m.Attendees[0].Email)

	assert.Equal(t, "m2", meetings[1].ID)
	assert.Equal(t, time.Date(2025, 1, 7, 8, 0, 0, 0, time.UTC), meetings[1].Start, "Berlin time converted to UTC")
}

func TestGraphSource_FetchMeetingsFailure(t *testing.T) {
	gs := newGraphServer(t)
	gs.routes["/users/u@x.com/calendarView"] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}

	_, err := gs.source(t).FetchMeetings(context.Background(), "u@x.com", service.DateRange{})
	assert.ErrorIs(t, err, common.ErrCalendarUnavailable)
}

func TestGraphSource_FetchAttendance(t *testing.T) {
	gs := newGraphServer(t)
	onlineID := OnlineMeetingID("19:meeting_abc123@thread.v2", "org-1")
	reports := "/users/obj-1/onlineMeetings/" + onlineID + "/attendanceReports"

	var userLookups atomic.Int32
	gs.routes["/users/u@x.com"] = func(w http.ResponseWriter, _ *http.Request) {
		userLookups.Add(1)
		writeJSON(w, map[string]string{"id": "obj-1"})
	}
	gs.routes[reports] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"value": []map[string]string{{"id": "rep-1"}, {"id": "rep-2"}}})
	}
	gs.routes[reports+"/rep-1/attendanceRecords"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"value": []map[string]any{
			{
				"identity":                 map[string]string{"displayName": "U"},
				"emailAddress":             "u@x.com",
				"role":                     "Attendee",
				"totalAttendanceInSeconds": 3000,
				"attendanceIntervals": []map[string]any{
					{"joinDateTime": "2025-01-06T10:00:00Z", "leaveDateTime": "2025-01-06T10:50:00Z", "durationInSeconds": 3000},
				},
			},
			{"emailAddress": "guest@y.com", "totalAttendanceInSeconds": 600},
		}})
	}

	src := gs.source(t)
	m := testMeeting("m1", joinURL)

	records, err := src.FetchAttendance(context.Background(), "u@x.com", m)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "U", records[0].DisplayName)
	assert.Equal(t, 3000, records[0].DurationSeconds)
	require.Len(t, records[0].Intervals, 1)
	assert.Equal(t, 3000, records[0].Intervals[0].DurationSeconds)
	assert.Empty(t, records[1].DisplayName)

	_, err = src.FetchAttendance(context.Background(), "u@x.com", m)
	require.NoError(t, err)
	assert.Equal(t, int32(1), userLookups.Load(), "user object id is cached")
	assert.Zero(t, gs.unauthorized.Load())
}

func TestGraphSource_FetchAttendanceWithoutReport(t *testing.T) {
	tests := []struct {
		name    string
		join    string
		reports http.HandlerFunc
	}{
		{"no join url", "", nil},
		{"not a teams url", "https://zoom.us/j/1", nil},
		{"report not found", joinURL, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"empty report list", joinURL, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"value": []any{}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := newGraphServer(t)
			gs.routes["/users/u@x.com"] = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, map[string]string{"id": "obj-1"})
			}
			if tt.reports != nil {
				gs.routes["/users/obj-1/onlineMeetings/"+OnlineMeetingID("19:meeting_abc123@thread.v2", "org-1")+"/attendanceReports"] = tt.reports
			}

			records, err := gs.source(t).FetchAttendance(context.Background(), "u@x.com", testMeeting("m1", tt.join))
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestGraphSource_RetriesServerErrors(t *testing.T) {
	gs := newGraphServer(t)
	var calls atomic.Int32
	gs.routes["/users/u@x.com"] = func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]string{"id": "obj-1"})
	}

	id, err := gs.source(t).resolveUser(context.Background(), "u@x.com")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", id)
	assert.Equal(t, int32(2), calls.Load())
}
