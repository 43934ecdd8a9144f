package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/identity"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/storage"
	"github.com/Veraticus/the-hours-must-flow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func entry(user, subject string, at time.Time, postedAt time.Time) model.PostedEntry {
	return model.PostedEntry{
		PostedAt:        postedAt,
		StartTime:       at,
		Fingerprint:     identity.Fingerprint(user, subject, at),
		MeetingID:       "graph-" + subject,
		UserID:          user,
		Subject:         subject,
		DurationSeconds: 3000,
	}
}

func TestLedger_AddIsIdempotent(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	l := New(ts.Store, nil)
	ctx := context.Background()

	e := entry(testutil.UserEmail, "Sprint Planning", start, start.Add(2*time.Hour))

	added, err := l.Add(ctx, e)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = l.Add(ctx, e)
	require.NoError(t, err)
	assert.False(t, added)

	all, err := l.ListForUser(ctx, testutil.UserEmail)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedger_IsPosted(t *testing.T) {
	ts := testutil.SetupTestDB(t)
	l := New(ts.Store, nil)
	ctx := context.Background()

	e := entry(testutil.UserEmail, "Standup", start, start)
	_, err := l.Add(ctx, e)
	require.NoError(t, err)

	tests := []struct {
		name        string
		user        string
		fingerprint string
		want        bool
	}{
		{"same user and key", testutil.UserEmail, e.Fingerprint, true},
		{"user compared case-insensitively", "U@X.com", e.Fingerprint, true},
		{"other user", "v@x.com", e.Fingerprint, false},
		{"next recurrence", testutil.UserEmail, identity.Fingerprint(testutil.UserEmail, "Standup", start.Add(24*time.Hour)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.IsPosted(ctx, tt.user, tt.fingerprint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLedger_AddRejectsInvalidRecord(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	l := New(ts.Store, nil)

	_, err := l.Add(context.Background(), model.PostedEntry{UserID: testutil.UserEmail})
	assert.ErrorIs(t, err, storage.ErrInvalidRecord)
}

func TestLedger_LoadAdoptsMeetingIDAndDropsMalformed(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	ts.WriteRaw(storage.CollectionMeetings, []byte(`{"meetings": [
		{"meetingId": "AAMkAGI2", "userId": "u@x.com", "postedAt": "2024-11-01T12:00:00Z"},
		{"userId": "u@x.com", "postedAt": "2024-11-01T12:00:00Z"}
	]}`))
	l := New(ts.Store, nil)

	posted, err := l.IsPosted(context.Background(), testutil.UserEmail, "AAMkAGI2")
	require.NoError(t, err)
	assert.True(t, posted)

	all, err := l.ListForUser(context.Background(), testutil.UserEmail)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedger_CorruptDocumentResets(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	ts.WriteRaw(storage.CollectionMeetings, []byte(`{"meetings": [`))
	l := New(ts.Store, nil)

	posted, err := l.IsPosted(context.Background(), testutil.UserEmail, "anything")
	require.NoError(t, err)
	assert.False(t, posted)
}

func TestLedger_ListForUserNewestFirst(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	l := New(ts.Store, nil)
	ctx := context.Background()

	older := entry(testutil.UserEmail, "Retro", start, start.Add(time.Hour))
	newer := entry(testutil.UserEmail, "Demo", start, start.Add(3*time.Hour))
	other := entry("v@x.com", "Demo", start, start.Add(5*time.Hour))
	for _, e := range []model.PostedEntry{older, newer, other} {
		_, err := l.Add(ctx, e)
		require.NoError(t, err)
	}

	got, err := l.ListForUser(ctx, testutil.UserEmail)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Demo", got[0].Subject)
	assert.Equal(t, "Retro", got[1].Subject)

	idx, err := l.Index(ctx, testutil.UserEmail)
	require.NoError(t, err)
	assert.Contains(t, idx, newer.Fingerprint)
	assert.NotContains(t, idx, other.Fingerprint)
}

func TestLedger_MigrateLegacy(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	ctx := context.Background()

	canonical := identity.Fingerprint(testutil.UserEmail, "Standup", start)
	legacy := []model.PostedEntry{
		{
			PostedAt:    start.Add(time.Hour),
			Fingerprint: "u@x.com_Standup_Standup_2025-01-06T10:00:00.0000000",
			UserID:      testutil.UserEmail,
		},
		{
			PostedAt:    start.Add(2 * time.Hour),
			Fingerprint: "stale-key",
			UserID:      testutil.UserEmail,
			Subject:     "Standup!",
			StartTime:   start,
		},
		{
			PostedAt:    start.Add(3 * time.Hour),
			Fingerprint: "AAMkAGI2-raw-graph-id",
			UserID:      testutil.UserEmail,
		},
	}
	data, err := json.Marshal(document{Meetings: legacy})
	require.NoError(t, err)
	ts.WriteRaw(storage.CollectionMeetings, data)

	l := New(ts.Store, nil)
	report, err := l.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationReport{Rewritten: 2, Dropped: 1, Unrecognized: 1}, report)

	got, err := l.Get(ctx, testutil.UserEmail, canonical)
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), got.PostedAt, "earliest posting wins")
	assert.Equal(t, "u@x.com_Standup_Standup_2025-01-06T10:00:00.0000000", got.MeetingID)

	posted, err := l.IsPosted(ctx, testutil.UserEmail, "AAMkAGI2-raw-graph-id")
	require.NoError(t, err)
	assert.True(t, posted, "unrecognized keys are left as-is")

	again, err := l.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationReport{Unrecognized: 1}, again)
}

// legacyDocument mirrors records written before fingerprints were stored
// separately: the key lives in meetingId and timeEntry is the tracker's
// loosely typed response.
const legacyDocument = `{"meetings": [
	{
		"meetingId": "u@x.com_Sprint Planning_Sprint Planning_2025-01-06T10:00:00.0000000",
		"userId": "u@x.com",
		"timeEntry": {"id": 99120, "projectid": "1001", "moduleid": "2002", "taskid": "3003",
			"date": "2025-01-06", "description": "Sprint Planning", "time": "0.83", "billable": "t"},
		"rawResponse": {"status": "Created"},
		"postedAt": "2025-01-06T12:00:00.000Z"
	},
	{
		"meetingId": "u@x.com_Standup_Standup_2025-01-07T09:00:00.0000000",
		"userId": "u@x.com",
		"timeEntry": {"id": "99121", "projectid": "1001", "moduleid": "2002", "taskid": "3004",
			"date": "2025-01-07", "description": "Standup", "time": 0.25, "billable": false},
		"postedAt": "2025-01-07T12:00:00.000Z"
	},
	{
		"meetingId": "u@x.com_Retro_Retro_2025-01-08T09:00:00.0000000",
		"userId": "u@x.com",
		"timeEntry": {"taskid": "3005", "time": "not-a-number"},
		"postedAt": "2025-01-08T12:00:00.000Z"
	}
]}`

func TestLedger_LoadsLooselyTypedTimeEntries(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	ts.WriteRaw(storage.CollectionMeetings, []byte(legacyDocument))
	l := New(ts.Store, nil)
	ctx := context.Background()

	all, err := l.ListForUser(ctx, testutil.UserEmail)
	require.NoError(t, err)
	require.Len(t, all, 2, "only the undecodable record is dropped")

	tests := []struct {
		fingerprint  string
		wantID       string
		wantHours    float64
		wantBillable bool
	}{
		{"u@x.com_Sprint Planning_Sprint Planning_2025-01-06T10:00:00.0000000", "99120", 0.83, true},
		{"u@x.com_Standup_Standup_2025-01-07T09:00:00.0000000", "99121", 0.25, false},
	}

	for _, tt := range tests {
		t.Run(tt.fingerprint, func(t *testing.T) {
			posted, err := l.IsPosted(ctx, testutil.UserEmail, tt.fingerprint)
			require.NoError(t, err)
			assert.True(t, posted)

			got, err := l.Get(ctx, testutil.UserEmail, tt.fingerprint)
			require.NoError(t, err)
			require.NotNil(t, got.TimeEntry)
			assert.Equal(t, tt.wantID, got.TimeEntry.ID)
			assert.InDelta(t, tt.wantHours, got.TimeEntry.Hours, 1e-9)
			assert.Equal(t, tt.wantBillable, got.TimeEntry.Billable)
		})
	}

	assert.Contains(t, string(ts.ReadRaw(storage.CollectionMeetings)), "99120", "document was not reset")
}

func TestLedger_MigrateLegacyBackfillsRecordFields(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	ts.WriteRaw(storage.CollectionMeetings, []byte(legacyDocument))
	l := New(ts.Store, nil)
	ctx := context.Background()

	report, err := l.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationReport{Rewritten: 2}, report)

	tests := []struct {
		subject      string
		at           time.Time
		wantDuration int
	}{
		{"Sprint Planning", start, 2988},
		{"Standup", time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC), 900},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got, err := l.Get(ctx, testutil.UserEmail, identity.Fingerprint(testutil.UserEmail, tt.subject, tt.at))
			require.NoError(t, err)
			assert.Equal(t, tt.subject, got.Subject)
			assert.True(t, tt.at.Equal(got.StartTime))
			assert.Equal(t, tt.wantDuration, got.DurationSeconds)
		})
	}

	again, err := l.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationReport{}, again)
}

func TestLedger_MigrateLegacyBackfillsCanonicalRecords(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	ctx := context.Background()

	e := entry(testutil.UserEmail, "Demo", start, start.Add(time.Hour))
	e.DurationSeconds = 0
	e.TimeEntry = &model.TimeEntry{ProjectID: "p", ModuleID: "m", TaskID: "t", Date: "2025-01-06", Hours: 0.5}
	data, err := json.Marshal(document{Meetings: []model.PostedEntry{e}})
	require.NoError(t, err)
	ts.WriteRaw(storage.CollectionMeetings, data)

	l := New(ts.Store, nil)
	report, err := l.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationReport{Rewritten: 1}, report)

	got, err := l.Get(ctx, testutil.UserEmail, e.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, 1800, got.DurationSeconds)
}

func TestLedger_ResetWritesEmptyList(t *testing.T) {
	ts := testutil.SetupFileStore(t)
	ts.WriteRaw(storage.CollectionMeetings, []byte(`{"meetings": [`))
	l := New(ts.Store, nil)

	_, err := l.ListForUser(context.Background(), testutil.UserEmail)
	require.NoError(t, err)
	assert.JSONEq(t, `{"meetings": []}`, string(ts.ReadRaw(storage.CollectionMeetings)))
}
