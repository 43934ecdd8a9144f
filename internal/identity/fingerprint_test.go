package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  Team   Sync! ", want: "team sync"},
		{in: "Team Sync", want: "team sync"},
		{in: "Sprint-Planning: Q1 (Alpha)", want: "sprint-planning q1 alpha"},
		{in: "snake_case_subject", want: "snake_case_subject"},
		{in: "Réunion d'équipe", want: "runion dquipe"},
		{in: "Résumé Review", want: "rsum review"},
		{in: "日本 Sync", want: "sync"},
		{in: "Team\u00a0\u00a0Sync", want: "team sync"},
		{in: "a ! b", want: "a b"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSubject(tt.in))
		})
	}
}

func TestFingerprint_Stability(t *testing.T) {
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	assert.Equal(t,
		Fingerprint("u@x.com", "  Team   Sync! ", start),
		Fingerprint("u@x.com", "Team Sync", start))

	assert.Equal(t,
		Fingerprint("U@X.com", "Team Sync", start),
		Fingerprint("u@x.com", "team sync", start),
		"user id and subject case are insignificant")

	berlin := time.FixedZone("CET", 3600)
	assert.Equal(t,
		Fingerprint("u@x.com", "Team Sync", start),
		Fingerprint("u@x.com", "Team Sync", start.In(berlin)),
		"same instant in another zone")

	assert.Equal(t, "u@x.com_team sync_2025-01-06T10:00:00Z", Fingerprint("u@x.com", "Team Sync", start))
}

func TestFingerprint_RecurringInstancesDiffer(t *testing.T) {
	t1 := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 0, 7)

	assert.NotEqual(t,
		Fingerprint("u@x.com", "Weekly Sync", t1),
		Fingerprint("u@x.com", "Weekly Sync", t2))
	assert.NotEqual(t,
		Fingerprint("u@x.com", "Weekly Sync", t1),
		Fingerprint("v@x.com", "Weekly Sync", t1))
}

func TestIsCanonical(t *testing.T) {
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	assert.True(t, IsCanonical("u@x.com", Fingerprint("u@x.com", "Team Sync", start)))
	assert.True(t, IsCanonical("u@x.com", Fingerprint("u@x.com", "", start)))
	assert.False(t, IsCanonical("u@x.com", "u@x.com_Team Sync_Team Sync_2025-01-06T10:00:00.0000000"))
	assert.False(t, IsCanonical("u@x.com", "v@x.com_team sync_2025-01-06T10:00:00Z"))
	assert.False(t, IsCanonical("u@x.com", "u@x.com_2025-01-06T10:00:00Z"))
	assert.False(t, IsCanonical("u@x.com", "u@x.com_team sync_2025-01-06T11:00:00+01:00"))
}

func TestParseLegacy(t *testing.T) {
	tests := []struct {
		name        string
		fp          string
		wantSubject string
		wantStart   time.Time
		wantOK      bool
	}{
		{
			name:        "graph timestamp",
			fp:          "u@x.com_Team Sync_Team Sync_2025-01-06T10:00:00.0000000",
			wantSubject: "Team Sync",
			wantStart:   time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
			wantOK:      true,
		},
		{
			name:        "subject with underscores",
			fp:          "u@x.com_a_b_a_b_2025-01-06T10:00:00Z",
			wantSubject: "a_b",
			wantStart:   time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
			wantOK:      true,
		},
		{name: "halves differ", fp: "u@x.com_Team Sync_Team Sink_2025-01-06T10:00:00Z"},
		{name: "other user", fp: "v@x.com_A_A_2025-01-06T10:00:00Z"},
		{name: "bad timestamp", fp: "u@x.com_A_A_yesterday"},
		{name: "single subject", fp: "u@x.com_team sync_2025-01-06T10:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLegacy("U@x.com", tt.fp)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantSubject, got.Subject)
			assert.True(t, tt.wantStart.Equal(got.Start))
		})
	}
}

func TestCanonicalize(t *testing.T) {
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	want := Fingerprint("u@x.com", "Team Sync", start)

	got, ok := Canonicalize("u@x.com", "u@x.com_Team Sync!_Team Sync!_2025-01-06T10:00:00.0000000")
	require.True(t, ok)
	assert.Equal(t, want, got)

	got, ok = Canonicalize("u@x.com", want)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = Canonicalize("u@x.com", "AAMkAGI2TG93AAA=")
	assert.False(t, ok)
}

func TestCanonicalize_NonASCIISubjectMatchesLiveKey(t *testing.T) {
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"accented", "Résumé Review", "u@x.com_rsum review_2025-01-06T10:00:00Z"},
		{"non-latin with ascii", "会議 Standup", "u@x.com_standup_2025-01-06T10:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored := "u@x.com_" + tt.subject + "_" + tt.subject + "_2025-01-06T10:00:00.0000000"

			got, ok := Canonicalize("u@x.com", stored)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, Fingerprint("u@x.com", tt.subject, start), got)
		})
	}
}
