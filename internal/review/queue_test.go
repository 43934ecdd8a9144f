package review

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/ledger"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/poster"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/Veraticus/the-hours-must-flow/internal/storage"
	"github.com/Veraticus/the-hours-must-flow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	err   error
	tasks []model.Task
}

func (f *fakeCatalog) FetchTasks(context.Context) ([]model.Task, error) {
	return f.tasks, f.err
}

type fakeSink struct {
	err   error
	posts int
}

func (f *fakeSink) PostTimeEntry(context.Context, model.TimeEntry) (service.PostResult, error) {
	if f.err != nil {
		return service.PostResult{}, f.err
	}
	f.posts++
	return service.PostResult{ID: "te-1"}, nil
}

type fixture struct {
	queue  *Queue
	sink   *fakeSink
	ledger *ledger.Ledger
	store  *testutil.TestStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ts := testutil.SetupFileStore(t)
	l := ledger.New(ts.Store, nil)
	sink := &fakeSink{}
	p := poster.New(sink, l, poster.Config{Billable: true}, nil)
	q := NewQueue(ts.Store, &fakeCatalog{tasks: testutil.Catalog()}, p, nil)

	ids := 0
	q.newID = func() string {
		ids++
		return "id-" + strconv.Itoa(ids)
	}
	return &fixture{queue: q, sink: sink, ledger: l, store: ts}
}

var start = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func pendingItem(meetingID, subject string, at time.Time) model.ReviewItem {
	return model.ReviewItem{
		StartTime:       at,
		EndTime:         at.Add(time.Hour),
		UserID:          testutil.UserEmail,
		MeetingID:       meetingID,
		Subject:         subject,
		Reason:          "Low confidence match",
		DurationSeconds: 3000,
		Confidence:      0.5,
		SuggestedTasks:  []model.SuggestedTask{{ID: "t-sprint", Title: "Sprint Planning - Team Alpha", Confidence: 0.5}},
	}
}

func TestEnqueue_IdempotentUpsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.queue.Enqueue(ctx, pendingItem("m1", "Design sync", start))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.ReviewPending, first.Status)

	updated := pendingItem("m1", "Design sync", start)
	updated.Confidence = 0.6
	updated.Reason = "No matching tasks found"
	second, _, err := f.queue.Enqueue(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	pending, err := f.queue.Pending(ctx, testutil.UserEmail)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.InDelta(t, 0.6, pending[0].Confidence, 1e-9)
	assert.Equal(t, "No matching tasks found", pending[0].Reason)
}

func TestEnqueue_RejectsInvalidItem(t *testing.T) {
	f := newFixture(t)
	bad := pendingItem("m1", "", start)

	_, _, err := f.queue.Enqueue(context.Background(), bad)
	assert.ErrorIs(t, err, storage.ErrInvalidRecord)
}

func TestPending_SortedByStartDescending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, id := range []string{"m-old", "m-new", "m-mid"} {
		at := start.Add(time.Duration([]int{0, 48, 24}[i]) * time.Hour)
		_, _, err := f.queue.Enqueue(ctx, pendingItem(id, "Sync "+id, at))
		require.NoError(t, err)
	}
	_, _, err := f.queue.Enqueue(ctx, model.ReviewItem{
		StartTime: start, EndTime: start.Add(time.Hour), UserID: "v@x.com", MeetingID: "other", Subject: "Other",
	})
	require.NoError(t, err)

	pending, err := f.queue.Pending(ctx, testutil.UserEmail)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "m-new", pending[0].MeetingID)
	assert.Equal(t, "m-mid", pending[1].MeetingID)
	assert.Equal(t, "m-old", pending[2].MeetingID)
}

func TestSubmit_ApprovalRequiresTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	queued, _, err := f.queue.Enqueue(ctx, pendingItem("m1", "Sprint Planning", start))
	require.NoError(t, err)

	_, err = f.queue.Submit(ctx, Submission{UserID: testutil.UserEmail, ItemID: queued.ID, Status: model.ReviewApproved})
	assert.ErrorIs(t, err, ErrTaskRequired)
	assert.Zero(t, f.sink.posts)

	got, err := f.queue.Get(ctx, testutil.UserEmail, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, got.Status)

	decisions, err := f.queue.Decisions(ctx, testutil.UserEmail)
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestSubmit_InvalidStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.queue.Submit(context.Background(), Submission{UserID: testutil.UserEmail, ItemID: "x", Status: model.ReviewPending})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.queue.Submit(context.Background(), Submission{UserID: testutil.UserEmail, ItemID: "x", Status: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSubmit_ApprovePostsAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	queued, _, err := f.queue.Enqueue(ctx, pendingItem("m1", "Sprint Planning", start))
	require.NoError(t, err)

	res, err := f.queue.Submit(ctx, Submission{
		UserID: testutil.UserEmail, ItemID: "m1", Status: model.ReviewApproved, TaskID: "t-sprint", Feedback: "yes",
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.ReviewApproved, res.Item.Status)
	require.NotNil(t, res.Posted)
	assert.InDelta(t, 0.83, res.Posted.TimeEntry.Hours, 1e-9)
	assert.Equal(t, 1, f.sink.posts)

	posted, err := f.ledger.IsPosted(ctx, testutil.UserEmail, res.Posted.Fingerprint)
	require.NoError(t, err)
	assert.True(t, posted)

	decisions, err := f.queue.Decisions(ctx, testutil.UserEmail)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "t-sprint", decisions[0].TaskID)
	assert.Equal(t, testutil.UserEmail, decisions[0].DecidedBy)
	assert.Equal(t, queued.MeetingID, decisions[0].MeetingID)

	pending, err := f.queue.Pending(ctx, testutil.UserEmail)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubmit_PosterFailureKeepsPending(t *testing.T) {
	tests := []struct {
		setup    func(f *fixture)
		name     string
		taskID   string
		duration int
	}{
		{func(f *fixture) { f.sink.err = errors.New("503") }, "external write fails", "t-sprint", 3000},
		{func(*fixture) {}, "unknown task", "t-ghost", 3000},
		{func(f *fixture) {
			f.queue.catalog = &fakeCatalog{err: errors.New("timeout")}
		}, "catalog unavailable", "t-sprint", 3000},
		{func(*fixture) {}, "zero attended duration", "t-sprint", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			tt.setup(f)

			it := pendingItem("m1", "Sprint Planning", start)
			it.DurationSeconds = tt.duration
			_, _, err := f.queue.Enqueue(ctx, it)
			require.NoError(t, err)

			res, err := f.queue.Submit(ctx, Submission{UserID: testutil.UserEmail, ItemID: "m1", Status: model.ReviewApproved, TaskID: tt.taskID})
			require.Error(t, err)
			assert.False(t, res.Applied)
			assert.Zero(t, f.sink.posts)

			got, err := f.queue.Get(ctx, testutil.UserEmail, "m1")
			require.NoError(t, err)
			assert.Equal(t, model.ReviewPending, got.Status)

			decisions, err := f.queue.Decisions(ctx, testutil.UserEmail)
			require.NoError(t, err)
			assert.Empty(t, decisions)
		})
	}
}

func TestSubmit_AlreadyPostedCountsAsApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := poster.New(f.sink, f.ledger, poster.Config{}, nil).Post(ctx, poster.Request{
		Meeting: pendingItem("m1", "Sprint Planning", start).Meeting(),
		Task:    testutil.SprintPlanningTask(),
		UserID:  testutil.UserEmail,
	})
	require.NoError(t, err)

	_, _, err = f.queue.Enqueue(ctx, pendingItem("m1", "Sprint Planning", start))
	require.NoError(t, err)

	res, err := f.queue.Submit(ctx, Submission{UserID: testutil.UserEmail, ItemID: "m1", Status: model.ReviewApproved, TaskID: "t-sprint"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Nil(t, res.Posted)
	assert.Equal(t, 1, f.sink.posts)
}

func TestSubmit_TerminalIsNotReopened(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.queue.Enqueue(ctx, pendingItem("m1", "Lunch", start))
	require.NoError(t, err)

	_, err = f.queue.Submit(ctx, Submission{UserID: testutil.UserEmail, ItemID: "m1", Status: model.ReviewNoEntryNeeded})
	require.NoError(t, err)

	res, err := f.queue.Submit(ctx, Submission{UserID: testutil.UserEmail, ItemID: "m1", Status: model.ReviewApproved, TaskID: "t-sprint"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, model.ReviewNoEntryNeeded, res.Item.Status)
	assert.Zero(t, f.sink.posts)

	_, created, err := f.queue.Enqueue(ctx, pendingItem("m1", "Lunch", start))
	require.NoError(t, err)
	assert.False(t, created, "decided meetings are not requeued")

	decided, err := f.queue.IsDecided(ctx, testutil.UserEmail, "m1")
	require.NoError(t, err)
	assert.True(t, decided)

	decisions, err := f.queue.Decisions(ctx, testutil.UserEmail)
	require.NoError(t, err)
	require.Len(t, decisions, 2, "every accepted submission is audited")
	assert.NotEqual(t, decisions[0].ID, decisions[1].ID)
}

func TestSubmit_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.queue.Submit(context.Background(), Submission{UserID: testutil.UserEmail, ItemID: "nope", Status: model.ReviewRejected})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.queue.Stats(ctx, testutil.UserEmail)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewStats{}, stats)

	for i, id := range []string{"a", "b", "c", "d"} {
		it := pendingItem(id, "Meeting "+id, start.Add(time.Duration(i)*24*time.Hour))
		it.Confidence = []float64{0.2, 0.4, 0.6, 0.0}[i]
		_, _, err := f.queue.Enqueue(ctx, it)
		require.NoError(t, err)
	}
	_, err = f.queue.Submit(ctx, Submission{UserID: testutil.UserEmail, ItemID: "a", Status: model.ReviewRejected})
	require.NoError(t, err)
	_, err = f.queue.Submit(ctx, Submission{UserID: testutil.UserEmail, ItemID: "b", Status: model.ReviewApproved, TaskID: "t-infra"})
	require.NoError(t, err)

	stats, err = f.queue.Stats(ctx, testutil.UserEmail)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPending)
	assert.Equal(t, 2, stats.TotalReviewed)
	assert.InDelta(t, 50.0, stats.ApprovalRate, 1e-9)
	assert.InDelta(t, 0.3, stats.AverageConfidence, 1e-9)
}

func TestLoad_DropsMalformedItems(t *testing.T) {
	f := newFixture(t)
	f.store.WriteRaw(storage.CollectionReviews, []byte(`{"reviews": [
		{"id": "r1", "userId": "u@x.com", "meetingId": "m1", "subject": "Ok", "status": "pending",
		 "startTime": "2025-01-06T10:00:00Z", "endTime": "2025-01-06T11:00:00Z"},
		{"id": "r2", "userId": "u@x.com", "meetingId": "m2", "status": "pending",
		 "startTime": "2025-01-06T10:00:00Z", "endTime": "2025-01-06T11:00:00Z"},
		{"id": "r3", "userId": "u@x.com", "meetingId": "m3", "subject": "Bad status", "status": "maybe",
		 "startTime": "2025-01-06T10:00:00Z", "endTime": "2025-01-06T11:00:00Z"}
	]}`))

	pending, err := f.queue.Pending(context.Background(), testutil.UserEmail)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r1", pending[0].ID)
}
