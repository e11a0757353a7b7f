package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/internal/testdb"
	"github.com/jdziat/credibility-sync/pkg/queue"
	"github.com/jdziat/credibility-sync/pkg/schedule"
)

func newOrchestrator(t *testing.T, opts ...queue.Option) *queue.Orchestrator {
	t.Helper()
	return queue.New(testdb.Storage(t), opts...)
}

func TestEnqueue_UsesQueuePolicyAttempts(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t, queue.WithPolicy(queue.SyncQueue, queue.Policy{Attempts: 5}))

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.RepositorySync{UserID: "u1", Login: "octocat"})
	require.NoError(t, err)

	job, err := o.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobSyncRepository, job.Type)
	assert.Equal(t, 5, job.MaxAttempts)
	assert.Equal(t, core.StatusWaiting, job.Status)

	payload, err := core.DecodePayload(job.Type, job.Args)
	require.NoError(t, err)
	assert.Equal(t, core.RepositorySync{UserID: "u1", Login: "octocat"}, payload)
}

func TestEnqueue_Options(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t)

	id, err := o.Enqueue(ctx, queue.NotificationsQueue, core.SyncNotification{UserID: "u1"},
		queue.Priority(7), queue.Attempts(1), queue.Delay(time.Hour))
	require.NoError(t, err)

	job, err := o.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, job.Priority)
	assert.Equal(t, 1, job.MaxAttempts)
	assert.Equal(t, core.StatusDelayed, job.Status)
}

func TestEnqueue_Validation(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t)

	_, err := o.Enqueue(ctx, "bad queue", core.DueSync{})
	assert.ErrorIs(t, err, core.ErrInvalidQueueName)

	_, err = o.Enqueue(ctx, queue.SyncQueue, nil)
	assert.ErrorIs(t, err, core.ErrInvalidPayload)
}

func TestEnqueue_UniqueReturnsExistingID(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t)
	p := core.SocialSync{UserID: "u1", Platform: "youtube", Handle: "@octo"}

	first, err := o.Enqueue(ctx, queue.SyncQueue, p, queue.Unique(p.Target().Key()))
	require.NoError(t, err)

	_, err = o.Enqueue(ctx, queue.SyncQueue, p, queue.Unique(p.Target().Key()))
	var dup *core.DuplicateJobError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first, dup.ExistingID)
}

func TestEnqueue_EmitsEvent(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t)
	events := o.Events()
	defer o.Unsubscribe(events)

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.EducationSync{UserID: "u1"})
	require.NoError(t, err)

	select {
	case e := <-events:
		enq, ok := e.(*core.JobEnqueued)
		require.True(t, ok, "got %T", e)
		assert.Equal(t, id, enq.Job.ID)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	o := newOrchestrator(t)
	events := o.Events()
	o.Unsubscribe(events)

	o.Emit(&core.QueuePaused{Queue: "sync"})
	select {
	case e := <-events:
		t.Fatalf("unexpected event %T", e)
	default:
	}
}

func TestGetMetrics_AndRetry(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t)
	s := o.Storage()

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.CertificationSync{UserID: "u1"})
	require.NoError(t, err)
	job, err := s.Dequeue(ctx, []string{queue.SyncQueue}, "w", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, job.ID, "w", "boom", nil, nil))

	m, err := o.GetMetrics(ctx, queue.SyncQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(0), m.Waiting)

	require.NoError(t, o.Retry(ctx, id))
	m, err = o.GetMetrics(ctx, queue.SyncQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.Failed)
	assert.Equal(t, int64(1), m.Waiting)

	assert.ErrorIs(t, o.Retry(ctx, id), core.ErrNotRetryable)
}

func TestAmend_RewritesPendingPayload(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t)

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.EducationSync{UserID: "u1"}, queue.Delay(time.Hour))
	require.NoError(t, err)

	ok, err := o.Amend(ctx, id, core.EducationSync{UserID: "u1", ForceRefresh: true})
	require.NoError(t, err)
	assert.True(t, ok)
	job, err := o.GetJob(ctx, id)
	require.NoError(t, err)
	payload, err := core.DecodePayload(job.Type, job.Args)
	require.NoError(t, err)
	assert.Equal(t, core.EducationSync{UserID: "u1", ForceRefresh: true}, payload)

	ok, err = o.Amend(ctx, id, core.CertificationSync{UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = o.Amend(ctx, id, nil)
	assert.ErrorIs(t, err, core.ErrInvalidPayload)
}

func TestRemove_OnlyWaitingJobs(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t)

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.EducationSync{UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, o.Remove(ctx, id))

	id, err = o.Enqueue(ctx, queue.SyncQueue, core.EducationSync{UserID: "u2"})
	require.NoError(t, err)
	_, err = o.Storage().Dequeue(ctx, []string{queue.SyncQueue}, "w", time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, o.Remove(ctx, id), core.ErrNotRemovable)
}

func TestPauseResume_EmitsAndReportsMetrics(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t)
	events := o.Events()
	defer o.Unsubscribe(events)

	require.NoError(t, o.Pause(ctx, queue.SyncQueue, "ops"))
	paused, err := o.IsPaused(ctx, queue.SyncQueue)
	require.NoError(t, err)
	assert.True(t, paused)

	m, err := o.GetMetrics(ctx, queue.SyncQueue)
	require.NoError(t, err)
	assert.True(t, m.Paused)

	require.NoError(t, o.Resume(ctx, queue.SyncQueue))

	_, ok := (<-events).(*core.QueuePaused)
	assert.True(t, ok)
	_, ok = (<-events).(*core.QueueResumed)
	assert.True(t, ok)
}

func TestCheckHealth(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t,
		queue.WithHealthThresholds(0, 1),
		queue.ExpectPaused(queue.NotificationsQueue),
	)

	h, err := o.CheckHealth(ctx)
	require.NoError(t, err)
	assert.True(t, h.Healthy)
	assert.Empty(t, h.Issues)

	for i := 0; i < 2; i++ {
		_, err := o.Enqueue(ctx, queue.SyncQueue, core.SocialSync{UserID: "u1", Platform: "twitter"})
		require.NoError(t, err)
	}
	require.NoError(t, o.Pause(ctx, queue.SyncQueue, "ops"))
	require.NoError(t, o.Pause(ctx, queue.NotificationsQueue, "ops"))

	h, err = o.CheckHealth(ctx)
	require.NoError(t, err)
	assert.False(t, h.Healthy)
	require.Len(t, h.Issues, 2)
	assert.Contains(t, h.Issues[0], "waiting jobs exceeds threshold")
	assert.Contains(t, h.Issues[1], "queue sync is paused")
	assert.Equal(t, int64(2), h.Queues[queue.SyncQueue].Waiting)
}

func TestCheckHealth_FailedThreshold(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t, queue.WithHealthThresholds(1, 0))
	s := o.Storage()

	for i := 0; i < 2; i++ {
		_, err := o.Enqueue(ctx, queue.NotificationsQueue, core.SyncNotification{UserID: "u1"})
		require.NoError(t, err)
		job, err := s.Dequeue(ctx, []string{queue.NotificationsQueue}, "w", time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Fail(ctx, job.ID, "w", "broker down", nil, nil))
	}

	h, err := o.CheckHealth(ctx)
	require.NoError(t, err)
	assert.False(t, h.Healthy)
	assert.Contains(t, h.Issues[0], "queue notifications: 2 failed jobs")
}

func TestHandleAndSchedule(t *testing.T) {
	o := newOrchestrator(t)

	err := o.Handle(core.JobSyncDue, func(context.Context, core.Payload) (*core.JobResult, error) {
		return &core.JobResult{Success: true}, nil
	}, 0)
	require.NoError(t, err)
	assert.True(t, o.HasHandler(core.JobSyncDue))
	assert.False(t, o.HasHandler(core.JobSyncFull))
	assert.Error(t, o.Handle("9bad", func(context.Context, core.Payload) (*core.JobResult, error) { return nil, nil }, 0))

	o.Schedule("due-profiles", queue.SyncQueue, schedule.Every(time.Minute), core.DueSync{Limit: 10})
	jobs := o.GetScheduledJobs()
	require.Contains(t, jobs, "due-profiles")
	assert.Equal(t, core.DueSync{Limit: 10}, jobs["due-profiles"].Payload)

	assert.Equal(t, []string{queue.NotificationsQueue, queue.SyncQueue}, o.Queues())
}

func TestHooks(t *testing.T) {
	o := newOrchestrator(t)
	var calls []string

	o.OnJobStart(func(context.Context, *core.Job) { calls = append(calls, "start") })
	o.OnJobComplete(func(context.Context, *core.Job, *core.JobResult) { calls = append(calls, "complete") })
	o.OnJobFail(func(context.Context, *core.Job, error) { calls = append(calls, "fail") })
	o.OnRetry(func(_ context.Context, _ *core.Job, attempt int, _ error) { calls = append(calls, "retry") })

	ctx := context.Background()
	job := &core.Job{ID: "j"}
	o.CallStartHooks(ctx, job)
	o.CallRetryHooks(ctx, job, 1, errors.New("x"))
	o.CallCompleteHooks(ctx, job, &core.JobResult{Success: true})
	o.CallFailHooks(ctx, job, errors.New("x"))

	assert.Equal(t, []string{"start", "retry", "complete", "fail"}, calls)
}
