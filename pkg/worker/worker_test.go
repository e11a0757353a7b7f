package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/internal/handler"
	"github.com/jdziat/credibility-sync/pkg/internal/testdb"
	"github.com/jdziat/credibility-sync/pkg/jobctx"
	"github.com/jdziat/credibility-sync/pkg/queue"
)

func fastPolicy() queue.Policy {
	return queue.Policy{
		Attempts:     3,
		BackoffBase:  10 * time.Millisecond,
		BackoffCap:   20 * time.Millisecond,
		Concurrency:  2,
		LockDuration: 5 * time.Second,
	}
}

func newTestOrchestrator(t *testing.T) *queue.Orchestrator {
	t.Helper()
	return queue.New(testdb.Storage(t),
		queue.WithPolicy(queue.SyncQueue, fastPolicy()),
		queue.WithPolicy(queue.NotificationsQueue, fastPolicy()),
	)
}

// startWorker runs w until the test ends.
func startWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitForStatus(t *testing.T, o *queue.Orchestrator, id string, status core.JobStatus) *core.Job {
	t.Helper()
	var job *core.Job
	require.Eventually(t, func() bool {
		j, err := o.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestWorkerConfig_Defaults(t *testing.T) {
	o := newTestOrchestrator(t)
	w := NewWorker(o)

	cfg := w.Config()
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.NotEmpty(t, w.ID())
	assert.Equal(t, map[string]int{queue.SyncQueue: 2, queue.NotificationsQueue: 2}, cfg.Queues)
	assert.False(t, cfg.EnableScheduler)
	require.NotNil(t, cfg.StorageRetry)
	require.NotNil(t, cfg.DequeueRetry)
}

func TestWorkerQueue_ConcurrencyIsPerQueue(t *testing.T) {
	config := WorkerConfig{}

	WorkerQueue("sync", Concurrency(3)).ApplyWorker(&config)
	WorkerQueue("notifications").ApplyWorker(&config)
	WorkerQueue("bulk", Concurrency(5000)).ApplyWorker(&config)

	assert.Equal(t, 3, config.Queues["sync"])
	assert.Equal(t, 0, config.Queues["notifications"])
	assert.Equal(t, 256, config.Queues["bulk"])
}

func TestNewWorker_FillsConcurrencyFromPolicy(t *testing.T) {
	o := queue.New(testdb.Storage(t))
	w := NewWorker(o, WorkerQueue(queue.SyncQueue), WorkerQueue(queue.NotificationsQueue, Concurrency(1)))

	assert.Equal(t, 3, w.Config().Queues[queue.SyncQueue])
	assert.Equal(t, 1, w.Config().Queues[queue.NotificationsQueue])
}

func TestWorkerOptions(t *testing.T) {
	config := WorkerConfig{}
	for _, opt := range []WorkerOption{
		WorkerID("w-1"),
		PollInterval(time.Second),
		PollInterval(0),
		StalledInterval(time.Minute),
		CleanupInterval(0),
		WithScheduler(true),
	} {
		opt.ApplyWorker(&config)
	}

	assert.Equal(t, "w-1", config.WorkerID)
	assert.Equal(t, time.Second, config.PollInterval)
	assert.Equal(t, time.Minute, config.StalledInterval)
	assert.Zero(t, config.CleanupInterval)
	assert.True(t, config.EnableScheduler)
}

func TestWorker_CompletesJobWithResult(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	require.NoError(t, handler.Register(o.Router(), func(ctx context.Context, p core.DueSync) (*core.JobResult, error) {
		return &core.JobResult{Success: true, ItemsSynced: p.Limit}, nil
	}, 0))

	events := o.Events()
	defer o.Unsubscribe(events)

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.DueSync{Limit: 7})
	require.NoError(t, err)

	startWorker(t, NewWorker(o, PollInterval(10*time.Millisecond)))

	job := waitForStatus(t, o, id, core.StatusCompleted)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 1, job.Attempt)
	assert.NotNil(t, job.FinishedAt)

	res, err := job.DecodeResult()
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, 7, res.ItemsSynced)
	assert.False(t, res.UpdatedAt.IsZero())

	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-events:
				if c, ok := e.(*core.JobCompleted); ok && c.Job.ID == id {
					return c.Result.ItemsSynced == 7
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_RetriesUpToMaxAttemptsThenFails(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)

	var calls atomic.Int32
	require.NoError(t, handler.Register(o.Router(), func(ctx context.Context, p core.DueSync) (*core.JobResult, error) {
		calls.Add(1)
		return nil, errors.New("provider unavailable")
	}, 0))

	var retries atomic.Int32
	o.OnRetry(func(context.Context, *core.Job, int, error) { retries.Add(1) })

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.DueSync{})
	require.NoError(t, err)

	startWorker(t, NewWorker(o, PollInterval(5*time.Millisecond)))

	job := waitForStatus(t, o, id, core.StatusFailed)
	assert.Equal(t, 3, job.Attempt)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Contains(t, job.LastError, "provider unavailable")
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), retries.Load())
}

func TestWorker_NoRetryFailsImmediately(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	require.NoError(t, handler.Register(o.Router(), func(ctx context.Context, p core.DueSync) (*core.JobResult, error) {
		return &core.JobResult{Success: false, Errors: []string{"bad input"}}, core.NoRetry(errors.New("bad input"))
	}, 0))

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.DueSync{})
	require.NoError(t, err)

	startWorker(t, NewWorker(o, PollInterval(5*time.Millisecond)))

	job := waitForStatus(t, o, id, core.StatusFailed)
	assert.Equal(t, 1, job.Attempt)

	res, err := job.DecodeResult()
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"bad input"}, res.Errors)
}

func TestWorker_UnknownJobTypeFailsWithoutRetry(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.EducationSync{UserID: "u1"})
	require.NoError(t, err)

	startWorker(t, NewWorker(o, PollInterval(5*time.Millisecond)))

	job := waitForStatus(t, o, id, core.StatusFailed)
	assert.Equal(t, 1, job.Attempt)
	assert.Contains(t, job.LastError, "unknown job type")
}

func TestWorker_PanicIsRetried(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)

	var calls atomic.Int32
	require.NoError(t, handler.Register(o.Router(), func(ctx context.Context, p core.DueSync) (*core.JobResult, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil, nil
	}, 0))

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.DueSync{})
	require.NoError(t, err)

	startWorker(t, NewWorker(o, PollInterval(5*time.Millisecond)))

	job := waitForStatus(t, o, id, core.StatusCompleted)
	assert.Equal(t, 2, job.Attempt)
}

func TestWorker_ReportsProgress(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)

	release := make(chan struct{})
	require.NoError(t, handler.Register(o.Router(), func(ctx context.Context, p core.DueSync) (*core.JobResult, error) {
		if err := jobctx.ReportProgress(ctx, 40); err != nil {
			return nil, err
		}
		<-release
		return nil, nil
	}, 0))

	events := o.Events()
	defer o.Unsubscribe(events)

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.DueSync{})
	require.NoError(t, err)

	startWorker(t, NewWorker(o, PollInterval(5*time.Millisecond)))

	require.Eventually(t, func() bool {
		job, err := o.GetJob(ctx, id)
		return err == nil && job.Status == core.StatusActive && job.Progress == 40
	}, 5*time.Second, 10*time.Millisecond)

	var progress *core.JobProgress
	require.Eventually(t, func() bool {
		select {
		case e := <-events:
			if p, ok := e.(*core.JobProgress); ok {
				progress = p
				return true
			}
		default:
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, id, progress.JobID)
	assert.Equal(t, 40, progress.Progress)

	close(release)
	waitForStatus(t, o, id, core.StatusCompleted)
}

func TestWorker_PoolSizeBoundsActiveJobs(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)

	var active, peak atomic.Int32
	require.NoError(t, handler.Register(o.Router(), func(ctx context.Context, p core.DueSync) (*core.JobResult, error) {
		n := active.Add(1)
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		return nil, nil
	}, 0))

	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		id, err := o.Enqueue(ctx, queue.SyncQueue, core.DueSync{Limit: i})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	startWorker(t, NewWorker(o, WorkerQueue(queue.SyncQueue, Concurrency(2)), PollInterval(5*time.Millisecond)))

	for _, id := range ids {
		waitForStatus(t, o, id, core.StatusCompleted)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestWorker_PausedQueueIsNotClaimed(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	require.NoError(t, handler.Register(o.Router(), func(ctx context.Context, p core.DueSync) (*core.JobResult, error) {
		return nil, nil
	}, 0))

	require.NoError(t, o.Pause(ctx, queue.SyncQueue, "test"))
	id, err := o.Enqueue(ctx, queue.SyncQueue, core.DueSync{})
	require.NoError(t, err)

	startWorker(t, NewWorker(o, PollInterval(5*time.Millisecond)))

	time.Sleep(100 * time.Millisecond)
	job, err := o.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusWaiting, job.Status)

	require.NoError(t, o.Resume(ctx, queue.SyncQueue))
	waitForStatus(t, o, id, core.StatusCompleted)
}

func TestWorker_ReleaseStalledRequeuesThenFails(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	s := o.Storage()

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.DueSync{})
	require.NoError(t, err)

	events := o.Events()
	defer o.Unsubscribe(events)

	w := NewWorker(o, WorkerQueue(queue.SyncQueue))

	// A claim with an already expired lock looks like a dead worker.
	claimed, err := s.Dequeue(ctx, []string{queue.SyncQueue}, "dead-worker", -time.Second)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	w.releaseStalled(ctx)
	job, err := o.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusWaiting, job.Status)
	assert.Equal(t, 1, job.StallCount)

	e := <-events
	stalled, ok := e.(*core.JobsStalled)
	require.True(t, ok)
	assert.Equal(t, int64(1), stalled.Requeued)

	_, err = s.Dequeue(ctx, []string{queue.SyncQueue}, "dead-worker", -time.Second)
	require.NoError(t, err)

	w.releaseStalled(ctx)
	job, err = o.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, job.Status)
	assert.Contains(t, job.LastError, "stalled")
}

func TestWorker_PurgeRemovesExpiredJobs(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t)
	s := o.Storage()

	id, err := o.Enqueue(ctx, queue.SyncQueue, core.DueSync{})
	require.NoError(t, err)
	claimed, err := s.Dequeue(ctx, []string{queue.SyncQueue}, "w", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, claimed.ID, "w", nil))

	w := NewWorker(o, WorkerQueue(queue.SyncQueue))

	w.purge(ctx, time.Now())
	_, err = o.GetJob(ctx, id)
	require.NoError(t, err, "job inside the retention window is kept")

	w.purge(ctx, time.Now().Add(48*time.Hour))
	_, err = o.GetJob(ctx, id)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}
