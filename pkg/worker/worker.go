package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/credibility-sync/pkg/core"
	intctx "github.com/jdziat/credibility-sync/pkg/internal/context"
	"github.com/jdziat/credibility-sync/pkg/queue"
)

// Worker processes jobs from the orchestrator's queues.
type Worker struct {
	orch   *queue.Orchestrator
	config WorkerConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorker creates a new worker for the given orchestrator.
func NewWorker(o *queue.Orchestrator, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval:    250 * time.Millisecond,
		WorkerID:        uuid.New().String(),
		StalledInterval: 15 * time.Second,
		CleanupInterval: 10 * time.Minute,
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	// Without explicit queues the worker serves every queue with a policy.
	if len(config.Queues) == 0 {
		config.Queues = make(map[string]int)
		for _, q := range o.Queues() {
			config.Queues[q] = 0
		}
	}
	for q, n := range config.Queues {
		if n <= 0 {
			config.Queues[q] = o.Policy(q).Concurrency
		}
	}

	if config.StorageRetry == nil {
		r := DefaultStorageRetry()
		config.StorageRetry = &r
	}
	if config.DequeueRetry == nil {
		r := defaultDequeueRetry()
		config.DequeueRetry = &r
	}

	logger := config.Logger
	if logger == nil {
		logger = o.Logger()
	}

	return &Worker{
		orch:   o,
		config: config,
		logger: logger.With("worker_id", config.WorkerID),
	}
}

// ID returns the identity the worker claims jobs under.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Config returns the resolved worker configuration.
func (w *Worker) Config() WorkerConfig {
	return w.config
}

// Start begins processing jobs. Blocks until context is cancelled, then
// waits for in-flight jobs to finish.
func (w *Worker) Start(ctx context.Context) error {
	queues := make([]string, 0, len(w.config.Queues))
	for q := range w.config.Queues {
		queues = append(queues, q)
	}
	sort.Strings(queues)

	w.logger.Info("worker started", "queues", w.config.Queues)

	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		w.runStalledDetector(ctx)
	}()
	if w.config.CleanupInterval > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			w.runJanitor(ctx)
		}()
	}
	if w.config.EnableScheduler {
		bg.Add(1)
		go func() {
			defer bg.Done()
			w.runScheduler(ctx)
		}()
	}

	for _, q := range queues {
		bg.Add(1)
		go func(q string) {
			defer bg.Done()
			w.runPool(ctx, q, w.config.Queues[q])
		}(q)
	}

	<-ctx.Done()
	bg.Wait()
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

// runPool runs a fixed pool of n goroutines for one queue. The poller only
// claims a job after a pool goroutine has signalled it is free.
func (w *Worker) runPool(ctx context.Context, queueName string, n int) {
	ready := make(chan struct{})
	jobs := make(chan *core.Job)

	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, ready, jobs)
	}
	defer close(jobs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
		}

		for {
			job, err := w.dequeueWithRetry(ctx, queueName)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				w.logger.Error("failed to dequeue after retries", "queue", queueName, "error", err)
			}
			if job != nil {
				jobs <- job
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.config.PollInterval):
			}
		}
	}
}

// dequeueWithRetry attempts to dequeue a job with exponential backoff on failure.
func (w *Worker) dequeueWithRetry(ctx context.Context, queueName string) (*core.Job, error) {
	lockFor := w.orch.Policy(queueName).LockDuration
	var job *core.Job
	err := w.config.DequeueRetry.do(ctx, func() error {
		var dequeueErr error
		job, dequeueErr = w.orch.Storage().Dequeue(ctx, []string{queueName}, w.config.WorkerID, lockFor)
		return dequeueErr
	})
	return job, err
}

func (w *Worker) processLoop(ctx context.Context, ready chan<- struct{}, jobs <-chan *core.Job) {
	defer w.wg.Done()

	for {
		select {
		case ready <- struct{}{}:
		case <-ctx.Done():
			return
		}
		job, ok := <-jobs
		if !ok {
			return
		}
		// A claimed job runs to completion even when shutdown begins.
		w.processJob(context.WithoutCancel(ctx), job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *core.Job) {
	startTime := time.Now()
	policy := w.orch.Policy(job.Queue)
	log := w.logger.With("job_id", job.ID, "type", job.Type, "queue", job.Queue, "attempt", job.Attempt)

	w.orch.CallStartHooks(ctx, job)
	w.orch.Emit(&core.JobStarted{Job: job, Timestamp: startTime})

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, job, policy.LockDuration)

	res, err := w.executeHandler(ctx, job)

	cancelHeartbeat()

	if err != nil {
		w.handleError(ctx, log, job, policy, res, err)
		return
	}

	if res == nil {
		res = &core.JobResult{Success: true}
	}
	if res.UpdatedAt.IsZero() {
		res.UpdatedAt = time.Now().UTC()
	}
	if err := w.completeWithRetry(ctx, job.ID, encodeResult(res)); err != nil {
		log.Error("failed to complete job after retries", "error", err)
		return
	}
	job.Status = core.StatusCompleted
	job.Progress = 100
	log.Debug("job completed", "duration", time.Since(startTime))
	w.orch.CallCompleteHooks(ctx, job, res)
	w.orch.Emit(&core.JobCompleted{Job: job, Result: res, Duration: time.Since(startTime), Timestamp: time.Now()})
}

// completeWithRetry marks a job complete with retry on transient failures.
func (w *Worker) completeWithRetry(ctx context.Context, jobID string, result []byte) error {
	return w.config.StorageRetry.do(ctx, func() error {
		return w.orch.Storage().Complete(ctx, jobID, w.config.WorkerID, result)
	})
}

// runHeartbeat periodically extends the job lock during execution.
// A worker that dies stops heartbeating and its lock expires.
func (w *Worker) runHeartbeat(ctx context.Context, job *core.Job, lockFor time.Duration) {
	interval := lockFor / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.config.StorageRetry.do(ctx, func() error {
				return w.orch.Storage().Heartbeat(ctx, job.ID, w.config.WorkerID, lockFor)
			})
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					w.logger.Warn("heartbeat failed after retries", "job_id", job.ID, "error", err)
				}
			} else {
				w.logger.Debug("heartbeat sent", "job_id", job.ID)
			}
		}
	}
}

func (w *Worker) executeHandler(ctx context.Context, job *core.Job) (res *core.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	run := &intctx.Run{
		Job:      job,
		WorkerID: w.config.WorkerID,
		Progress: func(ctx context.Context, pct int) error {
			if err := w.orch.Storage().UpdateProgress(ctx, job.ID, w.config.WorkerID, pct); err != nil {
				return err
			}
			job.Progress = pct
			w.orch.Emit(&core.JobProgress{JobID: job.ID, Queue: job.Queue, Progress: pct, Timestamp: time.Now()})
			return nil
		},
	}
	return w.orch.Router().Dispatch(intctx.With(ctx, run), job)
}

func (w *Worker) handleError(ctx context.Context, log *slog.Logger, job *core.Job, policy queue.Policy, res *core.JobResult, err error) {
	var result []byte
	if res != nil {
		if res.UpdatedAt.IsZero() {
			res.UpdatedAt = time.Now().UTC()
		}
		result = encodeResult(res)
	}

	var noRetry *core.NoRetryError
	if !errors.As(err, &noRetry) && job.Attempt < job.MaxAttempts {
		delay := policy.Backoff(job.Attempt)
		var retryAfter *core.RetryAfterError
		if errors.As(err, &retryAfter) && retryAfter.Delay > 0 {
			delay = retryAfter.Delay
		}
		retryAt := time.Now().Add(delay)
		w.failWithRetry(ctx, job.ID, err.Error(), &retryAt, result)
		job.Status = core.StatusDelayed
		log.Warn("job attempt failed, retrying", "error", err, "retry_in", delay)
		w.orch.CallRetryHooks(ctx, job, job.Attempt, err)
		w.orch.Emit(&core.JobRetrying{Job: job, Attempt: job.Attempt, Error: err, NextRunAt: retryAt, Timestamp: time.Now()})
		return
	}

	w.failWithRetry(ctx, job.ID, err.Error(), nil, result)
	job.Status = core.StatusFailed
	log.Error("job failed", "error", err)
	w.orch.CallFailHooks(ctx, job, err)
	w.orch.Emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
}

// failWithRetry marks a job as failed with retry on transient storage failures.
func (w *Worker) failWithRetry(ctx context.Context, jobID, errMsg string, retryAt *time.Time, result []byte) {
	err := w.config.StorageRetry.do(ctx, func() error {
		return w.orch.Storage().Fail(ctx, jobID, w.config.WorkerID, errMsg, retryAt, result)
	})
	if err != nil {
		w.logger.Error("failed to mark job as failed after retries", "job_id", jobID, "error", err)
	}
}

// runStalledDetector requeues or fails jobs whose lock expired without a
// heartbeat.
func (w *Worker) runStalledDetector(ctx context.Context) {
	ticker := time.NewTicker(w.config.StalledInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.releaseStalled(ctx)
		}
	}
}

func (w *Worker) releaseStalled(ctx context.Context) {
	limits := make(map[string]int, len(w.config.Queues))
	for q := range w.config.Queues {
		limits[q] = w.orch.Policy(q).MaxStalledCount
	}
	requeued, failed, err := w.orch.Storage().ReleaseStalled(ctx, limits)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error("failed to release stalled jobs", "error", err)
		}
		return
	}
	if requeued+failed > 0 {
		w.logger.Warn("stalled jobs released", "requeued", requeued, "failed", failed)
		w.orch.Emit(&core.JobsStalled{Requeued: requeued, Failed: failed, Timestamp: time.Now()})
	}
}

// runJanitor purges finished jobs past their queue's retention.
func (w *Worker) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.purge(ctx, time.Now())
		}
	}
}

func (w *Worker) purge(ctx context.Context, now time.Time) {
	for q := range w.config.Queues {
		p := w.orch.Policy(q)
		n, err := w.orch.Storage().PurgeFinished(ctx, q, core.StatusCompleted, now.Add(-p.KeepCompletedAge), p.KeepCompletedCount)
		if err != nil {
			w.logger.Error("failed to purge completed jobs", "queue", q, "error", err)
			continue
		}
		m, err := w.orch.Storage().PurgeFinished(ctx, q, core.StatusFailed, now.Add(-p.KeepFailedAge), 0)
		if err != nil {
			w.logger.Error("failed to purge failed jobs", "queue", q, "error", err)
			continue
		}
		if n+m > 0 {
			w.logger.Debug("purged finished jobs", "queue", q, "completed", n, "failed", m)
		}
	}
}

// runScheduler enqueues recurring jobs when their schedule fires. Each
// schedule holds a unique key so overlapping runs collapse into one job.
func (w *Worker) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	start := time.Now()
	nextRun := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for name, sj := range w.orch.GetScheduledJobs() {
				next, ok := nextRun[name]
				if !ok {
					next = sj.Schedule.Next(start)
					nextRun[name] = next
				}
				if now.Before(next) {
					continue
				}
				_, err := w.orch.Enqueue(ctx, sj.Queue, sj.Payload, queue.Unique("schedule:"+name))
				if err != nil && !errors.Is(err, core.ErrDuplicateJob) {
					w.logger.Error("failed to enqueue scheduled job", "name", name, "error", err)
					continue
				}
				nextRun[name] = sj.Schedule.Next(now)
			}
		}
	}
}

func encodeResult(res *core.JobResult) []byte {
	b, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	return b
}
