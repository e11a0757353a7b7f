// Package queue provides the job orchestrator: named queues with per-queue
// policy, enqueueing, metrics, retry, pause and health checks.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/internal/handler"
	"github.com/jdziat/credibility-sync/pkg/schedule"
	"github.com/jdziat/credibility-sync/pkg/security"
)

// Default health thresholds.
const (
	DefaultFailedThreshold  = 100
	DefaultWaitingThreshold = 1000
)

// Orchestrator owns the queues, their policies and the handler routing table.
// It is constructed explicitly and shared by workers and API handlers.
type Orchestrator struct {
	storage core.Storage
	router  *handler.Router
	logger  *slog.Logger

	mu            sync.RWMutex
	policies      map[string]Policy
	scheduledJobs map[string]*ScheduledJob

	failedThreshold  int64
	waitingThreshold int64
	expectedPaused   map[string]bool

	// Hooks
	onStart    []func(context.Context, *core.Job)
	onComplete []func(context.Context, *core.Job, *core.JobResult)
	onFail     []func(context.Context, *core.Job, error)
	onRetry    []func(context.Context, *core.Job, int, error)

	// Event stream
	eventSubs []chan core.Event
}

// ScheduledJob holds configuration for a recurring job.
type ScheduledJob struct {
	Name     string
	Queue    string
	Schedule schedule.Schedule
	Payload  core.Payload
}

// New creates an Orchestrator over the given storage backend. The sync and
// notifications queues always have a policy.
func New(s core.Storage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		storage:          s,
		router:           handler.NewRouter(),
		logger:           slog.Default(),
		policies:         make(map[string]Policy),
		scheduledJobs:    make(map[string]*ScheduledJob),
		failedThreshold:  DefaultFailedThreshold,
		waitingThreshold: DefaultWaitingThreshold,
		expectedPaused:   make(map[string]bool),
	}
	for _, q := range []string{SyncQueue, NotificationsQueue} {
		o.policies[q] = DefaultPolicy(q)
	}
	for _, opt := range opts {
		opt.apply(o)
	}
	return o
}

// Storage returns the underlying storage.
func (o *Orchestrator) Storage() core.Storage {
	return o.storage
}

// Router returns the handler routing table.
func (o *Orchestrator) Router() *handler.Router {
	return o.router
}

// Logger returns the orchestrator's logger.
func (o *Orchestrator) Logger() *slog.Logger {
	return o.logger
}

// Handle registers the handler for a job type. Job types must be
// alphanumeric (starting with a letter), max 255 chars.
func (o *Orchestrator) Handle(t core.JobType, fn handler.Func, timeout time.Duration) error {
	if err := security.ValidateJobType(t); err != nil {
		return fmt.Errorf("credsync: invalid handler type %q: %w", t, err)
	}
	return o.router.Handle(t, fn, timeout)
}

// HasHandler checks if a handler is registered.
func (o *Orchestrator) HasHandler(t core.JobType) bool {
	_, ok := o.router.Lookup(t)
	return ok
}

// SetPolicy replaces the policy of a queue.
func (o *Orchestrator) SetPolicy(queue string, p Policy) error {
	if err := security.ValidateQueueName(queue); err != nil {
		return err
	}
	o.mu.Lock()
	o.policies[queue] = p.normalize(queue)
	o.mu.Unlock()
	return nil
}

// Policy returns the policy of a queue, falling back to its defaults.
func (o *Orchestrator) Policy(queue string) Policy {
	o.mu.RLock()
	p, ok := o.policies[queue]
	o.mu.RUnlock()
	if !ok {
		return DefaultPolicy(queue)
	}
	return p
}

// Queues lists every queue with a policy, sorted.
func (o *Orchestrator) Queues() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.policies))
	for q := range o.policies {
		names = append(names, q)
	}
	sort.Strings(names)
	return names
}

// Enqueue adds a job carrying payload to a queue and returns its ID.
// With Unique, a conflicting non-terminal job yields *core.DuplicateJobError.
func (o *Orchestrator) Enqueue(ctx context.Context, queueName string, payload core.Payload, opts ...EnqueueOption) (string, error) {
	if err := security.ValidateQueueName(queueName); err != nil {
		return "", err
	}
	if payload == nil {
		return "", fmt.Errorf("%w: nil payload", core.ErrInvalidPayload)
	}
	if err := security.ValidateJobType(payload.JobType()); err != nil {
		return "", err
	}

	options := &EnqueueOptions{}
	for _, opt := range opts {
		opt.Apply(options)
	}

	args, err := core.EncodePayload(payload)
	if err != nil {
		return "", fmt.Errorf("credsync: failed to encode payload: %w", err)
	}
	if err := security.ValidatePayloadSize(args); err != nil {
		return "", err
	}

	attempts := o.Policy(queueName).Attempts
	if options.Attempts > 0 {
		attempts = security.ClampAttempts(options.Attempts)
	}

	job := &core.Job{
		Type:        payload.JobType(),
		Args:        args,
		Queue:       queueName,
		Priority:    options.Priority,
		MaxAttempts: attempts,
	}
	if options.Delay > 0 {
		runAt := time.Now().Add(options.Delay)
		job.RunAt = &runAt
	}
	if options.RunAt != nil {
		job.RunAt = options.RunAt
	}

	if options.UniqueKey != "" {
		if err := security.ValidateUniqueKey(options.UniqueKey); err != nil {
			return "", err
		}
		if err := o.storage.EnqueueUnique(ctx, job, options.UniqueKey); err != nil {
			if errors.Is(err, core.ErrDuplicateJob) {
				return "", err
			}
			return "", fmt.Errorf("credsync: failed to enqueue: %w", err)
		}
	} else if err := o.storage.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("credsync: failed to enqueue: %w", err)
	}

	o.Emit(&core.JobEnqueued{Job: job, Timestamp: time.Now()})
	return job.ID, nil
}

// GetJob returns a job by ID for polling state, progress and result.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	return o.storage.GetJob(ctx, jobID)
}

// Metrics is a snapshot of one queue.
type Metrics struct {
	Queue string `json:"queue"`
	core.QueueCounts
	Paused bool `json:"paused"`
}

// GetMetrics returns per-status job counts for a queue.
func (o *Orchestrator) GetMetrics(ctx context.Context, queueName string) (Metrics, error) {
	if err := security.ValidateQueueName(queueName); err != nil {
		return Metrics{}, err
	}
	counts, err := o.storage.CountByStatus(ctx, queueName)
	if err != nil {
		return Metrics{}, err
	}
	paused, err := o.storage.IsQueuePaused(ctx, queueName)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{Queue: queueName, QueueCounts: counts, Paused: paused}, nil
}

// Retry resets a failed job to waiting with a fresh attempt budget.
func (o *Orchestrator) Retry(ctx context.Context, jobID string) error {
	job, err := o.storage.RetryJob(ctx, jobID)
	if err != nil {
		return err
	}
	o.Emit(&core.JobEnqueued{Job: job, Timestamp: time.Now()})
	return nil
}

// Remove deletes a job that has not started yet. Active jobs cannot be
// cancelled and yield core.ErrNotRemovable.
func (o *Orchestrator) Remove(ctx context.Context, jobID string) error {
	return o.storage.RemoveJob(ctx, jobID)
}

// Amend replaces the payload of a job that has not started yet. It reports
// false once a worker has claimed the job. The payload must be of the job's
// type.
func (o *Orchestrator) Amend(ctx context.Context, jobID string, payload core.Payload) (bool, error) {
	if payload == nil {
		return false, fmt.Errorf("%w: nil payload", core.ErrInvalidPayload)
	}
	args, err := core.EncodePayload(payload)
	if err != nil {
		return false, fmt.Errorf("credsync: failed to encode payload: %w", err)
	}
	if err := security.ValidatePayloadSize(args); err != nil {
		return false, err
	}
	return o.storage.AmendJob(ctx, jobID, payload.JobType(), args)
}

// Pause stops workers from claiming jobs in a queue. Active jobs finish.
func (o *Orchestrator) Pause(ctx context.Context, queueName, by string) error {
	if err := security.ValidateQueueName(queueName); err != nil {
		return err
	}
	if err := o.storage.PauseQueue(ctx, queueName, by); err != nil {
		return err
	}
	o.logger.Info("queue paused", "queue", queueName, "by", by)
	o.Emit(&core.QueuePaused{Queue: queueName, Timestamp: time.Now()})
	return nil
}

// Resume resumes a paused queue.
func (o *Orchestrator) Resume(ctx context.Context, queueName string) error {
	if err := security.ValidateQueueName(queueName); err != nil {
		return err
	}
	if err := o.storage.UnpauseQueue(ctx, queueName); err != nil {
		return err
	}
	o.logger.Info("queue resumed", "queue", queueName)
	o.Emit(&core.QueueResumed{Queue: queueName, Timestamp: time.Now()})
	return nil
}

// IsPaused checks if a queue is paused.
func (o *Orchestrator) IsPaused(ctx context.Context, queueName string) (bool, error) {
	if err := security.ValidateQueueName(queueName); err != nil {
		return false, err
	}
	return o.storage.IsQueuePaused(ctx, queueName)
}

// Schedule registers a recurring job. The worker's scheduler enqueues
// payload on queueName whenever sched fires.
func (o *Orchestrator) Schedule(name, queueName string, sched schedule.Schedule, payload core.Payload) {
	o.mu.Lock()
	o.scheduledJobs[name] = &ScheduledJob{
		Name:     name,
		Queue:    queueName,
		Schedule: sched,
		Payload:  payload,
	}
	o.mu.Unlock()
}

// GetScheduledJobs returns a copy of the registered recurring jobs.
func (o *Orchestrator) GetScheduledJobs() map[string]*ScheduledJob {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]*ScheduledJob, len(o.scheduledJobs))
	for k, v := range o.scheduledJobs {
		out[k] = v
	}
	return out
}

// OnJobStart registers a callback for when a job starts.
func (o *Orchestrator) OnJobStart(fn func(context.Context, *core.Job)) {
	o.mu.Lock()
	o.onStart = append(o.onStart, fn)
	o.mu.Unlock()
}

// OnJobComplete registers a callback for when a job completes successfully.
func (o *Orchestrator) OnJobComplete(fn func(context.Context, *core.Job, *core.JobResult)) {
	o.mu.Lock()
	o.onComplete = append(o.onComplete, fn)
	o.mu.Unlock()
}

// OnJobFail registers a callback for when a job fails permanently.
func (o *Orchestrator) OnJobFail(fn func(context.Context, *core.Job, error)) {
	o.mu.Lock()
	o.onFail = append(o.onFail, fn)
	o.mu.Unlock()
}

// OnRetry registers a callback for when a failed attempt is scheduled for retry.
func (o *Orchestrator) OnRetry(fn func(context.Context, *core.Job, int, error)) {
	o.mu.Lock()
	o.onRetry = append(o.onRetry, fn)
	o.mu.Unlock()
}

// CallStartHooks calls all registered start hooks.
func (o *Orchestrator) CallStartHooks(ctx context.Context, job *core.Job) {
	o.mu.RLock()
	hooks := append([]func(context.Context, *core.Job){}, o.onStart...)
	o.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallCompleteHooks calls all registered complete hooks.
func (o *Orchestrator) CallCompleteHooks(ctx context.Context, job *core.Job, res *core.JobResult) {
	o.mu.RLock()
	hooks := append([]func(context.Context, *core.Job, *core.JobResult){}, o.onComplete...)
	o.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job, res)
	}
}

// CallFailHooks calls all registered fail hooks.
func (o *Orchestrator) CallFailHooks(ctx context.Context, job *core.Job, err error) {
	o.mu.RLock()
	hooks := append([]func(context.Context, *core.Job, error){}, o.onFail...)
	o.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job, err)
	}
}

// CallRetryHooks calls all registered retry hooks.
func (o *Orchestrator) CallRetryHooks(ctx context.Context, job *core.Job, attempt int, err error) {
	o.mu.RLock()
	hooks := append([]func(context.Context, *core.Job, int, error){}, o.onRetry...)
	o.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job, attempt, err)
	}
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (o *Orchestrator) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	o.mu.Lock()
	o.eventSubs = append(o.eventSubs, ch)
	o.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; after Unsubscribe returns no further events
// are sent to it.
func (o *Orchestrator) Unsubscribe(ch <-chan core.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, sub := range o.eventSubs {
		if sub == ch {
			o.eventSubs = append(o.eventSubs[:i], o.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers. Slow subscribers drop events
// rather than block job processing.
func (o *Orchestrator) Emit(e core.Event) {
	o.mu.RLock()
	subs := make([]chan core.Event, len(o.eventSubs))
	copy(subs, o.eventSubs)
	o.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}
