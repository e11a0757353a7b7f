// Package credsync assembles the credibility sync service: durable sync
// jobs over a GORM store, source analyzers, credibility aggregation, skill
// gap analysis, the score cache and sync notifications.
//
// Basic usage:
//
//	store, _ := storage.OpenStorage("sqlite", "credsync.db")
//	sys, _ := credsync.New(ctx, store,
//	    credsync.WithSyncerOptions(syncer.WithRepositoryProvider(repository.NewClient(url))),
//	)
//	defer sys.Close()
//
//	id, _, _ := sys.EnqueueSync(ctx, credsync.RepositorySync{UserID: "u1", Login: "octocat"})
//	go sys.NewWorker().Start(ctx)
//	job, _ := sys.GetJob(ctx, id)
package credsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jdziat/credibility-sync/pkg/cache"
	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/credibility"
	"github.com/jdziat/credibility-sync/pkg/queue"
	"github.com/jdziat/credibility-sync/pkg/schedule"
	"github.com/jdziat/credibility-sync/pkg/skillgap"
	"github.com/jdziat/credibility-sync/pkg/storage"
	"github.com/jdziat/credibility-sync/pkg/syncer"
	"github.com/jdziat/credibility-sync/pkg/worker"
)

// Type aliases for the payloads and records callers build.
type (
	Job                 = core.Job
	JobResult           = core.JobResult
	Source              = core.Source
	SyncTarget          = core.SyncTarget
	RepositorySync      = core.RepositorySync
	SocialSync          = core.SocialSync
	EducationSync       = core.EducationSync
	CertificationSync   = core.CertificationSync
	FullSync            = core.FullSync
	SyncStatus          = core.SyncStatus
	CredibilityScore    = core.CredibilityScore
	EducationRecord     = core.EducationRecord
	CertificationRecord = core.CertificationRecord
	CareerGoal          = core.CareerGoal
	UserSkill           = core.UserSkill
	ValidationError     = core.ValidationError
)

// Sources
const (
	SourceRepository    = core.SourceRepository
	SourceSocial        = core.SourceSocial
	SourceEducation     = core.SourceEducation
	SourceCertification = core.SourceCertification
)

// Error variables
var (
	ErrJobNotFound   = core.ErrJobNotFound
	ErrUnknownSource = core.ErrUnknownSource
	ErrSourceBusy    = core.ErrSourceBusy
	ErrNotLinked     = core.ErrNotLinked
	ErrGoalNotFound  = core.ErrGoalNotFound
)

const (
	// DueSyncJob is the name of the recurring job that refreshes stale profiles.
	DueSyncJob = "due-sync"
	// DefaultDueSchedule is how often DueSyncJob runs.
	DefaultDueSchedule = "@every 1h"
)

// System is one assembled service instance. It is constructed explicitly
// and shared by the worker, the HTTP API and the CLI.
type System struct {
	store  *storage.GormStorage
	orch   *queue.Orchestrator
	syncer *syncer.Syncer
	scores *credibility.Aggregator
	gaps   *skillgap.Analyzer
	cache  *cache.Redis
	logger *slog.Logger

	closers []func() error
}

// New migrates store and wires the orchestrator, the sync handlers and the
// credibility aggregator over it.
func New(ctx context.Context, store *storage.GormStorage, opts ...Option) (*System, error) {
	cfg := settings{logger: slog.Default(), dueSchedule: DefaultDueSchedule}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	queueOpts := append([]queue.Option{queue.WithLogger(cfg.logger)}, cfg.queueOpts...)
	orch := queue.New(store, queueOpts...)

	aggOpts := []credibility.Option{credibility.WithLogger(cfg.logger)}
	if cfg.cache.Available() {
		aggOpts = append(aggOpts, credibility.WithCache(cache.NewScores(cfg.cache)))
	}
	if cfg.clock != nil {
		aggOpts = append(aggOpts, credibility.WithClock(cfg.clock))
	}
	agg := credibility.NewAggregator(store, aggOpts...)

	syncOpts := []syncer.Option{syncer.WithLogger(cfg.logger)}
	if cfg.publisher != nil {
		syncOpts = append(syncOpts, syncer.WithPublisher(cfg.publisher))
	}
	if cfg.ref != nil {
		syncOpts = append(syncOpts, syncer.WithReference(cfg.ref))
	}
	if cfg.clock != nil {
		syncOpts = append(syncOpts, syncer.WithClock(cfg.clock))
	}
	syncOpts = append(syncOpts, cfg.syncerOpts...)
	s := syncer.New(orch, store, agg, syncOpts...)
	if err := s.Register(); err != nil {
		return nil, fmt.Errorf("register handlers: %w", err)
	}

	if cfg.dueSchedule != "" {
		sched, err := schedule.Parse(cfg.dueSchedule)
		if err != nil {
			return nil, fmt.Errorf("due sync schedule: %w", err)
		}
		orch.Schedule(DueSyncJob, queue.SyncQueue, sched, core.DueSync{})
	}

	return &System{
		store:   store,
		orch:    orch,
		syncer:  s,
		scores:  agg,
		gaps:    skillgap.New(cfg.ref),
		cache:   cfg.cache,
		logger:  cfg.logger,
		closers: cfg.closers,
	}, nil
}

// Orchestrator returns the job orchestrator.
func (s *System) Orchestrator() *queue.Orchestrator { return s.orch }

// Storage returns the backing store.
func (s *System) Storage() *storage.GormStorage { return s.store }

// Syncer returns the sync handler set.
func (s *System) Syncer() *syncer.Syncer { return s.syncer }

// NewWorker creates a worker over the system's queues. The due-sync
// scheduler runs unless disabled with worker.WithScheduler(false).
func (s *System) NewWorker(opts ...worker.WorkerOption) *worker.Worker {
	all := append([]worker.WorkerOption{worker.WithLogger(s.logger), worker.WithScheduler(true)}, opts...)
	return worker.NewWorker(s.orch, all...)
}

// Close releases the cache, the notification broker and any other
// resources handed over with WithCloser.
func (s *System) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	errs = append(errs, s.cache.Close())
	return errors.Join(errs...)
}

// EnqueueSync requests a single-source sync, coalescing onto a pending
// job for the same target.
func (s *System) EnqueueSync(ctx context.Context, p core.SourceSync) (string, bool, error) {
	return s.syncer.EnqueueSync(ctx, p)
}

// EnqueueFullSync requests a sync of every source of a user.
func (s *System) EnqueueFullSync(ctx context.Context, p core.FullSync) (string, bool, error) {
	return s.syncer.EnqueueFullSync(ctx, p)
}

// SyncStatuses returns the per-source sync status of a user.
func (s *System) SyncStatuses(ctx context.Context, userID string) ([]core.SyncStatus, error) {
	return s.store.ListSyncStatuses(ctx, userID)
}

// GetJob returns a job for polling.
func (s *System) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	return s.orch.GetJob(ctx, jobID)
}

// ListJobs returns jobs of a queue in one status, newest first.
func (s *System) ListJobs(ctx context.Context, queueName string, status core.JobStatus, limit int) ([]*core.Job, error) {
	return s.store.GetJobsByStatus(ctx, queueName, status, limit)
}

// RetryJob resets a failed job.
func (s *System) RetryJob(ctx context.Context, jobID string) error {
	return s.orch.Retry(ctx, jobID)
}

// RemoveJob deletes a job that has not started.
func (s *System) RemoveJob(ctx context.Context, jobID string) error {
	return s.orch.Remove(ctx, jobID)
}

// Credibility returns the user's score, computing it on first request.
func (s *System) Credibility(ctx context.Context, userID string) (*core.CredibilityScore, error) {
	return s.scores.Get(ctx, userID)
}

// RefreshCredibility recomputes the user's score from persisted profiles.
func (s *System) RefreshCredibility(ctx context.Context, userID string) (*core.CredibilityScore, error) {
	return s.syncer.Refresh(ctx, userID)
}

// Skills returns the user's skill inventory.
func (s *System) Skills(ctx context.Context, userID string) ([]core.UserSkill, error) {
	return s.store.ListUserSkills(ctx, userID)
}

// Readiness analyzes the user's skills against every stored career goal.
func (s *System) Readiness(ctx context.Context, userID string) (skillgap.Report, error) {
	skills, err := s.store.ListUserSkills(ctx, userID)
	if err != nil {
		return skillgap.Report{}, fmt.Errorf("list skills: %w", err)
	}
	goals, err := s.store.ListCareerGoals(ctx, userID)
	if err != nil {
		return skillgap.Report{}, fmt.Errorf("list goals: %w", err)
	}
	return s.gaps.Analyze(skills, goals), nil
}

// SubmitEducation validates and stores an education record and enqueues
// its rescoring.
func (s *System) SubmitEducation(ctx context.Context, rec *core.EducationRecord) (string, error) {
	return s.syncer.SubmitEducation(ctx, rec)
}

// SubmitCertification validates and stores a certification and enqueues
// its rescoring.
func (s *System) SubmitCertification(ctx context.Context, rec *core.CertificationRecord) (string, error) {
	return s.syncer.SubmitCertification(ctx, rec)
}

// SaveCareerGoal validates and stores a career goal.
func (s *System) SaveCareerGoal(ctx context.Context, goal *core.CareerGoal) error {
	return s.syncer.SaveCareerGoal(ctx, goal)
}

// Queues lists the queues with a policy.
func (s *System) Queues() []string { return s.orch.Queues() }

// QueueMetrics returns per-status counts of a queue.
func (s *System) QueueMetrics(ctx context.Context, queueName string) (queue.Metrics, error) {
	return s.orch.GetMetrics(ctx, queueName)
}

// PauseQueue stops workers from claiming jobs in a queue.
func (s *System) PauseQueue(ctx context.Context, queueName, by string) error {
	return s.orch.Pause(ctx, queueName, by)
}

// ResumeQueue resumes a paused queue.
func (s *System) ResumeQueue(ctx context.Context, queueName string) error {
	return s.orch.Resume(ctx, queueName)
}

// Health reports advisory queue issues.
func (s *System) Health(ctx context.Context) (queue.Health, error) {
	return s.orch.CheckHealth(ctx)
}

// Events subscribes to queue events.
func (s *System) Events() <-chan core.Event { return s.orch.Events() }

// Unsubscribe ends an Events subscription.
func (s *System) Unsubscribe(ch <-chan core.Event) { s.orch.Unsubscribe(ch) }
