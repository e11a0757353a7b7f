// Package syncer implements the sync job handlers: it runs the source
// analyzers for a (user, source) target, writes the resulting profile in a
// single upsert, recomputes the user's credibility score and announces the
// change on the notifications queue.
//
// Work on one target is serialized twice. The queue refuses a second
// non-terminal job with the same unique key, and a lease on the target's
// SyncStatus row keeps a full sync and a single-source sync from writing
// the same profile at once.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/analyzer/certification"
	"github.com/jdziat/credibility-sync/pkg/analyzer/education"
	"github.com/jdziat/credibility-sync/pkg/analyzer/repository"
	"github.com/jdziat/credibility-sync/pkg/analyzer/social"
	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/credibility"
	"github.com/jdziat/credibility-sync/pkg/internal/handler"
	"github.com/jdziat/credibility-sync/pkg/jobctx"
	"github.com/jdziat/credibility-sync/pkg/notify"
	"github.com/jdziat/credibility-sync/pkg/queue"
	"github.com/jdziat/credibility-sync/pkg/reference"
)

// Defaults.
const (
	DefaultRefreshInterval = 24 * time.Hour
	DefaultLeaseTTL        = 10 * time.Minute
	DefaultFullSyncLimit   = 4
	DefaultHandlerTimeout  = 5 * time.Minute

	// leaseRetryDelay is how long a single-source sync that found its target
	// busy waits before the queue runs it again.
	leaseRetryDelay = 15 * time.Second
	followUpSuffix  = ":followup"
	dueBatch        = 100
)

// Syncer owns the sync handlers.
type Syncer struct {
	orch  *queue.Orchestrator
	store core.ProfileStore
	agg   *credibility.Aggregator

	repos     repository.Provider
	social    social.Provider
	creds     CredentialProvider
	publisher notify.Publisher
	ref       *reference.Dataset

	repoAnalyzer   *repository.Analyzer
	socialAnalyzer *social.Analyzer
	eduAnalyzer    *education.Analyzer
	certAnalyzer   *certification.Analyzer

	validate  *validator.Validate
	clock     analyzer.Clock
	logger    *slog.Logger
	refresh   time.Duration
	leaseTTL  time.Duration
	fullLimit int
	timeout   time.Duration
}

// New creates a syncer over an orchestrator, the profile store and the
// credibility aggregator. Call Register before starting workers.
func New(orch *queue.Orchestrator, store core.ProfileStore, agg *credibility.Aggregator, opts ...Option) *Syncer {
	s := &Syncer{
		orch:      orch,
		store:     store,
		agg:       agg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		clock:     analyzer.SystemClock,
		logger:    orch.Logger(),
		refresh:   DefaultRefreshInterval,
		leaseTTL:  DefaultLeaseTTL,
		fullLimit: DefaultFullSyncLimit,
		timeout:   DefaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	if s.publisher == nil {
		s.publisher = notify.LogPublisher{Logger: s.logger}
	}
	s.repoAnalyzer = repository.New(s.ref, s.clock)
	s.socialAnalyzer = social.New(s.ref, s.clock)
	s.eduAnalyzer = education.New(s.ref)
	s.certAnalyzer = certification.New(s.ref, s.clock)
	return s
}

// Register installs every sync handler on the orchestrator's routing table
// and the retry hook that keeps SyncStatus in step with the queue.
func (s *Syncer) Register() error {
	r := s.orch.Router()
	regs := []error{
		handler.Register(r, s.syncRepository, s.timeout),
		handler.Register(r, s.syncSocial, s.timeout),
		handler.Register(r, s.syncEducation, s.timeout),
		handler.Register(r, s.syncCertification, s.timeout),
		handler.Register(r, s.syncFull, 3*s.timeout),
		handler.Register(r, s.syncDue, s.timeout),
		handler.Register(r, s.notify, 30*time.Second),
	}
	if err := errors.Join(regs...); err != nil {
		return err
	}
	s.orch.OnRetry(s.markRetrying)
	return nil
}

// EnqueueSync requests a sync of one target. While a job for the target is
// still waiting or running the request is coalesced onto it: the existing
// job's ID is returned with coalesced set. A forced request is never lost to
// coalescing; see escalate.
func (s *Syncer) EnqueueSync(ctx context.Context, p core.SourceSync, opts ...queue.EnqueueOption) (jobID string, coalesced bool, err error) {
	t := p.Target()
	if t.UserID == "" || t.Ref == "" {
		return "", false, core.NoRetry(fmt.Errorf("%w: empty user or source identifier", core.ErrInvalidPayload))
	}
	opts = append(opts, queue.Unique(t.Key()))
	id, err := s.orch.Enqueue(ctx, queue.SyncQueue, p, opts...)
	var dup *core.DuplicateJobError
	if errors.As(err, &dup) {
		if forceRefresh(p) {
			id, err := s.escalate(ctx, t, p, dup.ExistingID)
			return id, true, err
		}
		s.logger.Debug("sync coalesced", "target", t.Key(), "job_id", dup.ExistingID)
		return dup.ExistingID, true, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := s.store.SetSyncState(ctx, t, core.SyncPending, id, ""); err != nil {
		s.logger.Warn("failed to record pending sync", "target", t.Key(), "error", err)
	}
	return id, false, nil
}

// EnqueueFullSync requests a sync of every source of a user, coalescing
// with a full sync that is still pending.
func (s *Syncer) EnqueueFullSync(ctx context.Context, p core.FullSync, opts ...queue.EnqueueOption) (jobID string, coalesced bool, err error) {
	if p.UserID == "" {
		return "", false, core.NoRetry(fmt.Errorf("%w: empty user", core.ErrInvalidPayload))
	}
	opts = append(opts, queue.Unique("full:"+p.UserID))
	id, err := s.orch.Enqueue(ctx, queue.SyncQueue, p, opts...)
	var dup *core.DuplicateJobError
	if errors.As(err, &dup) {
		return dup.ExistingID, true, nil
	}
	return id, false, err
}

// Refresh recomputes a user's credibility score on request.
func (s *Syncer) Refresh(ctx context.Context, userID string) (*core.CredibilityScore, error) {
	return s.agg.Recompute(ctx, userID)
}

func (s *Syncer) syncRepository(ctx context.Context, p core.RepositorySync) (*core.JobResult, error) {
	res, _, err := s.runTarget(ctx, p, false)
	return res, err
}

func (s *Syncer) syncSocial(ctx context.Context, p core.SocialSync) (*core.JobResult, error) {
	res, _, err := s.runTarget(ctx, p, false)
	return res, err
}

func (s *Syncer) syncEducation(ctx context.Context, p core.EducationSync) (*core.JobResult, error) {
	res, _, err := s.runTarget(ctx, p, false)
	return res, err
}

func (s *Syncer) syncCertification(ctx context.Context, p core.CertificationSync) (*core.JobResult, error) {
	res, _, err := s.runTarget(ctx, p, false)
	return res, err
}

// skipped reports why a target was not synced.
type skipped string

const (
	notSkipped skipped = ""
	skipFresh  skipped = "fresh"
	skipBusy   skipped = "busy"
)

// runTarget syncs one target. Inline runs belong to a full sync: they do
// not report job progress, recompute credibility or notify, and a busy
// target is skipped instead of retried.
func (s *Syncer) runTarget(ctx context.Context, p core.SourceSync, inline bool) (*core.JobResult, skipped, error) {
	t := p.Target()
	jobID := jobctx.JobIDFromContext(ctx)
	owner := jobID
	if owner == "" {
		owner = "inline-" + uuid.NewString()
	}
	log := s.logger.With("target", t.Key(), "job_id", jobID)
	progress := func(pct int) {
		if !inline {
			_ = jobctx.ReportProgress(ctx, pct)
		}
	}

	if !forceRefresh(p) {
		if res, ok := s.fresh(ctx, t); ok {
			log.Debug("profile fresh, sync skipped")
			return res, skipFresh, nil
		}
	}

	ok, err := s.store.AcquireSyncLease(ctx, t, owner, s.leaseTTL)
	if err != nil {
		return nil, notSkipped, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		if inline {
			log.Info("target busy, skipped in full sync")
			return &core.JobResult{Success: true, UpdatedAt: s.clock()}, skipBusy, nil
		}
		return nil, notSkipped, core.RetryAfter(leaseRetryDelay, fmt.Errorf("%w: %s", core.ErrSourceBusy, t.Key()))
	}
	defer func() {
		if err := s.store.ReleaseSyncLease(context.WithoutCancel(ctx), t, owner); err != nil {
			log.Warn("failed to release sync lease", "error", err)
		}
	}()

	if err := s.store.SetSyncState(ctx, t, core.SyncProcessing, jobID, ""); err != nil {
		log.Warn("failed to record processing state", "error", err)
	}
	progress(10)

	result, err := s.analyze(ctx, p, progress)
	if err != nil {
		if core.IsValidationError(err) || errors.Is(err, core.ErrNotLinked) {
			err = core.NoRetry(err)
		}
		s.recordFailure(ctx, t, jobID, err)
		return nil, notSkipped, err
	}
	progress(70)

	res, err := s.persist(ctx, t, result)
	if err != nil {
		s.recordFailure(ctx, t, jobID, err)
		return nil, notSkipped, err
	}
	progress(85)

	if err := s.store.SetSyncState(ctx, t, core.SyncCompleted, jobID, ""); err != nil {
		log.Warn("failed to record completed state", "error", err)
	}
	if inline {
		return res, notSkipped, nil
	}

	overall := s.recompute(ctx, t.UserID)
	progress(95)
	s.enqueueNotification(ctx, t, jobID, res, overall)
	progress(100)
	log.Info("source synced", "score", result.Score, "items", result.ItemsSynced)
	return res, notSkipped, nil
}

// escalate applies a forced request to a target that already has a job. A
// job that has not started is rewritten to carry the forced payload. A job
// that is already running may have read the target before the caller's
// change, so a delayed follow-up job is queued behind it; repeated forced
// requests share that follow-up.
func (s *Syncer) escalate(ctx context.Context, t core.SyncTarget, p core.SourceSync, existingID string) (string, error) {
	amended, err := s.orch.Amend(ctx, existingID, p)
	if err != nil && !errors.Is(err, core.ErrJobNotFound) {
		return "", err
	}
	if amended {
		s.logger.Debug("sync coalesced with forced refresh", "target", t.Key(), "job_id", existingID)
		return existingID, nil
	}

	key := t.Key() + followUpSuffix
	id, err := s.orch.Enqueue(ctx, queue.SyncQueue, p, queue.Unique(key), queue.Delay(leaseRetryDelay))
	var dup *core.DuplicateJobError
	if errors.As(err, &dup) {
		if _, err := s.orch.Amend(ctx, dup.ExistingID, p); err != nil && !errors.Is(err, core.ErrJobNotFound) {
			return "", err
		}
		return dup.ExistingID, nil
	}
	if err != nil {
		return "", err
	}
	s.logger.Debug("forced sync queued behind running job", "target", t.Key(), "job_id", id, "running_job_id", existingID)
	return id, nil
}

func forceRefresh(p core.SourceSync) bool {
	switch p := p.(type) {
	case core.RepositorySync:
		return p.ForceRefresh
	case core.SocialSync:
		return p.ForceRefresh
	case core.EducationSync:
		return p.ForceRefresh
	case core.CertificationSync:
		return p.ForceRefresh
	}
	return false
}

// fresh returns a result for a target whose profile is not due yet.
func (s *Syncer) fresh(ctx context.Context, t core.SyncTarget) (*core.JobResult, bool) {
	prof, err := s.store.GetProfile(ctx, t)
	if err != nil || prof == nil || prof.NextSyncAt == nil || !prof.NextSyncAt.After(s.clock()) {
		return nil, false
	}
	next := *prof.NextSyncAt
	return &core.JobResult{Success: true, UpdatedAt: prof.LastFetchedAt, NextSyncAt: &next}, true
}

// analyze fetches upstream data for p and runs its analyzer.
func (s *Syncer) analyze(ctx context.Context, p core.SourceSync, progress func(int)) (*analyzer.Result, error) {
	switch p := p.(type) {
	case core.RepositorySync:
		if s.repos == nil {
			return nil, core.NoRetry(errors.New("no repository provider configured"))
		}
		token, err := s.token(ctx, p.Target())
		if err != nil {
			return nil, err
		}
		act, err := s.repos.FetchActivity(ctx, p.Login, token)
		if err != nil {
			return nil, err
		}
		progress(50)
		return s.repoAnalyzer.Analyze(act), nil

	case core.SocialSync:
		if !s.socialAnalyzer.Supports(p.Platform) {
			ve := &core.ValidationError{Record: "social"}
			ve.Add("platform", fmt.Sprintf("unsupported platform %q", p.Platform))
			return nil, ve
		}
		if s.social == nil {
			return nil, core.NoRetry(errors.New("no social provider configured"))
		}
		token, err := s.token(ctx, p.Target())
		if err != nil {
			return nil, err
		}
		acct, err := s.social.FetchAccount(ctx, strings.ToLower(p.Platform), p.Handle, token)
		if err != nil {
			return nil, err
		}
		progress(50)
		return s.socialAnalyzer.Analyze(acct)

	case core.EducationSync:
		recs, err := s.store.ListEducationRecords(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		progress(50)
		return s.eduAnalyzer.Analyze(recs)

	case core.CertificationSync:
		recs, err := s.store.ListCertificationRecords(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		progress(50)
		return s.certAnalyzer.Analyze(recs)
	}
	return nil, core.NoRetry(fmt.Errorf("%w: %T", core.ErrInvalidPayload, p))
}

func (s *Syncer) token(ctx context.Context, t core.SyncTarget) (string, error) {
	if s.creds == nil {
		return "", nil
	}
	tok, err := s.creds.Token(ctx, t)
	if err != nil {
		return "", fmt.Errorf("credential for %s: %w", t.Key(), err)
	}
	return tok, nil
}

// persist writes the profile and the skills it produced in one upsert.
func (s *Syncer) persist(ctx context.Context, t core.SyncTarget, r *analyzer.Result) (*core.JobResult, error) {
	metrics, err := r.EncodeMetrics()
	if err != nil {
		return nil, core.NoRetry(fmt.Errorf("encode metrics: %w", err))
	}
	now := s.clock()
	next := now.Add(s.refresh)
	prof := &core.SourceProfile{
		UserID:        t.UserID,
		Source:        t.Source,
		SourceRef:     t.Ref,
		Metrics:       datatypes.JSON(metrics),
		Score:         r.Score,
		Verified:      r.Verified,
		LastFetchedAt: now,
		NextSyncAt:    &next,
	}

	if len(r.Skills) > 0 {
		canon := make([]core.Skill, 0, len(r.Skills))
		for _, ev := range r.Skills {
			canon = append(canon, core.Skill{Name: ev.Name, Category: ev.Category, MarketDemand: ev.MarketDemand})
		}
		if err := s.store.UpsertSkills(ctx, canon); err != nil {
			return nil, fmt.Errorf("upsert skills: %w", err)
		}
	}
	if err := s.store.UpsertProfile(ctx, prof, analyzer.UserSkills(t, r.Skills)); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return &core.JobResult{Success: true, ItemsSynced: r.ItemsSynced, UpdatedAt: now, NextSyncAt: &next}, nil
}

func (s *Syncer) recordFailure(ctx context.Context, t core.SyncTarget, jobID string, err error) {
	if serr := s.store.SetSyncState(context.WithoutCancel(ctx), t, core.SyncFailed, jobID, err.Error()); serr != nil {
		s.logger.Warn("failed to record sync failure", "target", t.Key(), "error", serr)
	}
}

// markRetrying moves a failed attempt back to pending once the queue has
// scheduled another attempt.
func (s *Syncer) markRetrying(ctx context.Context, job *core.Job, _ int, err error) {
	p, derr := core.DecodePayload(job.Type, job.Args)
	if derr != nil {
		return
	}
	ss, ok := p.(core.SourceSync)
	if !ok {
		return
	}
	if serr := s.store.SetSyncState(ctx, ss.Target(), core.SyncPending, job.ID, err.Error()); serr != nil {
		s.logger.Warn("failed to record retry state", "job_id", job.ID, "error", serr)
	}
}

// recompute refreshes the credibility score and returns the new overall
// score, or nil if recomputing failed. A failure here does not fail the
// sync: the profile is already written and the next refresh catches up.
func (s *Syncer) recompute(ctx context.Context, userID string) *int {
	score, err := s.agg.Recompute(ctx, userID)
	if err != nil {
		s.logger.Error("credibility recompute failed", "user_id", userID, "error", err)
		return nil
	}
	return &score.Overall
}

func (s *Syncer) enqueueNotification(ctx context.Context, t core.SyncTarget, jobID string, res *core.JobResult, overall *int) {
	n := core.SyncNotification{
		UserID:  t.UserID,
		Source:  t.Source,
		Ref:     t.Ref,
		JobID:   jobID,
		Result:  *res,
		Overall: overall,
	}
	if _, err := s.orch.Enqueue(ctx, queue.NotificationsQueue, n); err != nil {
		s.logger.Warn("failed to enqueue notification", "user_id", t.UserID, "error", err)
	}
}

func (s *Syncer) notify(ctx context.Context, n core.SyncNotification) (*core.JobResult, error) {
	if err := s.publisher.Publish(ctx, n); err != nil {
		return nil, err
	}
	return &core.JobResult{Success: true, ItemsSynced: 1, UpdatedAt: s.clock()}, nil
}
