package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/fanout"
	"github.com/jdziat/credibility-sync/pkg/jobctx"
	"github.com/jdziat/credibility-sync/pkg/queue"
	"github.com/jdziat/credibility-sync/pkg/security"
)

// sourceRun is the outcome of one source within a full sync.
type sourceRun struct {
	result  *core.JobResult
	skipped skipped
}

// syncFull syncs every requested source of a user concurrently. One
// failing source never stops the others: all errors are collected, the
// sources that succeeded stay persisted, and the job fails without retry
// when any source failed so the user can retry only the failed ones.
func (s *Syncer) syncFull(ctx context.Context, p core.FullSync) (*core.JobResult, error) {
	targets, err := s.fullTargets(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return &core.JobResult{Success: true, UpdatedAt: s.clock()}, nil
	}

	var done atomic.Int32
	tasks := make([]fanout.Task[sourceRun], len(targets))
	for i, target := range targets {
		tasks[i] = fanout.Task[sourceRun]{
			Name: target.Target().Key(),
			Run: func(ctx context.Context) (sourceRun, error) {
				res, skip, err := s.runTarget(ctx, target, true)
				n := done.Add(1)
				_ = jobctx.ReportProgress(ctx, int(n)*90/len(targets))
				return sourceRun{result: res, skipped: skip}, err
			},
		}
	}

	results, ferr := fanout.Run(ctx, tasks,
		fanout.CollectAll(),
		fanout.WithLimit(s.fullLimit),
		fanout.WithTaskTimeout(s.timeout),
	)

	out := &core.JobResult{UpdatedAt: s.clock()}
	for _, msg := range fanout.Messages(results) {
		out.Errors = append(out.Errors, security.SanitizeErrorMessage(msg))
	}
	changed := false
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if r.Value.result != nil {
			out.ItemsSynced += r.Value.result.ItemsSynced
		}
		if r.Value.skipped == notSkipped {
			changed = true
		}
	}
	out.Success = len(out.Errors) == 0

	var overall *int
	if changed {
		overall = s.recompute(ctx, p.UserID)
	}
	jobID := jobctx.JobIDFromContext(ctx)
	s.enqueueNotification(ctx, core.SyncTarget{UserID: p.UserID, Source: "all"}, jobID, out, overall)
	_ = jobctx.ReportProgress(ctx, 100)

	if ferr != nil {
		s.logger.Warn("full sync finished with failures", "user_id", p.UserID, "failed", len(out.Errors), "total", len(targets))
		return out, core.NoRetry(ferr)
	}
	return out, nil
}

// fullTargets lists the sources a full sync covers. An empty request covers
// every source the user already has a profile for plus submitted records.
func (s *Syncer) fullTargets(ctx context.Context, p core.FullSync) ([]core.SourceSync, error) {
	var targets []core.SourceSync
	seen := make(map[string]bool)
	add := func(t core.SourceSync) {
		if k := t.Target().Key(); !seen[k] {
			seen[k] = true
			targets = append(targets, t)
		}
	}

	explicit := p.Repository != nil || len(p.Social) > 0 || p.Education || p.Certification
	if p.Repository != nil {
		r := *p.Repository
		r.UserID, r.ForceRefresh = p.UserID, r.ForceRefresh || p.ForceRefresh
		add(r)
	}
	for _, sp := range p.Social {
		sp.UserID, sp.ForceRefresh = p.UserID, sp.ForceRefresh || p.ForceRefresh
		add(sp)
	}
	if p.Education || !explicit {
		add(core.EducationSync{UserID: p.UserID, ForceRefresh: p.ForceRefresh})
	}
	if p.Certification || !explicit {
		add(core.CertificationSync{UserID: p.UserID, ForceRefresh: p.ForceRefresh})
	}
	if explicit {
		return targets, nil
	}

	profiles, err := s.store.ListProfiles(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	for i := range profiles {
		t, err := PayloadFor(&profiles[i])
		if err != nil {
			s.logger.Warn("cannot rebuild sync for profile", "user_id", p.UserID, "source", profiles[i].Source, "error", err)
			continue
		}
		t = withForce(t, p.ForceRefresh)
		add(t)
	}
	return targets, nil
}

func withForce(p core.SourceSync, force bool) core.SourceSync {
	if !force {
		return p
	}
	switch v := p.(type) {
	case core.RepositorySync:
		v.ForceRefresh = true
		return v
	case core.SocialSync:
		v.ForceRefresh = true
		return v
	case core.EducationSync:
		v.ForceRefresh = true
		return v
	case core.CertificationSync:
		v.ForceRefresh = true
		return v
	}
	return p
}

// PayloadFor rebuilds the sync payload that produced a profile.
func PayloadFor(prof *core.SourceProfile) (core.SourceSync, error) {
	switch prof.Source {
	case core.SourceRepository:
		return core.RepositorySync{UserID: prof.UserID, Login: prof.SourceRef}, nil
	case core.SourceSocial:
		var m struct {
			Handle string `json:"handle"`
		}
		if err := json.Unmarshal(prof.Metrics, &m); err != nil || m.Handle == "" {
			return nil, fmt.Errorf("social profile %s has no handle", prof.SourceRef)
		}
		return core.SocialSync{UserID: prof.UserID, Platform: prof.SourceRef, Handle: m.Handle}, nil
	case core.SourceEducation:
		return core.EducationSync{UserID: prof.UserID}, nil
	case core.SourceCertification:
		return core.CertificationSync{UserID: prof.UserID}, nil
	}
	return nil, fmt.Errorf("%w: %q", core.ErrUnknownSource, prof.Source)
}

// syncDue enqueues a sync for every profile whose next sync time has
// passed. Targets that already have a pending job are coalesced.
func (s *Syncer) syncDue(ctx context.Context, p core.DueSync) (*core.JobResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = dueBatch
	}
	profiles, err := s.store.DueProfiles(ctx, s.clock(), limit)
	if err != nil {
		return nil, fmt.Errorf("due profiles: %w", err)
	}

	res := &core.JobResult{Success: true, UpdatedAt: s.clock()}
	var errs []error
	for i := range profiles {
		payload, err := PayloadFor(&profiles[i])
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		_, coalesced, err := s.EnqueueSync(ctx, payload, queue.Priority(-1))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !coalesced {
			res.ItemsSynced++
		}
		_ = jobctx.ReportProgress(ctx, (i+1)*100/len(profiles))
	}
	if len(errs) > 0 {
		res.Success = false
		return res, errors.Join(errs...)
	}
	return res, nil
}
