package queue

import (
	"time"

	"github.com/jdziat/credibility-sync/pkg/security"
)

// Well-known queues.
const (
	SyncQueue          = "sync"
	NotificationsQueue = "notifications"
)

// Policy is the fixed job policy of one queue.
type Policy struct {
	// Attempts is the attempt ceiling per job, including the first run.
	Attempts int
	// BackoffBase is the delay before the first retry; it doubles per attempt.
	BackoffBase time.Duration
	// BackoffCap bounds the retry delay.
	BackoffCap time.Duration

	// KeepCompletedAge and KeepCompletedCount bound completed-job retention.
	// A completed job is purged once it is older than the age or falls
	// outside the newest count.
	KeepCompletedAge   time.Duration
	KeepCompletedCount int
	// KeepFailedAge bounds failed-job retention.
	KeepFailedAge time.Duration

	// Concurrency is the number of jobs processed at once from this queue.
	Concurrency int
	// LockDuration is how long a claim stays valid without a heartbeat.
	LockDuration time.Duration
	// MaxStalledCount is how often a job may be reclaimed from a dead worker
	// before it is failed.
	MaxStalledCount int
}

// DefaultPolicy returns the policy used for a queue without explicit
// configuration. The sync queue calls rate-limited providers and runs at a
// lower concurrency than the internal notifications queue.
func DefaultPolicy(queue string) Policy {
	p := Policy{
		Attempts:           3,
		BackoffBase:        2 * time.Second,
		BackoffCap:         5 * time.Minute,
		KeepCompletedAge:   24 * time.Hour,
		KeepCompletedCount: 1000,
		KeepFailedAge:      7 * 24 * time.Hour,
		Concurrency:        5,
		LockDuration:       30 * time.Second,
		MaxStalledCount:    1,
	}
	switch queue {
	case SyncQueue:
		p.Concurrency = 3
		p.BackoffBase = 5 * time.Second
		p.LockDuration = 2 * time.Minute
	case NotificationsQueue:
		p.Concurrency = 10
		p.BackoffBase = time.Second
		p.KeepCompletedAge = time.Hour
		p.KeepCompletedCount = 100
	}
	return p
}

// normalize clamps limits and fills zero fields from the queue's defaults.
func (p Policy) normalize(queue string) Policy {
	d := DefaultPolicy(queue)
	if p.Attempts == 0 {
		p.Attempts = d.Attempts
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = d.BackoffBase
	}
	if p.BackoffCap <= 0 {
		p.BackoffCap = d.BackoffCap
	}
	if p.BackoffCap < p.BackoffBase {
		p.BackoffCap = p.BackoffBase
	}
	if p.KeepCompletedAge <= 0 {
		p.KeepCompletedAge = d.KeepCompletedAge
	}
	if p.KeepFailedAge <= 0 {
		p.KeepFailedAge = d.KeepFailedAge
	}
	if p.LockDuration <= 0 {
		p.LockDuration = d.LockDuration
	}
	if p.MaxStalledCount < 0 {
		p.MaxStalledCount = 0
	}
	if p.Concurrency == 0 {
		p.Concurrency = d.Concurrency
	}
	p.Attempts = security.ClampAttempts(p.Attempts)
	p.Concurrency = security.ClampConcurrency(p.Concurrency)
	return p
}

// Backoff returns the delay before retrying after the given attempt (1-based).
// The delay is BackoffBase doubled per prior attempt, capped at BackoffCap.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if d > p.BackoffCap {
		return p.BackoffCap
	}
	return d
}
