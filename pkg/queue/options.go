package queue

import (
	"log/slog"
	"time"
)

// EnqueueOptions holds per-job enqueue settings.
type EnqueueOptions struct {
	Priority  int
	Attempts  int
	Delay     time.Duration
	RunAt     *time.Time
	UniqueKey string
}

// EnqueueOption modifies EnqueueOptions.
type EnqueueOption interface {
	Apply(*EnqueueOptions)
}

type enqueueOptionFunc func(*EnqueueOptions)

func (f enqueueOptionFunc) Apply(o *EnqueueOptions) { f(o) }

// Priority sets the job priority (higher = runs first).
func Priority(p int) EnqueueOption {
	return enqueueOptionFunc(func(o *EnqueueOptions) {
		o.Priority = p
	})
}

// Attempts overrides the queue policy's attempt ceiling for one job.
func Attempts(n int) EnqueueOption {
	return enqueueOptionFunc(func(o *EnqueueOptions) {
		o.Attempts = n
	})
}

// Delay schedules the job to run after a duration.
func Delay(d time.Duration) EnqueueOption {
	return enqueueOptionFunc(func(o *EnqueueOptions) {
		o.Delay = d
	})
}

// At schedules the job to run at a specific time.
func At(t time.Time) EnqueueOption {
	return enqueueOptionFunc(func(o *EnqueueOptions) {
		o.RunAt = &t
	})
}

// Unique rejects the job while another non-terminal job holds key.
func Unique(key string) EnqueueOption {
	return enqueueOptionFunc(func(o *EnqueueOptions) {
		o.UniqueKey = key
	})
}

// Option configures an Orchestrator.
type Option interface {
	apply(*Orchestrator)
}

type optionFunc func(*Orchestrator)

func (f optionFunc) apply(o *Orchestrator) { f(o) }

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithPolicy sets the policy of a queue.
func WithPolicy(queue string, p Policy) Option {
	return optionFunc(func(o *Orchestrator) {
		o.policies[queue] = p.normalize(queue)
	})
}

// WithHealthThresholds sets the failed and waiting counts above which a
// queue is reported unhealthy.
func WithHealthThresholds(failed, waiting int64) Option {
	return optionFunc(func(o *Orchestrator) {
		o.failedThreshold = failed
		o.waitingThreshold = waiting
	})
}

// ExpectPaused marks queues whose paused state is not a health issue.
func ExpectPaused(queues ...string) Option {
	return optionFunc(func(o *Orchestrator) {
		for _, q := range queues {
			o.expectedPaused[q] = true
		}
	})
}
