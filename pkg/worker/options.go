package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/credibility-sync/pkg/security"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	// Queues maps queue name to pool size. Zero means the queue policy's
	// concurrency.
	Queues          map[string]int
	PollInterval    time.Duration
	WorkerID        string
	EnableScheduler bool
	Logger          *slog.Logger

	// StalledInterval is how often expired locks are reclaimed.
	StalledInterval time.Duration
	// CleanupInterval is how often finished jobs are purged. Zero disables
	// the janitor.
	CleanupInterval time.Duration

	StorageRetry *RetryConfig
	DequeueRetry *RetryConfig

	// concurrency is scratch space for options nested in WorkerQueue.
	concurrency int
}

// Concurrency sets the pool size of the queue it is passed to via
// WorkerQueue. Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.concurrency = security.ClampConcurrency(n)
	})
}

// WorkerQueue adds a queue to process. Without Concurrency the pool size
// comes from the queue's policy.
func WorkerQueue(name string, opts ...WorkerOption) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if c.Queues == nil {
			c.Queues = make(map[string]int)
		}
		var sub WorkerConfig
		for _, opt := range opts {
			opt.ApplyWorker(&sub)
		}
		c.Queues[name] = sub.concurrency
	})
}

// WithScheduler enables the scheduler in the worker.
func WithScheduler(enabled bool) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.EnableScheduler = enabled
	})
}

// PollInterval sets how long an idle pool waits before polling again.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// WorkerID sets the identity used to claim and lock jobs.
func WorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if id != "" {
			c.WorkerID = id
		}
	})
}

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}

// StalledInterval sets how often the stalled-job detector runs.
func StalledInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.StalledInterval = d
		}
	})
}

// CleanupInterval sets how often the retention janitor runs.
func CleanupInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.CleanupInterval = d
	})
}

// WithStorageRetry sets the retry policy for completing, failing and
// heartbeating jobs.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}

// WithDequeueRetry sets the retry policy for claiming jobs.
func WithDequeueRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.DequeueRetry = &cfg
	})
}

// DisableRetry makes every storage call single-shot.
func DisableRetry() WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		once := RetryConfig{Attempts: 1}
		c.StorageRetry = &once
		dq := once
		c.DequeueRetry = &dq
	})
}
