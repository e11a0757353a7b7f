package credsync

import (
	"log/slog"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/cache"
	"github.com/jdziat/credibility-sync/pkg/notify"
	"github.com/jdziat/credibility-sync/pkg/queue"
	"github.com/jdziat/credibility-sync/pkg/reference"
	"github.com/jdziat/credibility-sync/pkg/syncer"
)

// settings collects Option values before the system is built.
type settings struct {
	logger      *slog.Logger
	cache       *cache.Redis
	publisher   notify.Publisher
	ref         *reference.Dataset
	clock       analyzer.Clock
	dueSchedule string
	queueOpts   []queue.Option
	syncerOpts  []syncer.Option
	closers     []func() error
}

// Option configures a System.
type Option interface {
	apply(*settings)
}

type optionFunc func(*settings)

func (f optionFunc) apply(s *settings) { f(s) }

// WithLogger sets the logger shared by the queue, the syncer and workers.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *settings) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithCache puts a Redis read-through cache in front of credibility scores.
// The system takes ownership and closes it.
func WithCache(r *cache.Redis) Option {
	return optionFunc(func(s *settings) {
		s.cache = r
	})
}

// WithPublisher sets where sync notifications go.
func WithPublisher(p notify.Publisher) Option {
	return optionFunc(func(s *settings) {
		s.publisher = p
	})
}

// WithReference replaces the embedded reference dataset.
func WithReference(ref *reference.Dataset) Option {
	return optionFunc(func(s *settings) {
		s.ref = ref
	})
}

// WithClock sets the time source used for freshness and scoring.
func WithClock(c analyzer.Clock) Option {
	return optionFunc(func(s *settings) {
		s.clock = c
	})
}

// WithDueSchedule sets the cron expression of the due-sync job. An empty
// expression disables it.
func WithDueSchedule(expr string) Option {
	return optionFunc(func(s *settings) {
		s.dueSchedule = expr
	})
}

// WithQueueOptions passes options through to the orchestrator.
func WithQueueOptions(opts ...queue.Option) Option {
	return optionFunc(func(s *settings) {
		s.queueOpts = append(s.queueOpts, opts...)
	})
}

// WithSyncerOptions passes options through to the syncer.
func WithSyncerOptions(opts ...syncer.Option) Option {
	return optionFunc(func(s *settings) {
		s.syncerOpts = append(s.syncerOpts, opts...)
	})
}

// WithCloser registers a function Close calls, in reverse order of
// registration.
func WithCloser(fn func() error) Option {
	return optionFunc(func(s *settings) {
		if fn != nil {
			s.closers = append(s.closers, fn)
		}
	})
}
