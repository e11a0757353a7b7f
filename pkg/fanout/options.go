package fanout

import "time"

// Option configures a Run.
type Option interface {
	apply(*settings)
}

type optionFunc func(*settings)

func (f optionFunc) apply(s *settings) { f(s) }

type settings struct {
	strategy     Strategy
	limit        int
	taskTimeout  time.Duration
	totalTimeout time.Duration
}

// FailFast cancels the remaining tasks on the first failure. It is the
// default.
func FailFast() Option {
	return optionFunc(func(s *settings) { s.strategy = StrategyFailFast })
}

// CollectAll runs every task to completion and reports all failures.
func CollectAll() Option {
	return optionFunc(func(s *settings) { s.strategy = StrategyCollectAll })
}

// WithLimit bounds how many tasks run at once. Zero means no bound.
func WithLimit(n int) Option {
	return optionFunc(func(s *settings) { s.limit = n })
}

// WithTaskTimeout bounds each task on its own.
func WithTaskTimeout(d time.Duration) Option {
	return optionFunc(func(s *settings) { s.taskTimeout = d })
}

// WithTimeout bounds the whole run.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(s *settings) { s.totalTimeout = d })
}
