package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jdziat/credibility-sync/pkg/core"
)

// RetryConfig bounds retries of the storage calls a worker cannot afford to
// lose: claiming, completing, failing and heartbeating jobs.
type RetryConfig struct {
	// Attempts includes the first call. Values below 1 mean 1.
	Attempts int
	// Base is the delay after the first failure; it doubles per attempt.
	Base time.Duration
	// Cap bounds the delay. Zero means unbounded.
	Cap time.Duration
	// Jitter randomizes each delay by up to this fraction in either
	// direction.
	Jitter float64
}

// DefaultStorageRetry is used for completing, failing and heartbeating.
func DefaultStorageRetry() RetryConfig {
	return RetryConfig{Attempts: 5, Base: 100 * time.Millisecond, Cap: 5 * time.Second, Jitter: 0.1}
}

// defaultDequeueRetry backs off longer so an outage is not hammered by pollers.
func defaultDequeueRetry() RetryConfig {
	return RetryConfig{Attempts: 3, Base: 500 * time.Millisecond, Cap: 10 * time.Second, Jitter: 0.2}
}

// delay returns the pause after failed attempt n (1-based), before jitter.
func (c RetryConfig) delay(n int) time.Duration {
	d := c.Base
	for i := 1; i < n; i++ {
		d *= 2
		if c.Cap > 0 && d >= c.Cap {
			return c.Cap
		}
	}
	if c.Cap > 0 && d > c.Cap {
		return c.Cap
	}
	return d
}

func (c RetryConfig) jittered(d time.Duration) time.Duration {
	if c.Jitter <= 0 || d <= 0 {
		return d
	}
	j := time.Duration(float64(d) * c.Jitter * (rand.Float64()*2 - 1))
	if d+j < 0 {
		return d
	}
	return d + j
}

// do runs op until it succeeds, fails permanently or the attempts run out,
// and returns the last error.
func (c RetryConfig) do(ctx context.Context, op func() error) error {
	attempts := max(c.Attempts, 1)
	var err error
	for n := 1; ; n++ {
		if err = op(); err == nil || !transientStorageError(err) || n >= attempts {
			return err
		}
		t := time.NewTimer(c.jittered(c.delay(n)))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// transientStorageError treats database errors as transient unless another
// attempt cannot change the outcome.
func transientStorageError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrJobNotOwned), errors.Is(err, core.ErrJobNotFound):
		return false
	}
	return true
}
