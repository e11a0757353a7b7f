package syncer

import (
	"log/slog"
	"time"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/analyzer/repository"
	"github.com/jdziat/credibility-sync/pkg/analyzer/social"
	"github.com/jdziat/credibility-sync/pkg/notify"
	"github.com/jdziat/credibility-sync/pkg/reference"
)

// Option configures a Syncer.
type Option interface {
	apply(*Syncer)
}

type optionFunc func(*Syncer)

func (f optionFunc) apply(s *Syncer) { f(s) }

// WithRepositoryProvider sets the repository activity provider.
func WithRepositoryProvider(p repository.Provider) Option {
	return optionFunc(func(s *Syncer) { s.repos = p })
}

// WithSocialProvider sets the social platform provider.
func WithSocialProvider(p social.Provider) Option {
	return optionFunc(func(s *Syncer) { s.social = p })
}

// WithCredentials sets the bearer credential source for providers.
func WithCredentials(c CredentialProvider) Option {
	return optionFunc(func(s *Syncer) { s.creds = c })
}

// WithPublisher sets the notification publisher. Without one notifications
// are logged.
func WithPublisher(p notify.Publisher) Option {
	return optionFunc(func(s *Syncer) { s.publisher = p })
}

// WithReference replaces the embedded reference dataset.
func WithReference(ref *reference.Dataset) Option {
	return optionFunc(func(s *Syncer) { s.ref = ref })
}

// WithClock sets the clock used by analyzers and sync timestamps.
func WithClock(c analyzer.Clock) Option {
	return optionFunc(func(s *Syncer) { s.clock = c })
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	})
}

// RefreshInterval sets how long a synced profile stays fresh before the
// due-sync job picks it up again.
func RefreshInterval(d time.Duration) Option {
	return optionFunc(func(s *Syncer) {
		if d > 0 {
			s.refresh = d
		}
	})
}

// LeaseTTL bounds how long a crashed sync can block its target.
func LeaseTTL(d time.Duration) Option {
	return optionFunc(func(s *Syncer) {
		if d > 0 {
			s.leaseTTL = d
		}
	})
}

// FullSyncLimit bounds how many sources a full sync fetches at once.
func FullSyncLimit(n int) Option {
	return optionFunc(func(s *Syncer) {
		if n > 0 {
			s.fullLimit = n
		}
	})
}

// HandlerTimeout sets the per-job timeout of single-source syncs.
func HandlerTimeout(d time.Duration) Option {
	return optionFunc(func(s *Syncer) {
		if d > 0 {
			s.timeout = d
		}
	})
}
