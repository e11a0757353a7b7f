package credsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jdziat/credibility-sync/pkg/analyzer/repository"
	"github.com/jdziat/credibility-sync/pkg/analyzer/social"
	"github.com/jdziat/credibility-sync/pkg/cache"
	"github.com/jdziat/credibility-sync/pkg/config"
	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/notify"
	"github.com/jdziat/credibility-sync/pkg/queue"
	"github.com/jdziat/credibility-sync/pkg/reference"
	"github.com/jdziat/credibility-sync/pkg/storage"
	"github.com/jdziat/credibility-sync/pkg/syncer"
)

// Open builds a System from configuration: the database, the optional
// Redis cache and RabbitMQ publisher, the provider clients and the queue
// policies. Extra options are applied after the configured ones.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...Option) (*System, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, closers, err := configure(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	store, err := storage.OpenStorage(cfg.DBDriver, cfg.DBDSN, storage.MaxOpenConns(cfg.DBMaxOpenConns))
	if err != nil {
		release()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if sqlDB, err := store.DB().DB(); err == nil {
		closers = append(closers, sqlDB.Close)
		opts = append(opts, WithCloser(sqlDB.Close))
	}

	sys, err := New(ctx, store, append(opts, extra...)...)
	if err != nil {
		release()
		return nil, err
	}
	return sys, nil
}

// configure turns configuration into options. The returned closers own the
// connections opened so far; they are also registered with the options.
func configure(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]Option, []func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	opts := []Option{WithLogger(logger), WithDueSchedule(cfg.DueSyncSchedule)}
	var closers []func() error

	if cfg.ReferencePath != "" {
		ref, err := reference.LoadFile(cfg.ReferencePath)
		if err != nil {
			return nil, nil, fmt.Errorf("reference data: %w", err)
		}
		opts = append(opts, WithReference(ref))
	}

	rc := cache.New(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.CacheTTL,
		Logger:   logger,
	})
	opts = append(opts, WithCache(rc))

	if cfg.RabbitURL != "" {
		pub, err := notify.DialAMQP(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("notifications broker: %w", err), rc.Close())
		}
		closers = append(closers, pub.Close)
		opts = append(opts, WithPublisher(pub), WithCloser(pub.Close))
	}

	syncPolicy := queue.DefaultPolicy(queue.SyncQueue)
	syncPolicy.Concurrency = cfg.SyncConcurrency
	notifyPolicy := queue.DefaultPolicy(queue.NotificationsQueue)
	notifyPolicy.Concurrency = cfg.NotifyConcurrency
	opts = append(opts, WithQueueOptions(
		queue.WithPolicy(queue.SyncQueue, syncPolicy),
		queue.WithPolicy(queue.NotificationsQueue, notifyPolicy),
		queue.WithHealthThresholds(cfg.FailedThreshold, cfg.WaitingThreshold),
	))

	syncOpts := []syncer.Option{
		syncer.RefreshInterval(cfg.RefreshInterval),
		syncer.LeaseTTL(cfg.LeaseTTL),
		syncer.FullSyncLimit(cfg.FullSyncLimit),
	}
	if cfg.RepositoryAPIURL != "" {
		syncOpts = append(syncOpts, syncer.WithRepositoryProvider(repository.NewClient(cfg.RepositoryAPIURL)))
	}
	if cfg.SocialAPIURL != "" {
		syncOpts = append(syncOpts, syncer.WithSocialProvider(social.NewClient(cfg.SocialAPIURL)))
	}
	creds := syncer.StaticCredentials{}
	if cfg.RepositoryToken != "" {
		creds[core.SourceRepository] = cfg.RepositoryToken
	}
	if cfg.SocialToken != "" {
		creds[core.SourceSocial] = cfg.SocialToken
	}
	if len(creds) > 0 {
		syncOpts = append(syncOpts, syncer.WithCredentials(creds))
	}
	opts = append(opts, WithSyncerOptions(syncOpts...))

	// The cache is closed by System.Close; on early failure the caller
	// releases it through the closers.
	closers = append([]func() error{rc.Close}, closers...)
	return opts, closers, nil
}
