// Package config loads the service configuration from CREDSYNC_*
// environment variables, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment key.
const Prefix = "CREDSYNC_"

// Config is the runtime configuration of the daemon and CLI.
type Config struct {
	DBDriver       string `validate:"oneof=sqlite postgres mysql"`
	DBDSN          string `validate:"required"`
	DBMaxOpenConns int    `validate:"gte=1"`

	RedisAddr     string
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	CacheTTL      time.Duration `validate:"gt=0"`

	RabbitURL   string `validate:"omitempty,url"`
	RabbitQueue string `validate:"required"`

	HTTPAddr string `validate:"required"`

	SyncConcurrency   int   `validate:"gte=1,lte=100"`
	NotifyConcurrency int   `validate:"gte=1,lte=100"`
	FailedThreshold   int64 `validate:"gte=0"`
	WaitingThreshold  int64 `validate:"gte=0"`

	RefreshInterval time.Duration `validate:"gt=0"`
	LeaseTTL        time.Duration `validate:"gt=0"`
	FullSyncLimit   int           `validate:"gte=1"`
	DueSyncSchedule string        `validate:"required"`

	ReferencePath string

	RepositoryAPIURL string `validate:"omitempty,url"`
	RepositoryToken  string
	SocialAPIURL     string `validate:"omitempty,url"`
	SocialToken      string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		DBDriver:          "sqlite",
		DBDSN:             "file:credsync.db?_busy_timeout=5000&_journal_mode=WAL",
		DBMaxOpenConns:    25,
		CacheTTL:          10 * time.Minute,
		RabbitQueue:       "credsync.notifications",
		HTTPAddr:          ":8080",
		SyncConcurrency:   3,
		NotifyConcurrency: 10,
		FailedThreshold:   100,
		WaitingThreshold:  1000,
		RefreshInterval:   24 * time.Hour,
		LeaseTTL:          10 * time.Minute,
		FullSyncLimit:     4,
		DueSyncSchedule:   "@every 1h",
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load reads the given .env files, missing ones skipped, then overlays
// CREDSYNC_* variables on the defaults and validates the result. Variables
// already present in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a configuration from a variable lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	c := Default()
	e := &env{lookup: lookup}

	e.str("DB_DRIVER", &c.DBDriver)
	e.str("DB_DSN", &c.DBDSN)
	e.int("DB_MAX_OPEN_CONNS", &c.DBMaxOpenConns)

	e.str("REDIS_ADDR", &c.RedisAddr)
	e.str("REDIS_PASSWORD", &c.RedisPassword)
	e.int("REDIS_DB", &c.RedisDB)
	e.duration("CACHE_TTL", &c.CacheTTL)

	e.str("RABBIT_URL", &c.RabbitURL)
	e.str("RABBIT_QUEUE", &c.RabbitQueue)

	e.str("HTTP_ADDR", &c.HTTPAddr)

	e.int("SYNC_CONCURRENCY", &c.SyncConcurrency)
	e.int("NOTIFY_CONCURRENCY", &c.NotifyConcurrency)
	e.int64("FAILED_THRESHOLD", &c.FailedThreshold)
	e.int64("WAITING_THRESHOLD", &c.WaitingThreshold)

	e.duration("REFRESH_INTERVAL", &c.RefreshInterval)
	e.duration("LEASE_TTL", &c.LeaseTTL)
	e.int("FULL_SYNC_LIMIT", &c.FullSyncLimit)
	e.str("DUE_SYNC_SCHEDULE", &c.DueSyncSchedule)

	e.str("REFERENCE_PATH", &c.ReferencePath)

	e.str("REPOSITORY_API_URL", &c.RepositoryAPIURL)
	e.str("REPOSITORY_TOKEN", &c.RepositoryToken)
	e.str("SOCIAL_API_URL", &c.SocialAPIURL)
	e.str("SOCIAL_TOKEN", &c.SocialToken)

	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_FORMAT", &c.LogFormat)

	c.DBDriver = strings.ToLower(c.DBDriver)
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = validator.New()

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s %s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(Prefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *env) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s%s: %w", Prefix, key, err))
			return
		}
		*dst = n
	}
}

func (e *env) int64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s%s: %w", Prefix, key, err))
			return
		}
		*dst = n
	}
}

func (e *env) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s%s: %w", Prefix, key, err))
			return
		}
		*dst = d
	}
}
