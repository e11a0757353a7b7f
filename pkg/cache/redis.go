// Package cache is an optional Redis read-through cache. A Redis that is
// nil, unreachable at startup or failing at runtime is bypassed: reads miss
// and writes are dropped, so callers fall back to the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when a write does not name a TTL.
const DefaultTTL = 10 * time.Minute

// ErrUnavailable is returned by Ping when no Redis is connected.
var ErrUnavailable = errors.New("cache: redis unavailable")

// Options configures a Redis cache.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
	Logger   *slog.Logger
}

// Redis is a JSON cache over go-redis. A nil *Redis is valid and always
// bypassed.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger

	warned atomic.Bool
}

// New connects to Redis and pings it. When Addr is empty or the ping fails
// the returned cache is disconnected and bypassed.
func New(ctx context.Context, opts Options) *Redis {
	r := &Redis{ttl: opts.TTL, prefix: opts.Prefix, logger: opts.Logger}
	if r.ttl <= 0 {
		r.ttl = DefaultTTL
	}
	if r.prefix == "" {
		r.prefix = "credsync:"
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if opts.Addr == "" {
		return r
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		r.logger.Warn("redis unavailable, bypassing cache", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return r
	}
	r.client = client
	return r
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, prefix: "credsync:", logger: logger}
}

// Available reports whether a Redis connection is in use.
func (r *Redis) Available() bool {
	return r != nil && r.client != nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Available() {
		return ErrUnavailable
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the connection.
func (r *Redis) Close() error {
	if !r.Available() {
		return nil
	}
	return r.client.Close()
}

func (r *Redis) key(k string) string { return r.prefix + k }

// warnOnce logs the first runtime failure; later ones are silent until the
// cache recovers.
func (r *Redis) warnOnce(op string, err error) {
	if r.warned.CompareAndSwap(false, true) {
		r.logger.Warn("redis error, bypassing cache", "op", op, "error", err)
	}
}

// GetJSON decodes the value at key into out. It reports false on a miss or
// when the cache is bypassed.
func (r *Redis) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	if !r.Available() {
		return false, nil
	}
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		r.warnOnce("get", err)
		return false, err
	}
	r.warned.Store(false)
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores value at key. A zero ttl uses the cache default.
func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !r.Available() {
		return nil
	}
	if ttl <= 0 {
		ttl = r.ttl
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), b, ttl).Err(); err != nil {
		r.warnOnce("set", err)
		return err
	}
	return nil
}

// Delete removes keys.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if !r.Available() || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		r.warnOnce("delete", err)
		return err
	}
	return nil
}
