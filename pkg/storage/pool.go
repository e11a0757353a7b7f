package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Pool sizes the database/sql pool behind GORM. Sync workers hold a
// connection only around claim, heartbeat and upsert, so the defaults cover
// both queues at their default concurrency.
type Pool struct {
	MaxOpen     int
	MaxIdle     int // clamped to MaxOpen
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPool returns the pool used when no PoolOption is given.
func DefaultPool() Pool {
	return Pool{MaxOpen: 25, MaxIdle: 10, MaxLifetime: 5 * time.Minute, MaxIdleTime: time.Minute}
}

// PoolOption adjusts a Pool.
type PoolOption func(*Pool)

// MaxOpenConns caps open connections. SQLite files want 1 under
// concurrent writers.
func MaxOpenConns(n int) PoolOption { return func(p *Pool) { p.MaxOpen = n } }

// MaxIdleConns caps idle connections.
func MaxIdleConns(n int) PoolOption { return func(p *Pool) { p.MaxIdle = n } }

// ConnMaxLifetime recycles connections older than d.
func ConnMaxLifetime(d time.Duration) PoolOption { return func(p *Pool) { p.MaxLifetime = d } }

// ConnMaxIdleTime closes connections idle longer than d.
func ConnMaxIdleTime(d time.Duration) PoolOption { return func(p *Pool) { p.MaxIdleTime = d } }

func (p Pool) apply(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("storage: pool: %w", err)
	}
	if p.MaxOpen > 0 && p.MaxIdle > p.MaxOpen {
		p.MaxIdle = p.MaxOpen
	}
	sqlDB.SetMaxOpenConns(p.MaxOpen)
	sqlDB.SetMaxIdleConns(p.MaxIdle)
	sqlDB.SetConnMaxLifetime(p.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(p.MaxIdleTime)
	return nil
}

// ConfigurePool applies the default pool adjusted by opts to db.
func ConfigurePool(db *gorm.DB, opts ...PoolOption) error {
	p := DefaultPool()
	for _, opt := range opts {
		opt(&p)
	}
	return p.apply(db)
}
