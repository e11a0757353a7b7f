package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/credibility-sync/pkg/storage"
)

func TestDefaultPool(t *testing.T) {
	p := storage.DefaultPool()
	assert.Equal(t, 25, p.MaxOpen)
	assert.LessOrEqual(t, p.MaxIdle, p.MaxOpen)
	assert.Greater(t, p.MaxLifetime, p.MaxIdleTime)
}

func TestOpen_SQLiteAppliesPool(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "open.db")
	db, err := storage.Open(storage.DriverSQLite, dsn,
		storage.MaxOpenConns(3),
		storage.MaxIdleConns(8),
		storage.ConnMaxLifetime(7*time.Minute),
		storage.ConnMaxIdleTime(90*time.Second),
	)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	assert.Equal(t, 3, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, sqlDB.Ping())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := storage.Open("oracle", "dsn")
	assert.ErrorContains(t, err, "unsupported driver")
}
