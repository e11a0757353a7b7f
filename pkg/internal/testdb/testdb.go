// Package testdb opens migrated databases for tests.
package testdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/credibility-sync/pkg/storage"
)

// tables in delete order; required_skills references career_goals.
var tables = []string{
	"required_skills", "career_goals", "user_skills", "skills",
	"certification_records", "education_records", "credibility_scores",
	"sync_statuses", "source_profiles", "queue_states", "job_unique_keys", "jobs",
}

// Open opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// creates a file-based SQLite database in the test's temp dir. SQLite is
// limited to one connection so concurrent workers serialize instead of
// hitting "database is locked".
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		require.NoError(t, err, "open postgres test db")

		sqlDB, err := db.DB()
		require.NoError(t, err, "get underlying sql.DB")
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(1)

		// Clean before AND after to ensure test isolation.
		cleanup(db)
		t.Cleanup(func() {
			cleanup(db)
			_ = sqlDB.Close()
		})
		return db
	}

	path := filepath.Join(t.TempDir(), "credsync.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), cfg)
	require.NoError(t, err, "open sqlite test db")

	sqlDB, err := db.DB()
	require.NoError(t, err, "get underlying sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Storage opens a database, wraps it in a GormStorage and migrates it.
func Storage(t *testing.T) *storage.GormStorage {
	t.Helper()
	s := storage.NewGormStorage(Open(t))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func cleanup(db *gorm.DB) {
	for _, tbl := range tables {
		db.Exec("DELETE FROM " + tbl)
	}
}
