// Package dbtest opens migrated sqlite databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"endurancy/internal/platform/config"
	"endurancy/internal/platform/database"
	"endurancy/migrations"
)

// New returns a freshly migrated database in a temporary directory. It is
// closed when the test finishes.
func New(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		URL:            filepath.Join(t.TempDir(), "endurancy.db"),
		MaxConnections: 4,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Up(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
