// Package testutil provides helpers shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fintrack/apiserver/config"
	"github.com/fintrack/apiserver/internal/db"
	"github.com/stretchr/testify/require"
)

// NewSQLiteDB opens a migrated SQLite database in a per-test temp dir.
// The connection is closed when the test finishes.
func NewSQLiteDB(t testing.TB) *db.DB {
	t.Helper()

	cfg := config.Config{
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "fintrack.db"),
		},
	}
	require.NoError(t, db.MigrateUp(cfg.Database), "failed to migrate test database")

	conn, err := db.Open(context.Background(), cfg)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
