// Package dbtest opens migrated sqlite databases for package tests.
package dbtest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/migrate"
)

// Open returns a client backed by a fresh sqlite file with every migration applied.
// The database is closed when the test finishes.
func Open(t testing.TB) *db.Client {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stock.db")
	cfg := config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path),
	}

	ctx := context.Background()
	client, err := db.New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	if _, err := migrate.Apply(ctx, sqlDB, config.DBDriverSQLite); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return client
}
