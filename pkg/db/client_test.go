package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "client.db")), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestNew_TracesSlowQueries(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: zerolog.DebugLevel, Output: &buf})
	cfg := config.DBConfig{
		Driver:    config.DBDriverSQLite,
		DSN:       "file:" + filepath.Join(t.TempDir(), "slow.db"),
		SlowQuery: time.Nanosecond,
	}
	client, err := New(context.Background(), cfg, logg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.DB().WithContext(context.Background()).Exec("CREATE TABLE probe (id INTEGER)").Error)
	assert.Contains(t, buf.String(), "db.slow_query")
	assert.Contains(t, buf.String(), "CREATE TABLE probe")
}

func TestNew_FailedQueriesLogAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: zerolog.DebugLevel, Output: &buf})
	cfg := config.DBConfig{Driver: config.DBDriverSQLite, DSN: "file:" + filepath.Join(t.TempDir(), "fail.db")}
	client, err := New(context.Background(), cfg, logg)
	require.NoError(t, err)
	defer client.Close()

	err = client.DB().Exec("SELECT * FROM missing_table").Error
	require.Error(t, err)
	assert.Contains(t, buf.String(), "db.query_failed")
	assert.NotContains(t, buf.String(), `"level":"error"`)
}

func TestStatsReportsPool(t *testing.T) {
	cfg := config.DBConfig{Driver: config.DBDriverSQLite, DSN: "file:" + filepath.Join(t.TempDir(), "stats.db")}
	client, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))
	stats := client.Stats()
	assert.Equal(t, 1, stats.MaxOpen)
	assert.Equal(t, 1, stats.Open)
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestNew_SQLiteDriver(t *testing.T) {
	cfg := config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "stock.db") + "?_busy_timeout=5000",
	}
	client, err := New(context.Background(), cfg, logger.New(logger.Options{ServiceName: "db-test"}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer client.Close()

	if client.Dialect() != config.DBDriverSQLite {
		t.Fatalf("expected sqlite dialect, got %q", client.Dialect())
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("expected a single sqlite connection, got %d", got)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestNew_RequiresDSN(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{}, nil); err == nil {
		t.Fatal("expected missing dsn to fail")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&testModel{Name: "dup"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := db.Create(&testModel{Name: "dup"}).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected sqlite unique violation, got %v", err)
	}

	pgErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "ux_a"})
	if !IsUniqueViolation(pgErr, "ux_a") {
		t.Fatalf("expected pg violation on ux_a")
	}
	if IsUniqueViolation(pgErr, "ux_b") {
		t.Fatalf("constraint mismatch should not match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatalf("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(nil, "") || IsUniqueViolation(errors.New("boom"), "") {
		t.Fatalf("unrelated errors should not match")
	}
}
