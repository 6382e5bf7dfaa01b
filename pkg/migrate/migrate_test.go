package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestApplySQLiteCreatesStockTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "migrate.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	applied, err := Apply(context.Background(), sqlDB, "sqlite")
	require.NoError(t, err)
	assert.Len(t, applied, 4)

	for _, table := range []string{"stock_movements", "stock_snapshots", "stock_current", "settings"} {
		assert.True(t, conn.Migrator().HasTable(table), "expected table %s", table)
	}

	again, err := Apply(context.Background(), sqlDB, "sqlite")
	require.NoError(t, err)
	assert.Empty(t, again, "second apply should be a no-op")
}

func TestApplySQLiteMovementsAreAppendOnly(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "append.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = Apply(context.Background(), sqlDB, "sqlite")
	require.NoError(t, err)

	require.NoError(t, conn.Exec(
		`INSERT INTO stock_movements (occurred_at, item_name, change, reason, source, source_id) VALUES (?, 'mosolap', -1, 'order', 'external_order', '1')`,
		"2024-10-01 10:00:00+00:00",
	).Error)

	err = conn.Exec(`UPDATE stock_movements SET change = -2`).Error
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	err = conn.Exec(`DELETE FROM stock_movements`).Error
	require.Error(t, err)
}

func TestCheckDriftTracksPendingMigrations(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "drift.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	ctx := context.Background()

	before, err := CheckDrift(ctx, sqlDB, "sqlite")
	require.NoError(t, err)
	assert.True(t, before.Pending)
	assert.Zero(t, before.Current)
	assert.Positive(t, before.Latest)

	_, err = Apply(ctx, sqlDB, "sqlite")
	require.NoError(t, err)

	after, err := CheckDrift(ctx, sqlDB, "sqlite")
	require.NoError(t, err)
	assert.False(t, after.Pending)
	assert.Equal(t, before.Latest, after.Current)
}

func TestGooseDialect(t *testing.T) {
	assert.Equal(t, "sqlite3", GooseDialect("SQLite"))
	assert.Equal(t, "postgres", GooseDialect("postgres"))
	assert.Equal(t, "postgres", GooseDialect(""))
	assert.Equal(t, filepath.Join(DefaultDir, "sqlite"), DirFor("", "sqlite"))
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Stock Notes!")
	require.NoError(t, err)

	name := filepath.Base(path)
	assert.True(t, strings.HasSuffix(name, "_add_stock_notes.sql"), name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "-- +goose Down")
	versions, err := ValidateDir(dir)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	_, err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected YYYYMMDDHHMMSS_name.sql")
}

func TestCreateDialectMigrationsShareVersion(t *testing.T) {
	base := t.TempDir()
	paths, err := CreateDialectMigrations(base, "add_locations")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Base(paths[0]), filepath.Base(paths[1]))
	assert.Equal(t, filepath.Join(base, "postgres"), filepath.Dir(paths[0]))
	assert.Equal(t, filepath.Join(base, "sqlite"), filepath.Dir(paths[1]))
}

func TestValidateDirRejectsDownBeforeUp(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x (id INT);\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_reversed.sql"), []byte(body), 0o644))
	_, err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Down before Up")
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20250101000000_a.sql": "-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n",
		"20250101000100_b.sql": "CREATE TABLE b (id INT);\n",
		"notes.txt":            "ignored",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	_, err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "20250101000000_a.sql: unbalanced")
	assert.Contains(t, err.Error(), "20250101000100_b.sql: missing")
}

func TestValidateLockstepDetectsDivergence(t *testing.T) {
	base := t.TempDir()
	_, err := CreateDialectMigrations(base, "add_locations")
	require.NoError(t, err)
	require.NoError(t, ValidateLockstep(base))

	_, err = CreateSQLMigration(filepath.Join(base, "sqlite"), "sqlite only")
	require.NoError(t, err)
	err = ValidateLockstep(base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dialects diverged")
}

func TestValidateEmbedded(t *testing.T) {
	require.NoError(t, ValidateEmbedded())
}

func TestNextVersionSkipsPastExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250301090300_create_settings.sql"), nil, 0o644))

	now := time.Date(2025, 3, 1, 9, 3, 0, 0, time.UTC)
	version, err := nextVersion(now, dir, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, "20250301090301", version)

	later := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	version, err = nextVersion(later, dir)
	require.NoError(t, err)
	assert.Equal(t, "20250401000000", version)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "add_stock_notes", Slug("Add Stock-Notes!"))
	assert.Equal(t, "", Slug("!!!"))
}
