package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedded embed.FS

// DirFor returns the on-disk migrations directory for the driver below base.
func DirFor(base, driver string) string {
	if base == "" {
		base = DefaultDir
	}
	return filepath.Join(base, driverDir(driver))
}

// GooseDialect maps a configured DB driver to the goose dialect name.
func GooseDialect(driver string) string {
	if strings.EqualFold(strings.TrimSpace(driver), config.DBDriverSQLite) {
		return "sqlite3"
	}
	return "postgres"
}

func driverDir(driver string) string {
	if strings.EqualFold(strings.TrimSpace(driver), config.DBDriverSQLite) {
		return config.DBDriverSQLite
	}
	return config.DBDriverPostgres
}

func embeddedProvider(db *sql.DB, driver string) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	fsys, err := fs.Sub(embedded, path.Join("migrations", driverDir(driver)))
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	dialect := goose.DialectPostgres
	if GooseDialect(driver) == "sqlite3" {
		dialect = goose.DialectSQLite3
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Apply runs every embedded migration for the driver up to the latest version
// and returns the file names it applied.
func Apply(ctx context.Context, db *sql.DB, driver string) ([]string, error) {
	provider, err := embeddedProvider(db, driver)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose up: %w", err)
	}

	applied := make([]string, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		applied = append(applied, filepath.Base(res.Source.Path))
	}
	return applied, nil
}

// Drift compares the database against the embedded migrations.
type Drift struct {
	Current int64
	Latest  int64
	Pending bool
}

// CheckDrift reports whether embedded migrations are waiting to be applied.
func CheckDrift(ctx context.Context, db *sql.DB, driver string) (Drift, error) {
	provider, err := embeddedProvider(db, driver)
	if err != nil {
		return Drift{}, err
	}
	pending, err := provider.HasPending(ctx)
	if err != nil {
		return Drift{}, fmt.Errorf("goose pending: %w", err)
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return Drift{}, fmt.Errorf("goose db version: %w", err)
	}
	sources := provider.ListSources()
	var latest int64
	if len(sources) > 0 {
		latest = sources[len(sources)-1].Version
	}
	return Drift{Current: current, Latest: latest, Pending: pending}, nil
}

// Run executes a standard goose command against an on-disk migrations directory.
func Run(ctx context.Context, db *sql.DB, driver string, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	if err := goose.SetDialect(GooseDialect(driver)); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, driver string, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	if err := goose.SetDialect(GooseDialect(driver)); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
