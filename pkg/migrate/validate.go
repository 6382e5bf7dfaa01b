package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"

	"github.com/mosly/envelope-stock/pkg/config"
)

var migrationName = regexp.MustCompile(`^\d{14}_[a-z0-9_]+\.sql$`)

const (
	annotationUp    = "-- +goose Up"
	annotationDown  = "-- +goose Down"
	annotationBegin = "-- +goose StatementBegin"
	annotationEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks one on-disk dialect directory and returns its versions in order.
func ValidateDir(dir string) ([]int64, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file at the root of fsys. All problems are
// reported together rather than stopping at the first one.
func ValidateFS(fsys fs.FS) ([]int64, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var (
		errs     error
		versions []int64
		owner    = map[int64]string{}
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		if !migrationName.MatchString(name) {
			errs = multierr.Append(errs, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name))
			continue
		}
		version, err := goose.NumericComponent(name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if prev, dup := owner[version]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %d already used by %s", name, version, prev))
			continue
		}
		owner[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, checkAnnotations(name, string(body)))
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, errs
}

func checkAnnotations(name, body string) error {
	up := strings.Index(body, annotationUp)
	down := strings.Index(body, annotationDown)
	switch {
	case up < 0:
		return fmt.Errorf("%s: missing %q", name, annotationUp)
	case down < 0:
		return fmt.Errorf("%s: missing %q", name, annotationDown)
	case down < up:
		return fmt.Errorf("%s: Down before Up", name)
	}
	if strings.Count(body, annotationBegin) != strings.Count(body, annotationEnd) {
		return fmt.Errorf("%s: unbalanced StatementBegin/StatementEnd", name)
	}
	return nil
}

// ValidateLockstep validates the postgres and sqlite directories below base
// and requires them to carry the same versions, so either dialect reaches the
// same schema.
func ValidateLockstep(base string) error {
	return lockstep(func(driver string) ([]int64, error) {
		return ValidateDir(DirFor(base, driver))
	})
}

// ValidateEmbedded runs the lockstep check over the migrations compiled into the binary.
func ValidateEmbedded() error {
	return lockstep(func(driver string) ([]int64, error) {
		sub, err := fs.Sub(embedded, path.Join("migrations", driverDir(driver)))
		if err != nil {
			return nil, err
		}
		return ValidateFS(sub)
	})
}

func lockstep(validate func(driver string) ([]int64, error)) error {
	pg, err := validate(config.DBDriverPostgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	lite, err := validate(config.DBDriverSQLite)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if !slices.Equal(pg, lite) {
		return fmt.Errorf("dialects diverged: postgres=%v sqlite=%v", pg, lite)
	}
	return nil
}
