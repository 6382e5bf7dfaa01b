package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mosly/envelope-stock/pkg/config"
)

const versionLayout = "20060102150405"

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases name and collapses everything but letters and digits to "_".
func Slug(name string) string {
	return strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// CreateSQLMigration writes an empty goose migration into dir.
func CreateSQLMigration(dir, name string) (string, error) {
	version, err := nextVersion(time.Now().UTC(), dir)
	if err != nil {
		return "", err
	}
	return writeMigration(dir, name, version, "")
}

// CreateDialectMigrations writes one migration per dialect below base under
// a single version that is newer than anything already in either directory.
func CreateDialectMigrations(base, name string) ([]string, error) {
	dirs := map[string]string{
		config.DBDriverPostgres: DirFor(base, config.DBDriverPostgres),
		config.DBDriverSQLite:   DirFor(base, config.DBDriverSQLite),
	}
	version, err := nextVersion(time.Now().UTC(), dirs[config.DBDriverPostgres], dirs[config.DBDriverSQLite])
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, driver := range []string{config.DBDriverPostgres, config.DBDriverSQLite} {
		p, err := writeMigration(dirs[driver], name, version, driver)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// nextVersion is now as YYYYMMDDHHMMSS, bumped past the newest existing
// version so two files created in the same second still sort.
func nextVersion(now time.Time, dirs ...string) (string, error) {
	candidate, _ := strconv.ParseInt(now.Format(versionLayout), 10, 64)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", dir, err)
		}
		for _, entry := range entries {
			head, _, ok := strings.Cut(entry.Name(), "_")
			if !ok {
				continue
			}
			if v, err := strconv.ParseInt(head, 10, 64); err == nil && v >= candidate {
				candidate = v + 1
			}
		}
	}
	return strconv.FormatInt(candidate, 10), nil
}

func writeMigration(dir, name, version, driver string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := Slug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	target := filepath.Join(dir, version+"_"+slug+".sql")
	header := "-- " + slug
	if driver != "" {
		header += " (" + driver + ")"
	}
	body := strings.Join([]string{
		annotationUp, annotationBegin, header, annotationEnd,
		"",
		annotationDown, annotationBegin, "-- revert " + slug, annotationEnd,
		"",
	}, "\n")

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, f.Close()
}
