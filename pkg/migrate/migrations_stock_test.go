package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mosly/envelope-stock/pkg/migrate"
)

func TestStockMovementMigrationsContainLedgerConstraints(t *testing.T) {
	for _, dialect := range []string{"postgres", "sqlite"} {
		t.Run(dialect, func(t *testing.T) {
			content := readMigration(t, dialect, "*_create_stock_movements.sql")
			checks := []string{
				"CREATE TABLE IF NOT EXISTS stock_movements",
				"CHECK (source IN ('external_order', 'manual'))",
				"CHECK (change <> 0)",
				"CREATE UNIQUE INDEX IF NOT EXISTS ux_stock_movements_external_order",
				"WHERE source = 'external_order'",
				"append-only",
				"DROP TABLE IF EXISTS stock_movements",
			}
			for _, sub := range checks {
				if !strings.Contains(content, sub) {
					t.Errorf("missing expected statement %q", sub)
				}
			}
		})
	}
}

func TestSnapshotMigrationsRejectNegativeQuantities(t *testing.T) {
	for _, dialect := range []string{"postgres", "sqlite"} {
		content := readMigration(t, dialect, "*_create_stock_snapshots.sql")
		for _, sub := range []string{
			"CHECK (quantity >= 0)",
			"UNIQUE (snapshot_id, item_name)",
			"DROP TABLE IF EXISTS stock_snapshots",
		} {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", dialect, sub)
			}
		}
	}
}

func TestMigrationDirsValidateInLockstep(t *testing.T) {
	if err := migrate.ValidateLockstep("migrations"); err != nil {
		t.Fatalf("migrations invalid: %v", err)
	}
}

func readMigration(t *testing.T, dialect, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", dialect, pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration matching %s", dialect, pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
