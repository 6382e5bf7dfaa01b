package migrate

import (
	"context"
	"fmt"

	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/logger"
)

// Prepare brings the schema in line with the embedded migrations at startup.
// sqlite databases and dev runs with MOSLY_AUTO_MIGRATE are migrated in
// place. Everywhere else pending migrations are only reported, and prod
// refuses to start on them.
func Prepare(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	ctx = logg.WithField(ctx, "dialect", client.Dialect())

	if cfg.DB.IsSQLite() || (cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate) {
		applied, err := Apply(ctx, sqlDB, client.Dialect())
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "applied", applied), "migrate.auto_applied")
		return nil
	}

	drift, err := CheckDrift(ctx, sqlDB, client.Dialect())
	if err != nil {
		return err
	}
	if !drift.Pending {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"db_version": drift.Current, "latest_version": drift.Latest})
	if cfg.App.IsProd() {
		return fmt.Errorf("schema at %d, migrations up to %d are pending", drift.Current, drift.Latest)
	}
	logg.Warn(ctx, "migrate.pending")
	return nil
}
