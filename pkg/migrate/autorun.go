package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

// MaybeRunDev brings the schema up to date on boot, only in dev with
// COURIER_AUTO_MIGRATE set. SQLite gets gorm AutoMigrate, postgres gets goose.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if cfg.FeatureFlags.UseSQLite {
		logg.Info(ctx, "auto-migrating sqlite schema")
		return client.AutoMigrate(ctx)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, DefaultDir, nil)
	if err != nil {
		return err
	}
	defer runner.Close()

	logg.Info(logg.WithField(ctx, "dir", DefaultDir), "applying goose migrations")
	return runner.Exec(ctx, "up")
}
