package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tillpoint-backend/pkg/config"
	"github.com/angelmondragon/tillpoint-backend/pkg/db"
	"github.com/angelmondragon/tillpoint-backend/pkg/db/models"
	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
	"gorm.io/gorm"
)

// Prepare brings the schema up to date at API startup and seeds the default
// catalog when asked to. SQLite always auto-migrates; Postgres only runs goose
// in dev with the auto-migrate flag on.
func Prepare(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	ctx = logg.WithField(ctx, "dialect", client.Dialect())

	switch {
	case client.Dialect() == db.DialectSQLite:
		logg.Info(ctx, "auto-migrating sqlite schema")
		if err := AutoMigrate(client.DB()); err != nil {
			return err
		}
	case cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate:
		sqlDB, err := client.DB().DB()
		if err != nil {
			return fmt.Errorf("extracting sql.DB: %w", err)
		}
		ctx = logg.WithField(ctx, "dir", DefaultDir)
		logg.Info(ctx, "running goose migrations (dev auto-run)")
		if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
			return fmt.Errorf("running goose up: %w", err)
		}
	}

	if !cfg.FeatureFlags.SeedCatalog {
		return nil
	}
	seeded, err := SeedCatalog(ctx, client.DB())
	if err != nil {
		return fmt.Errorf("seeding catalog: %w", err)
	}
	if seeded {
		logg.Info(ctx, "default catalog seeded")
	}
	return nil
}

// AutoMigrate creates or updates every table from the GORM models.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
