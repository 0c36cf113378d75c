package migrate

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/saakshy/saakshy-backend/pkg/config"
	"github.com/saakshy/saakshy-backend/pkg/db"
	"github.com/saakshy/saakshy-backend/pkg/db/models"
	"github.com/saakshy/saakshy-backend/pkg/logger"
)

// MaybeRunDev prepares the schema at process start. sqlite is always brought
// up with AutoMigrate; postgres runs the embedded goose migrations only in dev
// with SAAKSHY_AUTO_MIGRATE set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})
	switch {
	case cfg.DB.IsSQLite():
		logg.Info(ctx, "auto-migrating sqlite schema")
		return AutoMigrateModels(client.DB())
	case !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate:
		return nil
	}

	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(pool, nil, logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "applying embedded migrations")
	return runner.Up(ctx)
}

// AutoMigrateModels creates the ledger and outbox tables from the gorm models.
func AutoMigrateModels(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db is required")
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}
	return nil
}
