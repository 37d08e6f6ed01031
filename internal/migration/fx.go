package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/cloudtally/cloudtally/internal/config"
	"github.com/cloudtally/cloudtally/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Postgres-only: test and local sqlite databases migrate via AutoMigrate.
		if cfg.DBType != "postgres" && cfg.DBType != "" {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.SeedDefaultOrg {
			return seed.EnsureDefaultOrg(conn)
		}
		return nil
	}),
)
