package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"spacewh/mis/internal/config"
	"spacewh/mis/internal/logging"
	gormModels "spacewh/mis/internal/models/gorm"
)

// InitORM opens a GORM connection for the relational store drivers and makes
// sure the three collections exist.
func InitORM(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.StoreDriverPostgres:
		dialector = postgres.Open(dsn)
	case config.StoreDriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported ORM driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if err := db.AutoMigrate(gormModels.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate collections: %w", err)
	}

	logging.Info("Connected to record store via GORM", "driver", driver)
	return db, nil
}
