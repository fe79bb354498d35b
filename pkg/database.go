package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eduforge/assessment-engine/internal/config"
	"github.com/eduforge/assessment-engine/internal/models"
)

// InitDatabase opens the postgres connection, applies pool settings and
// optionally runs auto-migration for the engine's tables.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormLogLevel := logger.Warn
	if cfg.Database.LogQueries {
		gormLogLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.Database.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// Migrate creates or updates the engine's tables. The partial unique index
// backing the one-active-attempt rule comes from the Attempt model's
// uniqueIndex tag.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.AssessmentTemplate{},
		&models.Question{},
		&models.TemplateQuestion{},
		&models.Attempt{},
		&models.Answer{},
		&models.User{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	return nil
}
