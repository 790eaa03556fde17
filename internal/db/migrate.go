package db

import (
	"fmt"

	"github.com/vgrishin/courier/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Admin{},
		&models.DownloadCount{},
	}
}

// AutoMigrate creates or updates all Courier tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
