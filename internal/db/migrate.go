package db

import (
	"fmt"

	"github.com/zulandar/deskmirror/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Session{},
		&models.CurrentTicket{},
		&models.DoneTicket{},
		&models.AppKV{},
	}
}

// AutoMigrate creates or updates all deskmirror tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
