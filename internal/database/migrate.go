package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/abadealex/scriptmark/internal/models"
)

// Migrate applies the schema for manifest and presence storage.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ScriptManifest{}, &models.PresenceRecord{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
