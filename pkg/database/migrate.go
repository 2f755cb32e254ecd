package database

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates extensions (postgres only) and runs AutoMigrate for the given models.
// It is idempotent and meant to run once at process startup.
func Migrate(db *gorm.DB, models ...interface{}) error {
	if db.Dialector.Name() == DriverPostgres {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
			return fmt.Errorf("create vector extension: %w", err)
		}
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
