// Package testdb opens migrated in-memory sqlite databases for tests.
package testdb

import (
	"fmt"
	"testing"

	"doc-chat-be/internal/model"
	"doc-chat-be/pkg/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// New returns an isolated, migrated database that lives as long as the test.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.NewSilentGormDB(database.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db, model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
