package main

import (
	"log"

	"doc-chat-be/internal/config"
	"doc-chat-be/internal/model"
	"doc-chat-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDB(cfg.Database.Driver, cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Running migration...")
	if err := database.Migrate(db, model.All()...); err != nil {
		log.Fatalf("Error: migration failed: %v", err)
	}
	log.Println("✅ Success: Database migration completed.")
}
