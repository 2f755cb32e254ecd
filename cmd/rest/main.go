package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doc-chat-be/internal/bootstrap"
	"doc-chat-be/internal/config"
	"doc-chat-be/internal/model"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/server"
	"doc-chat-be/internal/tracer"
	"doc-chat-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	if err := cfg.Validate(); err != nil {
		sysLogger.Error("Main", "Invalid configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.App.OtelEnabled, cfg.App.OtelEndpoint, sysLogger)
	defer shutdownTracer(context.Background())

	// 3. Initialize Database; the index must be usable before serving
	gormDB, err := database.NewGormDB(cfg.Database.Driver, cfg.Database.Connection)
	if err != nil {
		sysLogger.Error("Main", "Unable to connect to database", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if err := database.Migrate(gormDB, model.All()...); err != nil {
		sysLogger.Error("Main", "Schema migration failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg, sysLogger)
	if err != nil {
		sysLogger.Error("Main", "Bootstrap failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer container.Close()

	// 5. Start Background Services
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go container.WebSocketHub.Run(ctx)
	if err := container.ConsumerService.Consume(ctx); err != nil {
		sysLogger.Error("Main", "Failed to start ingestion consumer", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if container.NotificationService != nil {
		if err := container.NotificationService.Start(ctx); err != nil {
			sysLogger.Warn("Main", "Notification relay not started", map[string]interface{}{"error": err.Error()})
		}
	}

	// 6. Run Server
	srv := server.New(cfg, container, sysLogger)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Run(); err != nil {
		sysLogger.Error("Main", "Server stopped", map[string]interface{}{"error": err.Error()})
	}
}
