package bootstrap

import (
	"context"
	"fmt"
	"os"

	"doc-chat-be/internal/config"
	"doc-chat-be/internal/controller"
	"doc-chat-be/internal/handler"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/repository/contract"
	"doc-chat-be/internal/repository/memory"
	"doc-chat-be/internal/repository/rediscache"
	"doc-chat-be/internal/repository/unitofwork"
	"doc-chat-be/internal/service"
	"doc-chat-be/internal/websocket"
	"doc-chat-be/pkg/embedding"
	"doc-chat-be/pkg/events"
	"doc-chat-be/pkg/ingest"
	"doc-chat-be/pkg/llm/factory"
	"doc-chat-be/pkg/ocr"
	"doc-chat-be/pkg/rag/chain"
	"doc-chat-be/pkg/rag/history"
	"doc-chat-be/pkg/rag/index"
	"doc-chat-be/pkg/rag/transcript"

	pktNats "doc-chat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController
	FileController controller.IFileController

	// Background services, started by main
	ConsumerService     service.IConsumerService
	NotificationService *service.NotificationService

	// WebSockets & Notification
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	c := &Container{}

	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	llmLogger := logger.NewIsolatedLogger(cfg.App.LLMLogFilePath)
	c.closers = append(c.closers, func() { _ = llmLogger.Sync() })

	// 2. Event Bus (in-process ingestion queue)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Model providers
	embeddingProvider := embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingRPS)
	sysLogger.Info("Bootstrap", "Using embedding model", map[string]interface{}{"model": cfg.Ai.EmbeddingModel})

	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.OllamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "Using LLM provider", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	ingestor := ingest.New(
		ingest.WithChunkSize(cfg.Rag.ChunkSize),
		ingest.WithChunkOverlap(cfg.Rag.ChunkOverlap),
		ingest.WithOCR(ocr.NewOllamaExtractor(cfg.Ai.OllamaBaseURL, cfg.Ai.OCRModel)),
		ingest.WithLogger(sysLogger),
	)

	// 4. Infrastructure
	// Redis
	rdb := connectRedis(cfg.App.RedisURL, sysLogger)
	if rdb != nil {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	var historyRepo contract.ChatHistoryRepository
	switch cfg.Rag.HistoryBackend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("HISTORY_BACKEND=redis but redis is unreachable at %s", cfg.App.RedisURL)
		}
		historyRepo = rediscache.NewChatHistoryRepository(rdb, cfg.Rag.HistoryTTL)
	default:
		historyRepo = memory.NewChatHistoryRepository(cfg.Rag.HistoryTTL)
	}

	// NATS
	var publisher events.Publisher = events.NoopPublisher{}
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
	if err != nil {
		sysLogger.Warn("Bootstrap", "NATS publisher unavailable, domain events disabled", map[string]interface{}{"error": err.Error()})
	} else {
		publisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/notification.log")
	hostname, _ := os.Hostname()
	c.WebSocketHub = websocket.NewHub(rdb, hostname+"-"+uuid.NewString()[:8], wsLogger)

	// Without NATS the consumer notifies the hub itself.
	var direct service.NotificationDelivery
	if natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger); err != nil {
		sysLogger.Warn("Bootstrap", "NATS subscriber unavailable, notifying in-process", map[string]interface{}{"error": err.Error()})
		direct = c.WebSocketHub
	} else {
		c.NotificationService = service.NewNotificationService(natsSub, c.WebSocketHub, wsLogger)
		c.closers = append(c.closers, natsSub.Close)
	}
	if natsPub == nil {
		direct = c.WebSocketHub
	}

	// 5. RAG core
	idx := index.NewManager(uowFactory, embeddingProvider, ingestor,
		index.WithConcurrency(cfg.Ai.EmbeddingConcurrency),
		index.WithLogger(sysLogger),
	)
	transcripts := transcript.NewStore(uowFactory, sysLogger)
	histories := history.NewStore(historyRepo, sysLogger, cfg.Rag.HistoryWindow)
	chains := chain.NewBuilder(llmProvider, idx,
		chain.WithLogger(sysLogger),
		chain.WithTraceLogger(llmLogger),
	)

	// 6. Services
	publisherService := service.NewPublisherService(cfg.App.IngestTopic, pubSub)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.App.IngestTopic, idx, publisher, direct, sysLogger)

	chatService := service.NewChatService(idx, transcripts, histories, chains, publisher, sysLogger, service.ChatServiceConfig{
		UploadDir: cfg.Storage.UploadDir,
		TopK:      cfg.Rag.TopK,
	})
	fileService := service.NewFileService(cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes, idx, publisherService, sysLogger)

	// 7. Controllers
	c.ChatController = controller.NewChatController(chatService, sysLogger)
	c.FileController = controller.NewFileController(fileService)
	c.NotificationHandler = handler.NewNotificationHandler(c.WebSocketHub, wsLogger)

	return c, nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	if c.NotificationService != nil {
		c.NotificationService.Stop()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func connectRedis(url string, log logger.ILogger) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Warn("Bootstrap", "Redis unavailable, websocket delivery stays local", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return nil
	}
	return rdb
}
