package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Ai       AIConfig
	Rag      RagConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	LLMLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	IngestTopic        string
	OtelEnabled        bool
	OtelEndpoint       string
}

type DatabaseConfig struct {
	Driver     string // "postgres" or "sqlite"
	Connection string
}

type StorageConfig struct {
	UploadDir      string
	MaxUploadBytes int64
}

type AIConfig struct {
	OllamaBaseURL        string
	EmbeddingModel       string
	EmbeddingRPS         int
	EmbeddingConcurrency int
	LLMProvider          string // "ollama"
	LLMModel             string // e.g. "deepseek-r1:7b"
	OCRModel             string // vision model used for image text extraction
}

type RagConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	TopK           int
	HistoryBackend string // "memory" or "redis"
	HistoryTTL     time.Duration
	// HistoryWindow is how many past messages are sent with each prompt
	HistoryWindow int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LLMLogFilePath:     getEnv("LLM_LOG_FILE_PATH", "logs/llm.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			IngestTopic:        getEnv("INGEST_TOPIC", "INGEST_DOCUMENT"),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Storage: StorageConfig{
			UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		Ai: AIConfig{
			OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingRPS:         getEnvAsInt("EMBEDDING_RPS", 20),
			EmbeddingConcurrency: getEnvAsInt("EMBEDDING_CONCURRENCY", 4),
			LLMProvider:          getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:             getEnv("LLM_MODEL", "deepseek-r1:7b"),
			OCRModel:             getEnv("OCR_MODEL", "llava"),
		},
		Rag: RagConfig{
			ChunkSize:      getEnvAsInt("CHUNK_SIZE", 200),
			ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 20),
			TopK:           getEnvAsInt("RETRIEVAL_TOP_K", 5),
			HistoryBackend: getEnv("HISTORY_BACKEND", "memory"),
			HistoryTTL:     getEnvAsDuration("HISTORY_TTL", 24*time.Hour),
			HistoryWindow:  getEnvAsInt("HISTORY_WINDOW", 20),
		},
	}
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.Database.Driver)
	}
	if c.Database.Connection == "" {
		return fmt.Errorf("DB_CONNECTION_STRING is not set")
	}
	switch c.Rag.HistoryBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported HISTORY_BACKEND: %s", c.Rag.HistoryBackend)
	}
	if c.Rag.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.Rag.ChunkOverlap < 0 || c.Rag.ChunkOverlap >= c.Rag.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.Rag.TopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
