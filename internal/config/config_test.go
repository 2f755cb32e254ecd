package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("HISTORY_TTL", "")

	cfg := Load()

	assert.Equal(t, 200, cfg.Rag.ChunkSize)
	assert.Equal(t, 20, cfg.Rag.ChunkOverlap)
	assert.Equal(t, 5, cfg.Rag.TopK)
	assert.Equal(t, int64(10*1024*1024), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, 24*time.Hour, cfg.Rag.HistoryTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("HISTORY_TTL", "30m")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg := Load()

	assert.Equal(t, 500, cfg.Rag.ChunkSize)
	assert.Equal(t, 30*time.Minute, cfg.Rag.HistoryTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite", Connection: "file::memory:"},
			Storage:  StorageConfig{MaxUploadBytes: 1024},
			Rag:      RagConfig{ChunkSize: 200, ChunkOverlap: 20, TopK: 5, HistoryBackend: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"missing dsn", func(c *Config) { c.Database.Connection = "" }, true},
		{"unknown history backend", func(c *Config) { c.Rag.HistoryBackend = "etcd" }, true},
		{"overlap too large", func(c *Config) { c.Rag.ChunkOverlap = 200 }, true},
		{"zero top k", func(c *Config) { c.Rag.TopK = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_OtelToggle(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("HISTORY_WINDOW", "not-a-number")

	cfg := Load()

	assert.True(t, cfg.App.OtelEnabled)
	assert.Equal(t, 20, cfg.Rag.HistoryWindow)
}
