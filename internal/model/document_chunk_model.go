package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type DocumentChunk struct {
	Id             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	UserId         string            `gorm:"type:varchar(128);not null;index:idx_chunk_scope"`
	SessionId      string            `gorm:"type:varchar(128);not null;index:idx_chunk_scope"`
	FilePath       string            `gorm:"type:text;not null"`
	UploadOrder    int               `gorm:"not null"`
	ChunkIndex     int               `gorm:"default:0"`
	Content        string            `gorm:"type:text"`
	EmbeddingValue pgvector.Vector   `gorm:"type:vector"` // dimension follows the embedding model
	EmbeddingModel string            `gorm:"type:varchar(128);not null;index"`
	Source         datatypes.JSONMap
	CreatedAt      time.Time         `gorm:"autoCreateTime"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// All returns every model managed by the migration.
func All() []interface{} {
	return []interface{}{
		&ConversationTurn{},
		&DocumentChunk{},
	}
}
