package entity

import (
	"time"

	"github.com/google/uuid"
)

type DocumentChunk struct {
	Id             uuid.UUID
	UserId         string
	SessionId      string
	FilePath       string
	UploadOrder    int
	ChunkIndex     int
	Content        string
	EmbeddingValue []float32
	EmbeddingModel string
	Source         map[string]interface{}
	CreatedAt      time.Time
}

// ScoredDocumentChunk wraps a chunk with its cosine similarity to the query.
type ScoredDocumentChunk struct {
	Chunk      *DocumentChunk
	Similarity float64
}
