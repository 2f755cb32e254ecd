package contract

import (
	"context"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/repository/specification"
)

type DocumentChunkRepository interface {
	CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	MaxUploadOrder(ctx context.Context, userId, sessionId string) (int, error)
	Delete(ctx context.Context, specs ...specification.Specification) (int64, error)
	// SearchSimilar returns the nearest chunks by cosine distance among rows matching specs.
	SearchSimilar(ctx context.Context, embedding []float32, limit int, specs ...specification.Specification) ([]*entity.ScoredDocumentChunk, error)
}
