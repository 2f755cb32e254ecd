package implementation

import (
	"context"
	"math"
	"sort"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/mapper"
	"doc-chat-be/internal/model"
	"doc-chat-be/internal/repository/contract"
	"doc-chat-be/internal/repository/specification"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type DocumentChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DocumentChunkMapper
}

func NewDocumentChunkRepository(db *gorm.DB) contract.DocumentChunkRepository {
	return &DocumentChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewDocumentChunkMapper(),
	}
}

func (r *DocumentChunkRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DocumentChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := r.mapper.ToModels(chunks)
	if err := r.db.WithContext(ctx).CreateInBatches(models, 100).Error; err != nil {
		return err
	}
	for i, m := range models {
		*chunks[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

func (r *DocumentChunkRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error) {
	var models []*model.DocumentChunk
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *DocumentChunkRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	err := query.Model(&model.DocumentChunk{}).Count(&count).Error
	return count, err
}

func (r *DocumentChunkRepositoryImpl) MaxUploadOrder(ctx context.Context, userId, sessionId string) (int, error) {
	var maxOrder int
	err := r.db.WithContext(ctx).
		Model(&model.DocumentChunk{}).
		Where("user_id = ? AND session_id = ?", userId, sessionId).
		Select("COALESCE(MAX(upload_order), 0)").
		Scan(&maxOrder).Error
	return maxOrder, err
}

func (r *DocumentChunkRepositoryImpl) Delete(ctx context.Context, specs ...specification.Specification) (int64, error) {
	if len(specs) == 0 {
		// Refuse to wipe the whole index by accident.
		return 0, gorm.ErrMissingWhereClause
	}
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	res := query.Delete(&model.DocumentChunk{})
	return res.RowsAffected, res.Error
}

func (r *DocumentChunkRepositoryImpl) SearchSimilar(ctx context.Context, embedding []float32, limit int, specs ...specification.Specification) ([]*entity.ScoredDocumentChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	if r.db.Dialector.Name() != "postgres" {
		return r.searchInMemory(ctx, embedding, limit, specs...)
	}

	// Cosine distance in pgvector is: 1 - cosine_similarity
	type result struct {
		model.DocumentChunk
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	query := r.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, 1 - (embedding_value <=> ?) as similarity", queryVector)
	query = r.applySpecifications(query, specs...)

	err := query.
		Order(gorm.Expr("embedding_value <=> ?", queryVector)).
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredDocumentChunk, len(results))
	for i, res := range results {
		scored[i] = &entity.ScoredDocumentChunk{
			Chunk:      r.mapper.ToEntity(&res.DocumentChunk),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}

// searchInMemory ranks candidates in Go for databases without a vector operator (sqlite).
func (r *DocumentChunkRepositoryImpl) searchInMemory(ctx context.Context, embedding []float32, limit int, specs ...specification.Specification) ([]*entity.ScoredDocumentChunk, error) {
	candidates, err := r.FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredDocumentChunk, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, &entity.ScoredDocumentChunk{
			Chunk:      c,
			Similarity: cosineSimilarity(embedding, c.EmbeddingValue),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
