package implementation_test

import (
	"context"
	"testing"
	"time"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/pkg/testdb"
	"doc-chat-be/internal/repository/implementation"
	"doc-chat-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunk(user, session, file string, order int, vec []float32) *entity.DocumentChunk {
	return &entity.DocumentChunk{
		Id:             uuid.New(),
		UserId:         user,
		SessionId:      session,
		FilePath:       file,
		UploadOrder:    order,
		Content:        file + " content",
		EmbeddingValue: vec,
		EmbeddingModel: "test-embed",
		Source:         map[string]interface{}{"extension": ".txt"},
	}
}

func TestDocumentChunkRepository_SearchSimilarRespectsScope(t *testing.T) {
	ctx := context.Background()
	repo := implementation.NewDocumentChunkRepository(testdb.New(t))

	require.NoError(t, repo.CreateBulk(ctx, []*entity.DocumentChunk{
		newChunk("A", "s1", "a.txt", 1, []float32{1, 0, 0}),
		newChunk("A", "s1", "b.txt", 2, []float32{0, 1, 0}),
		newChunk("B", "s1", "c.txt", 1, []float32{1, 0, 0}),
	}))

	results, err := repo.SearchSimilar(ctx, []float32{1, 0, 0}, 5, specification.ByChunkScope{UserID: "A"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a.txt", results[0].Chunk.FilePath)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	for _, r := range results {
		assert.Equal(t, "A", r.Chunk.UserId)
	}
	assert.Equal(t, ".txt", results[0].Chunk.Source["extension"])
	assert.Equal(t, []float32{1, 0, 0}, results[0].Chunk.EmbeddingValue)
}

func TestDocumentChunkRepository_MaxUploadOrderAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := implementation.NewDocumentChunkRepository(testdb.New(t))

	maxOrder, err := repo.MaxUploadOrder(ctx, "A", "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, maxOrder)

	require.NoError(t, repo.CreateBulk(ctx, []*entity.DocumentChunk{
		newChunk("A", "s1", "a.txt", 1, []float32{1, 0}),
		newChunk("A", "s1", "b.txt", 3, []float32{0, 1}),
		newChunk("A", "s2", "c.txt", 7, []float32{0, 1}),
	}))

	maxOrder, err = repo.MaxUploadOrder(ctx, "A", "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, maxOrder)

	_, err = repo.Delete(ctx)
	assert.Error(t, err)

	deleted, err := repo.Delete(ctx, specification.BySessionID{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := repo.Count(ctx, specification.ByChunkScope{UserID: "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestConversationTurnRepository_CreateAndQuery(t *testing.T) {
	ctx := context.Background()
	repo := implementation.NewConversationTurnRepository(testdb.New(t))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, qa := range []string{"qa1", "qa1", "qa2"} {
		turn := &entity.ConversationTurn{
			UserId:    "u1",
			SessionId: "s1",
			MessageId: uuid.NewString(),
			QaId:      qa,
			QaType:    entity.QaTypeQuestion,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.Create(ctx, turn))
		assert.NotZero(t, turn.Id)
	}

	qaIds, err := repo.PluckQaIds(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"qa1", "qa2"}, qaIds)

	latest, err := repo.FindOne(ctx,
		specification.ByConversation{UserID: "u1", SessionID: "s1"},
		specification.Chronological{Desc: true},
	)
	require.NoError(t, err)
	assert.Equal(t, "qa2", latest.QaId)

	missing, err := repo.FindOne(ctx, specification.ByConversation{UserID: "nobody", SessionID: "s1"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	deleted, err := repo.DeleteByConversation(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}
