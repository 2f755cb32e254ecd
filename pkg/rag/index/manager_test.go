package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"doc-chat-be/internal/pkg/testdb"
	"doc-chat-be/internal/repository/unitofwork"
	"doc-chat-be/pkg/embedding"
	"doc-chat-be/pkg/embedding/embeddingtest"
	"doc-chat-be/pkg/ingest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *embeddingtest.Embedder) {
	t.Helper()
	db := testdb.New(t)
	emb := embeddingtest.New()
	return NewManager(unitofwork.NewRepositoryFactory(db), emb, ingest.New()), emb
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestAndIndex_SmallTextFileBecomesOneChunk(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	path := writeFile(t, "notes.txt", strings.Repeat("a", 50))

	report := m.IngestAndIndex(ctx, path, "u1", "s1")

	require.NoError(t, report.Err)
	assert.Equal(t, ingest.OutcomeOK, report.Outcome)
	assert.Equal(t, 1, report.Count)
	assert.Equal(t, 1, report.UploadOrder)

	next, err := m.NextUploadOrder(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func TestIngestAndIndex_UploadOrderIncreases(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first := m.IngestAndIndex(ctx, writeFile(t, "a.txt", "alpha document"), "u1", "s1")
	second := m.IngestAndIndex(ctx, writeFile(t, "b.txt", "beta document"), "u1", "s1")

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, 1, first.UploadOrder)
	assert.Equal(t, 2, second.UploadOrder)
}

func TestIngestAndIndex_ConcurrentUploadsGetDistinctOrders(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	paths := []string{
		writeFile(t, "one.txt", "first file"),
		writeFile(t, "two.txt", "second file"),
		writeFile(t, "three.txt", "third file"),
	}

	var wg sync.WaitGroup
	reports := make([]IngestReport, len(paths))
	for i, p := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = m.IngestAndIndex(ctx, p, "u1", "s1")
		}()
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, r := range reports {
		require.NoError(t, r.Err)
		seen[r.UploadOrder] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seen)
}

func TestIngestAndIndex_UnsupportedFileIndexesNothing(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	report := m.IngestAndIndex(ctx, writeFile(t, "tool.exe", "MZ binary"), "u1", "s1")

	assert.Equal(t, ingest.OutcomeUnsupported, report.Outcome)
	assert.Zero(t, report.Count)

	has, err := m.HasContent(ctx, Filter{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIngestAndIndex_EmbeddingFailureStoresNothing(t *testing.T) {
	m, emb := newTestManager(t)
	emb.FailOn = "poison"
	ctx := context.Background()

	report := m.IngestAndIndex(ctx, writeFile(t, "bad.txt", "poison pill"), "u1", "s1")

	require.Error(t, report.Err)
	assert.Equal(t, ingest.OutcomeFailed, report.Outcome)

	has, err := m.HasContent(ctx, Filter{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIngestAndIndex_SkipsAlreadyIndexedFile(t *testing.T) {
	m, emb := newTestManager(t)
	ctx := context.Background()
	path := writeFile(t, "dup.txt", "same content twice")

	first := m.IngestAndIndex(ctx, path, "u1", "s1")
	calls := emb.Calls()
	second := m.IngestAndIndex(ctx, path, "u1", "s1")

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.True(t, second.Skipped)
	assert.Equal(t, calls, emb.Calls())
}

func TestIngestAndIndex_RequiresScope(t *testing.T) {
	m, _ := newTestManager(t)
	report := m.IngestAndIndex(context.Background(), writeFile(t, "x.txt", "x"), "", "s1")
	assert.ErrorIs(t, report.Err, ErrMissingScope)
}

func TestSearch_IsolatesUsers(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.IngestAndIndex(ctx, writeFile(t, "a.txt", "golang channels and goroutines"), "alice", "s1").Err)
	require.NoError(t, m.IngestAndIndex(ctx, writeFile(t, "b.txt", "golang channels and goroutines"), "bob", "s1").Err)

	results, err := m.Search(ctx, "goroutines", Filter{UserID: "alice"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "alice", r.Chunk.UserId)
	}
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.IngestAndIndex(ctx, writeFile(t, "fruit.txt", "apple banana cherry"), "u1", "s1").Err)
	require.NoError(t, m.IngestAndIndex(ctx, writeFile(t, "cars.txt", "engine wheel brake"), "u1", "s1").Err)

	results, err := m.Search(ctx, "banana apple", Filter{UserID: "u1", SessionID: "s1"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Chunk.FilePath, "fruit.txt")
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
}

func TestSearch_FileFilter(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	keep := writeFile(t, "keep.txt", "shared words here")

	require.NoError(t, m.IngestAndIndex(ctx, keep, "u1", "s1").Err)
	require.NoError(t, m.IngestAndIndex(ctx, writeFile(t, "other.txt", "shared words there"), "u1", "s1").Err)

	results, err := m.Search(ctx, "shared words", Filter{UserID: "u1", SessionID: "s1", FilePath: keep}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep, results[0].Chunk.FilePath)
}

func TestSearch_RequiresUser(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Search(context.Background(), "q", Filter{SessionID: "s1"}, 5)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestPurgeSession_RemovesEveryChunk(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.IngestAndIndex(ctx, writeFile(t, "a.txt", "some text"), "u1", "s1").Err)
	require.NoError(t, m.IngestAndIndex(ctx, writeFile(t, "b.txt", "more text"), "u2", "s1").Err)
	require.NoError(t, m.IngestAndIndex(ctx, writeFile(t, "c.txt", "other session"), "u1", "s2").Err)

	n, err := m.PurgeSession(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	results, err := m.Search(ctx, "text", Filter{UserID: "u1", SessionID: "s1"}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	has, err := m.HasContent(ctx, Filter{UserID: "u1", SessionID: "s2"})
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPurgeFile_AllowsReindex(t *testing.T) {
	m, emb := newTestManager(t)
	ctx := context.Background()
	path := writeFile(t, "doc.txt", "version one")

	require.NoError(t, m.IngestAndIndex(ctx, path, "u1", "s1").Err)
	_, err := m.PurgeFile(ctx, "u1", "s1", path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))
	calls := emb.Calls()
	report := m.IngestAndIndex(ctx, path, "u1", "s1")

	require.NoError(t, report.Err)
	assert.False(t, report.Skipped)
	assert.Greater(t, emb.Calls(), calls)
	assert.Equal(t, 1, report.UploadOrder)
}

// gatedEmbedder blocks every Generate call until release is closed.
type gatedEmbedder struct {
	*embeddingtest.Embedder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Embedder.Generate(ctx, text, taskType)
}

func TestPurgeSession_WaitsForInFlightIngestion(t *testing.T) {
	db := testdb.New(t)
	emb := &gatedEmbedder{
		Embedder: embeddingtest.New(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	m := NewManager(unitofwork.NewRepositoryFactory(db), emb, ingest.New())
	ctx := context.Background()
	path := writeFile(t, "late.txt", "a document still being embedded")

	ingested := make(chan IngestReport, 1)
	go func() { ingested <- m.IngestAndIndex(ctx, path, "u1", "s1") }()
	<-emb.entered

	purged := make(chan int64, 1)
	go func() {
		n, err := m.PurgeSession(ctx, "s1")
		assert.NoError(t, err)
		purged <- n
	}()

	assert.Never(t, func() bool { return len(purged) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	close(emb.release)
	report := <-ingested
	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Count)

	assert.Equal(t, int64(1), <-purged)
	has, err := m.HasContent(ctx, Filter{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, has)
}
