// Package index manages the shared vector index of document chunks. Sessions are views over the
// index selected by a metadata filter, not separate stores.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/repository/specification"
	"doc-chat-be/internal/repository/unitofwork"
	"doc-chat-be/pkg/embedding"
	"doc-chat-be/pkg/ingest"
	"doc-chat-be/pkg/keylock"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidFilter = errors.New("index filter requires user_id")
	ErrMissingScope  = errors.New("user_id and session_id are required")
)

// Filter is a conjunction of metadata equality constraints. UserID is mandatory.
type Filter struct {
	UserID    string
	SessionID string
	FilePath  string
}

func (f Filter) Validate() error {
	if f.UserID == "" {
		return ErrInvalidFilter
	}
	return nil
}

func (f Filter) spec() specification.ByChunkScope {
	return specification.ByChunkScope{
		UserID:    f.UserID,
		SessionID: f.SessionID,
		FilePath:  f.FilePath,
	}
}

// IngestReport describes one IngestAndIndex call. A non-nil Err means the file was not indexed
// and the caller should treat the document as contributing nothing.
type IngestReport struct {
	FilePath    string
	Count       int
	UploadOrder int
	Outcome     ingest.Outcome
	Skipped     bool
	Err         error
}

func (r IngestReport) Degraded() bool {
	return r.Err != nil
}

type Manager struct {
	uowFactory  unitofwork.RepositoryFactory
	embedder    embedding.EmbeddingProvider
	ingestor    *ingest.Ingestor
	locks       *keylock.KeyLock
	logger      logger.ILogger
	concurrency int
	tracer      trace.Tracer
}

type Option func(*Manager)

// WithConcurrency bounds parallel embedding requests per ingestion.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func NewManager(
	uowFactory unitofwork.RepositoryFactory,
	embedder embedding.EmbeddingProvider,
	ingestor *ingest.Ingestor,
	opts ...Option,
) *Manager {
	m := &Manager{
		uowFactory:  uowFactory,
		embedder:    embedder,
		ingestor:    ingestor,
		locks:       keylock.New(),
		logger:      logger.NewNopLogger(),
		concurrency: 4,
		tracer:      otel.Tracer("doc-chat-be/index"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EmbeddingModel is the embedding configuration the index is keyed by.
func (m *Manager) EmbeddingModel() string {
	return m.embedder.ModelName()
}

// NextUploadOrder returns one more than the highest upload_order stored for the pair.
// It is derived from stored chunks on every call, so it survives restarts.
func (m *Manager) NextUploadOrder(ctx context.Context, userID, sessionID string) (int, error) {
	if userID == "" || sessionID == "" {
		return 0, ErrMissingScope
	}
	unlock := m.locks.Lock(keylock.ConversationKey(userID, sessionID))
	defer unlock()
	return m.nextUploadOrder(ctx, userID, sessionID)
}

func (m *Manager) nextUploadOrder(ctx context.Context, userID, sessionID string) (int, error) {
	uow := m.uowFactory.NewUnitOfWork(ctx)
	maxOrder, err := uow.DocumentChunkRepository().MaxUploadOrder(ctx, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("read max upload order: %w", err)
	}
	return maxOrder + 1, nil
}

// IngestAndIndex ingests filePath and stores its chunks stamped with user, session, file and a
// fresh upload order. The whole sequence is serialized per (user, session) and holds the session
// lock, so a concurrent PurgeSession runs either before the file is read or after its chunks are stored.
// A file already indexed for the pair is skipped.
func (m *Manager) IngestAndIndex(ctx context.Context, filePath, userID, sessionID string) (report IngestReport) {
	report = IngestReport{FilePath: filePath}

	ctx, span := m.tracer.Start(ctx, "index.ingest", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("session_id", sessionID),
		attribute.String("file_path", filePath),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("chunks", report.Count),
			attribute.String("outcome", report.Outcome.String()),
		)
		if report.Err != nil {
			span.SetStatus(codes.Error, report.Err.Error())
		}
		span.End()
	}()

	if userID == "" || sessionID == "" || filePath == "" {
		report.Outcome = ingest.OutcomeFailed
		report.Err = ErrMissingScope
		return report
	}

	unlock := m.locks.Lock(keylock.ConversationKey(userID, sessionID))
	defer unlock()
	unlockSession := m.locks.Lock(keylock.SessionKey(sessionID))
	defer unlockSession()

	uow := m.uowFactory.NewUnitOfWork(ctx)
	existing, err := uow.DocumentChunkRepository().Count(ctx,
		specification.ByChunkScope{UserID: userID, SessionID: sessionID, FilePath: filePath},
		specification.ByEmbeddingModel{Model: m.EmbeddingModel()},
	)
	if err != nil {
		return m.fail(report, fmt.Errorf("check existing chunks: %w", err))
	}
	if existing > 0 {
		m.logger.Info("IndexManager", "File already indexed, skipping", map[string]interface{}{
			"file_path":  filePath,
			"session_id": sessionID,
			"chunks":     existing,
		})
		report.Outcome = ingest.OutcomeOK
		report.Skipped = true
		return report
	}

	res := m.ingestor.IngestFile(ctx, filePath)
	report.Outcome = res.Outcome
	if res.Outcome != ingest.OutcomeOK {
		report.Err = res.Err
		return report
	}

	vectors, err := m.embedAll(ctx, res.Chunks)
	if err != nil {
		return m.fail(report, err)
	}

	order, err := m.nextUploadOrder(ctx, userID, sessionID)
	if err != nil {
		return m.fail(report, err)
	}

	now := time.Now()
	chunks := make([]*entity.DocumentChunk, len(res.Chunks))
	for i, c := range res.Chunks {
		chunks[i] = &entity.DocumentChunk{
			Id:             uuid.New(),
			UserId:         userID,
			SessionId:      sessionID,
			FilePath:       filePath,
			UploadOrder:    order,
			ChunkIndex:     c.Index,
			Content:        c.Text,
			EmbeddingValue: vectors[i],
			EmbeddingModel: m.EmbeddingModel(),
			Source:         c.Source,
			CreatedAt:      now,
		}
	}

	if err := m.store(ctx, chunks); err != nil {
		return m.fail(report, err)
	}

	report.Count = len(chunks)
	report.UploadOrder = order
	m.logger.Info("IndexManager", "Document indexed", map[string]interface{}{
		"file_path":    filePath,
		"user_id":      userID,
		"session_id":   sessionID,
		"chunks":       report.Count,
		"upload_order": order,
	})
	return report
}

func (m *Manager) fail(report IngestReport, err error) IngestReport {
	m.logger.Error("IndexManager", "Indexing failed", map[string]interface{}{
		"file_path": report.FilePath,
		"error":     err.Error(),
	})
	report.Outcome = ingest.OutcomeFailed
	report.Err = err
	report.Count = 0
	return report
}

func (m *Manager) embedAll(ctx context.Context, chunks []ingest.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			res, err := m.embedder.Generate(gctx, c.Text, embedding.TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = res.Embedding.Values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (m *Manager) store(ctx context.Context, chunks []*entity.DocumentChunk) error {
	uow := m.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := uow.DocumentChunkRepository().CreateBulk(ctx, chunks); err != nil {
		_ = uow.Rollback()
		return fmt.Errorf("insert chunks: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}

// Search returns up to topK chunks matching filter, most similar first.
func (m *Manager) Search(ctx context.Context, query string, filter Filter, topK int) ([]*entity.ScoredDocumentChunk, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ctx, span := m.tracer.Start(ctx, "index.search", trace.WithAttributes(
		attribute.String("user_id", filter.UserID),
		attribute.String("session_id", filter.SessionID),
		attribute.Int("top_k", topK),
	))
	defer span.End()

	res, err := m.embedder.Generate(ctx, query, embedding.TaskRetrievalQuery)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embed query: %w", err)
	}

	uow := m.uowFactory.NewUnitOfWork(ctx)
	results, err := uow.DocumentChunkRepository().SearchSimilar(ctx, res.Embedding.Values, topK,
		filter.spec(),
		specification.ByEmbeddingModel{Model: m.EmbeddingModel()},
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// HasContent reports whether any chunk matches filter.
func (m *Manager) HasContent(ctx context.Context, filter Filter) (bool, error) {
	if err := filter.Validate(); err != nil {
		return false, err
	}
	uow := m.uowFactory.NewUnitOfWork(ctx)
	n, err := uow.DocumentChunkRepository().Count(ctx,
		filter.spec(),
		specification.ByEmbeddingModel{Model: m.EmbeddingModel()},
	)
	if err != nil {
		return false, fmt.Errorf("count chunks: %w", err)
	}
	return n > 0, nil
}

// PurgeSession removes every chunk of the session regardless of user. It waits for
// in-flight ingestions of the session to finish.
func (m *Manager) PurgeSession(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, ErrMissingScope
	}
	unlock := m.locks.Lock(keylock.SessionKey(sessionID))
	defer unlock()

	uow := m.uowFactory.NewUnitOfWork(ctx)
	n, err := uow.DocumentChunkRepository().Delete(ctx, specification.BySessionID{SessionID: sessionID})
	if err != nil {
		return 0, fmt.Errorf("purge session chunks: %w", err)
	}
	m.logger.Info("IndexManager", "Session purged", map[string]interface{}{"session_id": sessionID, "chunks": n})
	return n, nil
}

// PurgeFile removes the chunks of one file so a re-upload is indexed as a new version.
func (m *Manager) PurgeFile(ctx context.Context, userID, sessionID, filePath string) (int64, error) {
	if userID == "" || sessionID == "" || filePath == "" {
		return 0, ErrMissingScope
	}
	unlock := m.locks.Lock(keylock.ConversationKey(userID, sessionID))
	defer unlock()

	uow := m.uowFactory.NewUnitOfWork(ctx)
	n, err := uow.DocumentChunkRepository().Delete(ctx,
		specification.ByChunkScope{UserID: userID, SessionID: sessionID, FilePath: filePath})
	if err != nil {
		return 0, fmt.Errorf("purge file chunks: %w", err)
	}
	return n, nil
}
