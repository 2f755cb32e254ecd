package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"doc-chat-be/internal/dto"
	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/pkg/serverutils"
	"doc-chat-be/pkg/events"
	"doc-chat-be/pkg/llm"
	"doc-chat-be/pkg/rag/chain"
	"doc-chat-be/pkg/rag/history"
	"doc-chat-be/pkg/rag/index"
	"doc-chat-be/pkg/rag/transcript"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const sessionTimeLayout = "20060102150405"

type IChatService interface {
	StartTurn(ctx context.Context, req *dto.TurnRequest) (*TurnStream, error)
	Ask(ctx context.Context, req *dto.TurnRequest) (*dto.SyncTurnResponse, error)
	History(ctx context.Context, req *dto.HistoryRequest) ([]*dto.HistoryItem, error)
	CreateSession(ctx context.Context, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error)
	Cleanup(ctx context.Context, req *dto.CleanupRequest) (*dto.CleanupResponse, error)
}

// TurnStream carries the fragments of one answer. Err is meaningful once Fragments is closed.
type TurnStream struct {
	QaId     string
	QaNumber int
	Mode     chain.Mode

	fragments chan string
	finished  chan struct{}
	err       error
}

func (s *TurnStream) Fragments() <-chan string {
	return s.fragments
}

// Err reports why the stream ended early; nil after a committed answer.
func (s *TurnStream) Err() error {
	return s.err
}

type ChatServiceConfig struct {
	UploadDir string
	TopK      int
}

type chatService struct {
	index      *index.Manager
	transcript *transcript.Store
	history    *history.Store
	chains     *chain.Builder
	publisher  events.Publisher
	logger     logger.ILogger
	cfg        ChatServiceConfig
	tracer     trace.Tracer
}

func NewChatService(
	idx *index.Manager,
	ts *transcript.Store,
	hs *history.Store,
	chains *chain.Builder,
	publisher events.Publisher,
	log logger.ILogger,
	cfg ChatServiceConfig,
) IChatService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &chatService{
		index:      idx,
		transcript: ts,
		history:    hs,
		chains:     chains,
		publisher:  publisher,
		logger:     log,
		cfg:        cfg,
		tracer:     otel.Tracer("doc-chat-be/chat"),
	}
}

// StartTurn runs everything up to the first model token: mode resolution, optional ingestion,
// chain construction and the question write. Generation continues in the background; the answer
// is committed only if the stream completes without error or cancellation.
func (s *chatService) StartTurn(ctx context.Context, req *dto.TurnRequest) (*TurnStream, error) {
	ctx, span := s.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("user_id", req.UserId),
		attribute.String("session_id", req.SessionId),
	))

	stream, err := s.startTurn(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	span.SetAttributes(
		attribute.String("mode", stream.Mode.String()),
		attribute.String("qa_id", stream.QaId),
	)
	go func() {
		<-stream.finished
		if stream.err != nil {
			span.SetStatus(codes.Error, stream.err.Error())
		}
		span.End()
	}()
	return stream, nil
}

func (s *chatService) startTurn(ctx context.Context, req *dto.TurnRequest) (*TurnStream, error) {
	filter := index.Filter{UserID: req.UserId, SessionID: req.SessionId}

	// 1. RESOLVE_INDEX: decided once, before any ingestion
	mode := s.resolveMode(ctx, filter)

	// 2. INGEST (optional, never fails the turn)
	if req.FilePath != "" {
		s.ingest(ctx, req)
	}

	// 3. BUILD_CHAIN
	processor, err := s.chains.Build(mode, filter, s.cfg.TopK)
	if err != nil {
		return nil, serverutils.InternalError(err)
	}

	messages, err := s.history.Messages(ctx, req.SessionId)
	if err != nil {
		s.logger.Warn("ChatService", "Chat history unavailable, answering without it", map[string]interface{}{
			"session_id": req.SessionId,
			"error":      err.Error(),
		})
		messages = nil
	}

	// 4. Question write; failing here means the answer could never be recorded
	question, err := s.transcript.RecordQuestion(ctx, req.UserId, req.SessionId, req.UserInput)
	if err != nil {
		s.logger.Error("ChatService", "Failed to record question", map[string]interface{}{
			"session_id": req.SessionId,
			"error":      err.Error(),
		})
		return nil, serverutils.StorageError(err)
	}
	qaNumber, _ := transcript.ParseQaID(question.QaId)

	// 5. STREAM
	tokens, err := processor.Process(ctx, messages, req.UserInput)
	if err != nil {
		s.logger.Error("ChatService", "Failed to start generation", map[string]interface{}{
			"session_id": req.SessionId,
			"qa_id":      question.QaId,
			"error":      err.Error(),
		})
		return nil, serverutils.GenerationError(err)
	}

	stream := &TurnStream{
		QaId:      question.QaId,
		QaNumber:  qaNumber,
		Mode:      mode,
		fragments: make(chan string),
		finished:  make(chan struct{}),
	}
	go s.pump(ctx, stream, tokens, question)
	return stream, nil
}

func (s *chatService) resolveMode(ctx context.Context, filter index.Filter) chain.Mode {
	has, err := s.index.HasContent(ctx, filter)
	if err != nil {
		s.logger.Warn("ChatService", "Index lookup failed, using base mode", map[string]interface{}{
			"session_id": filter.SessionID,
			"error":      err.Error(),
		})
		return chain.ModeBase
	}
	if has {
		return chain.ModeRetrieval
	}
	return chain.ModeBase
}

func (s *chatService) ingest(ctx context.Context, req *dto.TurnRequest) {
	ctx, span := s.tracer.Start(ctx, "chat.ingest")
	defer span.End()

	if !withinDir(s.cfg.UploadDir, req.FilePath) {
		s.logger.Warn("ChatService", "Ignoring file outside the upload directory", map[string]interface{}{
			"file_path": req.FilePath,
		})
		return
	}

	report := s.index.IngestAndIndex(ctx, req.FilePath, req.UserId, req.SessionId)
	if report.Degraded() || (report.Count == 0 && !report.Skipped) {
		details := map[string]interface{}{
			"file_path": req.FilePath,
			"outcome":   report.Outcome.String(),
		}
		if report.Err != nil {
			details["error"] = report.Err.Error()
		}
		s.logger.Warn("ChatService", "Document contributed no content", details)
	}
}

// pump forwards fragments to the caller and commits the answer once generation completes.
func (s *chatService) pump(ctx context.Context, stream *TurnStream, tokens <-chan llm.StreamToken, question *entity.ConversationTurn) {
	defer close(stream.finished)
	defer close(stream.fragments)

	var answer strings.Builder
	for tok := range tokens {
		if tok.Err != nil {
			s.logger.Error("ChatService", "Generation failed mid-stream", map[string]interface{}{
				"session_id": question.SessionId,
				"qa_id":      question.QaId,
				"error":      tok.Err.Error(),
			})
			stream.err = serverutils.GenerationError(tok.Err)
			return
		}
		if tok.Content == "" {
			continue
		}
		answer.WriteString(tok.Content)
		select {
		case stream.fragments <- tok.Content:
		case <-ctx.Done():
			for range tokens {
			}
			stream.err = ctx.Err()
			s.logger.Info("ChatService", "Turn cancelled, answer not recorded", map[string]interface{}{
				"session_id": question.SessionId,
				"qa_id":      question.QaId,
			})
			return
		}
	}
	if err := ctx.Err(); err != nil {
		stream.err = err
		return
	}

	// COMMIT: the answer is complete, so a late disconnect must not lose it.
	s.commit(context.WithoutCancel(ctx), question, answer.String())
}

func (s *chatService) commit(ctx context.Context, question *entity.ConversationTurn, answer string) {
	if _, err := s.transcript.RecordAnswer(ctx, question, answer); err != nil {
		s.logger.Error("ChatService", "Failed to record answer", map[string]interface{}{
			"session_id": question.SessionId,
			"qa_id":      question.QaId,
			"error":      err.Error(),
		})
	}

	if err := s.history.AppendExchange(ctx, question.SessionId, question.MessageContent, answer); err != nil {
		s.logger.Warn("ChatService", "Failed to update chat history", map[string]interface{}{
			"session_id": question.SessionId,
			"error":      err.Error(),
		})
	}

	evt := events.TurnCommitted(question.UserId, question.SessionId, question.QaId, len(answer))
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("ChatService", "Failed to publish event", map[string]interface{}{
			"type":  evt.EventType(),
			"error": err.Error(),
		})
	}
}

func (s *chatService) Ask(ctx context.Context, req *dto.TurnRequest) (*dto.SyncTurnResponse, error) {
	stream, err := s.StartTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	var answer strings.Builder
	for fragment := range stream.Fragments() {
		answer.WriteString(fragment)
	}
	if err := stream.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, serverutils.GenerationError(err)
		}
		return nil, serverutils.AsAppError(err)
	}

	return &dto.SyncTurnResponse{
		SessionId: req.SessionId,
		QaId:      stream.QaId,
		Mode:      stream.Mode.String(),
		Answer:    answer.String(),
	}, nil
}

func (s *chatService) History(ctx context.Context, req *dto.HistoryRequest) ([]*dto.HistoryItem, error) {
	pairs, err := s.transcript.History(ctx, req.UserId, req.SessionId)
	if err != nil {
		return nil, serverutils.StorageError(err)
	}

	items := make([]*dto.HistoryItem, len(pairs))
	for i, p := range pairs {
		items[i] = &dto.HistoryItem{
			QaId:     p.QaId,
			Question: p.Question,
			Answer:   p.Answer,
			AskedAt:  p.AskedAt,
		}
	}
	return items, nil
}

// NewSessionID is the UTC timestamp followed by a short random suffix.
func NewSessionID(now time.Time) string {
	return now.UTC().Format(sessionTimeLayout) + "-" + uuid.NewString()[:8]
}

func (s *chatService) CreateSession(ctx context.Context, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error) {
	sessionID := NewSessionID(time.Now())

	if _, err := s.transcript.RecordQuestion(ctx, req.UserId, sessionID, req.UserInput); err != nil {
		return nil, serverutils.StorageError(err)
	}
	if err := s.history.Init(ctx, sessionID); err != nil {
		s.logger.Warn("ChatService", "Failed to init chat history", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}

	s.logger.Info("ChatService", "Session created", map[string]interface{}{
		"user_id":    req.UserId,
		"session_id": sessionID,
	})
	return &dto.CreateSessionResponse{SessionId: sessionID}, nil
}

func (s *chatService) Cleanup(ctx context.Context, req *dto.CleanupRequest) (*dto.CleanupResponse, error) {
	dir, err := sessionDir(s.cfg.UploadDir, req.SessionId)
	if err != nil {
		return nil, serverutils.ValidationError("session_id", err)
	}

	// 1. Uploaded files, removed ahead of the index purge
	res := &dto.CleanupResponse{SessionId: req.SessionId}
	if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Error("ChatService", "Failed to remove uploads", map[string]interface{}{
				"dir":   dir,
				"error": err.Error(),
			})
		} else {
			res.FilesRemoved = true
		}
	}

	// 2. Index
	chunks, err := s.index.PurgeSession(ctx, req.SessionId)
	if err != nil {
		return nil, serverutils.StorageError(err)
	}
	res.ChunksRemoved = chunks

	// 3. In-memory history
	if err := s.history.Teardown(ctx, req.SessionId); err != nil {
		s.logger.Warn("ChatService", "Failed to drop chat history", map[string]interface{}{
			"session_id": req.SessionId,
			"error":      err.Error(),
		})
	}

	// 4. Transcript, only on request
	if req.PurgeTranscript {
		turns, err := s.transcript.DeleteSession(ctx, "", req.SessionId)
		if err != nil {
			return nil, serverutils.StorageError(err)
		}
		res.TurnsRemoved = turns
	}

	if err := s.publisher.Publish(ctx, events.SessionCleaned(req.SessionId, res.ChunksRemoved, res.TurnsRemoved)); err != nil {
		s.logger.Warn("ChatService", "Failed to publish event", map[string]interface{}{
			"type":  events.TypeSessionCleaned,
			"error": err.Error(),
		})
	}

	s.logger.Info("ChatService", "Session cleaned", map[string]interface{}{
		"session_id": req.SessionId,
		"chunks":     res.ChunksRemoved,
		"turns":      res.TurnsRemoved,
	})
	return res, nil
}
