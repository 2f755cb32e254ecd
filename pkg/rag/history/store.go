// Package history keeps the short-lived chat history used to condition the model.
// It is best-effort: losing it on restart only costs conversational context.
package history

import (
	"context"
	"errors"
	"fmt"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/repository/contract"
	"doc-chat-be/pkg/llm"
)

var ErrMissingSession = errors.New("session_id is required")

type Store struct {
	repo   contract.ChatHistoryRepository
	logger logger.ILogger
	// maxMessages bounds what is handed to the model; 0 means unbounded.
	maxMessages int
}

func NewStore(repo contract.ChatHistoryRepository, log logger.ILogger, maxMessages int) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{repo: repo, logger: log, maxMessages: maxMessages}
}

// Init creates an empty history for the session unless one exists.
func (s *Store) Init(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	if err := s.repo.Init(ctx, sessionID); err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	return nil
}

// Messages returns the session history oldest first, created empty on first access.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if err := s.Init(ctx, sessionID); err != nil {
		return nil, err
	}
	stored, _, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	if s.maxMessages > 0 && len(stored) > s.maxMessages {
		stored = stored[len(stored)-s.maxMessages:]
	}

	messages := make([]llm.Message, len(stored))
	for i, m := range stored {
		messages[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return messages, nil
}

// AppendExchange records one finished question and answer.
func (s *Store) AppendExchange(ctx context.Context, sessionID, question, answer string) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	err := s.repo.Append(ctx, sessionID,
		entity.HistoryMessage{Role: entity.RoleUser, Content: question},
		entity.HistoryMessage{Role: entity.RoleAssistant, Content: answer},
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Teardown discards the session history.
func (s *Store) Teardown(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("teardown history: %w", err)
	}
	s.logger.Debug("HistoryStore", "History dropped", map[string]interface{}{"session_id": sessionID})
	return nil
}
