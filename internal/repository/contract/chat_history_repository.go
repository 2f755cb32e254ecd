package contract

import (
	"context"

	"doc-chat-be/internal/entity"
)

// ChatHistoryRepository stores the short-lived per-session conversation context.
type ChatHistoryRepository interface {
	Get(ctx context.Context, sessionId string) ([]entity.HistoryMessage, bool, error)
	// Init creates an empty history unless one exists, atomically.
	Init(ctx context.Context, sessionId string) error
	Save(ctx context.Context, sessionId string, messages []entity.HistoryMessage) error
	Append(ctx context.Context, sessionId string, messages ...entity.HistoryMessage) error
	Delete(ctx context.Context, sessionId string) error
}
