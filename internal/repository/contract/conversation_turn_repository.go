package contract

import (
	"context"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/repository/specification"
)

type ConversationTurnRepository interface {
	Create(ctx context.Context, turn *entity.ConversationTurn) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ConversationTurn, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ConversationTurn, error)
	PluckQaIds(ctx context.Context, userId, sessionId string) ([]string, error)
	DeleteByConversation(ctx context.Context, userId, sessionId string) (int64, error)
	DeleteBySessionId(ctx context.Context, sessionId string) (int64, error)
}
