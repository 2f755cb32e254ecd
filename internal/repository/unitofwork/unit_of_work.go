package unitofwork

import (
	"context"

	"doc-chat-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ConversationTurnRepository() contract.ConversationTurnRepository
	DocumentChunkRepository() contract.DocumentChunkRepository
}
