package memory

import (
	"context"
	"sync"
	"time"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type ChatHistoryRepository struct {
	cache *cache.Cache
	// go-cache has no read-modify-write primitive, so writes are serialized here.
	mu sync.Mutex
}

var _ contract.ChatHistoryRepository = (*ChatHistoryRepository)(nil)

// NewChatHistoryRepository keeps each session history for ttl after its last write and
// purges expired items every ttl/6.
func NewChatHistoryRepository(ttl time.Duration) *ChatHistoryRepository {
	cleanup := ttl / 6
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &ChatHistoryRepository{
		cache: cache.New(ttl, cleanup),
	}
}

func (r *ChatHistoryRepository) Get(_ context.Context, sessionId string) ([]entity.HistoryMessage, bool, error) {
	if x, found := r.cache.Get(sessionId); found {
		stored := x.([]entity.HistoryMessage)
		out := make([]entity.HistoryMessage, len(stored))
		copy(out, stored)
		return out, true, nil
	}
	return nil, false, nil
}

func (r *ChatHistoryRepository) Init(_ context.Context, sessionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Add fails when the key exists, which leaves an existing history untouched.
	_ = r.cache.Add(sessionId, []entity.HistoryMessage{}, cache.DefaultExpiration)
	return nil
}

func (r *ChatHistoryRepository) Save(_ context.Context, sessionId string, messages []entity.HistoryMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := make([]entity.HistoryMessage, len(messages))
	copy(stored, messages)
	r.cache.Set(sessionId, stored, cache.DefaultExpiration)
	return nil
}

func (r *ChatHistoryRepository) Append(_ context.Context, sessionId string, messages ...entity.HistoryMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var current []entity.HistoryMessage
	if x, found := r.cache.Get(sessionId); found {
		current = x.([]entity.HistoryMessage)
	}
	next := make([]entity.HistoryMessage, 0, len(current)+len(messages))
	next = append(next, current...)
	next = append(next, messages...)
	r.cache.Set(sessionId, next, cache.DefaultExpiration)
	return nil
}

func (r *ChatHistoryRepository) Delete(_ context.Context, sessionId string) error {
	r.cache.Delete(sessionId)
	return nil
}
