package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "doc-chat:history:"
	// placeholder keeps an empty history present as a key; Get skips it.
	placeholder = "{}"
)

var initScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  redis.call("RPUSH", KEYS[1], ARGV[1])
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

// ChatHistoryRepository keeps each session history as a redis list of JSON messages,
// shared between server instances.
type ChatHistoryRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ contract.ChatHistoryRepository = (*ChatHistoryRepository)(nil)

func NewChatHistoryRepository(rdb *redis.Client, ttl time.Duration) *ChatHistoryRepository {
	return &ChatHistoryRepository{rdb: rdb, ttl: ttl}
}

func key(sessionId string) string {
	return keyPrefix + sessionId
}

func (r *ChatHistoryRepository) Get(ctx context.Context, sessionId string) ([]entity.HistoryMessage, bool, error) {
	k := key(sessionId)
	n, err := r.rdb.Exists(ctx, k).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis exists: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	raw, err := r.rdb.LRange(ctx, k, 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lrange: %w", err)
	}

	messages := make([]entity.HistoryMessage, 0, len(raw))
	for _, item := range raw {
		var msg entity.HistoryMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue // placeholder or corrupt entry
		}
		if msg.Role == "" {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, true, nil
}

func (r *ChatHistoryRepository) Init(ctx context.Context, sessionId string) error {
	if err := initScript.Run(ctx, r.rdb, []string{key(sessionId)}, placeholder, r.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis init history: %w", err)
	}
	return nil
}

func (r *ChatHistoryRepository) Save(ctx context.Context, sessionId string, messages []entity.HistoryMessage) error {
	k := key(sessionId)
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, k)
	// An empty history still needs a key so Get can report it as initialised.
	pipe.RPush(ctx, k, placeholder)
	if err := pushAll(ctx, pipe, k, messages); err != nil {
		return err
	}
	pipe.Expire(ctx, k, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *ChatHistoryRepository) Append(ctx context.Context, sessionId string, messages ...entity.HistoryMessage) error {
	k := key(sessionId)
	pipe := r.rdb.TxPipeline()
	if err := pushAll(ctx, pipe, k, messages); err != nil {
		return err
	}
	pipe.Expire(ctx, k, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *ChatHistoryRepository) Delete(ctx context.Context, sessionId string) error {
	return r.rdb.Del(ctx, key(sessionId)).Err()
}

func pushAll(ctx context.Context, pipe redis.Pipeliner, k string, messages []entity.HistoryMessage) error {
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal history message: %w", err)
		}
		pipe.RPush(ctx, k, data)
	}
	return nil
}
