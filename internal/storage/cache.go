// internal/storage/cache.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"commerce-orchestrator/internal/models"
)

// ContextCache keeps hot conversation state in Redis so every turn does not
// round-trip to PostgreSQL. Redis is a cache here, not the source of truth.
type ContextCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewContextCache(rdb *redis.Client, ttl time.Duration) *ContextCache {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &ContextCache{rdb: rdb, ttl: ttl}
}

// conversationKey mirrors the repository's sender-tuple lookup so a turn can
// be answered from the cache before any SQL round-trip.
func conversationKey(merchantID, channel, senderID string) string {
	return "conv:" + merchantID + ":" + channel + ":" + senderID
}

func (c *ContextCache) GetConversation(ctx context.Context, merchantID, channel, senderID string) (*models.Conversation, error) {
	val, err := c.rdb.Get(ctx, conversationKey(merchantID, channel, senderID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var conv models.Conversation
	if err := json.Unmarshal([]byte(val), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *ContextCache) PutConversation(ctx context.Context, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	key := conversationKey(conv.MerchantID, conv.Channel, conv.SenderID)
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

func (c *ContextCache) Invalidate(ctx context.Context, merchantID, channel, senderID string) error {
	return c.rdb.Del(ctx, conversationKey(merchantID, channel, senderID)).Err()
}

// HybridModeStore implements models.HybridModeRepository on Redis. The state
// is small, short-lived (2h window) and read on every inbound message.
type HybridModeStore struct {
	rdb *redis.Client
}

func NewHybridModeStore(rdb *redis.Client) *HybridModeStore {
	return &HybridModeStore{rdb: rdb}
}

func hybridKey(conversationID string) string { return "hybrid:" + conversationID }

func (s *HybridModeStore) Get(ctx context.Context, conversationID string) (*models.HybridModeState, error) {
	val, err := s.rdb.Get(ctx, hybridKey(conversationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// no record means the bot owns the conversation
			return nil, nil
		}
		return nil, err
	}
	var state models.HybridModeState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *HybridModeStore) Set(ctx context.Context, state *models.HybridModeState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	// TTL is a backstop well past the window; the arbiter checks expiresAt itself.
	return s.rdb.Set(ctx, hybridKey(state.ConversationID), data, models.HybridModeWindow+time.Hour).Err()
}

func (s *HybridModeStore) Clear(ctx context.Context, conversationID string) error {
	return s.rdb.Del(ctx, hybridKey(conversationID)).Err()
}
