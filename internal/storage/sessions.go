// internal/storage/sessions.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// WidgetSession is the short-lived state for an embeddable-widget visitor.
type WidgetSession struct {
	ID             string    `json:"id"`
	MerchantID     string    `json:"merchantId"`
	ConversationID string    `json:"conversationId,omitempty"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// WidgetSessionStore keeps widget sessions in Redis.
type WidgetSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewWidgetSessionStore(rdb *redis.Client, ttl time.Duration) *WidgetSessionStore {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &WidgetSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return "widget:session:" + id }

func (s *WidgetSessionStore) Get(ctx context.Context, id string) (*WidgetSession, error) {
	val, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var sess WidgetSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *WidgetSessionStore) Put(ctx context.Context, sess *WidgetSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(sess.ID), data, s.ttl).Err()
}

// Track refreshes the visitor's session on an inbound widget message,
// creating it on first contact and binding it to the resolved conversation.
func (s *WidgetSessionStore) Track(ctx context.Context, merchantID, senderID, conversationID string) error {
	sess, err := s.Get(ctx, senderID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		sess = &WidgetSession{ID: senderID, MerchantID: merchantID}
	}

	now := time.Now().UTC()
	sess.ConversationID = conversationID
	sess.LastSeenAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	return s.Put(ctx, sess)
}

func (s *WidgetSessionStore) Touch(ctx context.Context, id string) error {
	return s.rdb.Expire(ctx, sessionKey(id), s.ttl).Err()
}

// CleanupExpired scans session keys in cursor batches and removes sessions whose
// embedded expiry has passed. Keys without a TTL (legacy writes) are deleted too.
// Returns the number of sessions removed.
func (s *WidgetSessionStore) CleanupExpired(ctx context.Context, batchSize int64) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	removed := 0
	var cursor uint64
	now := time.Now().UTC()

	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, "widget:session:*", batchSize).Result()
		if err != nil {
			return removed, err
		}

		for _, key := range keys {
			val, err := s.rdb.Get(ctx, key).Result()
			if err != nil {
				continue
			}
			var sess WidgetSession
			if err := json.Unmarshal([]byte(val), &sess); err != nil {
				// Unreadable entry: drop it rather than scan it forever.
				if s.rdb.Del(ctx, key).Err() == nil {
					removed++
				}
				continue
			}
			if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(now) {
				if s.rdb.Del(ctx, key).Err() == nil {
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}
