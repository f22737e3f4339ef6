// internal/storage/conversations.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"commerce-orchestrator/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ConversationRepo is the PostgreSQL-backed conversation repository.
type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *models.Conversation) error {
	ctxJSON, err := json.Marshal(conv.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, merchant_id, channel, sender_id, state, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		conv.ID, conv.MerchantID, conv.Channel, conv.SenderID, conv.State, ctxJSON,
		conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

func (r *ConversationRepo) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, channel, sender_id, state, context, created_at, updated_at
		FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (r *ConversationRepo) FindByChannelSender(ctx context.Context, merchantID, channel, senderID string) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, channel, sender_id, state, context, created_at, updated_at
		FROM conversations
		WHERE merchant_id = $1 AND channel = $2 AND sender_id = $3
		ORDER BY created_at DESC LIMIT 1`,
		merchantID, channel, senderID)
	return scanConversation(row)
}

func (r *ConversationRepo) Update(ctx context.Context, conv *models.Conversation) error {
	ctxJSON, err := json.Marshal(conv.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	conv.UpdatedAt = time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		UPDATE conversations SET state = $2, context = $3, updated_at = $4 WHERE id = $1`,
		conv.ID, conv.State, ctxJSON, conv.UpdatedAt,
	)
	return err
}

func scanConversation(row *sql.Row) (*models.Conversation, error) {
	var conv models.Conversation
	var ctxJSON []byte
	err := row.Scan(&conv.ID, &conv.MerchantID, &conv.Channel, &conv.SenderID,
		&conv.State, &ctxJSON, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(ctxJSON) > 0 {
		if err := json.Unmarshal(ctxJSON, &conv.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	return &conv, nil
}
