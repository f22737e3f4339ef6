package models

import (
	"context"
	"time"
)

// HybridModeWindow is how long an operator takeover silences the bot.
const HybridModeWindow = 2 * time.Hour

// HybridModeState marks a conversation temporarily owned by a human operator.
// Written only when an operator explicitly takes over; read on every inbound message.
type HybridModeState struct {
	ConversationID string    `json:"conversationId" db:"conversation_id"`
	Enabled        bool      `json:"enabled" db:"enabled"`
	ActivatedAt    time.Time `json:"activatedAt" db:"activated_at"`
	ExpiresAt      string    `json:"expiresAt" db:"expires_at"` // RFC3339; kept as text so a corrupt value fails open, not silent
}

// NewHybridModeState activates hybrid mode for the fixed window.
func NewHybridModeState(conversationID string, now time.Time) *HybridModeState {
	return &HybridModeState{
		ConversationID: conversationID,
		Enabled:        true,
		ActivatedAt:    now,
		ExpiresAt:      now.Add(HybridModeWindow).Format(time.RFC3339),
	}
}

// HybridModeRepository defines hybrid-mode state access.
type HybridModeRepository interface {
	Get(ctx context.Context, conversationID string) (*HybridModeState, error)
	Set(ctx context.Context, state *HybridModeState) error
	Clear(ctx context.Context, conversationID string) error
}
