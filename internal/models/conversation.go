package models

import (
	"context"
	"time"
)

// ConversationState tags the lifecycle of a conversation.
type ConversationState string

const (
	ConversationActive  ConversationState = "active"
	ConversationHandoff ConversationState = "handoff"
	ConversationClosed  ConversationState = "closed"
)

// Conversation is the durable record for one customer thread on one channel.
type Conversation struct {
	ID         string              `json:"id" db:"id"`
	MerchantID string              `json:"merchantId" db:"merchant_id"`
	Channel    string              `json:"channel" db:"channel"`
	SenderID   string              `json:"senderId" db:"sender_id"`
	State      ConversationState   `json:"state" db:"state"`
	Context    ConversationContext `json:"context" db:"context"`
	CreatedAt  time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time           `json:"updatedAt" db:"updated_at"`
}

// ConversationContext is the rolling short-term memory mutated each turn by the
// orchestrator and persisted between turns.
type ConversationContext struct {
	RecentIntents []IntentRecord      `json:"recentIntents,omitempty"`
	Entities      Entities            `json:"entities"`
	Clarification *ClarificationState `json:"clarification,omitempty"`
}

// IntentRecord is one prior classified turn kept in the rolling history.
type IntentRecord struct {
	Intent     Intent    `json:"intent"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// ClarificationState tracks an active clarification exchange.
type ClarificationState struct {
	Active           bool      `json:"active"`
	Attempts         int       `json:"attempts"`
	AskedConstraints []string  `json:"askedConstraints,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
}

// maxRecentIntents caps the rolling history carried between turns.
const maxRecentIntents = 10

// RecordIntent appends a classified turn to the rolling history, evicting the oldest.
func (c *ConversationContext) RecordIntent(intent Intent, confidence float64, at time.Time) {
	c.RecentIntents = append(c.RecentIntents, IntentRecord{Intent: intent, Confidence: confidence, At: at})
	if len(c.RecentIntents) > maxRecentIntents {
		c.RecentIntents = c.RecentIntents[len(c.RecentIntents)-maxRecentIntents:]
	}
}

// MergeEntities folds newly extracted entities into the carried context,
// keeping previously known values when the new turn omits them.
func (c *ConversationContext) MergeEntities(e Entities) {
	if e.Category != "" {
		c.Entities.Category = e.Category
	}
	if e.Budget != nil {
		c.Entities.Budget = e.Budget
	}
	if e.Size != "" {
		c.Entities.Size = e.Size
	}
	if e.Color != "" {
		c.Entities.Color = e.Color
	}
	if e.Brand != "" {
		c.Entities.Brand = e.Brand
	}
	for k, v := range e.Constraints {
		if c.Entities.Constraints == nil {
			c.Entities.Constraints = make(map[string]string)
		}
		c.Entities.Constraints[k] = v
	}
}

// ForgetPreferences clears stored entities and clarification state.
func (c *ConversationContext) ForgetPreferences() {
	c.Entities = Entities{}
	c.Clarification = nil
}

// ConversationRepository defines conversation data access.
type ConversationRepository interface {
	Create(ctx context.Context, conv *Conversation) error
	FindByID(ctx context.Context, id string) (*Conversation, error)
	FindByChannelSender(ctx context.Context, merchantID, channel, senderID string) (*Conversation, error)
	Update(ctx context.Context, conv *Conversation) error
}
