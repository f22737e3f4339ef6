package models

import (
	"context"
	"time"
)

// HandoffStatus enumerates the handoff lifecycle states.
type HandoffStatus string

const (
	HandoffNone      HandoffStatus = "none"
	HandoffPending   HandoffStatus = "pending"
	HandoffActive    HandoffStatus = "active"
	HandoffResolved  HandoffStatus = "resolved"
	HandoffReopened  HandoffStatus = "reopened"
	HandoffEscalated HandoffStatus = "escalated"
)

// HandoffReason records why the bot handed the conversation to a human.
type HandoffReason string

const (
	ReasonKeyword           HandoffReason = "keyword"
	ReasonLowConfidence     HandoffReason = "low_confidence"
	ReasonClarificationLoop HandoffReason = "clarification_loop"
)

// ResolutionType records how a handoff ended.
type ResolutionType string

const (
	ResolutionOperator    ResolutionType = "operator"
	ResolutionAutoTimeout ResolutionType = "auto_timeout"
)

// HandoffState is per-conversation. Status transitions are written only by the
// detector (entry) and the resolution lifecycle (aging/exit).
type HandoffState struct {
	ConversationID           string         `json:"conversationId" db:"conversation_id"`
	MerchantID               string         `json:"merchantId" db:"merchant_id"`
	Status                   HandoffStatus  `json:"status" db:"status"`
	TriggerReason            HandoffReason  `json:"triggerReason,omitempty" db:"trigger_reason"`
	TriggeredAt              *time.Time     `json:"triggeredAt,omitempty" db:"triggered_at"`
	ConsecutiveLowConfidence int            `json:"consecutiveLowConfidence" db:"consecutive_low_confidence"`
	ResolvedAt               *time.Time     `json:"resolvedAt,omitempty" db:"resolved_at"`
	ResolutionType           ResolutionType `json:"resolutionType,omitempty" db:"resolution_type"`
	ReopenCount              int            `json:"reopenCount" db:"reopen_count"`
	WarningSentAt            *time.Time     `json:"warningSentAt,omitempty" db:"warning_sent_at"`
	LastCustomerMessageAt    *time.Time     `json:"lastCustomerMessageAt,omitempty" db:"last_customer_message_at"`
	LastOperatorMessageAt    *time.Time     `json:"lastOperatorMessageAt,omitempty" db:"last_operator_message_at"`
	UpdatedAt                time.Time      `json:"updatedAt" db:"updated_at"`
}

// InProgress reports whether a human currently owns or is about to own the conversation.
func (h *HandoffState) InProgress() bool {
	switch h.Status {
	case HandoffPending, HandoffActive, HandoffEscalated, HandoffReopened:
		return true
	}
	return false
}

// HandoffResult is what the detector returns for one turn.
type HandoffResult struct {
	ShouldHandoff   bool          `json:"shouldHandoff"`
	Reason          HandoffReason `json:"reason,omitempty"`
	ConfidenceCount int           `json:"confidenceCount"`
	MatchedKeyword  string        `json:"matchedKeyword,omitempty"`
	LoopCount       int           `json:"loopCount"`
}

// HandoffRepository defines handoff state access. Mutations are read-modify-write
// with last-writer-wins semantics; transitions are idempotent and monotonic in time.
type HandoffRepository interface {
	Get(ctx context.Context, conversationID string) (*HandoffState, error)
	Upsert(ctx context.Context, state *HandoffState) error

	// Bounded scans for the resolution lifecycle. Cursor is the last seen
	// conversation id; empty starts from the beginning.
	FindPendingBefore(ctx context.Context, cutoff time.Time, cursor string, limit int) ([]*HandoffState, error)
	FindWarningCandidates(ctx context.Context, cutoff time.Time, cursor string, limit int) ([]*HandoffState, error)
	FindAutoCloseCandidates(ctx context.Context, cutoff time.Time, cursor string, limit int) ([]*HandoffState, error)
}
