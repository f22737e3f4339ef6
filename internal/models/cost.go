package models

import (
	"context"
	"time"
)

// CostRecord is one LLM call's accounting entry. Append-only; never updated.
type CostRecord struct {
	ID               string    `json:"id" db:"id"`
	ConversationID   string    `json:"conversationId" db:"conversation_id"`
	MerchantID       string    `json:"merchantId" db:"merchant_id"`
	Provider         string    `json:"provider" db:"provider"`
	Model            string    `json:"model" db:"model"`
	PromptTokens     int       `json:"promptTokens" db:"prompt_tokens"`
	CompletionTokens int       `json:"completionTokens" db:"completion_tokens"`
	TotalTokens      int       `json:"totalTokens" db:"total_tokens"`
	InputCost        float64   `json:"inputCost" db:"input_cost"`
	OutputCost       float64   `json:"outputCost" db:"output_cost"`
	TotalCost        float64   `json:"totalCost" db:"total_cost"`
	ProcessingMS     int64     `json:"processingMs" db:"processing_ms"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// ProviderSpend is a derived per-provider aggregate for one billing period.
type ProviderSpend struct {
	Provider    string  `json:"provider"`
	TotalTokens int     `json:"totalTokens"`
	TotalCost   float64 `json:"totalCost"`
	Requests    int     `json:"requests"`
}

// BudgetAlert is raised once per billing period per threshold.
type BudgetAlert struct {
	ID         string    `json:"id" db:"id"`
	MerchantID string    `json:"merchantId" db:"merchant_id"`
	Threshold  int       `json:"threshold" db:"threshold"` // percent: 80 or 100
	Message    string    `json:"message" db:"message"`
	Period     string    `json:"period" db:"period"` // YYYY-MM, UTC
	Read       bool      `json:"read" db:"read"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// BillingPeriod formats t as the UTC calendar-month period key.
func BillingPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// CostRepository defines cost persistence. Aggregates are always derived by
// query, never stored as mutable state.
type CostRepository interface {
	Append(ctx context.Context, record *CostRecord) error
	ConversationTotal(ctx context.Context, conversationID string) (float64, error)
	MonthlySpend(ctx context.Context, merchantID, period string) (float64, error)
	ProviderBreakdown(ctx context.Context, merchantID, period string) ([]ProviderSpend, error)
	ActiveMerchants(ctx context.Context, period string) ([]string, error)
}

// AlertRepository defines budget alert persistence. CreateOnce must be
// idempotent on (merchant, period, threshold).
type AlertRepository interface {
	CreateOnce(ctx context.Context, alert *BudgetAlert) (created bool, err error)
	Unread(ctx context.Context, merchantID string) ([]*BudgetAlert, error)
	MarkRead(ctx context.Context, alertID string) error
}
