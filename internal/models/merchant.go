package models

import "context"

// Merchant is the configuration view the pipeline needs per merchant. Upstream
// components resolve which merchant an inbound message belongs to.
type Merchant struct {
	ID               string   `json:"id" db:"id"`
	Name             string   `json:"name" db:"name"`
	MonthlyBudgetUSD float64  `json:"monthlyBudgetUsd" db:"monthly_budget_usd"`
	PrimaryProvider  string   `json:"primaryProvider" db:"primary_provider"`
	BackupProvider   string   `json:"backupProvider,omitempty" db:"backup_provider"`
	ModelOverride    string   `json:"modelOverride,omitempty" db:"model_override"`
	HandoffKeywords  []string `json:"handoffKeywords,omitempty" db:"handoff_keywords"`
}

// MerchantRepository defines merchant configuration access.
type MerchantRepository interface {
	FindByID(ctx context.Context, id string) (*Merchant, error)
}
