// internal/storage/costs.go
package storage

import (
	"context"
	"database/sql"

	"commerce-orchestrator/internal/models"
)

// CostRepo is the PostgreSQL-backed, append-only cost record store.
type CostRepo struct {
	db *sql.DB
}

func NewCostRepo(db *sql.DB) *CostRepo {
	return &CostRepo{db: db}
}

func (r *CostRepo) Append(ctx context.Context, rec *models.CostRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cost_records (id, conversation_id, merchant_id, provider, model,
			prompt_tokens, completion_tokens, total_tokens,
			input_cost, output_cost, total_cost, processing_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.ConversationID, rec.MerchantID, rec.Provider, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.InputCost, rec.OutputCost, rec.TotalCost, rec.ProcessingMS, rec.CreatedAt,
	)
	return err
}

func (r *CostRepo) ConversationTotal(ctx context.Context, conversationID string) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cost), 0) FROM cost_records WHERE conversation_id = $1`,
		conversationID).Scan(&total)
	return total, err
}

func (r *CostRepo) MonthlySpend(ctx context.Context, merchantID, period string) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cost), 0)
		FROM cost_records
		WHERE merchant_id = $1 AND to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM') = $2`,
		merchantID, period).Scan(&total)
	return total, err
}

// ActiveMerchants lists merchants with any spend in the period, for the
// scheduled budget evaluation pass.
func (r *CostRepo) ActiveMerchants(ctx context.Context, period string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT merchant_id
		FROM cost_records
		WHERE to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM') = $1
		ORDER BY merchant_id`, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CostRepo) ProviderBreakdown(ctx context.Context, merchantID, period string) ([]models.ProviderSpend, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT provider, COALESCE(SUM(total_tokens), 0), COALESCE(SUM(total_cost), 0), COUNT(*)
		FROM cost_records
		WHERE merchant_id = $1 AND to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM') = $2
		GROUP BY provider ORDER BY provider`,
		merchantID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProviderSpend
	for rows.Next() {
		var ps models.ProviderSpend
		if err := rows.Scan(&ps.Provider, &ps.TotalTokens, &ps.TotalCost, &ps.Requests); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}
