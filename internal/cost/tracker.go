// Package cost records token usage and spend for every LLM call and raises
// budget-threshold alerts against the merchant's monthly cap.
package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/metrics"
	"commerce-orchestrator/internal/llm"
	"commerce-orchestrator/internal/models"
)

// AlertNotifier pushes a budget alert to the operator (SMS/email). Failures
// are logged, never fatal: the stored alert is the durable record.
type AlertNotifier interface {
	NotifyBudget(ctx context.Context, alert *models.BudgetAlert) error
}

// Tracker implements llm.CostRecorder.
type Tracker struct {
	pricing    *llm.PricingTable
	costs      models.CostRepository
	alerts     models.AlertRepository
	merchants  models.MerchantRepository
	notifier   AlertNotifier // may be nil
	thresholds []int
	defaultCap float64
	logger     logger.Logger
	now        func() time.Time
}

func NewTracker(pricing *llm.PricingTable, costs models.CostRepository, alerts models.AlertRepository,
	merchants models.MerchantRepository, notifier AlertNotifier, thresholds []int, defaultCap float64,
	log logger.Logger) *Tracker {

	if len(thresholds) == 0 {
		thresholds = []int{80, 100}
	}
	return &Tracker{
		pricing:    pricing,
		costs:      costs,
		alerts:     alerts,
		merchants:  merchants,
		notifier:   notifier,
		thresholds: thresholds,
		defaultCap: defaultCap,
		logger:     log.WithFields(map[string]interface{}{"component": "cost-tracker"}),
		now:        time.Now,
	}
}

// Record persists the accounting entry for one billed call, synchronously with
// the caller, then evaluates budget thresholds for the merchant.
func (t *Tracker) Record(ctx context.Context, usage llm.Usage) error {
	rec := t.buildRecord(usage)
	if err := t.costs.Append(ctx, rec); err != nil {
		return fmt.Errorf("append cost record: %w", err)
	}

	metrics.LLMCostUSD.WithLabelValues(rec.MerchantID, rec.Provider).Add(rec.TotalCost)

	if err := t.Evaluate(ctx, rec.MerchantID); err != nil {
		// The record is already durable; a failed evaluation only delays the
		// alert until the next call or scheduled pass.
		t.logger.Warn("budget evaluation failed", map[string]interface{}{
			"merchantId": rec.MerchantID,
			"error":      err.Error(),
		})
	}
	return nil
}

func (t *Tracker) buildRecord(usage llm.Usage) *models.CostRecord {
	price := t.pricing.Lookup(usage.Provider, usage.Model)
	input, output, total := price.Cost(usage.PromptTokens, usage.CompletionTokens)

	at := usage.At
	if at.IsZero() {
		at = t.now().UTC()
	}

	return &models.CostRecord{
		ID:               uuid.NewString(),
		ConversationID:   usage.ConversationID,
		MerchantID:       usage.MerchantID,
		Provider:         usage.Provider,
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.PromptTokens + usage.CompletionTokens,
		InputCost:        input,
		OutputCost:       output,
		TotalCost:        total,
		ProcessingMS:     usage.ProcessingMS,
		CreatedAt:        at,
	}
}

// Evaluate compares the merchant's rolling monthly spend against the
// configured thresholds, creating at most one alert per period per threshold.
func (t *Tracker) Evaluate(ctx context.Context, merchantID string) error {
	cap := t.defaultCap
	if merchant, err := t.merchants.FindByID(ctx, merchantID); err == nil && merchant.MonthlyBudgetUSD > 0 {
		cap = merchant.MonthlyBudgetUSD
	}
	if cap <= 0 {
		return nil
	}

	period := models.BillingPeriod(t.now())
	spend, err := t.costs.MonthlySpend(ctx, merchantID, period)
	if err != nil {
		return fmt.Errorf("monthly spend: %w", err)
	}

	pct := spend / cap * 100
	for _, threshold := range t.thresholds {
		if pct < float64(threshold) {
			continue
		}

		alert := &models.BudgetAlert{
			ID:         uuid.NewString(),
			MerchantID: merchantID,
			Threshold:  threshold,
			Message:    fmt.Sprintf("LLM spend reached %d%% of the $%.2f monthly budget ($%.4f used)", threshold, cap, spend),
			Period:     period,
			CreatedAt:  t.now().UTC(),
		}

		created, err := t.alerts.CreateOnce(ctx, alert)
		if err != nil {
			return fmt.Errorf("create alert: %w", err)
		}
		if !created {
			continue // already raised this period
		}

		metrics.BudgetAlerts.WithLabelValues(fmt.Sprintf("%d", threshold)).Inc()
		t.logger.Warn("budget threshold crossed", map[string]interface{}{
			"merchantId": merchantID,
			"threshold":  threshold,
			"spend":      spend,
			"cap":        cap,
		})

		if t.notifier != nil && threshold >= 100 {
			if err := t.notifier.NotifyBudget(ctx, alert); err != nil {
				t.logger.Error("budget alert notification failed", map[string]interface{}{
					"merchantId": merchantID,
					"error":      err.Error(),
				})
			}
		}
	}
	return nil
}

// ConversationTotal is the derived per-conversation spend.
func (t *Tracker) ConversationTotal(ctx context.Context, conversationID string) (float64, error) {
	return t.costs.ConversationTotal(ctx, conversationID)
}

// ProviderBreakdown is the derived per-provider spend for the current period.
func (t *Tracker) ProviderBreakdown(ctx context.Context, merchantID string) ([]models.ProviderSpend, error) {
	return t.costs.ProviderBreakdown(ctx, merchantID, models.BillingPeriod(t.now()))
}
