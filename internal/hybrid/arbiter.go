// Package hybrid arbitrates bot versus human ownership of a conversation
// after an operator takeover.
package hybrid

import (
	"context"
	"strings"
	"time"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/metrics"
	"commerce-orchestrator/internal/models"
)

// botMention lets a customer summon the bot while an operator owns the
// conversation. Matched case-insensitively anywhere in the message.
const botMention = "@bot"

// Decision explains one arbitration outcome.
type Decision struct {
	BotResponds bool   `json:"botResponds"`
	Reason      string `json:"reason"`
}

// Arbiter decides per inbound message whether the bot may answer. Operator
// takeover silences the bot for a fixed window; a corrupt window record fails
// open so a bad write can never mute the bot permanently.
type Arbiter struct {
	repo   models.HybridModeRepository
	window time.Duration
	logger logger.Logger
	now    func() time.Time
}

func NewArbiter(repo models.HybridModeRepository, window time.Duration, log logger.Logger) *Arbiter {
	if window <= 0 {
		window = models.HybridModeWindow
	}
	return &Arbiter{
		repo:   repo,
		window: window,
		logger: log.WithFields(map[string]interface{}{"component": "hybrid-arbiter"}),
		now:    time.Now,
	}
}

// ShouldBotRespond evaluates the hybrid window for one inbound message.
// Storage errors also fail open: losing arbitration state must degrade to a
// responsive bot, not a silent one.
func (a *Arbiter) ShouldBotRespond(ctx context.Context, conversationID, messageText string) Decision {
	state, err := a.repo.Get(ctx, conversationID)
	if err != nil {
		a.logger.Warn("hybrid state read failed, responding anyway", map[string]interface{}{
			"conversationId": conversationID,
			"error":          err.Error(),
		})
		return Decision{BotResponds: true, Reason: "state_unavailable"}
	}
	if state == nil || !state.Enabled {
		return Decision{BotResponds: true, Reason: "no_active_window"}
	}

	expiresAt, err := time.Parse(time.RFC3339, state.ExpiresAt)
	if err != nil {
		metrics.HybridExpiryParseFailures.Inc()
		a.logger.Error("unparseable hybrid expiry, failing open", map[string]interface{}{
			"conversationId": conversationID,
			"expiresAt":      state.ExpiresAt,
		})
		if clearErr := a.repo.Clear(ctx, conversationID); clearErr != nil {
			a.logger.Warn("failed to clear corrupt hybrid state", map[string]interface{}{
				"conversationId": conversationID,
				"error":          clearErr.Error(),
			})
		}
		return Decision{BotResponds: true, Reason: "expiry_parse_failure"}
	}

	if a.now().After(expiresAt) {
		if err := a.repo.Clear(ctx, conversationID); err != nil {
			a.logger.Warn("failed to clear expired hybrid state", map[string]interface{}{
				"conversationId": conversationID,
				"error":          err.Error(),
			})
		}
		return Decision{BotResponds: true, Reason: "window_expired"}
	}

	if strings.Contains(strings.ToLower(messageText), botMention) {
		return Decision{BotResponds: true, Reason: "bot_mention"}
	}

	return Decision{BotResponds: false, Reason: "operator_owns_conversation"}
}

// Takeover starts (or restarts) the hybrid window for a conversation.
// Repeated takeovers extend the window from now.
func (a *Arbiter) Takeover(ctx context.Context, conversationID string) (*models.HybridModeState, error) {
	now := a.now()
	state := &models.HybridModeState{
		ConversationID: conversationID,
		Enabled:        true,
		ActivatedAt:    now,
		ExpiresAt:      now.Add(a.window).Format(time.RFC3339),
	}
	if err := a.repo.Set(ctx, state); err != nil {
		return nil, err
	}
	a.logger.Info("operator takeover", map[string]interface{}{
		"conversationId": conversationID,
		"expiresAt":      state.ExpiresAt,
	})
	return state, nil
}

// Release ends the hybrid window early, returning the conversation to the bot.
func (a *Arbiter) Release(ctx context.Context, conversationID string) error {
	return a.repo.Clear(ctx, conversationID)
}
