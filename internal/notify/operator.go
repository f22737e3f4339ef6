package notify

import (
	"context"
	"fmt"

	"commerce-orchestrator/internal/common/config"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

// emailAPI and smsAPI are the client slices the notifier needs; satisfied by
// the shared aws wrappers and by test fakes.
type emailAPI interface {
	SendPlainText(ctx context.Context, from, to, subject, body string) error
}

type smsAPI interface {
	SendSMS(ctx context.Context, phoneNumber, message string) error
}

// OperatorNotifier delivers handoff lifecycle and budget alerts to the
// merchant's operator over email and SMS. Disabled channels are skipped
// silently; delivery is best effort and never blocks a state transition.
type OperatorNotifier struct {
	email  emailAPI
	sms    smsAPI
	cfg    config.NotificationConfig
	logger logger.Logger
}

func NewOperatorNotifier(email emailAPI, sms smsAPI, cfg config.NotificationConfig, log logger.Logger) *OperatorNotifier {
	return &OperatorNotifier{
		email:  email,
		sms:    sms,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "operator-notifier"}),
	}
}

// NotifyEscalation alerts the operator that a pending handoff went unanswered.
func (n *OperatorNotifier) NotifyEscalation(ctx context.Context, state *models.HandoffState) error {
	subject := "Handoff escalated: customer still waiting"
	body := fmt.Sprintf(
		"Conversation %s was handed off (%s) and no operator has responded.\nIt has been escalated and needs immediate attention.",
		state.ConversationID, state.TriggerReason,
	)
	return n.deliver(ctx, subject, body)
}

// NotifyWarning tells the operator the conversation will auto-close soon.
func (n *OperatorNotifier) NotifyWarning(ctx context.Context, state *models.HandoffState) error {
	subject := "Handoff closing soon"
	body := fmt.Sprintf(
		"Conversation %s has had no operator activity and will be closed automatically in a few hours.",
		state.ConversationID,
	)
	return n.deliver(ctx, subject, body)
}

// NotifyAutoClose records that a stale handoff was closed without an operator.
func (n *OperatorNotifier) NotifyAutoClose(ctx context.Context, state *models.HandoffState) error {
	subject := "Handoff auto-closed"
	body := fmt.Sprintf(
		"Conversation %s was closed automatically after the full inactivity window. The customer was never answered.",
		state.ConversationID,
	)
	return n.deliver(ctx, subject, body)
}

// NotifyBudget alerts the operator that monthly LLM spend crossed a threshold.
func (n *OperatorNotifier) NotifyBudget(ctx context.Context, alert *models.BudgetAlert) error {
	subject := fmt.Sprintf("LLM budget at %d%% for %s", alert.Threshold, alert.Period)
	return n.deliver(ctx, subject, alert.Message)
}

// deliver fans out to every enabled channel and returns the first failure.
func (n *OperatorNotifier) deliver(ctx context.Context, subject, body string) error {
	var firstErr error

	if n.cfg.Email.Enabled && n.email != nil {
		if err := n.email.SendPlainText(ctx, n.cfg.Email.FromEmail, n.cfg.Email.Operator, subject, body); err != nil {
			n.logger.Warn("operator email failed", map[string]interface{}{"error": err.Error()})
			firstErr = err
		}
	}
	if n.cfg.SMS.Enabled && n.sms != nil {
		if err := n.sms.SendSMS(ctx, n.cfg.SMS.Operator, subject); err != nil {
			n.logger.Warn("operator sms failed", map[string]interface{}{"error": err.Error()})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
