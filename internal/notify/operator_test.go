package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-orchestrator/internal/common/config"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

type sentEmail struct {
	from, to, subject, body string
}

type fakeEmail struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendPlainText(_ context.Context, from, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{from: from, to: to, subject: subject, body: body})
	return nil
}

type sentSMS struct {
	phone, message string
}

type fakeSMS struct {
	sent []sentSMS
}

func (f *fakeSMS) SendSMS(_ context.Context, phoneNumber, message string) error {
	f.sent = append(f.sent, sentSMS{phone: phoneNumber, message: message})
	return nil
}

func notifierConfig(email, sms bool) config.NotificationConfig {
	var cfg config.NotificationConfig
	cfg.Email.Enabled = email
	cfg.Email.FromEmail = "bot@shop.example"
	cfg.Email.Operator = "ops@shop.example"
	cfg.SMS.Enabled = sms
	cfg.SMS.Operator = "+15550100"
	return cfg
}

func TestNotifyEscalationSendsBothChannels(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	n := NewOperatorNotifier(email, sms, notifierConfig(true, true), logger.NewNoOpLogger())

	err := n.NotifyEscalation(context.Background(), &models.HandoffState{
		ConversationID: "c-1",
		TriggerReason:  models.ReasonKeyword,
	})
	require.NoError(t, err)
	require.Len(t, email.sent, 1)
	require.Len(t, sms.sent, 1)
	assert.Equal(t, "ops@shop.example", email.sent[0].to)
	assert.Equal(t, "bot@shop.example", email.sent[0].from)
	assert.Contains(t, email.sent[0].body, "c-1")
	assert.Equal(t, "+15550100", sms.sent[0].phone)
}

func TestNotifyBudgetDisabledChannelsSkipped(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	n := NewOperatorNotifier(email, sms, notifierConfig(true, false), logger.NewNoOpLogger())

	err := n.NotifyBudget(context.Background(), &models.BudgetAlert{
		MerchantID: "m-1", Threshold: 80, Period: "2026-08", Message: "spend at 80%",
	})
	require.NoError(t, err)
	assert.Len(t, email.sent, 1)
	assert.Empty(t, sms.sent)
	assert.Contains(t, email.sent[0].subject, "80%")
}

func TestDeliverReturnsFirstFailureButTriesAllChannels(t *testing.T) {
	email := &fakeEmail{err: errors.New("ses throttled")}
	sms := &fakeSMS{}
	n := NewOperatorNotifier(email, sms, notifierConfig(true, true), logger.NewNoOpLogger())

	err := n.NotifyWarning(context.Background(), &models.HandoffState{ConversationID: "c-1"})
	require.Error(t, err)
	// sms still went out despite the email failure
	assert.Len(t, sms.sent, 1)
}
