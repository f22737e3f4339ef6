package handoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-orchestrator/internal/common/config"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

type fakeHandoffRepo struct {
	pending   []*models.HandoffState
	warning   []*models.HandoffState
	autoClose []*models.HandoffState

	pendingErr error
	upserted   []*models.HandoffState
}

func (f *fakeHandoffRepo) Get(_ context.Context, _ string) (*models.HandoffState, error) {
	return nil, nil
}

func (f *fakeHandoffRepo) Upsert(_ context.Context, s *models.HandoffState) error {
	f.upserted = append(f.upserted, s)
	return nil
}

func (f *fakeHandoffRepo) FindPendingBefore(_ context.Context, _ time.Time, cursor string, _ int) ([]*models.HandoffState, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	return drain(&f.pending, cursor), nil
}

func (f *fakeHandoffRepo) FindWarningCandidates(_ context.Context, _ time.Time, cursor string, _ int) ([]*models.HandoffState, error) {
	return drain(&f.warning, cursor), nil
}

func (f *fakeHandoffRepo) FindAutoCloseCandidates(_ context.Context, _ time.Time, cursor string, _ int) ([]*models.HandoffState, error) {
	return drain(&f.autoClose, cursor), nil
}

// drain returns the whole slice on the first page and nothing after.
func drain(s *[]*models.HandoffState, cursor string) []*models.HandoffState {
	if cursor != "" {
		return nil
	}
	return *s
}

type recordingNotifier struct {
	escalations []string
	warnings    []string
	closes      []string
	failOn      string
}

func (n *recordingNotifier) NotifyEscalation(_ context.Context, s *models.HandoffState) error {
	if n.failOn == s.ConversationID {
		return errors.New("smtp down")
	}
	n.escalations = append(n.escalations, s.ConversationID)
	return nil
}

func (n *recordingNotifier) NotifyWarning(_ context.Context, s *models.HandoffState) error {
	n.warnings = append(n.warnings, s.ConversationID)
	return nil
}

func (n *recordingNotifier) NotifyAutoClose(_ context.Context, s *models.HandoffState) error {
	n.closes = append(n.closes, s.ConversationID)
	return nil
}

func testLifecycle(repo *fakeHandoffRepo, notifier Notifier) *Lifecycle {
	cfg := config.HandoffConfig{
		EscalationAfter: 240,
		WarningAfter:    1200,
		AutoCloseAfter:  1440,
		ScanBatchSize:   100,
	}
	return NewLifecycle(repo, notifier, cfg, time.Minute, logger.NewNoOpLogger())
}

func TestRunOnceEscalatesStalePending(t *testing.T) {
	triggered := time.Now().Add(-5 * time.Hour)
	repo := &fakeHandoffRepo{
		pending: []*models.HandoffState{
			{ConversationID: "c-1", Status: models.HandoffPending, TriggeredAt: &triggered},
		},
	}
	notifier := &recordingNotifier{}

	l := testLifecycle(repo, notifier)
	l.RunOnce(context.Background())

	require.Len(t, repo.upserted, 1)
	assert.Equal(t, models.HandoffEscalated, repo.upserted[0].Status)
	assert.Equal(t, []string{"c-1"}, notifier.escalations)
	assert.Equal(t, int64(1), l.Status().Escalated)
}

func TestRunOnceWarnsOnceOnly(t *testing.T) {
	sent := time.Now().Add(-time.Hour)
	repo := &fakeHandoffRepo{
		warning: []*models.HandoffState{
			{ConversationID: "c-warned", Status: models.HandoffActive, WarningSentAt: &sent},
			{ConversationID: "c-fresh", Status: models.HandoffActive},
		},
	}
	notifier := &recordingNotifier{}

	l := testLifecycle(repo, notifier)
	l.RunOnce(context.Background())

	assert.Equal(t, []string{"c-fresh"}, notifier.warnings)
	require.Len(t, repo.upserted, 1)
	assert.NotNil(t, repo.upserted[0].WarningSentAt)
}

func TestRunOnceAutoClosesWithTimeoutResolution(t *testing.T) {
	repo := &fakeHandoffRepo{
		autoClose: []*models.HandoffState{
			{ConversationID: "c-stale", Status: models.HandoffActive},
		},
	}
	notifier := &recordingNotifier{}

	l := testLifecycle(repo, notifier)
	l.RunOnce(context.Background())

	require.Len(t, repo.upserted, 1)
	closed := repo.upserted[0]
	assert.Equal(t, models.HandoffResolved, closed.Status)
	assert.Equal(t, models.ResolutionAutoTimeout, closed.ResolutionType)
	assert.NotNil(t, closed.ResolvedAt)
	assert.Equal(t, []string{"c-stale"}, notifier.closes)
}

func TestRunOnceScanErrorDoesNotStopOtherScans(t *testing.T) {
	repo := &fakeHandoffRepo{
		pendingErr: errors.New("pq: connection refused"),
		autoClose: []*models.HandoffState{
			{ConversationID: "c-stale", Status: models.HandoffActive},
		},
	}
	notifier := &recordingNotifier{}

	l := testLifecycle(repo, notifier)
	l.RunOnce(context.Background())

	// escalation scan failed but auto-close still ran
	assert.Empty(t, notifier.escalations)
	assert.Equal(t, []string{"c-stale"}, notifier.closes)
	assert.Equal(t, int64(1), l.Status().ScanErrors)
}

func TestRunOnceNotifyFailureKeepsTransition(t *testing.T) {
	triggered := time.Now().Add(-5 * time.Hour)
	repo := &fakeHandoffRepo{
		pending: []*models.HandoffState{
			{ConversationID: "c-1", Status: models.HandoffPending, TriggeredAt: &triggered},
		},
	}
	notifier := &recordingNotifier{failOn: "c-1"}

	l := testLifecycle(repo, notifier)
	l.RunOnce(context.Background())

	// transition committed even though the alert failed
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, models.HandoffEscalated, repo.upserted[0].Status)
	assert.Equal(t, int64(1), l.Status().Escalated)
}

func TestStartStop(t *testing.T) {
	repo := &fakeHandoffRepo{}
	l := testLifecycle(repo, &recordingNotifier{})

	l.Start(context.Background())
	assert.True(t, l.Status().Running)
	l.Stop()
	assert.False(t, l.Status().Running)
}
