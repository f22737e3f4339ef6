package hybrid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

type fakeHybridRepo struct {
	states  map[string]*models.HybridModeState
	getErr  error
	cleared []string
}

func newFakeHybridRepo() *fakeHybridRepo {
	return &fakeHybridRepo{states: make(map[string]*models.HybridModeState)}
}

func (f *fakeHybridRepo) Get(_ context.Context, id string) (*models.HybridModeState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.states[id], nil
}

func (f *fakeHybridRepo) Set(_ context.Context, s *models.HybridModeState) error {
	f.states[s.ConversationID] = s
	return nil
}

func (f *fakeHybridRepo) Clear(_ context.Context, id string) error {
	delete(f.states, id)
	f.cleared = append(f.cleared, id)
	return nil
}

func newTestArbiter(repo models.HybridModeRepository) *Arbiter {
	return NewArbiter(repo, 2*time.Hour, logger.NewNoOpLogger())
}

func TestShouldBotRespondNoWindow(t *testing.T) {
	a := newTestArbiter(newFakeHybridRepo())

	d := a.ShouldBotRespond(context.Background(), "c-1", "hello")
	assert.True(t, d.BotResponds)
	assert.Equal(t, "no_active_window", d.Reason)
}

func TestShouldBotRespondDuringActiveWindow(t *testing.T) {
	repo := newFakeHybridRepo()
	a := newTestArbiter(repo)

	_, err := a.Takeover(context.Background(), "c-1")
	require.NoError(t, err)

	d := a.ShouldBotRespond(context.Background(), "c-1", "where is my order?")
	assert.False(t, d.BotResponds)
	assert.Equal(t, "operator_owns_conversation", d.Reason)
}

func TestShouldBotRespondBotMentionOverrides(t *testing.T) {
	repo := newFakeHybridRepo()
	a := newTestArbiter(repo)

	_, err := a.Takeover(context.Background(), "c-1")
	require.NoError(t, err)

	tests := []string{
		"@bot what sizes do you have?",
		"hey @BOT help me",
		"can someone or @Bot answer",
	}
	for _, text := range tests {
		d := a.ShouldBotRespond(context.Background(), "c-1", text)
		assert.True(t, d.BotResponds, "text: %q", text)
		assert.Equal(t, "bot_mention", d.Reason)
	}
}

func TestShouldBotRespondExpiredWindowClears(t *testing.T) {
	repo := newFakeHybridRepo()
	a := newTestArbiter(repo)

	past := time.Now().Add(-3 * time.Hour)
	repo.states["c-1"] = &models.HybridModeState{
		ConversationID: "c-1",
		Enabled:        true,
		ActivatedAt:    past,
		ExpiresAt:      past.Add(2 * time.Hour).Format(time.RFC3339),
	}

	d := a.ShouldBotRespond(context.Background(), "c-1", "hello")
	assert.True(t, d.BotResponds)
	assert.Equal(t, "window_expired", d.Reason)
	assert.Equal(t, []string{"c-1"}, repo.cleared)
}

func TestShouldBotRespondCorruptExpiryFailsOpen(t *testing.T) {
	repo := newFakeHybridRepo()
	a := newTestArbiter(repo)

	repo.states["c-1"] = &models.HybridModeState{
		ConversationID: "c-1",
		Enabled:        true,
		ActivatedAt:    time.Now(),
		ExpiresAt:      "not-a-timestamp",
	}

	d := a.ShouldBotRespond(context.Background(), "c-1", "hello")
	assert.True(t, d.BotResponds)
	assert.Equal(t, "expiry_parse_failure", d.Reason)
	// corrupt record is removed so it cannot fail again next turn
	assert.Equal(t, []string{"c-1"}, repo.cleared)
}

func TestShouldBotRespondStorageErrorFailsOpen(t *testing.T) {
	repo := newFakeHybridRepo()
	repo.getErr = errors.New("redis: connection pool timeout")
	a := newTestArbiter(repo)

	d := a.ShouldBotRespond(context.Background(), "c-1", "hello")
	assert.True(t, d.BotResponds)
	assert.Equal(t, "state_unavailable", d.Reason)
}

func TestTakeoverExtendsWindowFromNow(t *testing.T) {
	repo := newFakeHybridRepo()
	a := newTestArbiter(repo)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }

	state, err := a.Takeover(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, base.Add(2*time.Hour).Format(time.RFC3339), state.ExpiresAt)

	// second takeover one hour later restarts the clock
	a.now = func() time.Time { return base.Add(time.Hour) }
	state, err = a.Takeover(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, base.Add(3*time.Hour).Format(time.RFC3339), state.ExpiresAt)
}

func TestRelease(t *testing.T) {
	repo := newFakeHybridRepo()
	a := newTestArbiter(repo)

	_, err := a.Takeover(context.Background(), "c-1")
	require.NoError(t, err)
	require.NoError(t, a.Release(context.Background(), "c-1"))

	d := a.ShouldBotRespond(context.Background(), "c-1", "hello")
	assert.True(t, d.BotResponds)
}
