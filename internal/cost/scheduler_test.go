package cost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-orchestrator/internal/common/logger"
)

func TestSchedulerEvaluatesActiveMerchants(t *testing.T) {
	costs := &fakeCostRepo{spend: 85}
	alerts := &fakeAlertRepo{}
	tracker := newTestTracker(costs, alerts, &fakeMerchantRepo{}, nil, 100)

	// seed spend from two merchants so the scheduler has someone to evaluate
	require.NoError(t, tracker.Record(context.Background(), usage(1000, 500)))
	u := usage(100, 50)
	u.MerchantID = "m-2"
	require.NoError(t, tracker.Record(context.Background(), u))

	before := len(alerts.alerts)
	sched := NewScheduler(tracker, costs, time.Minute, logger.NewNoOpLogger())
	sched.now = tracker.now
	sched.RunOnce(context.Background())

	status := sched.Status()
	assert.Equal(t, int64(1), status.Runs)
	assert.Zero(t, status.Errors)
	// the 80% alert was already raised at record time; the pass stays idempotent
	assert.Len(t, alerts.alerts, before)
}

func TestSchedulerCountsListingFailure(t *testing.T) {
	costs := &fakeCostRepo{merchantsErr: errors.New("pq: down")}
	tracker := newTestTracker(costs, &fakeAlertRepo{}, &fakeMerchantRepo{}, nil, 100)

	sched := NewScheduler(tracker, costs, time.Minute, logger.NewNoOpLogger())
	sched.RunOnce(context.Background())

	assert.Equal(t, int64(1), sched.Status().Errors)
}

func TestSchedulerStartStop(t *testing.T) {
	costs := &fakeCostRepo{}
	tracker := newTestTracker(costs, &fakeAlertRepo{}, &fakeMerchantRepo{}, nil, 100)

	sched := NewScheduler(tracker, costs, 10*time.Millisecond, logger.NewNoOpLogger())
	sched.Start(context.Background())
	assert.True(t, sched.Status().Running)

	time.Sleep(35 * time.Millisecond)
	sched.Stop()

	assert.False(t, sched.Status().Running)
	assert.GreaterOrEqual(t, sched.Status().Runs, int64(1))
}
