package cost

import (
	"context"
	"sync"
	"time"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/metrics"
	"commerce-orchestrator/internal/models"
)

// SchedulerStatus is the introspection snapshot of the budget evaluation job.
type SchedulerStatus struct {
	Running   bool      `json:"running"`
	LastRunAt time.Time `json:"lastRunAt"`
	Runs      int64     `json:"runs"`
	Errors    int64     `json:"errors"`
}

// Scheduler re-evaluates every active merchant's budget on a fixed interval so
// threshold alerts stay timely even when a merchant stops sending traffic.
type Scheduler struct {
	tracker  *Tracker
	costs    models.CostRepository
	interval time.Duration
	logger   logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	status SchedulerStatus
	stop   chan struct{}
	done   chan struct{}
}

func NewScheduler(tracker *Tracker, costs models.CostRepository, interval time.Duration, log logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		tracker:  tracker,
		costs:    costs,
		interval: interval,
		logger:   log.WithFields(map[string]interface{}{"component": "budget-scheduler"}),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	s.status.Running = false
	s.mu.Unlock()
}

// RunOnce evaluates every merchant with spend this period. A failure for one
// merchant is counted and logged without aborting the rest.
func (s *Scheduler) RunOnce(ctx context.Context) {
	metrics.SchedulerRuns.WithLabelValues("budget_eval").Inc()

	period := models.BillingPeriod(s.now())
	merchants, err := s.costs.ActiveMerchants(ctx, period)

	s.mu.Lock()
	s.status.LastRunAt = s.now()
	s.status.Runs++
	s.mu.Unlock()

	if err != nil {
		s.recordError()
		s.logger.Error("active merchant listing failed", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, merchantID := range merchants {
		if err := s.tracker.Evaluate(ctx, merchantID); err != nil {
			s.recordError()
			s.logger.Warn("scheduled budget evaluation failed", map[string]interface{}{
				"merchantId": merchantID,
				"error":      err.Error(),
			})
		}
	}
}

func (s *Scheduler) recordError() {
	metrics.SchedulerErrors.WithLabelValues("budget_eval").Inc()
	s.mu.Lock()
	s.status.Errors++
	s.mu.Unlock()
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
