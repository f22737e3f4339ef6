package handoff

import (
	"context"
	"sync"
	"time"

	"commerce-orchestrator/internal/common/config"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/metrics"
	"commerce-orchestrator/internal/models"
)

// Notifier delivers lifecycle alerts to the operator channel.
type Notifier interface {
	NotifyEscalation(ctx context.Context, state *models.HandoffState) error
	NotifyWarning(ctx context.Context, state *models.HandoffState) error
	NotifyAutoClose(ctx context.Context, state *models.HandoffState) error
}

// LifecycleStatus is the introspection snapshot of the scheduler.
type LifecycleStatus struct {
	Running      bool      `json:"running"`
	LastRunAt    time.Time `json:"lastRunAt"`
	LastDuration string    `json:"lastDuration"`
	Escalated    int64     `json:"escalated"`
	Warned       int64     `json:"warned"`
	AutoClosed   int64     `json:"autoClosed"`
	ScanErrors   int64     `json:"scanErrors"`
}

// Lifecycle runs the three aging scans on a fixed interval:
// pending past the escalation deadline, in-progress past the warning
// deadline, and in-progress past the auto-close deadline. Each scan is
// isolated; one failing does not stop the others.
type Lifecycle struct {
	repo     models.HandoffRepository
	notifier Notifier
	logger   logger.Logger

	interval   time.Duration
	escalation time.Duration
	warning    time.Duration
	autoClose  time.Duration
	batchSize  int

	now func() time.Time

	mu     sync.Mutex
	status LifecycleStatus
	stop   chan struct{}
	done   chan struct{}
}

func NewLifecycle(repo models.HandoffRepository, notifier Notifier, cfg config.HandoffConfig, interval time.Duration, log logger.Logger) *Lifecycle {
	batch := cfg.ScanBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Lifecycle{
		repo:       repo,
		notifier:   notifier,
		logger:     log.WithFields(map[string]interface{}{"component": "handoff-lifecycle"}),
		interval:   interval,
		escalation: time.Duration(cfg.EscalationAfter) * time.Minute,
		warning:    time.Duration(cfg.WarningAfter) * time.Minute,
		autoClose:  time.Duration(cfg.AutoCloseAfter) * time.Minute,
		batchSize:  batch,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the scan loop until Stop is called or ctx is cancelled.
func (l *Lifecycle) Start(ctx context.Context) {
	l.mu.Lock()
	l.status.Running = true
	l.mu.Unlock()

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				l.RunOnce(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight run to finish.
func (l *Lifecycle) Stop() {
	close(l.stop)
	<-l.done

	l.mu.Lock()
	l.status.Running = false
	l.mu.Unlock()
}

// RunOnce executes all three scans sequentially.
func (l *Lifecycle) RunOnce(ctx context.Context) {
	start := l.now()
	metrics.SchedulerRuns.WithLabelValues("handoff_lifecycle").Inc()

	escalated := l.scanEscalations(ctx)
	warned := l.scanWarnings(ctx)
	closed := l.scanAutoClose(ctx)

	l.mu.Lock()
	l.status.LastRunAt = start
	l.status.LastDuration = l.now().Sub(start).String()
	l.status.Escalated += escalated
	l.status.Warned += warned
	l.status.AutoClosed += closed
	l.mu.Unlock()

	if escalated+warned+closed > 0 {
		l.logger.Info("lifecycle scan complete", map[string]interface{}{
			"escalated":  escalated,
			"warned":     warned,
			"autoClosed": closed,
		})
	}
}

// Status returns a snapshot for the health endpoint.
func (l *Lifecycle) Status() LifecycleStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// scanEscalations promotes pending handoffs no operator has picked up.
func (l *Lifecycle) scanEscalations(ctx context.Context) int64 {
	cutoff := l.now().Add(-l.escalation)
	var count int64

	l.scan(ctx, "escalation", func(cursor string) ([]*models.HandoffState, error) {
		return l.repo.FindPendingBefore(ctx, cutoff, cursor, l.batchSize)
	}, func(state *models.HandoffState) error {
		now := l.now()
		state.Status = models.HandoffEscalated
		state.UpdatedAt = now
		if err := l.repo.Upsert(ctx, state); err != nil {
			return err
		}
		metrics.HandoffTransitions.WithLabelValues(string(models.HandoffPending), string(models.HandoffEscalated)).Inc()
		count++

		if err := l.notifier.NotifyEscalation(ctx, state); err != nil {
			// state transition already committed, alert delivery is best effort
			l.logger.Warn("escalation notify failed", map[string]interface{}{
				"conversationId": state.ConversationID,
				"error":          err.Error(),
			})
		}
		return nil
	})
	return count
}

// scanWarnings sends the single pre-close warning for stale handoffs.
func (l *Lifecycle) scanWarnings(ctx context.Context) int64 {
	cutoff := l.now().Add(-l.warning)
	var count int64

	l.scan(ctx, "warning", func(cursor string) ([]*models.HandoffState, error) {
		return l.repo.FindWarningCandidates(ctx, cutoff, cursor, l.batchSize)
	}, func(state *models.HandoffState) error {
		if state.WarningSentAt != nil {
			return nil
		}
		now := l.now()
		state.WarningSentAt = &now
		state.UpdatedAt = now
		if err := l.repo.Upsert(ctx, state); err != nil {
			return err
		}
		count++

		if err := l.notifier.NotifyWarning(ctx, state); err != nil {
			l.logger.Warn("warning notify failed", map[string]interface{}{
				"conversationId": state.ConversationID,
				"error":          err.Error(),
			})
		}
		return nil
	})
	return count
}

// scanAutoClose resolves handoffs nobody touched for the full window.
func (l *Lifecycle) scanAutoClose(ctx context.Context) int64 {
	cutoff := l.now().Add(-l.autoClose)
	var count int64

	l.scan(ctx, "auto_close", func(cursor string) ([]*models.HandoffState, error) {
		return l.repo.FindAutoCloseCandidates(ctx, cutoff, cursor, l.batchSize)
	}, func(state *models.HandoffState) error {
		from := state.Status
		Resolve(state, models.ResolutionAutoTimeout, l.now())
		if err := l.repo.Upsert(ctx, state); err != nil {
			return err
		}
		metrics.HandoffTransitions.WithLabelValues(string(from), string(models.HandoffResolved)).Inc()
		count++

		if err := l.notifier.NotifyAutoClose(ctx, state); err != nil {
			l.logger.Warn("auto-close notify failed", map[string]interface{}{
				"conversationId": state.ConversationID,
				"error":          err.Error(),
			})
		}
		return nil
	})
	return count
}

// scan pages through a candidate query applying fn to each row. A failing
// batch aborts only its own scan.
func (l *Lifecycle) scan(ctx context.Context, job string, fetch func(cursor string) ([]*models.HandoffState, error), fn func(*models.HandoffState) error) {
	cursor := ""
	for {
		batch, err := fetch(cursor)
		if err != nil {
			metrics.SchedulerErrors.WithLabelValues(job).Inc()
			l.recordScanError()
			l.logger.Error("lifecycle scan failed", map[string]interface{}{
				"job":   job,
				"error": err.Error(),
			})
			return
		}
		if len(batch) == 0 {
			return
		}

		for _, state := range batch {
			if err := fn(state); err != nil {
				metrics.SchedulerErrors.WithLabelValues(job).Inc()
				l.recordScanError()
				l.logger.Error("lifecycle transition failed", map[string]interface{}{
					"job":            job,
					"conversationId": state.ConversationID,
					"error":          err.Error(),
				})
			}
		}

		cursor = batch[len(batch)-1].ConversationID
		if len(batch) < l.batchSize {
			return
		}
	}
}

func (l *Lifecycle) recordScanError() {
	l.mu.Lock()
	l.status.ScanErrors++
	l.mu.Unlock()
}
