package orchestrator

import (
	"context"
	"sync"
	"time"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/metrics"
)

// SessionCleaner removes expired widget sessions in batches.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context, batchSize int64) (int, error)
}

// CleanupStatus is the introspection snapshot of the cleanup job.
type CleanupStatus struct {
	Running      bool      `json:"running"`
	LastRunAt    time.Time `json:"lastRunAt"`
	TotalRemoved int64     `json:"totalRemoved"`
	Errors       int64     `json:"errors"`
}

// Cleanup sweeps abandoned widget sessions on a fixed interval.
type Cleanup struct {
	cleaner   SessionCleaner
	interval  time.Duration
	batchSize int64
	logger    logger.Logger

	mu     sync.Mutex
	status CleanupStatus
	stop   chan struct{}
	done   chan struct{}
}

func NewCleanup(cleaner SessionCleaner, interval time.Duration, batchSize int64, log logger.Logger) *Cleanup {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Cleanup{
		cleaner:   cleaner,
		interval:  interval,
		batchSize: batchSize,
		logger:    log.WithFields(map[string]interface{}{"component": "session-cleanup"}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *Cleanup) Start(ctx context.Context) {
	c.mu.Lock()
	c.status.Running = true
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				c.RunOnce(ctx)
			}
		}
	}()
}

func (c *Cleanup) Stop() {
	close(c.stop)
	<-c.done

	c.mu.Lock()
	c.status.Running = false
	c.mu.Unlock()
}

func (c *Cleanup) RunOnce(ctx context.Context) {
	metrics.SchedulerRuns.WithLabelValues("session_cleanup").Inc()

	removed, err := c.cleaner.CleanupExpired(ctx, c.batchSize)

	c.mu.Lock()
	c.status.LastRunAt = time.Now()
	if err != nil {
		c.status.Errors++
	}
	c.status.TotalRemoved += int64(removed)
	c.mu.Unlock()

	if err != nil {
		metrics.SchedulerErrors.WithLabelValues("session_cleanup").Inc()
		c.logger.Error("session cleanup failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if removed > 0 {
		c.logger.Info("expired sessions removed", map[string]interface{}{"count": removed})
	}
}

func (c *Cleanup) Status() CleanupStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
