package multitenantengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/liamcoop/rulevalidator/internal/logger"
)

// Reloader reloads every tenant from its store.
type Reloader interface {
	LoadAllTenants(ctx context.Context) error
}

// ResyncScheduler periodically reloads tenants so that changes made by other
// replicas sharing the database become visible.
type ResyncScheduler struct {
	reloader Reloader
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
}

// NewResyncScheduler creates a scheduler for a standard five-field cron
// expression such as "*/5 * * * *". An empty schedule disables it.
func NewResyncScheduler(reloader Reloader, schedule string) *ResyncScheduler {
	return &ResyncScheduler{
		reloader: reloader,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start schedules the resync job and returns immediately. The scheduler
// stops when ctx is cancelled.
func (s *ResyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		logger.Debug("tenant resync schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.Resync(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule tenant resync: %w", err)
	}

	s.cron.Start()
	s.running = true

	logger.Info("tenant resync scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Resync runs one reload. Failures are logged and the loaded tenants kept.
func (s *ResyncScheduler) Resync(ctx context.Context) {
	start := time.Now()
	if err := s.reloader.LoadAllTenants(ctx); err != nil {
		logger.Error("tenant resync failed", "error", err)
		return
	}
	logger.Debug("tenant resync completed", "duration_ms", time.Since(start).Milliseconds())
}

// Stop stops the scheduler and waits for a running resync to finish.
func (s *ResyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		logger.Info("tenant resync scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *ResyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled resync, or nil when not scheduled.
func (s *ResyncScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
