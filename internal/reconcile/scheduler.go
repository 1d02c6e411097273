// Package reconcile runs the periodic fallback sync that catches anything the
// push listeners missed: dropped notifications, reconnects, clock-driven
// pending-lock expiry while the event stream was quiet.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/core"
	"vigil/internal/idgen"
)

// Default cadence and retry policy.
const (
	DefaultInterval    = 10 * time.Minute
	defaultRetryBase   = time.Minute
	defaultMaxAttempts = 3
)

// SyncRunner is the work one reconciliation pass performs.
type SyncRunner interface {
	ForceSync(ctx context.Context) error
	CheckPendingLocks()
}

// Scheduler triggers reconciliation passes on a fixed interval, with
// exponential-backoff retries on failure and a non-blocking on-demand
// trigger.
type Scheduler struct {
	runner      SyncRunner
	clock       core.Clock
	logger      *slog.Logger
	interval    time.Duration
	retryBase   time.Duration
	maxAttempts int

	trigger  chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler creates a reconciliation scheduler. A non-positive interval
// falls back to the default.
func NewScheduler(runner SyncRunner, clock core.Clock, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:      runner,
		clock:       clock,
		logger:      logger.With("component", "reconcile"),
		interval:    interval,
		retryBase:   defaultRetryBase,
		maxAttempts: defaultMaxAttempts,
		trigger:     make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(context.WithoutCancel(ctx))
	s.logger.Info("reconciliation scheduler started", "interval", s.interval)
}

// RequestImmediateSync queues one out-of-band pass. Non-blocking: a request
// while one is already queued coalesces.
func (s *Scheduler) RequestImmediateSync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// CancelAllSync stops the loop and waits for an in-flight pass to finish.
func (s *Scheduler) CancelAllSync() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
	s.logger.Info("reconciliation scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runPass(ctx)
		case <-s.trigger:
			s.runPass(ctx)
		}
	}
}

// runPass executes one reconciliation pass, retrying with exponential backoff
// up to the attempt ceiling. An unpaired device is quietly skipped.
func (s *Scheduler) runPass(ctx context.Context) {
	jobID := idgen.NewSyncJob()
	delay := s.retryBase
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runner.ForceSync(ctx)
		if err == nil {
			s.runner.CheckPendingLocks()
			s.logger.Debug("reconciliation pass completed", "job_id", jobID, "attempt", attempt)
			return
		}
		if errors.Is(err, core.ErrNotPaired) {
			s.logger.Debug("reconciliation skipped, not paired", "job_id", jobID)
			return
		}

		if attempt == s.maxAttempts {
			s.logger.Error("reconciliation failed, giving up until next interval",
				"job_id", jobID, "attempts", attempt, "error", err)
			return
		}

		s.logger.Warn("reconciliation attempt failed, backing off",
			"job_id", jobID, "attempt", attempt, "retry_in", delay, "error", err)
		if !s.sleep(delay) {
			return
		}
		delay *= 2
	}
}

// sleep waits for the backoff delay, returning false when the scheduler is
// stopped meanwhile.
func (s *Scheduler) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopChan:
		return false
	case <-timer.C:
		return true
	}
}
