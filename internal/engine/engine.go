// Package engine composes the sync, lock, reporting and reconciliation
// components into the single facade the playback surface talks to.
package engine

import (
	"context"
	"log/slog"
	"time"

	"vigil/internal/cache"
	"vigil/internal/core"
	"vigil/internal/locks"
	"vigil/internal/playback"
	"vigil/internal/reconcile"
	"vigil/internal/remote"
	"vigil/internal/reporter"
	"vigil/internal/state"
	syncpkg "vigil/internal/sync"
)

// Options carries the pairing identity and tuning knobs.
type Options struct {
	FamilyID          string
	ChildUID          string
	DeviceName        string
	AppVersion        string
	ReconcileInterval time.Duration
}

// Engine is the enforcement facade. It owns the component lifecycle and is
// the only reader the playback surface and local API need.
type Engine struct {
	opts     Options
	cache    cache.Cache
	tracker  *playback.Tracker
	synchro  *syncpkg.Synchronizer
	locks    *locks.Processor
	reporter *reporter.Reporter
	sched    *reconcile.Scheduler
	clock    core.Clock
	logger   *slog.Logger
}

// New wires the enforcement engine from its collaborators.
func New(opts Options, store remote.Store, cache cache.Cache, cat locks.TargetResolver, tracker *playback.Tracker, clock core.Clock, logger *slog.Logger) *Engine {
	e := &Engine{
		opts:     opts,
		cache:    cache,
		tracker:  tracker,
		synchro:  syncpkg.NewSynchronizer(store, cache, clock, logger),
		locks:    locks.NewProcessor(store, cat, tracker, clock, logger),
		reporter: reporter.NewReporter(store, cache, clock, logger, opts.DeviceName, opts.AppVersion),
		clock:    clock,
		logger:   logger.With("component", "engine"),
	}
	e.sched = reconcile.NewScheduler(e, clock, logger, opts.ReconcileInterval)
	return e
}

// StartListening attaches every remote listener, starts the reconciliation
// loop and queues an initial sync pass.
func (e *Engine) StartListening(ctx context.Context) error {
	if err := e.synchro.StartListening(ctx, e.opts.FamilyID, e.opts.ChildUID); err != nil {
		return err
	}
	if err := e.locks.StartListening(ctx, e.opts.FamilyID, e.opts.ChildUID); err != nil {
		e.synchro.StopListening()
		return err
	}
	e.reporter.Attach(e.opts.FamilyID, e.opts.ChildUID)
	e.sched.Start(ctx)
	e.sched.RequestImmediateSync()
	e.logger.Info("enforcement engine started",
		"family_id", e.opts.FamilyID, "child_uid", e.opts.ChildUID)
	return nil
}

// StopListening synchronously detaches all listeners and stops the
// reconciliation loop.
func (e *Engine) StopListening() {
	e.sched.CancelAllSync()
	e.locks.StopListening()
	e.synchro.StopListening()
	e.reporter.Detach()
	e.logger.Info("enforcement engine stopped")
}

// ForceSync runs one full pull of settings, device status and lock commands.
func (e *Engine) ForceSync(ctx context.Context) error {
	if err := e.synchro.ForceSync(ctx); err != nil {
		return err
	}
	return e.locks.ForceSync(ctx)
}

// CheckPendingLocks re-evaluates pending lock entries against the clock.
func (e *Engine) CheckPendingLocks() {
	e.locks.CheckPendingLocks()
}

// RequestImmediateSync queues an out-of-band reconciliation pass.
func (e *Engine) RequestImmediateSync() {
	e.sched.RequestImmediateSync()
}

// ShouldBlockApp is the top-level enforcement gate: pure over already-synced
// local state, no network I/O.
func (e *Engine) ShouldBlockApp(ctx context.Context) (core.BlockDecision, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return core.BlockDecision{}, err
	}
	return core.ShouldBlockApp(snap, e.clock.Now()), nil
}

// Snapshot assembles the full enforcement state for the gate and the status
// API.
func (e *Engine) Snapshot(ctx context.Context) (core.EnforcementSnapshot, error) {
	return e.snapshot(ctx)
}

func (e *Engine) snapshot(ctx context.Context) (core.EnforcementSnapshot, error) {
	settings, err := e.cache.EnforcementSettings(ctx)
	if err != nil {
		return core.EnforcementSnapshot{}, err
	}
	metrics, err := e.cache.Metrics(ctx)
	if err != nil {
		return core.EnforcementSnapshot{}, err
	}

	now := e.clock.Now()
	metrics.ResetIfNewDay(now)
	appLock, _ := e.locks.AppLock().Get()

	snap := core.EnforcementSnapshot{
		Settings: *settings,
		AppLock:  appLock,
		Schedule: core.EvaluateSchedules(settings.Schedules, e.opts.ChildUID, now),
	}
	limit := settings.DailyLimitMinutes(e.opts.ChildUID, now.Weekday())
	snap.TimeLimit = core.EvaluateTimeLimit(limit, metrics.TodayWatchTimeMinutes)
	return snap, nil
}

// NotifyVideoPlaybackStarted records a new watching session and marks the
// surface as playing.
func (e *Engine) NotifyVideoPlaybackStarted(ctx context.Context, title string) error {
	e.tracker.SetPlaying(true)
	return e.reporter.StartWatchingSession(ctx, title)
}

// NotifyVideoPlaybackEnded closes the watching session and drains any locks
// waiting for the video to finish.
func (e *Engine) NotifyVideoPlaybackEnded(ctx context.Context) error {
	e.tracker.SetPlaying(false)
	err := e.reporter.EndWatchingSession(ctx)
	e.locks.NotifyVideoPlaybackEnded()
	return err
}

// OnAppForeground reports the device online.
func (e *Engine) OnAppForeground(ctx context.Context) error {
	return e.reporter.OnAppForeground(ctx)
}

// OnAppBackground force-closes any session and reports the device offline.
func (e *Engine) OnAppBackground(ctx context.Context) error {
	e.tracker.SetPlaying(false)
	err := e.reporter.OnAppBackground(ctx)
	e.locks.NotifyVideoPlaybackEnded()
	return err
}

// CurrentlyWatching returns the open session's title, empty when idle.
func (e *Engine) CurrentlyWatching() string {
	return e.reporter.CurrentlyWatching()
}

// Warning exposes the active lock warning holder.
func (e *Engine) Warning() *state.Holder[*core.LockWarning] {
	return e.locks.Warning()
}

// AppLock exposes the whole-application lock holder.
func (e *Engine) AppLock() *state.Holder[core.AppLockState] {
	return e.locks.AppLock()
}

// SyncState exposes the settings synchronization state holder.
func (e *Engine) SyncState() *state.Holder[syncpkg.State] {
	return e.synchro.SyncState()
}

var _ reconcile.SyncRunner = (*Engine)(nil)
