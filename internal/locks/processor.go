package locks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/core"
	"vigil/internal/playback"
	"vigil/internal/remote"
	"vigil/internal/state"
)

// checkInterval is the local timer cadence for re-evaluating pending locks.
const checkInterval = 30 * time.Second

type eventKind int

const (
	eventLocksSnapshot eventKind = iota
	eventAppLockSnapshot
	eventCheckPending
	eventPlaybackEnded
)

type event struct {
	kind eventKind
	snap remote.Snapshot
}

// Processor consumes lock commands from the remote store and drives the
// per-target state machine NONE -> PENDING -> {APPLIED | WAITING_FOR_VIDEO_END}.
// All events flow through a single consumer goroutine, which serializes
// processing and preserves per-target ordering.
type Processor struct {
	store    remote.Store
	resolver TargetResolver
	surface  playback.Surface
	clock    core.Clock
	logger   *slog.Logger

	events chan event

	// mu guards the pairing identifiers and listener lifecycle.
	mu       sync.Mutex
	familyID string
	childUID string
	subs     []remote.Subscription
	cancel   context.CancelFunc
	done     chan struct{}

	// Owned by the consumer goroutine once it is running.
	pending map[string]*core.PendingLock
	waiting map[string]*core.PendingLock
	appLock core.AppLockState

	warning      *state.Holder[*core.LockWarning]
	appLockState *state.Holder[core.AppLockState]
}

// NewProcessor creates a lock command processor.
func NewProcessor(store remote.Store, resolver TargetResolver, surface playback.Surface, clock core.Clock, logger *slog.Logger) *Processor {
	return &Processor{
		store:        store,
		resolver:     resolver,
		surface:      surface,
		clock:        clock,
		logger:       logger.With("component", "lock-processor"),
		events:       make(chan event, 64),
		pending:      make(map[string]*core.PendingLock),
		waiting:      make(map[string]*core.PendingLock),
		warning:      state.NewHolder[*core.LockWarning](nil),
		appLockState: state.NewHolder(core.AppLockState{}),
	}
}

// Warning exposes the single active lock warning, nil when none.
func (p *Processor) Warning() *state.Holder[*core.LockWarning] {
	return p.warning
}

// AppLock exposes the whole-application lock state.
func (p *Processor) AppLock() *state.Holder[core.AppLockState] {
	return p.appLockState
}

// StartListening subscribes to the device's locks and appLock subtrees and
// starts the consumer loop.
func (p *Processor) StartListening(ctx context.Context, familyID, childUID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return nil // already listening
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.familyID = familyID
	p.childUID = childUID
	p.cancel = cancel
	p.done = make(chan struct{})

	locksSub, err := p.store.Subscribe(runCtx, remote.LocksPath(familyID, childUID), func(snap remote.Snapshot) {
		p.enqueue(familyID, event{kind: eventLocksSnapshot, snap: snap})
	})
	if err != nil {
		cancel()
		p.cancel = nil
		return err
	}

	appLockSub, err := p.store.Subscribe(runCtx, remote.AppLockPath(familyID, childUID), func(snap remote.Snapshot) {
		p.enqueue(familyID, event{kind: eventAppLockSnapshot, snap: snap})
	})
	if err != nil {
		locksSub.Unsubscribe()
		cancel()
		p.cancel = nil
		return err
	}

	p.subs = []remote.Subscription{locksSub, appLockSub}

	go p.run(runCtx, p.done)

	p.logger.Info("lock listener started", "family_id", familyID, "child_uid", childUID)
	return nil
}

// StopListening synchronously removes the remote listeners, stops the
// consumer loop and clears the pairing identifiers. Late callbacks from
// already-detached listeners are dropped by the identifier check in enqueue.
func (p *Processor) StopListening() {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	for _, sub := range p.subs {
		sub.Unsubscribe()
	}
	p.subs = nil
	p.familyID = ""
	p.childUID = ""
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("lock listener stopped")
}

// ForceSync pulls both subtrees once and feeds them through the normal event
// path, for use when push notifications may have been missed.
func (p *Processor) ForceSync(ctx context.Context) error {
	p.mu.Lock()
	familyID, childUID := p.familyID, p.childUID
	p.mu.Unlock()
	if familyID == "" {
		return core.ErrNotPaired
	}

	locksSnap, err := p.store.PullOnce(ctx, remote.LocksPath(familyID, childUID))
	if err != nil {
		return err
	}
	appLockSnap, err := p.store.PullOnce(ctx, remote.AppLockPath(familyID, childUID))
	if err != nil {
		return err
	}

	p.enqueue(familyID, event{kind: eventLocksSnapshot, snap: locksSnap})
	p.enqueue(familyID, event{kind: eventAppLockSnapshot, snap: appLockSnap})
	return nil
}

// CheckPendingLocks asks the consumer loop to re-evaluate pending entries.
func (p *Processor) CheckPendingLocks() {
	p.mu.Lock()
	familyID := p.familyID
	p.mu.Unlock()
	p.enqueue(familyID, event{kind: eventCheckPending})
}

// NotifyVideoPlaybackEnded drains the waiting-for-video-end queue.
func (p *Processor) NotifyVideoPlaybackEnded() {
	p.mu.Lock()
	familyID := p.familyID
	p.mu.Unlock()
	p.enqueue(familyID, event{kind: eventPlaybackEnded})
}

// enqueue delivers an event to the consumer loop unless the pairing has been
// detached since the callback was registered.
func (p *Processor) enqueue(familyID string, ev event) {
	p.mu.Lock()
	current := p.familyID
	p.mu.Unlock()
	if current == "" || current != familyID {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("lock event queue full, dropping event", "kind", ev.kind)
	}
}

func (p *Processor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := p.clock.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			p.handle(ctx, ev)
		case <-ticker.C:
			p.checkPending(ctx)
		}
	}
}

func (p *Processor) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventLocksSnapshot:
		p.handleLocks(ctx, ev.snap)
	case eventAppLockSnapshot:
		p.handleAppLock(ev.snap)
	case eventCheckPending:
		p.checkPending(ctx)
	case eventPlaybackEnded:
		p.handlePlaybackEnded(ctx)
	}
}

// handleLocks processes the full locks subtree snapshot, one command at a
// time.
func (p *Processor) handleLocks(ctx context.Context, snap remote.Snapshot) {
	for id, child := range snap.Children() {
		cmd := parseLockCommand(id, child, p.clock.Now())
		p.processCommand(ctx, cmd)
	}
	p.publishWarning()
}

// parseLockCommand decodes one command, substituting documented defaults for
// missing or malformed fields.
func parseLockCommand(id string, s remote.Snapshot, now time.Time) core.LockCommand {
	cmd := core.LockCommand{
		ID:                      id,
		VideoTitle:              s.String("videoTitle", ""),
		CollectionName:          s.String("collectionName", ""),
		IsLocked:                s.Bool("locked", false),
		LockedBy:                s.String("lockedBy", ""),
		LockedAt:                s.Time("lockedAt"),
		WarningMinutes:          s.Int("warningMinutes", core.DefaultWarningMinutes),
		AllowFinishCurrentVideo: s.Bool("allowFinishCurrentVideo", false),
	}
	if cmd.LockedAt.IsZero() {
		cmd.LockedAt = now
	}
	return cmd
}

func (p *Processor) processCommand(ctx context.Context, cmd core.LockCommand) {
	target, ok := cmd.Target()
	if !ok {
		p.logger.Debug("lock command without target ignored", "lock_id", cmd.ID)
		return
	}
	key := target.Key()

	if !cmd.IsLocked {
		// Unlock applies immediately regardless of pending/waiting state.
		delete(p.pending, key)
		delete(p.waiting, key)
		if err := p.resolver.ApplyLock(ctx, target, false); err != nil {
			p.logTargetError("unlock", target, err)
			if !errors.Is(err, core.ErrTargetNotFound) {
				return
			}
		}
		p.acknowledge(ctx, cmd.ID)
		return
	}

	now := p.clock.Now()
	appliesAt := cmd.AppliesAt()

	if appliesAt.After(now) {
		p.pending[key] = &core.PendingLock{
			Target:                  target,
			CommandID:               cmd.ID,
			AppliesAt:               appliesAt,
			WarningMinutes:          cmd.WarningMinutes,
			AllowFinishCurrentVideo: cmd.AllowFinishCurrentVideo,
		}
		return
	}

	p.applyDue(ctx, &core.PendingLock{
		Target:                  target,
		CommandID:               cmd.ID,
		AppliesAt:               appliesAt,
		WarningMinutes:          cmd.WarningMinutes,
		AllowFinishCurrentVideo: cmd.AllowFinishCurrentVideo,
	})
}

// applyDue handles a lock whose apply time has passed: either defer it until
// the current video ends, or apply and acknowledge it now.
func (p *Processor) applyDue(ctx context.Context, lock *core.PendingLock) {
	key := lock.Target.Key()
	delete(p.pending, key)

	if lock.AllowFinishCurrentVideo && p.surface.IsCurrentlyPlaying() {
		lock.WaitingForVideoEnd = true
		p.waiting[key] = lock
		p.logger.Info("lock deferred until current video ends",
			"target", lock.Target.Name, "is_video", lock.Target.IsVideo)
		return
	}

	if err := p.resolver.ApplyLock(ctx, lock.Target, true); err != nil {
		p.logTargetError("lock", lock.Target, err)
		if !errors.Is(err, core.ErrTargetNotFound) {
			return
		}
		// Orphaned command: skip, but do not acknowledge so a later catalogue
		// change can still satisfy it.
		return
	}

	p.logger.Info("lock applied", "target", lock.Target.Name, "is_video", lock.Target.IsVideo)
	p.acknowledge(ctx, lock.CommandID)
}

// checkPending re-evaluates every pending entry and the app lock against the
// current time, then recomputes the warning.
func (p *Processor) checkPending(ctx context.Context) {
	now := p.clock.Now()

	for _, lock := range p.pending {
		if !lock.AppliesAt.After(now) {
			p.applyDue(ctx, lock)
		}
	}

	p.refreshAppLock(now)
	p.publishWarning()
}

// handlePlaybackEnded drains the waiting queue: every deferred target is
// applied exactly once and its command acknowledged.
func (p *Processor) handlePlaybackEnded(ctx context.Context) {
	for key, lock := range p.waiting {
		delete(p.waiting, key)
		if err := p.resolver.ApplyLock(ctx, lock.Target, true); err != nil {
			p.logTargetError("lock", lock.Target, err)
			if !errors.Is(err, core.ErrTargetNotFound) {
				continue
			}
		} else {
			p.logger.Info("deferred lock applied", "target", lock.Target.Name)
		}
		p.acknowledge(ctx, lock.CommandID)
	}

	if p.appLock.IsLocked && !p.appLock.Applied && !p.appLock.AppliesAt.After(p.clock.Now()) {
		p.appLock.Applied = true
		p.appLockState.Set(p.appLock)
	}

	p.publishWarning()
}

// handleAppLock processes the appLock subtree snapshot.
func (p *Processor) handleAppLock(snap remote.Snapshot) {
	now := p.clock.Now()

	if !snap.Exists() || !snap.Bool("locked", false) {
		p.appLock = core.AppLockState{}
		p.appLockState.Set(p.appLock)
		return
	}

	lockedAt := snap.Time("lockedAt")
	if lockedAt.IsZero() {
		lockedAt = now
	}
	warning := snap.Int("warningMinutes", core.DefaultWarningMinutes)

	p.appLock = core.AppLockState{
		IsLocked:                true,
		Message:                 snap.String("message", ""),
		UnlockAt:                snap.Time("unlockAt"),
		WarningMinutes:          warning,
		AppliesAt:               lockedAt.Add(time.Duration(warning) * time.Minute),
		AllowFinishCurrentVideo: snap.Bool("allowFinishCurrentVideo", false),
	}
	p.refreshAppLock(now)
	p.appLockState.Set(p.appLock)
}

// refreshAppLock flips the app lock to applied once its warning period has
// elapsed and any finish-current-video deferral is satisfied.
func (p *Processor) refreshAppLock(now time.Time) {
	if !p.appLock.IsLocked || p.appLock.Applied || p.appLock.AppliesAt.After(now) {
		return
	}
	if p.appLock.AllowFinishCurrentVideo && p.surface.IsCurrentlyPlaying() {
		return // wait for NotifyVideoPlaybackEnded
	}
	p.appLock.Applied = true
	p.appLockState.Set(p.appLock)
}

// acknowledge removes a processed command from the remote store. Failure is
// non-fatal: the command stays in the tree and is reprocessed on the next
// notification, and reapplying an applied lock is idempotent.
func (p *Processor) acknowledge(ctx context.Context, lockID string) {
	p.mu.Lock()
	familyID, childUID := p.familyID, p.childUID
	p.mu.Unlock()
	if familyID == "" {
		return
	}
	if err := p.store.Delete(ctx, remote.LockPath(familyID, childUID, lockID)); err != nil {
		p.logger.Warn("failed to remove acknowledged lock command, will retry",
			"lock_id", lockID, "error", err)
	}
}

// publishWarning projects the nearest pending or waiting lock into the single
// active warning. A waiting entry always wins: its apply time has passed.
func (p *Processor) publishWarning() {
	now := p.clock.Now()

	var nearest *core.PendingLock
	for _, lock := range p.waiting {
		if nearest == nil || lock.AppliesAt.Before(nearest.AppliesAt) {
			nearest = lock
		}
	}
	if nearest == nil {
		for _, lock := range p.pending {
			if nearest == nil || lock.AppliesAt.Before(nearest.AppliesAt) {
				nearest = lock
			}
		}
	}

	if nearest == nil {
		p.warning.Set(nil)
		return
	}

	w := &core.LockWarning{
		Title:                   nearest.Target.Name,
		IsVideo:                 nearest.Target.IsVideo,
		AppliesAt:               nearest.AppliesAt,
		AllowFinishCurrentVideo: nearest.AllowFinishCurrentVideo,
		IsLastOne:               nearest.WaitingForVideoEnd,
	}
	if !nearest.WaitingForVideoEnd {
		w.MinutesRemaining = minutesUntil(now, nearest.AppliesAt)
	}
	p.warning.Set(w)
}

// minutesUntil is the ceiling of the interval in minutes, never negative.
func minutesUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

func (p *Processor) logTargetError(action string, target core.LockTarget, err error) {
	if errors.Is(err, core.ErrTargetNotFound) {
		p.logger.Warn("lock target not found, skipping",
			"action", action, "target", target.Name, "is_video", target.IsVideo)
		return
	}
	p.logger.Error("failed to apply lock state",
		"action", action, "target", target.Name, "error", err)
}
