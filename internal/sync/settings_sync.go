// Package sync keeps the local enforcement cache aligned with the remote
// settings tree: push notifications while a listener is attached, one-shot
// pulls for background reconciliation.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"vigil/internal/cache"
	"vigil/internal/core"
	"vigil/internal/remote"
	"vigil/internal/state"
)

// Status is the coarse synchronization phase exposed to observers.
type Status int

const (
	StatusIdle Status = iota
	StatusSyncing
	StatusSynced
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusSynced:
		return "synced"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// State is the observable synchronization state.
type State struct {
	Status       Status
	LastSyncedAt time.Time
	LastError    string
}

// Synchronizer mirrors the family settings subtree and this device's status
// record into the enforcement cache. Each notification is applied as one
// atomic cache batch; a snapshot that fails to parse leaves the cache exactly
// as it was.
type Synchronizer struct {
	store  remote.Store
	cache  cache.Cache
	clock  core.Clock
	logger *slog.Logger

	syncState *state.Holder[State]

	mu       stdsync.Mutex
	familyID string
	childUID string
	subs     []remote.Subscription
}

// NewSynchronizer creates a settings synchronizer.
func NewSynchronizer(store remote.Store, cache cache.Cache, clock core.Clock, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		store:     store,
		cache:     cache,
		clock:     clock,
		logger:    logger.With("component", "settings-sync"),
		syncState: state.NewHolder(State{Status: StatusIdle}),
	}
}

// SyncState exposes the observable synchronization state.
func (s *Synchronizer) SyncState() *state.Holder[State] {
	return s.syncState
}

// StartListening attaches change listeners to the family settings subtree and
// this device's status record. Every notification is parsed and persisted as
// one cache batch.
func (s *Synchronizer) StartListening(ctx context.Context, familyID, childUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subs) > 0 {
		return nil // already listening
	}
	s.familyID = familyID
	s.childUID = childUID

	runCtx := context.WithoutCancel(ctx)

	settingsSub, err := s.store.Subscribe(runCtx, remote.SettingsPath(familyID), func(snap remote.Snapshot) {
		s.onSettings(runCtx, familyID, snap)
	})
	if err != nil {
		s.familyID = ""
		s.childUID = ""
		return err
	}

	statusSub, err := s.store.Subscribe(runCtx, remote.DeviceStatusPath(familyID, childUID), func(snap remote.Snapshot) {
		s.onDeviceStatus(runCtx, familyID, snap)
	})
	if err != nil {
		settingsSub.Unsubscribe()
		s.familyID = ""
		s.childUID = ""
		return err
	}

	s.subs = []remote.Subscription{settingsSub, statusSub}
	s.logger.Info("settings listener started", "family_id", familyID, "child_uid", childUID)
	return nil
}

// StopListening synchronously removes the listeners and clears the pairing
// identifiers. Late callbacks from detached listeners check the identifiers
// and no-op.
func (s *Synchronizer) StopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.familyID = ""
	s.childUID = ""
	s.syncState.Set(State{Status: StatusIdle})
	s.logger.Info("settings listener stopped")
}

// ForceSync pulls the settings subtree and the device status record once and
// applies both, for reconciliation when notifications may have been missed.
func (s *Synchronizer) ForceSync(ctx context.Context) error {
	s.mu.Lock()
	familyID, childUID := s.familyID, s.childUID
	s.mu.Unlock()
	if familyID == "" {
		return core.ErrNotPaired
	}

	settingsSnap, err := s.store.PullOnce(ctx, remote.SettingsPath(familyID))
	if err != nil {
		s.setError(err)
		return err
	}
	if err := s.applySettings(ctx, familyID, settingsSnap); err != nil {
		return err
	}

	statusSnap, err := s.store.PullOnce(ctx, remote.DeviceStatusPath(familyID, childUID))
	if err != nil {
		s.setError(err)
		return err
	}
	return s.applyDeviceStatus(ctx, familyID, statusSnap)
}

// onSettings is the listener callback for the settings subtree.
func (s *Synchronizer) onSettings(ctx context.Context, familyID string, snap remote.Snapshot) {
	if !s.paired(familyID) {
		return
	}
	if err := s.applySettings(ctx, familyID, snap); err != nil {
		s.logger.Error("failed to apply settings notification", "error", err)
	}
}

// onDeviceStatus is the listener callback for the device status record.
func (s *Synchronizer) onDeviceStatus(ctx context.Context, familyID string, snap remote.Snapshot) {
	if !s.paired(familyID) {
		return
	}
	if err := s.applyDeviceStatus(ctx, familyID, snap); err != nil {
		s.logger.Error("failed to apply device status notification", "error", err)
	}
}

func (s *Synchronizer) paired(familyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.familyID != "" && s.familyID == familyID
}

// applySettings parses the whole settings snapshot and persists it as one
// cache batch. A parse failure leaves the cache untouched.
func (s *Synchronizer) applySettings(ctx context.Context, familyID string, snap remote.Snapshot) error {
	s.syncState.Set(State{Status: StatusSyncing})

	global, overrides, schedules, err := s.parseSettings(snap)
	if err != nil {
		s.setError(err)
		return err
	}

	if err := s.cache.ReplaceSettings(ctx, global, overrides, schedules); err != nil {
		s.setError(err)
		return err
	}

	now := s.clock.Now()
	s.syncState.Set(State{Status: StatusSynced, LastSyncedAt: now})
	s.logger.Info("settings synchronized",
		"family_id", familyID, "schedules", len(schedules), "has_overrides", overrides != nil)
	return nil
}

// applyDeviceStatus updates only the revocation flag.
func (s *Synchronizer) applyDeviceStatus(ctx context.Context, familyID string, snap remote.Snapshot) error {
	revoked := snap.Bool("isRevoked", false)
	if err := s.cache.SetDeviceRevoked(ctx, revoked); err != nil {
		s.setError(err)
		return err
	}
	if revoked {
		s.logger.Warn("device access revoked by parent", "family_id", familyID)
	}
	s.syncState.Set(State{Status: StatusSynced, LastSyncedAt: s.clock.Now()})
	return nil
}

// parseSettings decodes the settings subtree. The device overrides result is
// nil when the subtree carries no record for this device, which keeps the
// cached overrides intact.
func (s *Synchronizer) parseSettings(snap remote.Snapshot) (*core.GlobalSettings, *core.DeviceOverrides, []core.Schedule, error) {
	if !snap.Exists() {
		return nil, nil, nil, fmt.Errorf("settings subtree is empty: %w", core.ErrParse)
	}

	globalSnap := snap.Child("global")
	if !globalSnap.Exists() {
		return nil, nil, nil, fmt.Errorf("settings without global node: %w", core.ErrParse)
	}
	now := s.clock.Now()
	global := &core.GlobalSettings{
		AppEnabled:     globalSnap.Bool("appEnabled", true),
		SoftOffEnabled: globalSnap.Bool("softOffEnabled", false),
		UpdatedAt:      globalSnap.Time("updatedAt"),
		LastSyncedAt:   now,
	}

	schedules, err := parseSchedules(snap.Child("schedules"), now)
	if err != nil {
		return nil, nil, nil, err
	}

	var overrides *core.DeviceOverrides
	s.mu.Lock()
	childUID := s.childUID
	s.mu.Unlock()
	if o := snap.Child("deviceOverrides").Child(childUID); o.Exists() {
		overrides = &core.DeviceOverrides{
			AppEnabled:         o.OptionalBool("appEnabled"),
			MaxViewingMinutes:  o.OptionalInt("maxViewingMinutesOverride"),
			AllowedCollections: o.Child("allowedCollections").AsStringSlice(),
			LastSyncedAt:       now,
		}
	}

	return global, overrides, schedules, nil
}

func parseSchedules(snap remote.Snapshot, syncedAt time.Time) ([]core.Schedule, error) {
	children := snap.Children()
	schedules := make([]core.Schedule, 0, len(children))
	for id, child := range children {
		sched := core.Schedule{
			ID:                 id,
			Label:              child.String("label", ""),
			DaysOfWeek:         child.Child("daysOfWeek").AsIntSlice(),
			StartTime:          child.Int("startTime", 0),
			EndTime:            child.Int("endTime", 0),
			MaxViewingMinutes:  child.OptionalInt("maxViewingMinutes"),
			AllowedCollections: child.Child("allowedCollections").AsStringSlice(),
			BlockedVideos:      child.Child("blockedVideos").AsStringSlice(),
			AllowedVideos:      child.Child("allowedVideos").AsStringSlice(),
			AppliesToDevices:   child.Child("appliesToDevices").AsStringSlice(),
			IsActive:           child.Bool("isActive", true),
			LastSyncedAt:       syncedAt,
		}
		if err := sched.Validate(); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", id, err)
		}
		schedules = append(schedules, sched)
	}
	return schedules, nil
}

func (s *Synchronizer) setError(err error) {
	s.syncState.Set(State{Status: StatusError, LastError: err.Error()})
}
