// Package core contains the enforcement domain model: synchronized parental
// settings, lock commands, schedules, time limits and the derived state the
// rest of the agent observes.
package core

import (
	"errors"
	"time"
)

// DateLayout is the device-local calendar date format used for daily counters.
const DateLayout = "2006-01-02"

// DefaultWarningMinutes is applied when a lock command omits warning_minutes.
const DefaultWarningMinutes = 5

// Validation and processing errors
var (
	ErrNotPaired       = errors.New("no active family/device pairing")
	ErrTargetNotFound  = errors.New("lock target not found in catalogue")
	ErrParse           = errors.New("malformed remote snapshot")
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)

// GlobalSettings is the family-wide toggle set, one per family.
type GlobalSettings struct {
	AppEnabled     bool
	SoftOffEnabled bool
	UpdatedAt      time.Time
	LastSyncedAt   time.Time
}

// DeviceOverrides carries per-device adjustments to the global settings.
// Pointer fields distinguish "unset" from an explicit value.
type DeviceOverrides struct {
	AppEnabled         *bool
	MaxViewingMinutes  *int
	AllowedCollections []string
	// IsRevoked comes from the device status record, not the overrides
	// record; a settings pass never touches it.
	IsRevoked    bool
	LastSyncedAt time.Time
}

// Schedule defines an allowed viewing window. An empty DaysOfWeek means the
// schedule applies every day; an empty AppliesToDevices means every device.
type Schedule struct {
	ID                 string
	Label              string
	DaysOfWeek         []int // ISO weekday, Monday=1 .. Sunday=7
	StartTime          int   // minute of day, inclusive
	EndTime            int   // minute of day, exclusive
	MaxViewingMinutes  *int
	AllowedCollections []string
	BlockedVideos      []string
	AllowedVideos      []string
	AppliesToDevices   []string
	IsActive           bool
	LastSyncedAt       time.Time
}

// AppliesToDevice reports whether the schedule constrains the given device.
func (s *Schedule) AppliesToDevice(deviceID string) bool {
	if len(s.AppliesToDevices) == 0 {
		return true
	}
	for _, id := range s.AppliesToDevices {
		if id == deviceID {
			return true
		}
	}
	return false
}

// ActiveOn reports whether the schedule is active for enforcement on the
// given day: it must be enabled and either list the day or list no days.
func (s *Schedule) ActiveOn(day time.Weekday) bool {
	if !s.IsActive {
		return false
	}
	if len(s.DaysOfWeek) == 0 {
		return true
	}
	iso := isoWeekday(day)
	for _, d := range s.DaysOfWeek {
		if d == iso {
			return true
		}
	}
	return false
}

// ContainsMinute reports whether the half-open window [StartTime, EndTime)
// contains the given minute of day.
func (s *Schedule) ContainsMinute(minuteOfDay int) bool {
	return minuteOfDay >= s.StartTime && minuteOfDay < s.EndTime
}

// Validate validates a Schedule parsed from a remote snapshot.
func (s *Schedule) Validate() error {
	if s.ID == "" {
		return ErrInvalidSchedule
	}
	if s.StartTime < 0 || s.StartTime >= 24*60 || s.EndTime < 0 || s.EndTime > 24*60 {
		return ErrInvalidSchedule
	}
	for _, d := range s.DaysOfWeek {
		if d < 1 || d > 7 {
			return ErrInvalidSchedule
		}
	}
	return nil
}

func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// EnforcementSettings is the read-only aggregate every enforcement decision
// reads. It is computed from the cache on demand and never mutated directly.
type EnforcementSettings struct {
	Global    GlobalSettings
	Device    DeviceOverrides
	Schedules []Schedule
	// Populated is false until the first successful sync has been persisted.
	// Enforcement fails open while it is false.
	Populated    bool
	LastSyncedAt time.Time
}

// IsAppEnabled combines the global toggle with the per-device override.
// An unset override counts as enabled.
func (e *EnforcementSettings) IsAppEnabled() bool {
	if !e.Global.AppEnabled {
		return false
	}
	if e.Device.AppEnabled != nil && !*e.Device.AppEnabled {
		return false
	}
	return true
}

// IsDeviceRevoked reports whether the parent revoked this device.
func (e *EnforcementSettings) IsDeviceRevoked() bool {
	return e.Device.IsRevoked
}

// DailyLimitMinutes resolves the effective daily viewing ceiling: the device
// override wins, otherwise the smallest limit among schedules active for the
// given day. Zero means no limit is configured.
func (e *EnforcementSettings) DailyLimitMinutes(deviceID string, day time.Weekday) int {
	if e.Device.MaxViewingMinutes != nil {
		return *e.Device.MaxViewingMinutes
	}
	limit := 0
	for i := range e.Schedules {
		s := &e.Schedules[i]
		if !s.ActiveOn(day) || !s.AppliesToDevice(deviceID) || s.MaxViewingMinutes == nil {
			continue
		}
		if limit == 0 || *s.MaxViewingMinutes < limit {
			limit = *s.MaxViewingMinutes
		}
	}
	return limit
}

// LockTarget identifies what a lock command acts on, by display name.
type LockTarget struct {
	Name    string
	IsVideo bool
}

// Key returns a map key that keeps video and collection namespaces apart.
func (t LockTarget) Key() string {
	if t.IsVideo {
		return "video:" + t.Name
	}
	return "collection:" + t.Name
}

// LockCommand is an ephemeral remote command against a video or collection.
type LockCommand struct {
	ID                      string
	VideoTitle              string
	CollectionName          string
	IsLocked                bool
	LockedBy                string
	LockedAt                time.Time
	WarningMinutes          int
	AllowFinishCurrentVideo bool
}

// Target returns the command's target. ok is false when the command names
// neither a video nor a collection, which callers treat as a no-op.
func (c *LockCommand) Target() (LockTarget, bool) {
	if c.VideoTitle != "" {
		return LockTarget{Name: c.VideoTitle, IsVideo: true}, true
	}
	if c.CollectionName != "" {
		return LockTarget{Name: c.CollectionName}, true
	}
	return LockTarget{}, false
}

// AppliesAt is the moment the lock takes effect: issuance plus warning period.
func (c *LockCommand) AppliesAt() time.Time {
	return c.LockedAt.Add(time.Duration(c.WarningMinutes) * time.Minute)
}

// PendingLock is a lock command whose apply time has not been reached, or one
// waiting for the current video to end.
type PendingLock struct {
	Target                  LockTarget
	CommandID               string
	AppliesAt               time.Time
	WarningMinutes          int
	AllowFinishCurrentVideo bool
	// WaitingForVideoEnd marks a lock whose warning period elapsed while a
	// video was playing and deferral was allowed.
	WaitingForVideoEnd bool
}

// LockWarning is the user-facing projection of the nearest pending lock.
// At most one instance is active at a time.
type LockWarning struct {
	Title                   string
	IsVideo                 bool
	MinutesRemaining        int
	AppliesAt               time.Time
	AllowFinishCurrentVideo bool
	// IsLastOne is true once the warning period has elapsed and the device is
	// only waiting for the current video to finish.
	IsLastOne bool
}

// AppLockState blocks the whole application, with the same warning and
// "finish current video" semantics as a content lock.
type AppLockState struct {
	IsLocked                bool
	Message                 string
	UnlockAt                time.Time // zero = no automatic unlock
	WarningMinutes          int
	AppliesAt               time.Time
	AllowFinishCurrentVideo bool
	// Applied is set by the lock processor once the warning period has
	// elapsed and any deferral has been satisfied.
	Applied bool
}

// Expired reports whether the lock has self-cleared via UnlockAt.
func (a *AppLockState) Expired(now time.Time) bool {
	return !a.UnlockAt.IsZero() && !now.Before(a.UnlockAt)
}

// ScheduleState is the derived schedule verdict for the current moment.
type ScheduleState struct {
	Enabled            bool
	IsCurrentlyAllowed bool
	Message            string
}

// TimeLimitState is the derived daily-limit verdict.
type TimeLimitState struct {
	Enabled           bool
	DailyLimitMinutes int
	RemainingMinutes  int
	IsLimitReached    bool
}

// ViewingMetrics holds the locally owned watch-time counters.
type ViewingMetrics struct {
	TodayWatchTimeMinutes int
	WeekWatchTimeMinutes  int
	TotalWatchTimeMinutes int
	VideosWatchedToday    int
	LastWatchDate         string // DateLayout, device-local
	LastVideoWatched      string
	LastWatchedAt         time.Time
}

// ResetIfNewDay zeroes the today counters when the device-local calendar date
// has advanced past LastWatchDate. It reports whether a reset happened.
func (m *ViewingMetrics) ResetIfNewDay(now time.Time) bool {
	today := now.Format(DateLayout)
	if m.LastWatchDate == today {
		return false
	}
	m.TodayWatchTimeMinutes = 0
	m.VideosWatchedToday = 0
	m.LastWatchDate = today
	return true
}
