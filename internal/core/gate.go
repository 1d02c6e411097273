package core

import "time"

// BlockReason classifies why the application is blocked.
type BlockReason string

const (
	BlockReasonNone      BlockReason = ""
	BlockReasonRevoked   BlockReason = "revoked"
	BlockReasonDisabled  BlockReason = "disabled"
	BlockReasonAppLock   BlockReason = "app_lock"
	BlockReasonSchedule  BlockReason = "schedule"
	BlockReasonTimeLimit BlockReason = "time_limit"
)

// Blocked-screen messages.
const (
	msgDeviceRevoked   = "device access has been revoked"
	msgViewingDisabled = "viewing is currently disabled"
	msgDailyLimit      = "daily limit reached"
)

// BlockDecision is the top-level gate verdict the playback surface acts on.
type BlockDecision struct {
	Blocked bool
	Reason  BlockReason
	Message string
}

// EnforcementSnapshot gathers the already-synced local state the gate reads.
// Filling it must never require network I/O.
type EnforcementSnapshot struct {
	Settings  EnforcementSettings
	AppLock   AppLockState
	Schedule  ScheduleState
	TimeLimit TimeLimitState
}

// ShouldBlockApp is the top-level enforcement gate. It is pure and
// synchronous over the snapshot. While no settings have ever been synced the
// gate fails open; once a revocation or lock has been observed it fails
// closed. Priority, first match wins: revocation/disabled toggle, app lock,
// schedule, daily limit.
func ShouldBlockApp(snap EnforcementSnapshot, now time.Time) BlockDecision {
	if snap.Settings.Populated {
		if snap.Settings.IsDeviceRevoked() {
			return BlockDecision{Blocked: true, Reason: BlockReasonRevoked, Message: msgDeviceRevoked}
		}
		if !snap.Settings.IsAppEnabled() {
			return BlockDecision{Blocked: true, Reason: BlockReasonDisabled, Message: msgViewingDisabled}
		}
	}

	if snap.AppLock.IsLocked && snap.AppLock.Applied && !snap.AppLock.Expired(now) {
		return BlockDecision{Blocked: true, Reason: BlockReasonAppLock, Message: snap.AppLock.Message}
	}

	if !snap.Settings.Populated {
		// Fail open on first run: nothing has ever been synced.
		return BlockDecision{}
	}

	if !snap.Schedule.IsCurrentlyAllowed {
		return BlockDecision{Blocked: true, Reason: BlockReasonSchedule, Message: snap.Schedule.Message}
	}

	if snap.TimeLimit.IsLimitReached {
		return BlockDecision{Blocked: true, Reason: BlockReasonTimeLimit, Message: msgDailyLimit}
	}

	return BlockDecision{}
}
