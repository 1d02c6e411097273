package core

import (
	"time"
)

// Schedule evaluation messages shown on the restricted screen.
const (
	msgNotAvailableToday = "not available today"
	msgTimeOver          = "time is over for today"
)

// EvaluateSchedules computes the schedule verdict for a device at a given
// moment. A schedule constrains the device only when it is active for today's
// weekday and applies to the device; the device is allowed when every such
// schedule's half-open [start, end) window contains the current minute of
// day. With no applicable active schedule the device defaults to allowed.
func EvaluateSchedules(schedules []Schedule, deviceID string, now time.Time) ScheduleState {
	minute := now.Hour()*60 + now.Minute()
	day := now.Weekday()

	state := ScheduleState{IsCurrentlyAllowed: true}

	var failed *Schedule
	for i := range schedules {
		s := &schedules[i]
		if !s.IsActive || !s.AppliesToDevice(deviceID) {
			continue
		}
		state.Enabled = true
		if !s.ActiveOn(day) {
			continue
		}
		if !s.ContainsMinute(minute) {
			state.IsCurrentlyAllowed = false
			if failed == nil {
				failed = s
			}
		}
	}

	if !state.IsCurrentlyAllowed && failed != nil {
		state.Message = boundaryMessage(failed, minute)
	}
	return state
}

// boundaryMessage picks the user-facing message for the boundary that failed:
// before the window opens, after it closed, or a window that admits no time
// at all today.
func boundaryMessage(s *Schedule, minute int) string {
	if s.StartTime >= s.EndTime {
		return msgNotAvailableToday
	}
	if minute < s.StartTime {
		return "available from " + formatMinuteOfDay(s.StartTime)
	}
	return msgTimeOver
}

// formatMinuteOfDay renders a minute-of-day as h:mm AM/PM.
func formatMinuteOfDay(minute int) string {
	t := time.Date(2000, 1, 1, minute/60, minute%60, 0, 0, time.UTC)
	return t.Format("3:04 PM")
}
