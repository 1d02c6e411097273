package core

import "math"

// UnlimitedMinutes is the RemainingMinutes sentinel when no daily limit
// applies.
const UnlimitedMinutes = math.MaxInt32

// EvaluateTimeLimit computes the daily-limit verdict from the effective limit
// and today's accumulated watch time. A disabled limit or a limit of zero
// means unlimited viewing.
func EvaluateTimeLimit(dailyLimitMinutes, todayWatchTimeMinutes int) TimeLimitState {
	if dailyLimitMinutes <= 0 {
		return TimeLimitState{
			Enabled:          false,
			RemainingMinutes: UnlimitedMinutes,
		}
	}

	remaining := dailyLimitMinutes - todayWatchTimeMinutes
	if remaining < 0 {
		remaining = 0
	}

	return TimeLimitState{
		Enabled:           true,
		DailyLimitMinutes: dailyLimitMinutes,
		RemainingMinutes:  remaining,
		IsLimitReached:    remaining <= 0,
	}
}
