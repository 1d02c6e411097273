package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateTimeLimit(t *testing.T) {
	tests := []struct {
		name          string
		limit         int
		today         int
		wantRemaining int
		wantReached   bool
		wantEnabled   bool
	}{
		{"under limit", 60, 45, 15, false, true},
		{"exactly at limit", 60, 60, 0, true, true},
		{"over limit", 60, 90, 0, true, true},
		{"nothing watched", 60, 0, 60, false, true},
		{"zero limit is unlimited", 0, 500, UnlimitedMinutes, false, false},
		{"negative limit is unlimited", -5, 500, UnlimitedMinutes, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := EvaluateTimeLimit(tt.limit, tt.today)
			assert.Equal(t, tt.wantRemaining, state.RemainingMinutes)
			assert.Equal(t, tt.wantReached, state.IsLimitReached)
			assert.Equal(t, tt.wantEnabled, state.Enabled)
		})
	}
}

func TestDailyLimitMinutes_Resolution(t *testing.T) {
	thirty := 30
	sixty := 60
	ninety := 90

	monday := at(10, 0).Weekday()

	t.Run("device override wins", func(t *testing.T) {
		settings := EnforcementSettings{
			Device:    DeviceOverrides{MaxViewingMinutes: &thirty},
			Schedules: []Schedule{{ID: "s", IsActive: true, EndTime: 24 * 60, MaxViewingMinutes: &ninety}},
		}
		assert.Equal(t, 30, settings.DailyLimitMinutes("device-1", monday))
	})

	t.Run("smallest schedule limit", func(t *testing.T) {
		settings := EnforcementSettings{
			Schedules: []Schedule{
				{ID: "a", IsActive: true, EndTime: 24 * 60, MaxViewingMinutes: &ninety},
				{ID: "b", IsActive: true, EndTime: 24 * 60, MaxViewingMinutes: &sixty},
			},
		}
		assert.Equal(t, 60, settings.DailyLimitMinutes("device-1", monday))
	})

	t.Run("no limit configured", func(t *testing.T) {
		settings := EnforcementSettings{
			Schedules: []Schedule{{ID: "a", IsActive: true, EndTime: 24 * 60}},
		}
		assert.Equal(t, 0, settings.DailyLimitMinutes("device-1", monday))
	})

	t.Run("inactive schedule ignored", func(t *testing.T) {
		settings := EnforcementSettings{
			Schedules: []Schedule{{ID: "a", IsActive: false, EndTime: 24 * 60, MaxViewingMinutes: &thirty}},
		}
		assert.Equal(t, 0, settings.DailyLimitMinutes("device-1", monday))
	})
}
