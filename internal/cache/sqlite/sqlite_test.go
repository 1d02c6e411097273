package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/core"
)

func newTestCache(t *testing.T) *SQLiteCache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "vigil.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleSchedule(id string) core.Schedule {
	return core.Schedule{
		ID:           id,
		Label:        "daytime",
		DaysOfWeek:   []int{1, 2, 3, 4, 5},
		StartTime:    8 * 60,
		EndTime:      20 * 60,
		IsActive:     true,
		LastSyncedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestEnforcementSettings_EmptyCacheFailsOpen(t *testing.T) {
	c := newTestCache(t)

	settings, err := c.EnforcementSettings(context.Background())
	require.NoError(t, err)
	assert.False(t, settings.Populated)
	assert.False(t, settings.IsDeviceRevoked())
	assert.Empty(t, settings.Schedules)
}

func TestReplaceSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	enabled := true
	maxViewing := 90
	global := &core.GlobalSettings{
		AppEnabled:     true,
		SoftOffEnabled: true,
		UpdatedAt:      time.Now().UTC().Truncate(time.Second),
		LastSyncedAt:   time.Now().UTC().Truncate(time.Second),
	}
	overrides := &core.DeviceOverrides{
		AppEnabled:         &enabled,
		MaxViewingMinutes:  &maxViewing,
		AllowedCollections: []string{"Bluey", "Puffin Rock"},
		LastSyncedAt:       time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, c.ReplaceSettings(ctx, global, overrides,
		[]core.Schedule{sampleSchedule("a"), sampleSchedule("b")}))

	settings, err := c.EnforcementSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.Populated)
	assert.True(t, settings.Global.AppEnabled)
	assert.True(t, settings.Global.SoftOffEnabled)
	require.NotNil(t, settings.Device.MaxViewingMinutes)
	assert.Equal(t, 90, *settings.Device.MaxViewingMinutes)
	assert.Equal(t, []string{"Bluey", "Puffin Rock"}, settings.Device.AllowedCollections)
	require.Len(t, settings.Schedules, 2)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, settings.Schedules[0].DaysOfWeek)
	assert.Equal(t, 8*60, settings.Schedules[0].StartTime)
}

func TestReplaceSettingsDeletesStaleSchedules(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	global := &core.GlobalSettings{AppEnabled: true, LastSyncedAt: time.Now().UTC()}
	require.NoError(t, c.ReplaceSettings(ctx, global, nil,
		[]core.Schedule{sampleSchedule("a"), sampleSchedule("b"), sampleSchedule("c")}))

	// Next pull omits "b": exactly "b" disappears.
	require.NoError(t, c.ReplaceSettings(ctx, global, nil,
		[]core.Schedule{sampleSchedule("a"), sampleSchedule("c")}))

	settings, err := c.EnforcementSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings.Schedules, 2)
	assert.Equal(t, "a", settings.Schedules[0].ID)
	assert.Equal(t, "c", settings.Schedules[1].ID)

	// An empty pull deletes everything.
	require.NoError(t, c.ReplaceSettings(ctx, global, nil, []core.Schedule{}))
	settings, err = c.EnforcementSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings.Schedules)
}

func TestReplaceSettingsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	global := &core.GlobalSettings{AppEnabled: true, LastSyncedAt: time.Now().UTC().Truncate(time.Second)}
	schedules := []core.Schedule{sampleSchedule("a")}

	require.NoError(t, c.ReplaceSettings(ctx, global, nil, schedules))
	first, err := c.EnforcementSettings(ctx)
	require.NoError(t, err)

	require.NoError(t, c.ReplaceSettings(ctx, global, nil, schedules))
	second, err := c.EnforcementSettings(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSetDeviceRevoked(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.SetDeviceRevoked(ctx, true))

	settings, err := c.EnforcementSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.IsDeviceRevoked())
	// Observing a revocation alone is enough to fail closed.
	assert.True(t, settings.Populated)

	require.NoError(t, c.SetDeviceRevoked(ctx, false))
	settings, err = c.EnforcementSettings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.IsDeviceRevoked())
}

func TestRevocationSurvivesSettingsReplace(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.SetDeviceRevoked(ctx, true))

	// The parent edits settings after revoking: the pass carries this
	// device's overrides record, which has no revocation data.
	enabled := true
	global := &core.GlobalSettings{AppEnabled: true, LastSyncedAt: time.Now().UTC()}
	overrides := &core.DeviceOverrides{
		AppEnabled:   &enabled,
		LastSyncedAt: time.Now().UTC(),
	}
	require.NoError(t, c.ReplaceSettings(ctx, global, overrides, []core.Schedule{sampleSchedule("a")}))

	settings, err := c.EnforcementSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.IsDeviceRevoked())
	require.NotNil(t, settings.Device.AppEnabled)
	assert.True(t, *settings.Device.AppEnabled)
}

func TestSettingsReplaceBeforeAnyRevocationDefaultsToNotRevoked(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	global := &core.GlobalSettings{AppEnabled: true, LastSyncedAt: time.Now().UTC()}
	require.NoError(t, c.ReplaceSettings(ctx, global, &core.DeviceOverrides{LastSyncedAt: time.Now().UTC()}, nil))

	settings, err := c.EnforcementSettings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.IsDeviceRevoked())
}

func TestMetricsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	m, err := c.Metrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.TodayWatchTimeMinutes)

	m = &core.ViewingMetrics{
		TodayWatchTimeMinutes: 25,
		WeekWatchTimeMinutes:  100,
		TotalWatchTimeMinutes: 1000,
		VideosWatchedToday:    4,
		LastWatchDate:         "2024-03-01",
		LastVideoWatched:      "Bluey S1E1",
		LastWatchedAt:         time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, c.SaveMetrics(ctx, m))

	got, err := c.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}
