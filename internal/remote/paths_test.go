package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathBuilders(t *testing.T) {
	assert.Equal(t, "families/fam1/settings", SettingsPath("fam1"))
	assert.Equal(t, "families/fam1/devices/kid1", DeviceStatusPath("fam1", "kid1"))
	assert.Equal(t, "families/fam1/children/kid1/locks/lock1", LockPath("fam1", "kid1", "lock1"))
	assert.Equal(t, "families/fam1/children/kid1/appLock", AppLockPath("fam1", "kid1"))
	assert.Equal(t, "families/fam1/children/kid1/metrics", MetricsPath("fam1", "kid1"))
	assert.Equal(t, "families/fam1/children/kid1/deviceInfo", DeviceInfoPath("fam1", "kid1"))
}

func TestSnapshotAccessors(t *testing.T) {
	snap := NewSnapshot(map[string]any{
		"locked":         true,
		"warningMinutes": float64(5),
		"lockedAt":       float64(1704067200000),
		"videoTitle":     "Bluey S1E1",
		"daysOfWeek":     []any{float64(1), float64(2)},
		"devices":        []any{"a", "b"},
	})

	assert.True(t, snap.Bool("locked", false))
	assert.Equal(t, 5, snap.Int("warningMinutes", 0))
	assert.Equal(t, "Bluey S1E1", snap.String("videoTitle", ""))
	assert.Equal(t, []int{1, 2}, snap.Child("daysOfWeek").AsIntSlice())
	assert.Equal(t, []string{"a", "b"}, snap.Child("devices").AsStringSlice())
	assert.Equal(t, int64(1704067200000), snap.Time("lockedAt").UnixMilli())
}

func TestSnapshotDefaultsOnMalformedFields(t *testing.T) {
	snap := NewSnapshot(map[string]any{
		"locked":         "yes", // wrong type
		"warningMinutes": "soon",
	})

	assert.False(t, snap.Bool("locked", false))
	assert.Equal(t, 5, snap.Int("warningMinutes", 5))
	assert.True(t, snap.Time("lockedAt").IsZero())
	assert.Nil(t, snap.OptionalInt("maxViewingMinutes"))
	assert.Nil(t, snap.OptionalBool("appEnabled"))

	empty := NewSnapshot(nil)
	assert.False(t, empty.Exists())
	assert.False(t, empty.Child("anything").Exists())
}

func TestMemoryStorePullAndMutate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "families/f1/settings/global", map[string]any{
		"appEnabled": true,
	}))

	snap, err := store.PullOnce(ctx, "families/f1/settings/global")
	require.NoError(t, err)
	assert.True(t, snap.Bool("appEnabled", false))

	require.NoError(t, store.Update(ctx, "families/f1/settings/global", map[string]any{
		"softOffEnabled": true,
	}))
	snap, err = store.PullOnce(ctx, "families/f1/settings/global")
	require.NoError(t, err)
	assert.True(t, snap.Bool("appEnabled", false), "update must not clobber siblings")
	assert.True(t, snap.Bool("softOffEnabled", false))

	require.NoError(t, store.Delete(ctx, "families/f1/settings/global"))
	snap, err = store.PullOnce(ctx, "families/f1/settings/global")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestMemoryStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var got []Snapshot
	sub, err := store.Subscribe(ctx, "families/f1/settings", func(s Snapshot) {
		got = append(got, s)
	})
	require.NoError(t, err)

	// Mutation below the subscribed subtree fires the callback.
	require.NoError(t, store.Put(ctx, "families/f1/settings/global", map[string]any{"appEnabled": false}))
	require.Len(t, got, 1)
	assert.False(t, got[0].Child("global").Bool("appEnabled", true))

	// Mutation elsewhere does not.
	require.NoError(t, store.Put(ctx, "families/f2/settings/global", map[string]any{"appEnabled": true}))
	assert.Len(t, got, 1)

	sub.Unsubscribe()
	require.NoError(t, store.Put(ctx, "families/f1/settings/global", map[string]any{"appEnabled": true}))
	assert.Len(t, got, 1, "no callbacks after unsubscribe")
}
