package locks

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/catalogue"
	"vigil/internal/core"
	"vigil/internal/playback"
	"vigil/internal/remote"
)

type fixture struct {
	proc    *Processor
	store   *remote.MemoryStore
	cat     *catalogue.MemoryCatalogue
	surface *playback.Tracker
	clock   *core.MockClock
}

// newFixture builds a processor with pairing identifiers set, without the
// consumer goroutine: tests drive the handlers directly for determinism.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	store := remote.NewMemoryStore()
	cat := catalogue.NewMemoryCatalogue()
	surface := playback.NewTracker()
	clock := &core.MockClock{CurrentTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	proc := NewProcessor(store, NewCatalogueResolver(cat, logger), surface, clock, logger)
	proc.familyID = "fam1"
	proc.childUID = "kid1"

	return &fixture{proc: proc, store: store, cat: cat, surface: surface, clock: clock}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func (f *fixture) addShow() {
	f.cat.AddCollection(&catalogue.Collection{ID: "show", Name: "Bluey", Type: catalogue.TypeTVShow, Enabled: true})
	f.cat.AddCollection(&catalogue.Collection{ID: "s1", Name: "Bluey Season 1", Type: catalogue.TypeSeason, ParentName: "Bluey", Enabled: true})
	f.cat.AddVideo(&catalogue.Video{ID: "v1", Title: "Magic Xylophone", CollectionNames: []string{"Bluey Season 1"}, Enabled: true})
	f.cat.AddVideo(&catalogue.Video{ID: "v2", Title: "Hospital", CollectionNames: []string{"Bluey Season 1"}, Enabled: true})
	f.cat.AddVideo(&catalogue.Video{ID: "v3", Title: "Bluey Movie", CollectionNames: []string{"Bluey"}, Enabled: true})
}

// putLock writes a lock command into the remote tree and returns its snapshot
// as the listener would deliver it.
func (f *fixture) putLock(t *testing.T, lockID string, fields map[string]any) remote.Snapshot {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, remote.LockPath("fam1", "kid1", lockID), fields))
	snap, err := f.store.PullOnce(ctx, remote.LocksPath("fam1", "kid1"))
	require.NoError(t, err)
	return snap
}

func (f *fixture) lockExists(t *testing.T, lockID string) bool {
	t.Helper()
	snap, err := f.store.PullOnce(context.Background(), remote.LockPath("fam1", "kid1", lockID))
	require.NoError(t, err)
	return snap.Exists()
}

func TestImmediateLockAppliesWithoutPendingState(t *testing.T) {
	f := newFixture(t)
	f.addShow()
	ctx := context.Background()

	snap := f.putLock(t, "lock1", map[string]any{
		"videoTitle":     "Magic Xylophone",
		"locked":         true,
		"lockedAt":       f.clock.Now().UnixMilli(),
		"warningMinutes": 0,
	})
	f.proc.handleLocks(ctx, snap)

	video, _ := f.cat.Video("v1")
	assert.False(t, video.Enabled, "target must be disabled within one cycle")
	assert.Empty(t, f.proc.pending, "no PENDING state for a zero-warning lock")
	assert.False(t, f.lockExists(t, "lock1"), "command must be acknowledged")

	warning, _ := f.proc.Warning().Get()
	assert.Nil(t, warning)
}

func TestWarningCountdownIsMonotonic(t *testing.T) {
	f := newFixture(t)
	f.addShow()
	ctx := context.Background()

	snap := f.putLock(t, "lock1", map[string]any{
		"videoTitle":     "Magic Xylophone",
		"locked":         true,
		"lockedAt":       f.clock.Now().UnixMilli(),
		"warningMinutes": 5,
	})
	f.proc.handleLocks(ctx, snap)

	warning, _ := f.proc.Warning().Get()
	require.NotNil(t, warning)
	assert.Equal(t, 5, warning.MinutesRemaining)
	assert.Equal(t, "Magic Xylophone", warning.Title)
	assert.True(t, warning.IsVideo)

	last := warning.MinutesRemaining
	for i := 0; i < 5; i++ {
		f.clock.Advance(time.Minute)
		f.proc.checkPending(ctx)
		warning, _ = f.proc.Warning().Get()
		if warning == nil {
			break // lock applied
		}
		assert.LessOrEqual(t, warning.MinutesRemaining, last)
		assert.GreaterOrEqual(t, warning.MinutesRemaining, 0)
		last = warning.MinutesRemaining
	}

	video, _ := f.cat.Video("v1")
	assert.False(t, video.Enabled, "lock must be applied after the warning period")
	warning, _ = f.proc.Warning().Get()
	assert.Nil(t, warning)
}

func TestFinishCurrentVideoDeferral(t *testing.T) {
	f := newFixture(t)
	f.addShow()
	ctx := context.Background()
	f.surface.SetPlaying(true)

	snap := f.putLock(t, "lock1", map[string]any{
		"videoTitle":              "Magic Xylophone",
		"locked":                  true,
		"lockedAt":                f.clock.Now().Add(-10 * time.Minute).UnixMilli(),
		"warningMinutes":          5,
		"allowFinishCurrentVideo": true,
	})
	f.proc.handleLocks(ctx, snap)

	video, _ := f.cat.Video("v1")
	assert.True(t, video.Enabled, "target stays enabled while the video plays")
	assert.True(t, f.lockExists(t, "lock1"), "command is not acknowledged while deferred")

	warning, _ := f.proc.Warning().Get()
	require.NotNil(t, warning)
	assert.True(t, warning.IsLastOne)
	assert.Equal(t, 0, warning.MinutesRemaining)

	f.surface.SetPlaying(false)
	f.proc.handlePlaybackEnded(ctx)

	video, _ = f.cat.Video("v1")
	assert.False(t, video.Enabled, "target disabled once playback ends")
	assert.False(t, f.lockExists(t, "lock1"))
	warning, _ = f.proc.Warning().Get()
	assert.Nil(t, warning)

	// Firing the end event twice is idempotent.
	f.proc.handlePlaybackEnded(ctx)
	video, _ = f.cat.Video("v1")
	assert.False(t, video.Enabled)
}

func TestDeferralRequiresActivePlayback(t *testing.T) {
	f := newFixture(t)
	f.addShow()
	ctx := context.Background()
	f.surface.SetPlaying(false)

	snap := f.putLock(t, "lock1", map[string]any{
		"videoTitle":              "Magic Xylophone",
		"locked":                  true,
		"lockedAt":                f.clock.Now().Add(-10 * time.Minute).UnixMilli(),
		"allowFinishCurrentVideo": true,
	})
	f.proc.handleLocks(ctx, snap)

	video, _ := f.cat.Video("v1")
	assert.False(t, video.Enabled, "nothing playing: lock applies immediately")
}

func TestCollectionCascadeLockAndUnlock(t *testing.T) {
	f := newFixture(t)
	f.addShow()
	ctx := context.Background()

	snap := f.putLock(t, "lock1", map[string]any{
		"collectionName": "Bluey",
		"locked":         true,
		"lockedAt":       f.clock.Now().UnixMilli(),
		"warningMinutes": 0,
	})
	f.proc.handleLocks(ctx, snap)

	// Collection, direct video, season and its episodes are all disabled.
	show, _ := f.cat.Collection("show")
	season, _ := f.cat.Collection("s1")
	assert.False(t, show.Enabled)
	assert.False(t, season.Enabled)
	for _, id := range []string{"v1", "v2", "v3"} {
		v, _ := f.cat.Video(id)
		assert.False(t, v.Enabled, "video %s", id)
	}

	snap = f.putLock(t, "lock2", map[string]any{
		"collectionName": "Bluey",
		"locked":         false,
	})
	f.proc.handleLocks(ctx, snap)

	show, _ = f.cat.Collection("show")
	season, _ = f.cat.Collection("s1")
	assert.True(t, show.Enabled)
	assert.True(t, season.Enabled)
	for _, id := range []string{"v1", "v2", "v3"} {
		v, _ := f.cat.Video(id)
		assert.True(t, v.Enabled, "video %s", id)
	}
}

func TestUnlockCancelsPendingLock(t *testing.T) {
	f := newFixture(t)
	f.addShow()
	ctx := context.Background()

	snap := f.putLock(t, "lock1", map[string]any{
		"videoTitle":     "Magic Xylophone",
		"locked":         true,
		"lockedAt":       f.clock.Now().UnixMilli(),
		"warningMinutes": 5,
	})
	f.proc.handleLocks(ctx, snap)
	require.Len(t, f.proc.pending, 1)

	// The parent flips the same lock node to unlocked.
	snap = f.putLock(t, "lock1", map[string]any{
		"videoTitle": "Magic Xylophone",
		"locked":     false,
	})
	f.proc.handleLocks(ctx, snap)

	assert.Empty(t, f.proc.pending, "unlock clears the pending entry")
	video, _ := f.cat.Video("v1")
	assert.True(t, video.Enabled)

	// The cancelled lock never applies, even after its warning elapses.
	f.clock.Advance(10 * time.Minute)
	f.proc.checkPending(ctx)
	video, _ = f.cat.Video("v1")
	assert.True(t, video.Enabled)
}

func TestUnknownTargetIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap := f.putLock(t, "lock1", map[string]any{
		"videoTitle":     "No Such Video",
		"locked":         true,
		"lockedAt":       f.clock.Now().UnixMilli(),
		"warningMinutes": 0,
	})
	// Must not panic or return an error to the listener.
	f.proc.handleLocks(ctx, snap)

	assert.Empty(t, f.proc.pending)
	assert.Empty(t, f.proc.waiting)
}

func TestCommandWithoutTargetIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap := f.putLock(t, "lock1", map[string]any{
		"locked":         true,
		"warningMinutes": 0,
	})
	f.proc.handleLocks(ctx, snap)

	assert.Empty(t, f.proc.pending)
	assert.True(t, f.lockExists(t, "lock1"), "no-op commands are left alone")
}

func TestMalformedFieldsFallBackToDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cmd := parseLockCommand("lock1", remote.NewSnapshot(map[string]any{
		"videoTitle":     "Magic Xylophone",
		"locked":         "definitely", // wrong type
		"warningMinutes": "soon",
	}), now)

	assert.False(t, cmd.IsLocked)
	assert.Equal(t, core.DefaultWarningMinutes, cmd.WarningMinutes)
	assert.False(t, cmd.AllowFinishCurrentVideo)
	assert.Equal(t, now, cmd.LockedAt)
}

func TestAppLockWarningThenApply(t *testing.T) {
	f := newFixture(t)

	f.proc.handleAppLock(remote.NewSnapshot(map[string]any{
		"locked":         true,
		"message":        "bedtime",
		"lockedAt":       float64(f.clock.Now().UnixMilli()),
		"warningMinutes": float64(5),
	}))

	lock, _ := f.proc.AppLock().Get()
	assert.True(t, lock.IsLocked)
	assert.False(t, lock.Applied, "still inside the warning period")
	assert.Equal(t, "bedtime", lock.Message)

	f.clock.Advance(6 * time.Minute)
	f.proc.checkPending(context.Background())

	lock, _ = f.proc.AppLock().Get()
	assert.True(t, lock.Applied)
}

func TestAppLockDeferredUntilPlaybackEnds(t *testing.T) {
	f := newFixture(t)
	f.surface.SetPlaying(true)

	f.proc.handleAppLock(remote.NewSnapshot(map[string]any{
		"locked":                  true,
		"lockedAt":                float64(f.clock.Now().Add(-10 * time.Minute).UnixMilli()),
		"warningMinutes":          float64(5),
		"allowFinishCurrentVideo": true,
	}))

	lock, _ := f.proc.AppLock().Get()
	assert.False(t, lock.Applied, "deferred while a video is playing")

	f.surface.SetPlaying(false)
	f.proc.handlePlaybackEnded(context.Background())

	lock, _ = f.proc.AppLock().Get()
	assert.True(t, lock.Applied)
}

func TestAppLockClearedRemotely(t *testing.T) {
	f := newFixture(t)

	f.proc.handleAppLock(remote.NewSnapshot(map[string]any{
		"locked":   true,
		"lockedAt": float64(f.clock.Now().Add(-10 * time.Minute).UnixMilli()),
	}))
	lock, _ := f.proc.AppLock().Get()
	require.True(t, lock.IsLocked)

	f.proc.handleAppLock(remote.NewSnapshot(map[string]any{"locked": false}))
	lock, _ = f.proc.AppLock().Get()
	assert.False(t, lock.IsLocked)
}

func TestListenerEndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	store := remote.NewMemoryStore()
	cat := catalogue.NewMemoryCatalogue()
	cat.AddVideo(&catalogue.Video{ID: "v1", Title: "Magic Xylophone", Enabled: true})
	surface := playback.NewTracker()

	proc := NewProcessor(store, NewCatalogueResolver(cat, logger), surface, core.RealClock{}, logger)
	ctx := context.Background()
	require.NoError(t, proc.StartListening(ctx, "fam1", "kid1"))
	defer proc.StopListening()

	require.NoError(t, store.Put(ctx, remote.LockPath("fam1", "kid1", "lock1"), map[string]any{
		"videoTitle":     "Magic Xylophone",
		"locked":         true,
		"lockedAt":       time.Now().UnixMilli(),
		"warningMinutes": 0,
	}))

	require.Eventually(t, func() bool {
		v, ok := cat.Video("v1")
		return ok && !v.Enabled
	}, 2*time.Second, 10*time.Millisecond, "lock must be applied via the listener path")
}

func TestStopListeningDropsLateEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	store := remote.NewMemoryStore()
	cat := catalogue.NewMemoryCatalogue()
	cat.AddVideo(&catalogue.Video{ID: "v1", Title: "Magic Xylophone", Enabled: true})

	proc := NewProcessor(store, NewCatalogueResolver(cat, logger), playback.NewTracker(), core.RealClock{}, logger)
	ctx := context.Background()
	require.NoError(t, proc.StartListening(ctx, "fam1", "kid1"))
	proc.StopListening()

	// Mutations after detach must not be enforced.
	require.NoError(t, store.Put(ctx, remote.LockPath("fam1", "kid1", "lock1"), map[string]any{
		"videoTitle":     "Magic Xylophone",
		"locked":         true,
		"warningMinutes": 0,
	}))

	time.Sleep(50 * time.Millisecond)
	v, _ := cat.Video("v1")
	assert.True(t, v.Enabled)
}
