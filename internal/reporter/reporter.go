// Package reporter pushes local viewing activity back to the remote store so
// the parent application shows live device status. It is the sole owner of
// the ViewingMetrics counters.
package reporter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/cache"
	"vigil/internal/core"
	"vigil/internal/idgen"
	"vigil/internal/remote"
)

// Reporter tracks watching sessions and mirrors the counters upstream.
// Upstream writes are best effort: an unpaired or offline device degrades to
// a logged no-op, never an error to the caller.
type Reporter struct {
	store      remote.Store
	cache      cache.Cache
	clock      core.Clock
	logger     *slog.Logger
	deviceName string
	appVersion string

	mu           sync.Mutex
	familyID     string
	childUID     string
	sessionID    string
	sessionTitle string
	sessionStart time.Time
	active       bool
}

// NewReporter creates a viewing activity reporter.
func NewReporter(store remote.Store, cache cache.Cache, clock core.Clock, logger *slog.Logger, deviceName, appVersion string) *Reporter {
	return &Reporter{
		store:      store,
		cache:      cache,
		clock:      clock,
		logger:     logger.With("component", "reporter"),
		deviceName: deviceName,
		appVersion: appVersion,
	}
}

// Attach sets the pairing identifiers that address the upstream records.
func (r *Reporter) Attach(familyID, childUID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.familyID = familyID
	r.childUID = childUID
}

// Detach clears the pairing. Subsequent upstream writes become no-ops.
func (r *Reporter) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.familyID = ""
	r.childUID = ""
}

// StartWatchingSession records a new session. A still-open previous session is
// closed first so back-to-back videos each accrue their own time.
func (r *Reporter) StartWatchingSession(ctx context.Context, title string) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		if err := r.EndWatchingSession(ctx); err != nil {
			return err
		}
		r.mu.Lock()
	}
	now := r.clock.Now()
	sessionID := idgen.NewWatchSession()
	r.sessionID = sessionID
	r.sessionTitle = title
	r.sessionStart = now
	r.active = true
	r.mu.Unlock()

	metrics, err := r.cache.Metrics(ctx)
	if err != nil {
		return err
	}
	metrics.ResetIfNewDay(now)
	metrics.VideosWatchedToday++
	metrics.LastVideoWatched = title
	if err := r.cache.SaveMetrics(ctx, metrics); err != nil {
		return err
	}

	r.logger.Info("watching session started", "session_id", sessionID, "title", title)
	r.pushDeviceInfo(ctx, metrics, title, true)
	return nil
}

// EndWatchingSession closes the current session, credits the elapsed time to
// the counters, persists them and mirrors them upstream. Without an open
// session it is a no-op.
func (r *Reporter) EndWatchingSession(ctx context.Context) error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil
	}
	now := r.clock.Now()
	sessionID := r.sessionID
	title := r.sessionTitle
	elapsed := int(now.Sub(r.sessionStart).Minutes())
	r.active = false
	r.sessionID = ""
	r.sessionTitle = ""
	r.mu.Unlock()

	metrics, err := r.cache.Metrics(ctx)
	if err != nil {
		return err
	}
	metrics.ResetIfNewDay(now)
	metrics.TodayWatchTimeMinutes += elapsed
	metrics.WeekWatchTimeMinutes += elapsed
	metrics.TotalWatchTimeMinutes += elapsed
	metrics.LastWatchedAt = now
	if err := r.cache.SaveMetrics(ctx, metrics); err != nil {
		return err
	}

	r.logger.Info("watching session ended", "session_id", sessionID, "title", title, "minutes", elapsed)
	r.pushMetrics(ctx, metrics)
	r.pushDeviceInfo(ctx, metrics, "", true)
	return nil
}

// OnAppForeground marks the device online upstream.
func (r *Reporter) OnAppForeground(ctx context.Context) error {
	metrics, err := r.cache.Metrics(ctx)
	if err != nil {
		return err
	}
	metrics.ResetIfNewDay(r.clock.Now())
	r.pushDeviceInfo(ctx, metrics, r.currentTitle(), true)
	return nil
}

// OnAppBackground force-closes any open session and marks the device offline.
func (r *Reporter) OnAppBackground(ctx context.Context) error {
	if err := r.EndWatchingSession(ctx); err != nil {
		return err
	}
	metrics, err := r.cache.Metrics(ctx)
	if err != nil {
		return err
	}
	r.pushDeviceInfo(ctx, metrics, "", false)
	return nil
}

// CurrentlyWatching returns the open session's title, empty when idle.
func (r *Reporter) CurrentlyWatching() string {
	return r.currentTitle()
}

func (r *Reporter) currentTitle() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return ""
	}
	return r.sessionTitle
}

func (r *Reporter) pairing() (string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.familyID, r.childUID, r.familyID != ""
}

// pushMetrics mirrors the counters to children/{uid}/metrics. Best effort.
func (r *Reporter) pushMetrics(ctx context.Context, m *core.ViewingMetrics) {
	familyID, childUID, ok := r.pairing()
	if !ok {
		r.logger.Debug("metrics push skipped, not paired")
		return
	}

	fields := map[string]any{
		"todayWatchTimeMinutes": m.TodayWatchTimeMinutes,
		"weekWatchTimeMinutes":  m.WeekWatchTimeMinutes,
		"totalWatchTimeMinutes": m.TotalWatchTimeMinutes,
		"videosWatchedToday":    m.VideosWatchedToday,
		"lastWatchDate":         m.LastWatchDate,
		"lastVideoWatched":      m.LastVideoWatched,
	}
	if !m.LastWatchedAt.IsZero() {
		fields["lastWatchedAt"] = m.LastWatchedAt.UnixMilli()
	}

	if err := r.store.Update(ctx, remote.MetricsPath(familyID, childUID), fields); err != nil {
		r.logger.Warn("failed to push metrics upstream", "error", err)
	}
}

// pushDeviceInfo mirrors the live status record. Best effort.
func (r *Reporter) pushDeviceInfo(ctx context.Context, m *core.ViewingMetrics, currentlyWatching string, online bool) {
	familyID, childUID, ok := r.pairing()
	if !ok {
		r.logger.Debug("device info push skipped, not paired")
		return
	}

	fields := map[string]any{
		"deviceName":        r.deviceName,
		"appVersion":        r.appVersion,
		"lastSeen":          r.clock.Now().UnixMilli(),
		"isOnline":          online,
		"currentlyWatching": currentlyWatching,
		"todayWatchTime":    m.TodayWatchTimeMinutes,
	}

	if err := r.store.Update(ctx, remote.DeviceInfoPath(familyID, childUID), fields); err != nil {
		r.logger.Warn("failed to push device info upstream", "error", err)
	}
}
