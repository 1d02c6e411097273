// Package sqlite implements cache.Cache using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vigil/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteCache implements cache.Cache using SQLite
type SQLiteCache struct {
	db *sql.DB
}

// New creates a new SQLite cache instance
func New(dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &SQLiteCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return c, nil
}

// migrate creates the database schema
func (c *SQLiteCache) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS global_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			app_enabled INTEGER NOT NULL,
			soft_off_enabled INTEGER NOT NULL,
			updated_at DATETIME,
			last_synced_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS device_overrides (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			app_enabled INTEGER,
			max_viewing_minutes INTEGER,
			allowed_collections TEXT,
			is_revoked INTEGER NOT NULL DEFAULT 0,
			last_synced_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			days_of_week TEXT,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			max_viewing_minutes INTEGER,
			allowed_collections TEXT,
			blocked_videos TEXT,
			allowed_videos TEXT,
			applies_to_devices TEXT,
			is_active INTEGER NOT NULL,
			last_synced_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS viewing_metrics (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			today_minutes INTEGER NOT NULL DEFAULT 0,
			week_minutes INTEGER NOT NULL DEFAULT 0,
			total_minutes INTEGER NOT NULL DEFAULT 0,
			videos_today INTEGER NOT NULL DEFAULT 0,
			last_watch_date TEXT NOT NULL DEFAULT '',
			last_video_watched TEXT NOT NULL DEFAULT '',
			last_watched_at DATETIME
		);
	`

	_, err := c.db.Exec(schema)
	return err
}

// ReplaceSettings applies one sync pass in a single transaction so a
// concurrent enforcement check never observes a half-applied pass.
func (c *SQLiteCache) ReplaceSettings(ctx context.Context, global *core.GlobalSettings, overrides *core.DeviceOverrides, schedules []core.Schedule) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if global != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO global_settings (id, app_enabled, soft_off_enabled, updated_at, last_synced_at)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				app_enabled = excluded.app_enabled,
				soft_off_enabled = excluded.soft_off_enabled,
				updated_at = excluded.updated_at,
				last_synced_at = excluded.last_synced_at
		`, global.AppEnabled, global.SoftOffEnabled, nullTime(global.UpdatedAt), global.LastSyncedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert global settings: %w", err)
		}
	}

	if overrides != nil {
		// is_revoked is owned by SetDeviceRevoked; a settings pass carries no
		// revocation data and must leave the flag exactly as it stands.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO device_overrides (id, app_enabled, max_viewing_minutes, allowed_collections, is_revoked, last_synced_at)
			VALUES (1, ?, ?, ?, COALESCE((SELECT is_revoked FROM device_overrides WHERE id = 1), 0), ?)
			ON CONFLICT(id) DO UPDATE SET
				app_enabled = excluded.app_enabled,
				max_viewing_minutes = excluded.max_viewing_minutes,
				allowed_collections = excluded.allowed_collections,
				last_synced_at = excluded.last_synced_at
		`, nullBoolPtr(overrides.AppEnabled), nullIntPtr(overrides.MaxViewingMinutes),
			marshalStrings(overrides.AllowedCollections), overrides.LastSyncedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert device overrides: %w", err)
		}
	}

	if schedules != nil {
		seen := make([]any, 0, len(schedules))
		placeholders := ""
		for i := range schedules {
			s := &schedules[i]
			days, _ := json.Marshal(s.DaysOfWeek)
			_, err = tx.ExecContext(ctx, `
				INSERT INTO schedules (id, label, days_of_week, start_time, end_time, max_viewing_minutes,
					allowed_collections, blocked_videos, allowed_videos, applies_to_devices, is_active, last_synced_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					label = excluded.label,
					days_of_week = excluded.days_of_week,
					start_time = excluded.start_time,
					end_time = excluded.end_time,
					max_viewing_minutes = excluded.max_viewing_minutes,
					allowed_collections = excluded.allowed_collections,
					blocked_videos = excluded.blocked_videos,
					allowed_videos = excluded.allowed_videos,
					applies_to_devices = excluded.applies_to_devices,
					is_active = excluded.is_active,
					last_synced_at = excluded.last_synced_at
			`, s.ID, s.Label, string(days), s.StartTime, s.EndTime, nullIntPtr(s.MaxViewingMinutes),
				marshalStrings(s.AllowedCollections), marshalStrings(s.BlockedVideos),
				marshalStrings(s.AllowedVideos), marshalStrings(s.AppliesToDevices),
				s.IsActive, s.LastSyncedAt)
			if err != nil {
				return fmt.Errorf("failed to upsert schedule %s: %w", s.ID, err)
			}
			seen = append(seen, s.ID)
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
		}

		// Stale ids absent from the latest pull are deleted.
		if len(seen) == 0 {
			_, err = tx.ExecContext(ctx, "DELETE FROM schedules")
		} else {
			_, err = tx.ExecContext(ctx, "DELETE FROM schedules WHERE id NOT IN ("+placeholders+")", seen...)
		}
		if err != nil {
			return fmt.Errorf("failed to delete stale schedules: %w", err)
		}
	}

	return tx.Commit()
}

// SetDeviceRevoked updates only the revocation flag.
func (c *SQLiteCache) SetDeviceRevoked(ctx context.Context, revoked bool) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO device_overrides (id, is_revoked, last_synced_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_revoked = excluded.is_revoked,
			last_synced_at = excluded.last_synced_at
	`, revoked, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set revocation flag: %w", err)
	}
	return nil
}

// EnforcementSettings assembles the derived aggregate from the cached rows.
func (c *SQLiteCache) EnforcementSettings(ctx context.Context) (*core.EnforcementSettings, error) {
	settings := &core.EnforcementSettings{}

	row := c.db.QueryRowContext(ctx, `
		SELECT app_enabled, soft_off_enabled, updated_at, last_synced_at
		FROM global_settings WHERE id = 1
	`)
	var updatedAt sql.NullTime
	err := row.Scan(&settings.Global.AppEnabled, &settings.Global.SoftOffEnabled,
		&updatedAt, &settings.Global.LastSyncedAt)
	switch {
	case err == sql.ErrNoRows:
		// Never synced: fail open.
	case err != nil:
		return nil, fmt.Errorf("failed to read global settings: %w", err)
	default:
		settings.Populated = true
		settings.Global.UpdatedAt = updatedAt.Time
	}

	row = c.db.QueryRowContext(ctx, `
		SELECT app_enabled, max_viewing_minutes, allowed_collections, is_revoked, last_synced_at
		FROM device_overrides WHERE id = 1
	`)
	var (
		appEnabled  sql.NullBool
		maxMinutes  sql.NullInt64
		collections sql.NullString
	)
	err = row.Scan(&appEnabled, &maxMinutes, &collections,
		&settings.Device.IsRevoked, &settings.Device.LastSyncedAt)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to read device overrides: %w", err)
	default:
		// A standalone revocation update also marks the state populated: a
		// revoked device must block even if no full sync ever completed.
		settings.Populated = settings.Populated || settings.Device.IsRevoked
		if appEnabled.Valid {
			v := appEnabled.Bool
			settings.Device.AppEnabled = &v
		}
		if maxMinutes.Valid {
			v := int(maxMinutes.Int64)
			settings.Device.MaxViewingMinutes = &v
		}
		settings.Device.AllowedCollections = unmarshalStrings(collections)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, label, days_of_week, start_time, end_time, max_viewing_minutes,
			allowed_collections, blocked_videos, allowed_videos, applies_to_devices,
			is_active, last_synced_at
		FROM schedules ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s                                    core.Schedule
			days, allowed, blocked, videos, devs sql.NullString
			maxView                              sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Label, &days, &s.StartTime, &s.EndTime, &maxView,
			&allowed, &blocked, &videos, &devs, &s.IsActive, &s.LastSyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		if days.Valid {
			json.Unmarshal([]byte(days.String), &s.DaysOfWeek)
		}
		if maxView.Valid {
			v := int(maxView.Int64)
			s.MaxViewingMinutes = &v
		}
		s.AllowedCollections = unmarshalStrings(allowed)
		s.BlockedVideos = unmarshalStrings(blocked)
		s.AllowedVideos = unmarshalStrings(videos)
		s.AppliesToDevices = unmarshalStrings(devs)
		settings.Schedules = append(settings.Schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}

	settings.LastSyncedAt = maxTime(settings.Global.LastSyncedAt, settings.Device.LastSyncedAt)
	for i := range settings.Schedules {
		settings.LastSyncedAt = maxTime(settings.LastSyncedAt, settings.Schedules[i].LastSyncedAt)
	}

	return settings, nil
}

// Metrics returns the viewing counters, zero-valued before the first save.
func (c *SQLiteCache) Metrics(ctx context.Context) (*core.ViewingMetrics, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT today_minutes, week_minutes, total_minutes, videos_today,
			last_watch_date, last_video_watched, last_watched_at
		FROM viewing_metrics WHERE id = 1
	`)

	m := &core.ViewingMetrics{}
	var lastWatchedAt sql.NullTime
	err := row.Scan(&m.TodayWatchTimeMinutes, &m.WeekWatchTimeMinutes, &m.TotalWatchTimeMinutes,
		&m.VideosWatchedToday, &m.LastWatchDate, &m.LastVideoWatched, &lastWatchedAt)
	if err == sql.ErrNoRows {
		return &core.ViewingMetrics{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read viewing metrics: %w", err)
	}
	m.LastWatchedAt = lastWatchedAt.Time
	return m, nil
}

// SaveMetrics persists the viewing counters.
func (c *SQLiteCache) SaveMetrics(ctx context.Context, m *core.ViewingMetrics) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO viewing_metrics (id, today_minutes, week_minutes, total_minutes,
			videos_today, last_watch_date, last_video_watched, last_watched_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			today_minutes = excluded.today_minutes,
			week_minutes = excluded.week_minutes,
			total_minutes = excluded.total_minutes,
			videos_today = excluded.videos_today,
			last_watch_date = excluded.last_watch_date,
			last_video_watched = excluded.last_video_watched,
			last_watched_at = excluded.last_watched_at
	`, m.TodayWatchTimeMinutes, m.WeekWatchTimeMinutes, m.TotalWatchTimeMinutes,
		m.VideosWatchedToday, m.LastWatchDate, m.LastVideoWatched, nullTime(m.LastWatchedAt))
	if err != nil {
		return fmt.Errorf("failed to save viewing metrics: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func marshalStrings(values []string) sql.NullString {
	if values == nil {
		return sql.NullString{}
	}
	b, _ := json.Marshal(values)
	return sql.NullString{String: string(b), Valid: true}
}

func unmarshalStrings(s sql.NullString) []string {
	if !s.Valid {
		return nil
	}
	var out []string
	json.Unmarshal([]byte(s.String), &out)
	return out
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullBoolPtr(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullIntPtr(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
