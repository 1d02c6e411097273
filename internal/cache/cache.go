// Package cache defines the durable local store for the last-synchronized
// restriction settings, so enforcement keeps working while the device is
// offline. RemoteSettingsSync is the only writer of settings records; the
// reporter owns the viewing metrics record.
package cache

import (
	"context"

	"vigil/internal/core"
)

// Cache is the interface for enforcement state persistence.
type Cache interface {
	// ReplaceSettings applies one sync pass atomically: global settings and
	// (when present in the snapshot) device overrides are upserted, and the
	// schedule set is replaced wholesale — ids absent from the given slice
	// are deleted. Readers never observe a partially applied pass.
	ReplaceSettings(ctx context.Context, global *core.GlobalSettings, overrides *core.DeviceOverrides, schedules []core.Schedule) error

	// SetDeviceRevoked updates only the revocation flag.
	SetDeviceRevoked(ctx context.Context, revoked bool) error

	// EnforcementSettings assembles the derived read-only aggregate. Populated
	// is false until the first ReplaceSettings has been persisted.
	EnforcementSettings(ctx context.Context) (*core.EnforcementSettings, error)

	// Metrics returns the locally owned viewing counters, zero-valued on
	// first access.
	Metrics(ctx context.Context) (*core.ViewingMetrics, error)

	// SaveMetrics persists the viewing counters.
	SaveMetrics(ctx context.Context, metrics *core.ViewingMetrics) error

	// Lifecycle
	Close() error
}
