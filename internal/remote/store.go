// Package remote abstracts the push-capable hierarchical key/value store the
// parent writes restriction state into. Implementations: Firebase Realtime
// Database and an in-memory store for tests and offline development.
package remote

import (
	"context"
	"time"
)

// Store is the minimal surface the sync components need. Subscribe delivers
// the current snapshot of a subtree whenever it changes; PullOnce reads it on
// demand for background reconciliation.
type Store interface {
	Subscribe(ctx context.Context, path string, onChange func(Snapshot)) (Subscription, error)
	PullOnce(ctx context.Context, path string) (Snapshot, error)
	Put(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, values map[string]any) error
	Delete(ctx context.Context, path string) error
}

// Subscription is a handle for an active change listener.
type Subscription interface {
	Unsubscribe()
}

// Snapshot wraps one decoded subtree value. Values follow JSON decoding
// conventions: map[string]any for branches, float64 for numbers. The typed
// accessors are tolerant of missing or malformed fields and fall back to the
// caller's default, which is how malformed remote commands degrade.
type Snapshot struct {
	value any
}

// NewSnapshot wraps a decoded value.
func NewSnapshot(value any) Snapshot {
	return Snapshot{value: value}
}

// Exists reports whether the snapshot holds any value.
func (s Snapshot) Exists() bool {
	return s.value != nil
}

// Value returns the raw decoded value.
func (s Snapshot) Value() any {
	return s.value
}

// Child returns the named child branch, or an empty snapshot.
func (s Snapshot) Child(key string) Snapshot {
	m, ok := s.value.(map[string]any)
	if !ok {
		return Snapshot{}
	}
	return Snapshot{value: m[key]}
}

// Children returns all child branches of a map snapshot.
func (s Snapshot) Children() map[string]Snapshot {
	m, ok := s.value.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]Snapshot, len(m))
	for k, v := range m {
		out[k] = Snapshot{value: v}
	}
	return out
}

// AsString returns the snapshot as a string, or def.
func (s Snapshot) AsString(def string) string {
	if v, ok := s.value.(string); ok {
		return v
	}
	return def
}

// AsBool returns the snapshot as a bool, or def.
func (s Snapshot) AsBool(def bool) bool {
	if v, ok := s.value.(bool); ok {
		return v
	}
	return def
}

// AsInt returns the snapshot as an int, or def. JSON numbers arrive as
// float64; int64 covers values round-tripped through the in-memory store.
func (s Snapshot) AsInt(def int) int {
	switch v := s.value.(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return def
}

// AsTime interprets the snapshot as milliseconds since the Unix epoch, the
// wire format for every timestamp field. Returns the zero time when absent.
func (s Snapshot) AsTime() time.Time {
	var millis int64
	switch v := s.value.(type) {
	case float64:
		millis = int64(v)
	case int64:
		millis = v
	case int:
		millis = int64(v)
	default:
		return time.Time{}
	}
	if millis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis).UTC()
}

// AsStringSlice returns the snapshot as a slice of strings, skipping
// non-string elements. Nil when absent.
func (s Snapshot) AsStringSlice() []string {
	arr, ok := s.value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if str, ok := e.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// AsIntSlice returns the snapshot as a slice of ints, skipping non-numeric
// elements. Nil when absent.
func (s Snapshot) AsIntSlice() []int {
	arr, ok := s.value.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(arr))
	for _, e := range arr {
		switch v := e.(type) {
		case float64:
			out = append(out, int(v))
		case int64:
			out = append(out, int(v))
		case int:
			out = append(out, v)
		}
	}
	return out
}

// String returns the named child as a string, or def.
func (s Snapshot) String(key, def string) string {
	return s.Child(key).AsString(def)
}

// Bool returns the named child as a bool, or def.
func (s Snapshot) Bool(key string, def bool) bool {
	return s.Child(key).AsBool(def)
}

// Int returns the named child as an int, or def.
func (s Snapshot) Int(key string, def int) int {
	return s.Child(key).AsInt(def)
}

// Time returns the named child as an epoch-millisecond timestamp.
func (s Snapshot) Time(key string) time.Time {
	return s.Child(key).AsTime()
}

// OptionalInt returns the named child as an int pointer, nil when absent.
func (s Snapshot) OptionalInt(key string) *int {
	c := s.Child(key)
	if !c.Exists() {
		return nil
	}
	v := c.AsInt(0)
	return &v
}

// OptionalBool returns the named child as a bool pointer, nil when absent.
func (s Snapshot) OptionalBool(key string) *bool {
	c := s.Child(key)
	if !c.Exists() {
		return nil
	}
	v := c.AsBool(false)
	return &v
}
