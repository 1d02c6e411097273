package remote

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store with push notifications. It backs tests
// and the agent's offline development mode.
type MemoryStore struct {
	mu      sync.Mutex
	root    map[string]any
	subs    map[int]*memorySubscription
	nextSub int
}

type memorySubscription struct {
	store    *MemoryStore
	id       int
	path     []string
	onChange func(Snapshot)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root: make(map[string]any),
		subs: make(map[int]*memorySubscription),
	}
}

// Subscribe registers a change listener on a subtree. The callback fires
// after every mutation touching the subtree, with the subtree's current
// snapshot; it is invoked without internal locks held.
func (s *MemoryStore) Subscribe(_ context.Context, path string, onChange func(Snapshot)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &memorySubscription{
		store:    s,
		id:       s.nextSub,
		path:     splitPath(path),
		onChange: onChange,
	}
	s.nextSub++
	s.subs[sub.id] = sub
	return sub, nil
}

func (sub *memorySubscription) Unsubscribe() {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	delete(sub.store.subs, sub.id)
}

// PullOnce returns the current snapshot of a subtree.
func (s *MemoryStore) PullOnce(_ context.Context, path string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewSnapshot(deepCopy(s.get(splitPath(path)))), nil
}

// Put replaces the value at path.
func (s *MemoryStore) Put(_ context.Context, path string, value any) error {
	segments := splitPath(path)
	s.mu.Lock()
	s.set(segments, normalize(value))
	notify := s.pendingNotifications(segments)
	s.mu.Unlock()

	deliver(notify)
	return nil
}

// Update merges the given fields into the node at path.
func (s *MemoryStore) Update(_ context.Context, path string, values map[string]any) error {
	segments := splitPath(path)
	s.mu.Lock()
	node, ok := s.get(segments).(map[string]any)
	if !ok {
		node = make(map[string]any)
	}
	for k, v := range values {
		node[k] = normalize(v)
	}
	s.set(segments, node)
	notify := s.pendingNotifications(segments)
	s.mu.Unlock()

	deliver(notify)
	return nil
}

// Delete removes the node at path.
func (s *MemoryStore) Delete(_ context.Context, path string) error {
	segments := splitPath(path)
	s.mu.Lock()
	s.delete(segments)
	notify := s.pendingNotifications(segments)
	s.mu.Unlock()

	deliver(notify)
	return nil
}

type notification struct {
	fn   func(Snapshot)
	snap Snapshot
}

// pendingNotifications collects the callbacks affected by a mutation at the
// given path: every subscriber whose subtree contains the path or is
// contained by it. Must be called with the lock held.
func (s *MemoryStore) pendingNotifications(changed []string) []notification {
	var out []notification
	for _, sub := range s.subs {
		if pathsOverlap(sub.path, changed) {
			out = append(out, notification{
				fn:   sub.onChange,
				snap: NewSnapshot(deepCopy(s.get(sub.path))),
			})
		}
	}
	return out
}

func deliver(notify []notification) {
	for _, n := range notify {
		n.fn(n.snap)
	}
}

func pathsOverlap(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func (s *MemoryStore) get(segments []string) any {
	var current any = s.root
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[seg]
	}
	return current
}

func (s *MemoryStore) set(segments []string, value any) {
	node := s.root
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

func (s *MemoryStore) delete(segments []string) {
	node := s.root
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			return
		}
		node = child
	}
	delete(node, segments[len(segments)-1])
}

// normalize converts written values to the shapes a JSON decode would
// produce, so both store implementations look identical to parsers.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	case []int:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = float64(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

var _ Store = (*MemoryStore)(nil)
