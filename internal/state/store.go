package state

import (
	"sync"
	"time"
)

// Snapshot is the last-known state of a single device: the raw payload the
// device reported plus the time the bridge applied it. The payload is
// schema-less; the bridge never interprets its fields, so new device payload
// shapes flow through without code changes.
type Snapshot struct {
	Payload   map[string]any
	UpdatedAt time.Time
}

// Store keeps the authoritative last-known state for every device that has
// ever reported. Entries are created on first report and replaced wholesale
// on every subsequent one; they are never deleted during normal operation.
//
// Conflict policy is last-write-wins in arrival order: a message that arrives
// out of order still overwrites. The broker's at-least-once delivery can
// reorder or duplicate messages and the store makes no attempt to detect
// that. Known limitation, kept deliberately simple.
//
// All methods are safe for concurrent use. A reader always observes a whole
// old snapshot or a whole new one, never a mix.
type Store struct {
	mu     sync.RWMutex
	states map[string]Snapshot
}

// NewStore creates an empty state store.
func NewStore() *Store {
	return &Store{
		states: make(map[string]Snapshot),
	}
}

// Put unconditionally replaces the stored state for a device.
//
// The payload is deep-copied on the way in, so the caller may keep mutating
// its map without affecting the stored snapshot.
func (s *Store) Put(deviceID string, payload map[string]any, at time.Time) {
	snap := Snapshot{
		Payload:   deepCopyPayload(payload),
		UpdatedAt: at,
	}

	s.mu.Lock()
	s.states[deviceID] = snap
	s.mu.Unlock()
}

// Get returns the last-known state for a device.
//
// The second return value is false when the device has never reported; that
// is an ordinary "no data yet" answer, not an error. The returned payload is
// a deep copy; callers can safely modify it.
func (s *Store) Get(deviceID string) (Snapshot, bool) {
	s.mu.RLock()
	snap, ok := s.states[deviceID]
	s.mu.RUnlock()

	if !ok {
		return Snapshot{}, false
	}
	snap.Payload = deepCopyPayload(snap.Payload)
	return snap, true
}

// Count returns the number of devices with recorded state.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Devices returns the IDs of all devices with recorded state.
// Order is unspecified.
func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	return ids
}

// deepCopyPayload recursively copies a payload map so stored snapshots and
// returned snapshots never share mutable structure with callers.
func deepCopyPayload(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyPayload(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	default:
		// Scalars (string, float64, bool, nil) are immutable
		return v
	}
}
