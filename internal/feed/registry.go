package feed

import (
	"sync"

	"github.com/vendlink/vendlink-core/internal/state"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SnapshotSource provides the current state for snapshot-first session opens.
// Satisfied by *state.Store.
type SnapshotSource interface {
	Get(deviceID string) (state.Snapshot, bool)
}

// Registry tracks which feed sessions are watching which device and fans
// state updates out to them.
//
// Contention is scoped per device: a global mutex guards only the entries
// map, and each entry carries its own mutex for set mutation. Operations on
// unrelated devices never serialise against each other.
//
// The registry never removes a handle on its own - not even when delivery to
// it fails. The owning session's close path is solely responsible for
// unregistering, so lifecycle decisions stay with the connection that owns
// the handle.
//
// All public methods are thread-safe.
type Registry struct {
	source     SnapshotSource
	bufferSize int
	logger     Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry is the handle set for one device.
//
// An entry whose set empties is tombstoned (dead=true) and removed from the
// map, so the registry holds no state for devices nobody watches. Register
// re-checks the tombstone under the entry lock and retries, which closes the
// race between a concurrent removal and a new registration landing in an
// orphaned entry.
type entry struct {
	mu      sync.Mutex
	handles map[*Handle]struct{}
	dead    bool
}

// NewRegistry creates a registry.
//
// Parameters:
//   - source: Snapshot provider for session opens (may be nil; sessions then
//     start with no initial snapshot)
//   - bufferSize: Per-handle event buffer size (minimum 1)
func NewRegistry(source SnapshotSource, bufferSize int) *Registry {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Registry{
		source:     source,
		bufferSize: bufferSize,
		logger:     noopLogger{},
		entries:    make(map[string]*entry),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds a handle under a device. Idempotent: registering a handle
// that is already present is a no-op.
func (r *Registry) Register(deviceID string, h *Handle) {
	r.register(deviceID, h, nil)
}

// register adds the handle, invoking prime under the entry lock immediately
// before the handle joins the set. Broadcast enqueues only to handles already
// in the set, so everything prime enqueues is ordered ahead of every later
// broadcast for this device - the snapshot-before-live guarantee.
func (r *Registry) register(deviceID string, h *Handle, prime func()) {
	for {
		e := r.entryFor(deviceID)

		e.mu.Lock()
		if e.dead {
			// Lost a race with the last unregister; the entry is gone from
			// the map. Fetch a fresh one.
			e.mu.Unlock()
			continue
		}
		if _, exists := e.handles[h]; !exists {
			if prime != nil {
				prime()
			}
			e.handles[h] = struct{}{}
		}
		e.mu.Unlock()
		return
	}
}

// entryFor returns the live entry for a device, creating it if needed.
func (r *Registry) entryFor(deviceID string) *entry {
	r.mu.RLock()
	e := r.entries[deviceID]
	r.mu.RUnlock()
	if e != nil {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.entries[deviceID]; e == nil {
		e = &entry{handles: make(map[*Handle]struct{})}
		r.entries[deviceID] = e
	}
	return e
}

// Unregister removes a handle from a device's entry. Safe to call for a
// handle that was never registered or was already removed (no-op). When the
// entry's set empties, the entry itself is removed.
func (r *Registry) Unregister(deviceID string, h *Handle) {
	r.mu.RLock()
	e := r.entries[deviceID]
	r.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	delete(e.handles, h)
	if len(e.handles) > 0 {
		e.mu.Unlock()
		return
	}
	e.dead = true
	e.mu.Unlock()

	r.mu.Lock()
	if r.entries[deviceID] == e {
		delete(r.entries, deviceID)
	}
	r.mu.Unlock()
}

// Broadcast delivers an event to every handle registered for a device at
// call time. The handle set is snapshotted under the entry lock, then events
// are enqueued without holding any lock, so one stalled observer cannot
// delay its peers or the caller.
func (r *Registry) Broadcast(deviceID string, ev Event) {
	r.mu.RLock()
	e := r.entries[deviceID]
	r.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	targets := make([]*Handle, 0, len(e.handles))
	for h := range e.handles {
		targets = append(targets, h)
	}
	e.mu.Unlock()

	for _, h := range targets {
		if !h.enqueue(ev) {
			// Slow or closing observer: skip this delivery. The handle stays
			// registered - its session decides when it is done.
			r.logger.Debug("feed event skipped",
				"device_id", deviceID,
				"handle", h.ID(),
				"skipped_total", h.Skipped(),
			)
		}
	}
}

// SubscriberCount returns the number of handles registered for a device.
func (r *Registry) SubscriberCount(deviceID string) int {
	r.mu.RLock()
	e := r.entries[deviceID]
	r.mu.RUnlock()
	if e == nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// TotalSubscribers returns the number of registered handles across all devices.
func (r *Registry) TotalSubscribers() int {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	total := 0
	for _, e := range entries {
		e.mu.Lock()
		total += len(e.handles)
		e.mu.Unlock()
	}
	return total
}

// WatchedDevices returns the number of devices with at least one subscriber.
func (r *Registry) WatchedDevices() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
