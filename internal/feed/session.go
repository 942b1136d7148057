package feed

import (
	"strings"
	"sync"
	"sync/atomic"
)

// SessionState reports where a session is in its lifecycle.
type SessionState int32

const (
	// StateOpening means the session is being set up: the snapshot has been
	// queued but the caller has not yet observed the session as active.
	StateOpening SessionState = iota

	// StateActive means the session is registered and receiving live updates.
	StateActive

	// StateClosed means the session has been torn down and will deliver no
	// further events.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one observer's live view of a single device.
//
// Opening a session queues the device's current snapshot (when one exists)
// ahead of any live update, so the first event drained from Events is always
// the snapshot. After that the session receives every broadcast for its
// device, subject to the slow-consumer skip policy on its handle.
//
// Close is safe to call any number of times from any goroutine; the
// underlying handle is unregistered exactly once. Every exit path of a
// session owner must call Close, typically via defer.
type Session struct {
	registry *Registry
	handle   *Handle
	deviceID string
	state    atomic.Int32
	closeOne sync.Once
}

// Open creates a session for a device and registers it for live updates.
//
// If the registry's snapshot source holds state for the device, that state is
// queued as an EventSnapshot before registration completes, guaranteeing it
// precedes any update the session can receive. A device with no stored state
// opens with an empty queue; such a session simply starts with live updates.
//
// Returns ErrInvalidDeviceID when deviceID is blank.
func (r *Registry) Open(deviceID string) (*Session, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, ErrInvalidDeviceID
	}

	h := newHandle(deviceID, r.bufferSize)
	s := &Session{
		registry: r,
		handle:   h,
		deviceID: deviceID,
	}
	s.state.Store(int32(StateOpening))

	r.register(deviceID, h, func() {
		if r.source == nil {
			return
		}
		snap, ok := r.source.Get(deviceID)
		if !ok {
			return
		}
		// Buffer size is at least 1 and the handle is not yet visible to
		// broadcasts, so this enqueue cannot fail.
		h.enqueue(Event{
			Kind:      EventSnapshot,
			DeviceID:  deviceID,
			Payload:   snap.Payload,
			UpdatedAt: snap.UpdatedAt,
		})
	})

	s.state.Store(int32(StateActive))
	r.logger.Debug("feed session opened", "device_id", deviceID, "handle", h.ID())
	return s, nil
}

// DeviceID returns the device this session observes.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Events returns the channel the session's events are delivered on. The
// channel is never closed; use Done to detect teardown.
func (s *Session) Events() <-chan Event {
	return s.handle.events
}

// Done returns a channel that is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.handle.done
}

// Skipped returns how many events this session missed because its consumer
// fell behind.
func (s *Session) Skipped() uint64 {
	return s.handle.Skipped()
}

// Close tears the session down: the handle is unregistered from the registry
// and Done is closed. Idempotent and safe under concurrent callers.
func (s *Session) Close() {
	s.closeOne.Do(func() {
		s.state.Store(int32(StateClosed))
		s.registry.Unregister(s.deviceID, s.handle)
		close(s.handle.done)
		s.registry.logger.Debug("feed session closed",
			"device_id", s.deviceID,
			"handle", s.handle.ID(),
			"skipped", s.handle.Skipped(),
		)
	})
}
