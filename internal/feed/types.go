package feed

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes the initial snapshot from live updates so feed
// transports (SSE, WebSocket) can label them for clients.
type EventKind string

const (
	// EventSnapshot is the current state delivered once when a session opens.
	EventSnapshot EventKind = "snapshot"

	// EventUpdate is a live state change broadcast after the snapshot.
	EventUpdate EventKind = "update"
)

// Event is one state delivery to a feed session.
type Event struct {
	Kind      EventKind
	DeviceID  string
	Payload   map[string]any
	UpdatedAt time.Time
}

// Handle is one registered output sink, owned by exactly one session and
// bound to exactly one device. A handle is never reused after removal.
//
// Delivery is a buffered channel written by the registry's broadcast path and
// drained by the session owner's goroutine. This isolates a slow observer:
// when the buffer is full further events are skipped for this handle only,
// and the broadcast path never blocks.
type Handle struct {
	id       string
	deviceID string
	events   chan Event
	done     chan struct{}

	// skipped counts events dropped because the buffer was full.
	skipped atomic.Uint64
}

func newHandle(deviceID string, bufferSize int) *Handle {
	return &Handle{
		id:       uuid.NewString(),
		deviceID: deviceID,
		events:   make(chan Event, bufferSize),
		done:     make(chan struct{}),
	}
}

// ID returns the handle's unique identifier, for logging.
func (h *Handle) ID() string {
	return h.id
}

// enqueue attempts a non-blocking delivery to the handle's buffer.
// Returns false when the handle is done or its buffer is full; the caller
// must not retry or block - cleanup is the owning session's business.
func (h *Handle) enqueue(ev Event) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.events <- ev:
		return true
	default:
		h.skipped.Add(1)
		return false
	}
}

// Skipped returns how many events were dropped for this handle because its
// observer could not keep up.
func (h *Handle) Skipped() uint64 {
	return h.skipped.Load()
}
