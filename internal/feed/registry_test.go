package feed

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vendlink/vendlink-core/internal/state"
)

// stubSource is a SnapshotSource backed by a plain map.
type stubSource struct {
	mu     sync.Mutex
	states map[string]state.Snapshot
}

func newStubSource() *stubSource {
	return &stubSource{states: make(map[string]state.Snapshot)}
}

func (s *stubSource) set(deviceID string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[deviceID] = state.Snapshot{Payload: payload, UpdatedAt: time.Now()}
}

func (s *stubSource) Get(deviceID string) (state.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.states[deviceID]
	return snap, ok
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: kind=%s device=%s", ev.Kind, ev.DeviceID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistryRegisterIdempotent(t *testing.T) {
	r := NewRegistry(nil, 4)
	h := newHandle("vend-001", 4)

	r.Register("vend-001", h)
	r.Register("vend-001", h)

	if got := r.SubscriberCount("vend-001"); got != 1 {
		t.Errorf("SubscriberCount = %d, want 1", got)
	}
}

func TestRegistryUnregisterUnknownHandleIsNoop(t *testing.T) {
	r := NewRegistry(nil, 4)

	r.Unregister("vend-001", newHandle("vend-001", 4))

	h := newHandle("vend-001", 4)
	r.Register("vend-001", h)
	r.Unregister("vend-001", newHandle("vend-001", 4))

	if got := r.SubscriberCount("vend-001"); got != 1 {
		t.Errorf("SubscriberCount = %d, want 1", got)
	}
}

func TestRegistryEmptyEntryRemoved(t *testing.T) {
	r := NewRegistry(nil, 4)
	h := newHandle("vend-001", 4)

	r.Register("vend-001", h)
	if got := r.WatchedDevices(); got != 1 {
		t.Fatalf("WatchedDevices = %d, want 1", got)
	}

	r.Unregister("vend-001", h)
	if got := r.WatchedDevices(); got != 0 {
		t.Errorf("WatchedDevices = %d, want 0", got)
	}
}

func TestRegistryBroadcastReachesAllHandles(t *testing.T) {
	r := NewRegistry(nil, 4)
	h1 := newHandle("vend-001", 4)
	h2 := newHandle("vend-001", 4)
	r.Register("vend-001", h1)
	r.Register("vend-001", h2)

	r.Broadcast("vend-001", Event{Kind: EventUpdate, DeviceID: "vend-001"})

	for i, h := range []*Handle{h1, h2} {
		ev := recvEvent(t, h.events)
		if ev.Kind != EventUpdate {
			t.Errorf("handle %d: Kind = %s, want update", i, ev.Kind)
		}
	}
}

func TestRegistryBroadcastIsolatedPerDevice(t *testing.T) {
	r := NewRegistry(nil, 4)
	ha := newHandle("vend-a", 4)
	hb := newHandle("vend-b", 4)
	r.Register("vend-a", ha)
	r.Register("vend-b", hb)

	r.Broadcast("vend-a", Event{Kind: EventUpdate, DeviceID: "vend-a"})

	ev := recvEvent(t, ha.events)
	if ev.DeviceID != "vend-a" {
		t.Errorf("DeviceID = %s, want vend-a", ev.DeviceID)
	}
	assertNoEvent(t, hb.events)
}

func TestRegistryBroadcastUnknownDevice(t *testing.T) {
	r := NewRegistry(nil, 4)
	r.Broadcast("vend-missing", Event{Kind: EventUpdate, DeviceID: "vend-missing"})
}

func TestRegistrySlowHandleSkipsOthersDeliver(t *testing.T) {
	r := NewRegistry(nil, 4)
	slow := newHandle("vend-001", 1)
	fast := newHandle("vend-001", 8)
	r.Register("vend-001", slow)
	r.Register("vend-001", fast)

	for i := 0; i < 5; i++ {
		r.Broadcast("vend-001", Event{
			Kind:     EventUpdate,
			DeviceID: "vend-001",
			Payload:  map[string]any{"seq": i},
		})
	}

	for i := 0; i < 5; i++ {
		recvEvent(t, fast.events)
	}
	if got := slow.Skipped(); got != 4 {
		t.Errorf("slow handle Skipped = %d, want 4", got)
	}
	if got := r.SubscriberCount("vend-001"); got != 2 {
		t.Errorf("SubscriberCount = %d, want 2 (slow handle must stay registered)", got)
	}
}

func TestRegistryConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(nil, 4)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			deviceID := fmt.Sprintf("vend-%03d", g%2)
			for i := 0; i < 200; i++ {
				h := newHandle(deviceID, 1)
				r.Register(deviceID, h)
				r.Broadcast(deviceID, Event{Kind: EventUpdate, DeviceID: deviceID})
				r.Unregister(deviceID, h)
			}
		}(g)
	}
	wg.Wait()

	if got := r.TotalSubscribers(); got != 0 {
		t.Errorf("TotalSubscribers = %d, want 0", got)
	}
	if got := r.WatchedDevices(); got != 0 {
		t.Errorf("WatchedDevices = %d, want 0", got)
	}
}
