package feed

import (
	"sync"
	"testing"
	"time"
)

func TestOpenRejectsBlankDeviceID(t *testing.T) {
	r := NewRegistry(newStubSource(), 4)

	for _, id := range []string{"", "   ", "\t"} {
		if _, err := r.Open(id); err != ErrInvalidDeviceID {
			t.Errorf("Open(%q) error = %v, want ErrInvalidDeviceID", id, err)
		}
	}
}

func TestSessionSnapshotPrecedesUpdates(t *testing.T) {
	src := newStubSource()
	src.set("vend-001", map[string]any{"door": "closed", "stock": float64(12)})
	r := NewRegistry(src, 8)

	s, err := r.Open("vend-001")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	r.Broadcast("vend-001", Event{
		Kind:     EventUpdate,
		DeviceID: "vend-001",
		Payload:  map[string]any{"door": "open"},
	})

	first := recvEvent(t, s.Events())
	if first.Kind != EventSnapshot {
		t.Fatalf("first event Kind = %s, want snapshot", first.Kind)
	}
	if first.Payload["door"] != "closed" {
		t.Errorf("snapshot door = %v, want closed", first.Payload["door"])
	}

	second := recvEvent(t, s.Events())
	if second.Kind != EventUpdate {
		t.Fatalf("second event Kind = %s, want update", second.Kind)
	}
	if second.Payload["door"] != "open" {
		t.Errorf("update door = %v, want open", second.Payload["door"])
	}
}

func TestSessionNoSnapshotForUnknownDevice(t *testing.T) {
	r := NewRegistry(newStubSource(), 4)

	s, err := r.Open("vend-404")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	assertNoEvent(t, s.Events())

	r.Broadcast("vend-404", Event{Kind: EventUpdate, DeviceID: "vend-404"})
	if ev := recvEvent(t, s.Events()); ev.Kind != EventUpdate {
		t.Errorf("Kind = %s, want update", ev.Kind)
	}
}

func TestSessionLifecycleStates(t *testing.T) {
	r := NewRegistry(newStubSource(), 4)

	s, err := r.Open("vend-001")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.State(); got != StateActive {
		t.Errorf("State after open = %s, want active", got)
	}

	s.Close()
	if got := s.State(); got != StateClosed {
		t.Errorf("State after close = %s, want closed", got)
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	r := NewRegistry(newStubSource(), 4)

	s, err := r.Open("vend-001")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
	s.Close()

	if got := r.SubscriberCount("vend-001"); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done channel not closed after Close")
	}
}

func TestSessionNoEventsAfterClose(t *testing.T) {
	r := NewRegistry(newStubSource(), 4)

	s, err := r.Open("vend-001")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	r.Broadcast("vend-001", Event{Kind: EventUpdate, DeviceID: "vend-001"})
	assertNoEvent(t, s.Events())
}

func TestSessionStateString(t *testing.T) {
	tests := []struct {
		state SessionState
		want  string
	}{
		{StateOpening, "opening"},
		{StateActive, "active"},
		{StateClosed, "closed"},
		{SessionState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String(%d) = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestSessionSkippedCount(t *testing.T) {
	r := NewRegistry(newStubSource(), 1)

	s, err := r.Open("vend-001")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		r.Broadcast("vend-001", Event{Kind: EventUpdate, DeviceID: "vend-001"})
	}
	if got := s.Skipped(); got != 2 {
		t.Errorf("Skipped = %d, want 2", got)
	}
}

func TestSessionSnapshotAfterConcurrentUpdates(t *testing.T) {
	src := newStubSource()
	src.set("vend-001", map[string]any{"seq": 0})
	r := NewRegistry(src, 32)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		seq := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			seq++
			src.set("vend-001", map[string]any{"seq": seq})
			r.Broadcast("vend-001", Event{
				Kind:      EventUpdate,
				DeviceID:  "vend-001",
				Payload:   map[string]any{"seq": seq},
				UpdatedAt: time.Now(),
			})
		}
	}()

	for i := 0; i < 20; i++ {
		s, err := r.Open("vend-001")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		first := recvEvent(t, s.Events())
		if first.Kind != EventSnapshot {
			t.Fatalf("iteration %d: first event Kind = %s, want snapshot", i, first.Kind)
		}
		s.Close()
	}

	close(stop)
	wg.Wait()
}
