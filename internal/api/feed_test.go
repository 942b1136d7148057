package api

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vendlink/vendlink-core/internal/feed"
)

// readSSEEvent reads one event block from a text/event-stream reader,
// returning the event name and data line.
func readSSEEvent(t *testing.T, r *bufio.Reader) (name, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading SSE stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case line == "":
			if data != "" {
				return name, data
			}
		}
	}
}

func TestSSEFeedSnapshotThenUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.store.Put("vend-001", map[string]any{"door": "closed"}, time.Now())
	ts := env.httpServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/devices/vend-001/feed")
	if err != nil {
		t.Fatalf("GET feed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %s, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)

	name, data := readSSEEvent(t, reader)
	if name != "snapshot" {
		t.Fatalf("first event = %s, want snapshot", name)
	}
	if !strings.Contains(data, `"door":"closed"`) {
		t.Errorf("snapshot data = %s", data)
	}

	// Wait for the subscription before broadcasting.
	waitFor(t, func() bool { return env.registry.SubscriberCount("vend-001") == 1 })
	env.registry.Broadcast("vend-001", feed.Event{
		Kind:      feed.EventUpdate,
		DeviceID:  "vend-001",
		Payload:   map[string]any{"door": "open"},
		UpdatedAt: time.Now(),
	})

	name, data = readSSEEvent(t, reader)
	if name != "update" {
		t.Fatalf("second event = %s, want update", name)
	}
	if !strings.Contains(data, `"door":"open"`) {
		t.Errorf("update data = %s", data)
	}
}

func TestSSEFeedSessionClosedOnDisconnect(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/devices/vend-001/feed")
	if err != nil {
		t.Fatalf("GET feed: %v", err)
	}
	waitFor(t, func() bool { return env.registry.SubscriberCount("vend-001") == 1 })

	resp.Body.Close()

	waitFor(t, func() bool { return env.registry.SubscriberCount("vend-001") == 0 })
}

func TestWebSocketFeedRequiresDevice(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/ws")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without device parameter", resp.StatusCode)
	}
}

func TestWebSocketFeedSnapshotThenUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.store.Put("vend-001", map[string]any{"stock": float64(3)}, time.Now())
	ts := env.httpServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?device=vend-001"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer conn.Close()

	var first WSMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("reading first frame: %v", err)
	}
	if first.Type != "snapshot" {
		t.Fatalf("first frame type = %s, want snapshot", first.Type)
	}
	if first.State["stock"] != float64(3) {
		t.Errorf("snapshot stock = %v, want 3", first.State["stock"])
	}

	waitFor(t, func() bool { return env.registry.SubscriberCount("vend-001") == 1 })
	env.registry.Broadcast("vend-001", feed.Event{
		Kind:      feed.EventUpdate,
		DeviceID:  "vend-001",
		Payload:   map[string]any{"stock": float64(2)},
		UpdatedAt: time.Now(),
	})

	var second WSMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("reading second frame: %v", err)
	}
	if second.Type != "update" {
		t.Errorf("second frame type = %s, want update", second.Type)
	}
}

func TestWebSocketSessionClosedOnDisconnect(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?device=vend-001"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	waitFor(t, func() bool { return env.registry.SubscriberCount("vend-001") == 1 })

	conn.Close()

	waitFor(t, func() bool { return env.registry.SubscriberCount("vend-001") == 0 })
}

// waitFor polls a condition with a deadline.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
