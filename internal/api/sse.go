package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vendlink/vendlink-core/internal/feed"
)

// sseKeepAliveInterval is how often a comment line is written to hold idle
// connections open through proxies.
const sseKeepAliveInterval = 25 * time.Second

// sseEvent is the JSON body of one server-sent event.
type sseEvent struct {
	DeviceID  string         `json:"device_id"`
	State     map[string]any `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// handleDeviceFeed streams a device's state over server-sent events.
//
// The first event is always the stored snapshot when one exists; updates
// follow in arrival order. The stream ends when the client disconnects or
// the server shuts down, and the feed session is closed on every exit path.
func (s *Server) handleDeviceFeed(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if deviceID == "" {
		writeBadRequest(w, "device id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w, "streaming not supported")
		return
	}

	session, err := s.registry.Open(deviceID)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}
	defer session.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debug("sse feed opened", "device_id", deviceID)

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse feed client disconnected", "device_id", deviceID)
			return
		case <-s.done():
			return
		case ev := <-session.Events():
			if err := writeSSE(w, ev); err != nil {
				s.logger.Debug("sse write failed", "device_id", deviceID, "error", err)
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes one event in text/event-stream framing, using the event
// kind as the SSE event name.
func writeSSE(w http.ResponseWriter, ev feed.Event) error {
	data, err := json.Marshal(sseEvent{
		DeviceID:  ev.DeviceID,
		State:     ev.Payload,
		UpdatedAt: ev.UpdatedAt,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
