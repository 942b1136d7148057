package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vendlink/vendlink-core/internal/command"
)

// deviceStateResponse is the body for GET /devices/{id}/state.
//
// State is null when no report from the device has been seen yet; clients
// treat that as "unknown", not as an error.
type deviceStateResponse struct {
	DeviceID  string         `json:"device_id"`
	State     map[string]any `json:"state"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

// handleGetDeviceState returns the last reported state for a device.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if deviceID == "" {
		writeBadRequest(w, "device id is required")
		return
	}

	resp := deviceStateResponse{DeviceID: deviceID}
	if snap, ok := s.store.Get(deviceID); ok {
		resp.State = snap.Payload
		resp.UpdatedAt = &snap.UpdatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// commandRequest is the body for POST /devices/{id}/commands.
//
// duration_ms is a pointer so the gateway can tell an omitted duration
// (default applies) from an explicit zero or negative one (sent as-is).
type commandRequest struct {
	Kind       string `json:"kind"`
	Output     string `json:"output,omitempty"`
	DurationMs *int   `json:"duration_ms,omitempty"`
	Direction  string `json:"direction,omitempty"`
}

// commandResponse acknowledges an accepted command.
type commandResponse struct {
	DeviceID string `json:"device_id"`
	Kind     string `json:"kind"`
	Accepted bool   `json:"accepted"`
}

// handleSendCommand validates and publishes a command to a device.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if deviceID == "" {
		writeBadRequest(w, "device id is required")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ack, err := s.gateway.Send(r.Context(), command.Request{
		DeviceID:   deviceID,
		Kind:       command.Kind(req.Kind),
		Output:     req.Output,
		DurationMs: req.DurationMs,
		Direction:  req.Direction,
	})
	if err != nil {
		writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, commandResponse{
		DeviceID: ack.DeviceID,
		Kind:     string(ack.Kind),
		Accepted: true,
	})
}
