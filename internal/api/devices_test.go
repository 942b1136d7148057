package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestGetDeviceStateAbsent(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/devices/vend-404/state")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for unknown device", resp.StatusCode)
	}

	var body deviceStateResponse
	decodeBody(t, resp, &body)
	if body.State != nil {
		t.Errorf("state = %v, want null", body.State)
	}
	if body.DeviceID != "vend-404" {
		t.Errorf("device_id = %s, want vend-404", body.DeviceID)
	}
}

func TestGetDeviceStatePresent(t *testing.T) {
	env := newTestEnv(t)
	env.store.Put("vend-001", map[string]any{"door": "open", "stock": float64(7)}, time.Now())
	ts := env.httpServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/devices/vend-001/state")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body deviceStateResponse
	decodeBody(t, resp, &body)
	if body.State["door"] != "open" {
		t.Errorf("state.door = %v, want open", body.State["door"])
	}
	if body.UpdatedAt == nil {
		t.Error("updated_at missing for known device")
	}
}

func TestSendCommandSetOutput(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/devices/vend-001/commands", map[string]any{
		"kind":   "set_output",
		"output": "on",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if string(env.pub.payload) != `{"output":"on"}` {
		t.Errorf("published payload = %s", env.pub.payload)
	}
}

func TestSendCommandRunActuatorDefaults(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/devices/vend-001/commands", map[string]any{
		"kind":      "run_actuator",
		"direction": "forward",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var wire struct {
		DurationMs int    `json:"durationMs"`
		Direction  string `json:"direction"`
	}
	if err := json.Unmarshal(env.pub.payload, &wire); err != nil {
		t.Fatalf("published payload not JSON: %v", err)
	}
	if wire.DurationMs != 5000 {
		t.Errorf("durationMs = %d, want default 5000", wire.DurationMs)
	}
}

func TestSendCommandRunActuatorExplicitDuration(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	// An explicit zero or negative duration reaches the device untouched;
	// only a missing duration takes the default.
	for _, durationMs := range []int{0, -250, 1500} {
		resp := postJSON(t, ts.URL+"/api/v1/devices/vend-001/commands", map[string]any{
			"kind":        "run_actuator",
			"duration_ms": durationMs,
			"direction":   "reverse",
		})
		resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("duration %d: status = %d, want 202", durationMs, resp.StatusCode)
		}

		var wire struct {
			DurationMs int `json:"durationMs"`
		}
		if err := json.Unmarshal(env.pub.payload, &wire); err != nil {
			t.Fatalf("published payload not JSON: %v", err)
		}
		if wire.DurationMs != durationMs {
			t.Errorf("wire durationMs = %d, want %d", wire.DurationMs, durationMs)
		}
	}
}

func TestSendCommandValidationError(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/devices/vend-001/commands", map[string]any{
		"kind":   "set_output",
		"output": "blink",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var body Error
	decodeBody(t, resp, &body)
	if body.Field != "output" {
		t.Errorf("error field = %s, want output", body.Field)
	}
	if env.pub.payload != nil {
		t.Error("command published despite validation failure")
	}
}

func TestSendCommandTransportError(t *testing.T) {
	env := newTestEnv(t)
	env.pub.err = errors.New("broker unreachable")
	ts := env.httpServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/devices/vend-001/commands", map[string]any{
		"kind":   "set_output",
		"output": "off",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}

	var body Error
	decodeBody(t, resp, &body)
	if !strings.Contains(body.Message, "broker unreachable") {
		t.Errorf("error message = %q, want underlying failure included", body.Message)
	}
}

func TestSendCommandMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/devices/vend-001/commands", "application/json",
		bytes.NewReader([]byte(`{not json`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestResolveEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"known code", "/api/v1/resolve/VX12", http.StatusOK},
		{"lowercase code", "/api/v1/resolve/vx12", http.StatusOK},
		{"unknown code", "/api/v1/resolve/ZZ99", http.StatusNotFound},
		{"bad signature", "/api/v1/resolve/VX12?sig=deadbeef", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestResolveReturnsDeviceID(t *testing.T) {
	env := newTestEnv(t)
	ts := env.httpServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/resolve/vx12")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body resolveResponse
	decodeBody(t, resp, &body)
	if body.DeviceID != "vend-001" {
		t.Errorf("device_id = %s, want vend-001", body.DeviceID)
	}
	if body.Code != "VX12" {
		t.Errorf("code = %s, want normalised VX12", body.Code)
	}
}
