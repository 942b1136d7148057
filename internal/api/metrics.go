package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Feed          FeedMetrics    `json:"feed"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// FeedMetrics contains live feed statistics.
type FeedMetrics struct {
	Sessions       int `json:"sessions"`
	WatchedDevices int `json:"watched_devices"`
}

// MQTTMetrics contains broker connection statistics.
type MQTTMetrics struct {
	Connected      bool   `json:"connected"`
	DroppedReports uint64 `json:"dropped_reports"`
}

// DeviceMetrics contains state store statistics.
type DeviceMetrics struct {
	Known int `json:"known"`
}

// handleMetrics returns system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Feed: FeedMetrics{
			Sessions:       s.registry.TotalSubscribers(),
			WatchedDevices: s.registry.WatchedDevices(),
		},
		Devices: DeviceMetrics{
			Known: s.store.Count(),
		},
	}

	if s.bridge != nil {
		metrics.MQTT = MQTTMetrics{
			Connected:      s.bridge.Connected(),
			DroppedReports: s.bridge.DroppedReports(),
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
