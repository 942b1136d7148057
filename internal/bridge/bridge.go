package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vendlink/vendlink-core/internal/feed"
	"github.com/vendlink/vendlink-core/internal/infrastructure/mqtt"
	"github.com/vendlink/vendlink-core/internal/state"
)

// MQTTClient is the broker surface the bridge needs. Satisfied by
// *mqtt.Client; tests substitute a mock.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge connects the MQTT broker to the in-memory state store and the
// live feed registry.
//
// Inbound, it subscribes to the device state wildcard and, for each
// well-formed report, replaces the stored snapshot and broadcasts the update
// to live sessions. A payload that fails to decode is dropped without
// touching stored state or any session; one device's garbage never disturbs
// another device's feed.
//
// Outbound, it publishes encoded command payloads to the device's command
// topic.
type Bridge struct {
	client   MQTTClient
	store    *state.Store
	registry *feed.Registry
	topics   mqtt.Topics
	qos      byte
	logger   Logger

	dropped atomic.Uint64
}

// New creates a bridge. qos applies to both the state subscription and
// command publishes.
func New(client MQTTClient, store *state.Store, registry *feed.Registry, qos byte) *Bridge {
	return &Bridge{
		client:   client,
		store:    store,
		registry: registry,
		qos:      qos,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to state reports from all devices. The subscription is
// tracked by the client and restored automatically after a reconnect.
func (b *Bridge) Start() error {
	topic := b.topics.AllDeviceStates()
	if err := b.client.Subscribe(topic, b.qos, b.handleStateMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.logger.Info("state subscription established", "topic", topic, "qos", b.qos)
	return nil
}

// handleStateMessage processes one inbound state report.
//
// Store update and feed broadcast happen synchronously in topic order, so
// two reports for the same device are applied and fanned out in the order
// the broker delivered them.
func (b *Bridge) handleStateMessage(topic string, payload []byte) error {
	deviceID, ok := mqtt.ParseStateTopic(topic)
	if !ok {
		b.logger.Debug("ignoring message on unexpected topic", "topic", topic)
		return nil
	}

	fields, err := decodeStateReport(payload)
	if err != nil {
		b.dropped.Add(1)
		b.logger.Debug("dropping undecodable state report",
			"device_id", deviceID,
			"bytes", len(payload),
			"error", err,
		)
		return nil
	}

	now := time.Now()
	b.store.Put(deviceID, fields, now)
	b.registry.Broadcast(deviceID, feed.Event{
		Kind:      feed.EventUpdate,
		DeviceID:  deviceID,
		Payload:   fields,
		UpdatedAt: now,
	})

	b.logger.Debug("state updated", "device_id", deviceID, "fields", len(fields))
	return nil
}

// decodeStateReport parses a state payload, requiring a JSON object at the
// top level. json.Unmarshal accepts a bare null into a map, so that case is
// rejected explicitly.
func decodeStateReport(payload []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("state report is not a JSON object")
	}
	return fields, nil
}

// PublishCommand sends an encoded command payload to a device's command
// topic. Satisfies command.Publisher.
func (b *Bridge) PublishCommand(ctx context.Context, deviceID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topic := b.topics.DeviceCommand(deviceID)
	if err := b.client.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Connected reports whether the underlying broker connection is up.
func (b *Bridge) Connected() bool {
	return b.client.IsConnected()
}

// DroppedReports returns how many inbound reports were discarded because
// they could not be decoded.
func (b *Bridge) DroppedReports() uint64 {
	return b.dropped.Load()
}
