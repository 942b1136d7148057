package command

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind identifies what a command asks the device to do.
type Kind string

const (
	// KindSetOutput switches a named binary output on or off.
	KindSetOutput Kind = "set_output"

	// KindRunActuator runs a motorised actuator for a bounded duration.
	KindRunActuator Kind = "run_actuator"
)

// Output states accepted by KindSetOutput.
const (
	OutputOn  = "on"
	OutputOff = "off"
)

// Actuator directions accepted by KindRunActuator.
const (
	DirectionForward = "forward"
	DirectionReverse = "reverse"
)

// DefaultActuatorDurationMs is applied when a run_actuator request omits
// the duration entirely.
const DefaultActuatorDurationMs = 5000

// Request is a validated-on-send command for one device.
//
// Exactly one field group applies per kind: Output for set_output,
// DurationMs and Direction for run_actuator. Fields outside the kind's
// group are ignored.
//
// DurationMs is a pointer so an omitted duration is distinguishable from an
// explicit zero: nil takes the default, any supplied value (zero or negative
// included) is forwarded to the device as-is.
type Request struct {
	DeviceID   string
	Kind       Kind
	Output     string
	DurationMs *int
	Direction  string
}

// Ack describes a command that was accepted and handed to the transport.
type Ack struct {
	DeviceID string
	Kind     Kind
	Payload  []byte
}

// Publisher delivers an encoded command payload to a device. Satisfied by
// the bridge's command path.
type Publisher interface {
	PublishCommand(ctx context.Context, deviceID string, payload []byte) error
}

// Logger defines the logging interface used by the Gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Gateway validates device commands and publishes them.
//
// Validation happens entirely before any transport attempt: a request that
// fails validation is never published, and the returned error distinguishes
// rejected input (ValidationError) from delivery failure (wrapped
// ErrTransport).
type Gateway struct {
	publisher Publisher
	logger    Logger
}

// NewGateway creates a gateway over the given publisher.
func NewGateway(publisher Publisher) *Gateway {
	return &Gateway{
		publisher: publisher,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// setOutputPayload is the wire form of a set_output command.
type setOutputPayload struct {
	Output string `json:"output"`
}

// runActuatorPayload is the wire form of a run_actuator command.
type runActuatorPayload struct {
	DurationMs int    `json:"durationMs"`
	Direction  string `json:"direction"`
}

// Send validates a request, encodes it, and publishes it to the device's
// command topic.
//
// Returns:
//   - *ValidationError when the request is malformed; nothing is published
//   - an error wrapping ErrTransport when publishing fails
//   - Ack with the encoded payload on success
func (g *Gateway) Send(ctx context.Context, req Request) (Ack, error) {
	payload, err := encode(req)
	if err != nil {
		g.logger.Debug("command rejected",
			"device_id", req.DeviceID,
			"kind", req.Kind,
			"error", err,
		)
		return Ack{}, err
	}

	if err := g.publisher.PublishCommand(ctx, req.DeviceID, payload); err != nil {
		g.logger.Warn("command publish failed",
			"device_id", req.DeviceID,
			"kind", req.Kind,
			"error", err,
		)
		return Ack{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	g.logger.Debug("command published", "device_id", req.DeviceID, "kind", req.Kind)
	return Ack{DeviceID: req.DeviceID, Kind: req.Kind, Payload: payload}, nil
}

// encode validates the request and returns its wire payload.
func encode(req Request) ([]byte, error) {
	if req.DeviceID == "" {
		return nil, &ValidationError{Field: "deviceId", Message: "must not be empty"}
	}

	switch req.Kind {
	case KindSetOutput:
		if req.Output != OutputOn && req.Output != OutputOff {
			return nil, &ValidationError{
				Field:   "output",
				Message: fmt.Sprintf("must be %q or %q, got %q", OutputOn, OutputOff, req.Output),
			}
		}
		return json.Marshal(setOutputPayload{Output: req.Output})

	case KindRunActuator:
		if req.Direction != DirectionForward && req.Direction != DirectionReverse {
			return nil, &ValidationError{
				Field:   "direction",
				Message: fmt.Sprintf("must be %q or %q, got %q", DirectionForward, DirectionReverse, req.Direction),
			}
		}
		duration := DefaultActuatorDurationMs
		if req.DurationMs != nil {
			duration = *req.DurationMs
		}
		return json.Marshal(runActuatorPayload{DurationMs: duration, Direction: req.Direction})

	default:
		return nil, &ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown command kind %q", req.Kind),
		}
	}
}
