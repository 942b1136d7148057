package mqtt

import (
	"fmt"
	"strings"
)

// Topic scheme for device communication.
//
// Devices publish their state and consume commands under a per-device prefix:
//
//	devices/{deviceId}/state  - state reports from the device (retained by QoS only)
//	devices/{deviceId}/cmd    - commands to the device
//
// The bridge itself reports liveness on a separate prefix:
//
//	vendlink/bridge/status    - online/offline status (retained, also the LWT topic)
const (
	// TopicPrefixDevices is the base for all per-device topics.
	TopicPrefixDevices = "devices"

	// TopicPrefixBridge is the base for bridge status topics.
	TopicPrefixBridge = "vendlink/bridge"

	// stateSuffix and cmdSuffix are the per-device topic leaf segments.
	stateSuffix = "state"
	cmdSuffix   = "cmd"

	// deviceTopicParts is the exact segment count of a per-device topic.
	deviceTopicParts = 3
)

// Topics provides builders for VendLink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("dev-001")
//	// Returns: "devices/dev-001/cmd"
type Topics struct{}

// DeviceState returns the state topic for a specific device.
//
// Example: devices/dev-001/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, stateSuffix)
}

// DeviceCommand returns the command topic for a specific device.
//
// Example: devices/dev-001/cmd
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, cmdSuffix)
}

// AllDeviceStates returns a pattern matching state reports from any device.
//
// Pattern: devices/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixDevices, stateSuffix)
}

// BridgeStatus returns the bridge status topic (also used as the LWT topic).
//
// Example: vendlink/bridge/status
func (Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixBridge)
}

// ParseStateTopic extracts the device ID from a device state topic.
//
// Only topics of the exact form "devices/{deviceId}/state" with a non-empty
// device ID are accepted; anything else returns ok=false. Messages on
// unexpected topics are the broker's business, not ours, so callers should
// ignore them rather than treat them as errors.
func ParseStateTopic(topic string) (deviceID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != deviceTopicParts {
		return "", false
	}
	if parts[0] != TopicPrefixDevices || parts[2] != stateSuffix {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
