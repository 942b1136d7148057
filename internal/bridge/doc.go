// Package bridge ties the MQTT broker to the rest of the core.
//
// It owns the single wildcard subscription to device state topics, keeps the
// state store current, fans updates out through the feed registry, and
// publishes commands back to devices. Malformed inbound reports are dropped
// and counted; they never corrupt stored state or live sessions.
package bridge
