// Package state holds the in-memory last-known state of every device the
// bridge has heard from.
//
// The store is the single authoritative view of device state within the
// process. It is written only by the broker message path and read by the HTTP
// handlers and live feed sessions. Nothing is persisted: state is rebuilt
// from device reports after a restart (devices re-announce on reconnect).
//
// Ordering is per device only, following the order in which the broker
// adapter handled that device's messages. No ordering is guaranteed across
// devices.
package state
