// Package command turns typed device commands into validated wire payloads.
//
// The Gateway is the single choke point between callers (HTTP handlers,
// automations) and the broker: every command is validated before any
// transport attempt, and validation failures are reported as
// ValidationError so they are never confused with delivery problems.
package command
