package feed

import "errors"

// ErrInvalidDeviceID indicates a blank device identifier was supplied when
// opening a session.
var ErrInvalidDeviceID = errors.New("invalid device id")
