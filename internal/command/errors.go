package command

import (
	"errors"
	"fmt"
)

// ErrTransport indicates the command was valid but could not be delivered.
// Errors wrapping it should be surfaced as upstream failures, not client
// mistakes.
var ErrTransport = errors.New("command transport failed")

// ValidationError describes a rejected command request. The Field names the
// offending input so callers can report it precisely.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command: %s %s", e.Field, e.Message)
}

// IsValidation reports whether err is a command validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
