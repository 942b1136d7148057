package lookup

import "errors"

var (
	// ErrInvalidCode indicates a blank machine code.
	ErrInvalidCode = errors.New("invalid machine code")

	// ErrUnknownCode indicates the code is not in the configured table.
	ErrUnknownCode = errors.New("unknown machine code")

	// ErrBadSignature indicates a supplied signature failed verification.
	ErrBadSignature = errors.New("bad code signature")
)
