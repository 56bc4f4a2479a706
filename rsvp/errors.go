package rsvp

import "errors"

// Errors reported by Load. Everything else in the package degrades to a
// no-op instead of failing.
var (
	// ErrTextTooShort means there were no units to read.
	ErrTextTooShort = errors.New("rsvp: no units to read")

	// ErrInvalidUnit means a unit carried no text.
	ErrInvalidUnit = errors.New("rsvp: unit with empty text")
)
