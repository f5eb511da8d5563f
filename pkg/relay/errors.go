package relay

import "errors"

// Sentinel errors returned by the relay engine. Wrapped with context at the
// call site; test with errors.Is.
var (
	// ErrConfig indicates an invalid engine configuration.
	ErrConfig = errors.New("relay: invalid configuration")

	// ErrLimitExceeded indicates the broker or rule table is full.
	ErrLimitExceeded = errors.New("relay: limit exceeded")

	// ErrInvalidState indicates an operation that does not apply to the
	// engine's current lifecycle state.
	ErrInvalidState = errors.New("relay: invalid state")

	// ErrBrokerIndex indicates a rule referencing a broker slot that does
	// not exist.
	ErrBrokerIndex = errors.New("relay: broker index out of range")
)
