package rpc

import "errors"

// Domain-specific errors for RPC operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidParam is returned when a required argument is missing or malformed.
	ErrInvalidParam = errors.New("rpc: invalid parameter")

	// ErrTransport is returned when the underlying MQTT operation fails.
	ErrTransport = errors.New("rpc: transport error")

	// ErrSerialization is returned when an envelope cannot be encoded or decoded.
	ErrSerialization = errors.New("rpc: serialization error")

	// ErrTimeout is returned when a call's response does not arrive in time.
	ErrTimeout = errors.New("rpc: operation timed out")

	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("rpc: client not connected")

	// ErrConfig is returned when a configuration value is invalid.
	ErrConfig = errors.New("rpc: configuration error")
)
