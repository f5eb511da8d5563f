package rpc

// Status is the client's connection state.
type Status int

// Connection states. A client starts Disconnected, moves through Connecting
// to Connected, and reaches Reconnecting or Error only on unexpected loss.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusError
)

// String returns a human-readable state name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
