package domain

// SessionState is the lifecycle position of the streaming session.
// Transitions: Idle -> Negotiating -> Active -> Closing -> Idle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateNegotiating
	StateActive
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// TransportState mirrors the peer connection's connectivity state without
// leaking the transport library into the core. Failed is always fatal to the
// session; Disconnected alone is not (the transport may recover).
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}
