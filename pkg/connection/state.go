// Package connection implements the resilient signaling connection: a state
// machine over a message transport with heartbeat emission and bounded
// reconnection after unexpected closure.
//
// The Manager owns exactly one logical connection. Its state moves only
// along the defined edges below; illegal transitions are ignored and logged,
// never applied:
//
//	Idle         -> Connecting
//	Connecting   -> Connected | Disconnected
//	Connected    -> Disconnected
//	Disconnected -> Connecting | Reconnecting | Closed
//	Reconnecting -> Connecting | Closed
//	Closed       -> Connecting
//
// A user-initiated Disconnect moves any state to Closed and suppresses all
// pending timers.
package connection

// State is the connection lifecycle state.
type State int

const (
	// StateIdle is the initial state before the first Connect.
	StateIdle State = iota

	// StateConnecting means the transport handshake is in progress.
	StateConnecting

	// StateConnected means the connection is established and usable.
	StateConnected

	// StateDisconnected means the connection was lost or a connect
	// attempt failed. Reconnection may be pending.
	StateDisconnected

	// StateReconnecting means the reconnect delay has elapsed and a new
	// connect attempt is about to start.
	StateReconnecting

	// StateClosed is terminal until an explicit user Connect: reached by
	// user disconnect or reconnect exhaustion.
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateReconnecting:
		return "Reconnecting"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the state is a defined value.
func (s State) IsValid() bool {
	return s >= StateIdle && s <= StateClosed
}

// validEdges is the full transition relation. Closed is an allowed target
// from every state because a user disconnect always wins.
var validEdges = map[State][]State{
	StateIdle:         {StateConnecting, StateClosed},
	StateConnecting:   {StateConnected, StateDisconnected, StateClosed},
	StateConnected:    {StateDisconnected, StateClosed},
	StateDisconnected: {StateConnecting, StateReconnecting, StateClosed},
	StateReconnecting: {StateConnecting, StateClosed},
	StateClosed:       {StateConnecting},
}

// CanTransition reports whether the edge from -> to is defined.
func CanTransition(from, to State) bool {
	for _, next := range validEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}
