package connection

import "errors"

// Connection package errors.
var (
	// ErrNotConnected is returned by Send while the connection is not in
	// StateConnected. Local misuse, not retriable at this layer.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrConnectFailed wraps a failed transport handshake. Recoverable
	// via reconnection.
	ErrConnectFailed = errors.New("connection: connect failed")

	// ErrReconnectExhausted is surfaced when the reconnect attempt
	// ceiling is reached. The connection is Closed and will not retry.
	ErrReconnectExhausted = errors.New("connection: reconnect attempts exhausted")

	// ErrDialerRequired is returned when a Manager is configured
	// without a transport dialer.
	ErrDialerRequired = errors.New("connection: transport dialer required")
)
