// Package transport provides the message-oriented transports the signaling
// channel runs over.
//
// A Conn carries whole messages (no partial reads) in delivery order. The
// connection layer does not care whether the bytes travel over a websocket
// or an in-memory pipe; tests use the Pipe for deterministic, flaky-free
// runs without real network I/O.
package transport

import "context"

// Conn is a bidirectional message-oriented connection.
//
// Send is fire-and-forget: it returns once the message is handed to the
// underlying transport, with no acknowledgement requirement. Receive blocks
// until a message arrives or the connection closes.
type Conn interface {
	// Send transmits one message. Returns ErrClosed after Close.
	Send(data []byte) error

	// Receive returns the next inbound message in delivery order.
	// Returns ErrClosed once the connection is closed, locally or by
	// the peer.
	Receive() ([]byte, error)

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// Dialer opens connections to a signaling endpoint.
type Dialer interface {
	// Dial opens a connection to addr, authenticating with credentials.
	// The context bounds the handshake only, not the connection lifetime.
	Dial(ctx context.Context, addr, credentials string) (Conn, error)
}
