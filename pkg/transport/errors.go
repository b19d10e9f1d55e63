package transport

import "errors"

// Transport package errors.
var (
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrDialFailed is returned when the transport handshake fails.
	ErrDialFailed = errors.New("transport: dial failed")

	// ErrBackpressure is returned when an outbound buffer is full.
	ErrBackpressure = errors.New("transport: send buffer full")
)
