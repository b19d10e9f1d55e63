package rtsession

import "errors"

// Session package errors.
var (
	// ErrSessionClosed is returned for operations on a torn-down session.
	ErrSessionClosed = errors.New("rtsession: session closed")

	// ErrServerAddrRequired is returned when an enabled session is
	// configured without a server address.
	ErrServerAddrRequired = errors.New("rtsession: server address required")

	// ErrDialerRequired is returned when an enabled session is
	// configured without a transport dialer.
	ErrDialerRequired = errors.New("rtsession: transport dialer required")

	// ErrNoRoom is returned for media operations on a session configured
	// without a room.
	ErrNoRoom = errors.New("rtsession: no media room configured")
)
