package e2ee

import "errors"

// E2EE package errors.
var (
	// ErrKeyExchangeFailed wraps a handshake failure with one
	// participant. Recoverable: the participant is degraded, never the
	// session.
	ErrKeyExchangeFailed = errors.New("e2ee: key exchange failed")

	// ErrUnsupportedAlgorithm is returned for an algorithm this package
	// does not implement.
	ErrUnsupportedAlgorithm = errors.New("e2ee: unsupported algorithm")

	// ErrMissingPublicKey is returned when a participant negotiated an
	// algorithm but declared no public key for it.
	ErrMissingPublicKey = errors.New("e2ee: missing public key")

	// ErrInvalidPublicKey is returned when a declared public key cannot
	// be parsed for its algorithm.
	ErrInvalidPublicKey = errors.New("e2ee: invalid public key")

	// ErrAlgorithmMismatch is returned when a key pair is used with the
	// wrong suite.
	ErrAlgorithmMismatch = errors.New("e2ee: key pair algorithm mismatch")

	// ErrNoLocalAlgorithms is returned when negotiation runs with an
	// empty local capability list.
	ErrNoLocalAlgorithms = errors.New("e2ee: no local algorithms")

	// ErrNoLocalKeyPair is returned when decapsulation is attempted for
	// an algorithm without a generated session key pair.
	ErrNoLocalKeyPair = errors.New("e2ee: no local key pair for algorithm")

	// ErrRekeyInFlight is returned by a scheduled rotation that found a
	// membership-triggered re-key in progress. The rotation is skipped,
	// not queued.
	ErrRekeyInFlight = errors.New("e2ee: re-key already in flight")

	// ErrSenderRequired is returned when a Coordinator is configured
	// without a signaling sender.
	ErrSenderRequired = errors.New("e2ee: signaling sender required")
)
