package wire

import "errors"

// Wire package errors.
var (
	// ErrEmptyType is returned when an envelope has no type tag.
	ErrEmptyType = errors.New("wire: empty envelope type")
)
