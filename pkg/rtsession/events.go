package rtsession

import (
	"github.com/parleyhq/sessionkit/pkg/connection"
	"github.com/parleyhq/sessionkit/pkg/wire"
)

// sessionEventBuffer bounds the session event channel. Events beyond the
// buffer are dropped with a warning rather than blocking internal loops.
const sessionEventBuffer = 64

// EventKind discriminates session events.
type EventKind int

const (
	// EventStateChanged reports a signaling connection transition.
	EventStateChanged EventKind = iota

	// EventParticipantJoined reports a remote participant joining.
	EventParticipantJoined

	// EventParticipantLeft reports a remote participant leaving.
	EventParticipantLeft

	// EventEncryptionDegraded reports a participant whose key exchange
	// failed; the participant stays in the session on a weaker (or no)
	// link.
	EventEncryptionDegraded

	// EventMessage reports an inbound application message.
	EventMessage

	// EventError reports an absorbed failure.
	EventError
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state-changed"
	case EventParticipantJoined:
		return "participant-joined"
	case EventParticipantLeft:
		return "participant-left"
	case EventEncryptionDegraded:
		return "encryption-degraded"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one session occurrence. Fields beyond Kind are set per kind:
// From/To for state changes, ParticipantID for membership and degradation,
// Envelope for messages, Err for degradation and errors.
type Event struct {
	Kind          EventKind
	From, To      connection.State
	ParticipantID string
	Envelope      wire.Envelope
	Err           error
}
