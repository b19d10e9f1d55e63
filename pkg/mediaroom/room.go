// Package mediaroom abstracts the media surface of a group session: a Room
// emits membership and connectivity events and accepts local track
// publication. The concrete implementation rides on a WebRTC peer
// connection; tests substitute a scripted room.
package mediaroom

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/parleyhq/sessionkit/pkg/e2ee"
)

// Room package errors.
var (
	// ErrRoomClosed is returned for operations on a closed room.
	ErrRoomClosed = errors.New("mediaroom: room closed")

	// ErrTrackNotPublished is returned when unpublishing a track the
	// room is not carrying.
	ErrTrackNotPublished = errors.New("mediaroom: track not published")
)

// EventKind discriminates room events.
type EventKind int

const (
	// EventParticipantJoined signals a remote participant joining; the
	// event carries its declared capabilities.
	EventParticipantJoined EventKind = iota

	// EventParticipantLeft signals a remote participant leaving.
	EventParticipantLeft

	// EventLocalConnected signals the local media transport reaching
	// the connected state.
	EventLocalConnected

	// EventLocalDisconnected signals the local media transport losing
	// connectivity.
	EventLocalDisconnected
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventParticipantJoined:
		return "participant-joined"
	case EventParticipantLeft:
		return "participant-left"
	case EventLocalConnected:
		return "local-connected"
	case EventLocalDisconnected:
		return "local-disconnected"
	default:
		return "unknown"
	}
}

// Event is one room occurrence. ParticipantID and Capabilities are set for
// membership events only.
type Event struct {
	Kind          EventKind
	ParticipantID string
	Capabilities  e2ee.Capabilities
}

// Room is the media surface of one session.
type Room interface {
	// Events returns the room's event stream. The channel is closed
	// when the room closes.
	Events() <-chan Event

	// PublishTrack adds a local track to the room.
	PublishTrack(track webrtc.TrackLocal) error

	// UnpublishTrack removes a previously published local track.
	UnpublishTrack(track webrtc.TrackLocal) error

	// Close tears the room down and closes the event stream.
	Close() error
}
