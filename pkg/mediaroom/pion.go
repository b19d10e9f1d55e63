package mediaroom

import (
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/parleyhq/sessionkit/pkg/e2ee"
)

// eventBuffer bounds the room event channel. Events beyond the buffer are
// dropped with a warning rather than blocking the media callbacks.
const eventBuffer = 32

// PionConfig configures a PionRoom.
type PionConfig struct {
	// ICEServers lists STUN/TURN server URLs.
	ICEServers []string

	// LoggerFactory creates the room's logger and is handed down to the
	// WebRTC stack. Default: logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// PionRoom implements Room over a WebRTC peer connection. Connectivity
// events come from the peer connection state; membership events are fed by
// the application's signaling layer through AnnounceJoin and AnnounceLeave.
type PionRoom struct {
	pc     *webrtc.PeerConnection
	log    logging.LeveledLogger
	events chan Event

	mu      sync.Mutex
	senders map[webrtc.TrackLocal]*webrtc.RTPSender
	closed  bool

	closeOnce sync.Once
}

// NewPionRoom creates a room over a fresh peer connection.
func NewPionRoom(config PionConfig) (*PionRoom, error) {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = config.LoggerFactory
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	var iceServers []webrtc.ICEServer
	if len(config.ICEServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: config.ICEServers}}
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}

	r := &PionRoom{
		pc:      pc,
		log:     config.LoggerFactory.NewLogger("mediaroom"),
		events:  make(chan Event, eventBuffer),
		senders: make(map[webrtc.TrackLocal]*webrtc.RTPSender),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			r.push(Event{Kind: EventLocalConnected})
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			r.push(Event{Kind: EventLocalDisconnected})
		}
	})

	return r, nil
}

// PeerConnection exposes the underlying peer connection for signaling
// (offer/answer and ICE candidate exchange).
func (r *PionRoom) PeerConnection() *webrtc.PeerConnection { return r.pc }

// Events returns the room event stream.
func (r *PionRoom) Events() <-chan Event { return r.events }

// AnnounceJoin feeds a remote participant's arrival into the event stream.
// Called by the signaling layer when a presence message arrives.
func (r *PionRoom) AnnounceJoin(participantID string, caps e2ee.Capabilities) {
	r.push(Event{Kind: EventParticipantJoined, ParticipantID: participantID, Capabilities: caps})
}

// AnnounceLeave feeds a remote participant's departure into the event
// stream.
func (r *PionRoom) AnnounceLeave(participantID string) {
	r.push(Event{Kind: EventParticipantLeft, ParticipantID: participantID})
}

// PublishTrack adds a local track to the peer connection.
func (r *PionRoom) PublishTrack(track webrtc.TrackLocal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}

	sender, err := r.pc.AddTrack(track)
	if err != nil {
		return err
	}
	r.senders[track] = sender
	return nil
}

// UnpublishTrack removes a previously published local track.
func (r *PionRoom) UnpublishTrack(track webrtc.TrackLocal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}

	sender, ok := r.senders[track]
	if !ok {
		return ErrTrackNotPublished
	}
	delete(r.senders, track)
	return r.pc.RemoveTrack(sender)
}

// Close tears down the peer connection and closes the event stream.
func (r *PionRoom) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		err = r.pc.Close()
		close(r.events)
	})
	return err
}

func (r *PionRoom) push(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.log.Warnf("event buffer full, dropping %s", ev.Kind)
	}
}
