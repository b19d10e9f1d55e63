// Package rtsession composes the signaling connection, the
// end-to-end-encryption coordinator, and the media room behind one session
// facade. Applications drive the session through Connect, Send, and the
// track operations, and observe it through Events and Stats.
package rtsession

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/parleyhq/sessionkit/pkg/connection"
	"github.com/parleyhq/sessionkit/pkg/e2ee"
	"github.com/parleyhq/sessionkit/pkg/identity"
	"github.com/parleyhq/sessionkit/pkg/mediaroom"
	"github.com/parleyhq/sessionkit/pkg/wire"
)

// Session is the facade over one real-time session: a resilient signaling
// connection, per-participant end-to-end-encryption state, and the media
// room. Encryption failures degrade individual participants; they never
// fail the session.
type Session struct {
	cfg      Config
	log      logging.LeveledLogger
	manager  *connection.Manager
	coord    *e2ee.Coordinator
	rotation *e2ee.RotationScheduler
	identity *identity.Provider

	events chan Event

	mu            sync.Mutex
	closed        bool
	started       bool
	connectedAt   time.Time
	members       map[string]struct{}
	lastMessage   wire.Envelope
	lastMessageAt time.Time
	hasMessage    bool
}

// New creates a session from the configuration. No network activity occurs
// until Connect.
func New(config Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	s := &Session{
		cfg:      config,
		log:      config.LoggerFactory.NewLogger("rtsession"),
		identity: identity.NewProvider(config.IdentityStore),
		events:   make(chan Event, sessionEventBuffer),
		members:  make(map[string]struct{}),
	}

	manager, err := connection.NewManager(connection.Config{
		Dialer: config.Dialer,
		Callbacks: connection.Callbacks{
			OnStateChange: s.onStateChange,
			OnMessage:     s.onMessage,
			OnError:       s.onError,
		},
		Reconnect: connection.ReconnectPolicy{
			Interval:    config.ReconnectInterval,
			MaxAttempts: config.MaxReconnectAttempts,
		},
		HeartbeatInterval: config.HeartbeatInterval,
		Disabled:          !config.Enabled,
		LoggerFactory:     config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	s.manager = manager

	if config.Enabled && !config.DisableEncryption {
		coord, err := e2ee.NewCoordinator(e2ee.CoordinatorConfig{
			Sender:             manager,
			PreferredAlgorithm: config.PreferredAlgorithm,
			LoggerFactory:      config.LoggerFactory,
		})
		if err != nil {
			return nil, err
		}
		s.coord = coord
		s.rotation = e2ee.NewRotationScheduler(
			config.KeyRotationInterval,
			coord.Rotate,
			config.LoggerFactory.NewLogger("rotation"),
		)
	}

	return s, nil
}

// Connect opens the signaling connection and starts the session's
// background work: the room event loop and the key-rotation scheduler.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	start := !s.started
	s.started = true
	s.mu.Unlock()

	if start {
		if s.cfg.Room != nil {
			go s.roomLoop()
		}
		if s.rotation != nil {
			s.rotation.Start()
		}
	}

	return s.manager.Connect(ctx, s.cfg.ServerAddr, s.cfg.Credentials)
}

// Disconnect tears the session down: rotation stops, the signaling
// connection closes, key material is purged, and the event stream closes.
// The session cannot be reused afterwards.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.rotation != nil {
		s.rotation.Stop()
	}
	s.manager.Disconnect()
	if s.coord != nil {
		s.coord.Close()
	}
	if s.cfg.Room != nil {
		if err := s.cfg.Room.Close(); err != nil {
			s.log.Warnf("closing room: %v", err)
		}
	}
	close(s.events)
}

// Send transmits an application payload over the signaling connection.
func (s *Session) Send(payload any) error {
	env, err := wire.NewEnvelope(wire.TypeMessage, payload)
	if err != nil {
		return err
	}
	return s.manager.Send(env)
}

// PublishTrack adds a local media track to the room.
func (s *Session) PublishTrack(track webrtc.TrackLocal) error {
	if s.cfg.Room == nil {
		return ErrNoRoom
	}
	return s.cfg.Room.PublishTrack(track)
}

// UnpublishTrack removes a local media track from the room.
func (s *Session) UnpublishTrack(track webrtc.TrackLocal) error {
	if s.cfg.Room == nil {
		return ErrNoRoom
	}
	return s.cfg.Room.UnpublishTrack(track)
}

// Events returns the session event stream. Closed by Disconnect.
func (s *Session) Events() <-chan Event { return s.events }

// State returns the signaling connection state.
func (s *Session) State() connection.State { return s.manager.State() }

// DeviceID returns this device's stable identifier.
func (s *Session) DeviceID() (string, error) { return s.identity.DeviceID() }

// LocalCapabilities builds the capability record this client advertises,
// including its encapsulation keys. Returns the zero value when encryption
// is disabled.
func (s *Session) LocalCapabilities() (e2ee.Capabilities, error) {
	if s.coord == nil {
		return e2ee.Capabilities{}, nil
	}
	deviceID, err := s.identity.DeviceID()
	if err != nil {
		return e2ee.Capabilities{}, err
	}
	return s.coord.LocalCapabilities(deviceID, s.cfg.Platform, s.cfg.Browser)
}

// Participants returns the current per-participant key records. Empty when
// encryption is disabled.
func (s *Session) Participants() []e2ee.ParticipantKeyRecord {
	if s.coord == nil {
		return nil
	}
	return s.coord.Registry().Snapshot()
}

// LastMessage returns the most recent inbound application message.
func (s *Session) LastMessage() (wire.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessage, s.hasMessage
}

// Stats returns a point-in-time snapshot of the session, including the
// encryption health grade of the current membership.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	participants := len(s.members)
	lastAt := s.lastMessageAt
	connectedAt := s.connectedAt
	s.mu.Unlock()

	var duration time.Duration
	if !connectedAt.IsZero() {
		duration = time.Since(connectedAt)
	}

	stats := Stats{
		State:             s.manager.State(),
		Duration:          duration,
		Participants:      participants,
		ReconnectAttempts: s.manager.ReconnectAttempts(),
		LastMessageAt:     lastAt,
	}

	encryptionEnabled := s.coord != nil
	if encryptionEnabled {
		reg := s.coord.Registry()
		stats.QuantumCapable = reg.QuantumCapableCount()
		stats.Epoch = reg.CurrentEpoch()
	}
	stats.EncryptionHealth = computeHealth(participants, stats.QuantumCapable, encryptionEnabled)
	return stats
}

// roomLoop drives membership and connectivity events from the media room
// into the encryption layer and the session event stream.
func (s *Session) roomLoop() {
	for ev := range s.cfg.Room.Events() {
		switch ev.Kind {
		case mediaroom.EventParticipantJoined:
			s.handleJoin(ev.ParticipantID, ev.Capabilities)
		case mediaroom.EventParticipantLeft:
			s.handleLeave(ev.ParticipantID)
		case mediaroom.EventLocalConnected:
			s.log.Info("media transport connected")
		case mediaroom.EventLocalDisconnected:
			s.log.Warn("media transport disconnected")
		}
	}
}

func (s *Session) handleJoin(participantID string, caps e2ee.Capabilities) {
	s.mu.Lock()
	s.members[participantID] = struct{}{}
	s.mu.Unlock()

	s.push(Event{Kind: EventParticipantJoined, ParticipantID: participantID})

	if s.coord == nil {
		return
	}
	if err := s.coord.OnParticipantJoined(context.Background(), participantID, caps); err != nil {
		s.log.Warnf("key exchange with %s: %v", participantID, err)
		s.push(Event{Kind: EventEncryptionDegraded, ParticipantID: participantID, Err: err})
	}
}

func (s *Session) handleLeave(participantID string) {
	s.mu.Lock()
	delete(s.members, participantID)
	s.mu.Unlock()

	if s.coord != nil {
		s.coord.OnParticipantLeft(context.Background(), participantID)
	}
	s.push(Event{Kind: EventParticipantLeft, ParticipantID: participantID})
}

func (s *Session) onStateChange(from, to connection.State) {
	if to == connection.StateConnected {
		s.mu.Lock()
		if s.connectedAt.IsZero() {
			s.connectedAt = time.Now()
		}
		s.mu.Unlock()
	}
	s.push(Event{Kind: EventStateChanged, From: from, To: to})
}

// onMessage routes inbound envelopes: key-exchange traffic feeds the
// encryption layer, everything else surfaces as an application message.
func (s *Session) onMessage(env wire.Envelope) {
	if env.Type == wire.TypeKeyExchange {
		s.handleKeyExchange(env)
		return
	}

	s.mu.Lock()
	s.lastMessage = env
	s.lastMessageAt = time.Now()
	s.hasMessage = true
	s.mu.Unlock()

	s.push(Event{Kind: EventMessage, Envelope: env})
}

func (s *Session) handleKeyExchange(env wire.Envelope) {
	if s.coord == nil {
		s.log.Debug("dropping key-exchange message: encryption disabled")
		return
	}

	var payload wire.KeyExchangePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.log.Warnf("malformed key-exchange payload: %v", err)
		return
	}
	if _, err := s.coord.HandleRemoteKeyExchange(payload); err != nil {
		s.log.Warnf("inbound key exchange: %v", err)
		s.push(Event{Kind: EventError, Err: err})
		return
	}
	s.log.Debugf("key exchange confirmed for epoch %d", payload.Epoch)
}

func (s *Session) onError(err error) {
	s.push(Event{Kind: EventError, Err: err})
}

func (s *Session) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warnf("event buffer full, dropping %s", ev.Kind)
	}
}
