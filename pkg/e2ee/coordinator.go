package e2ee

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/parleyhq/sessionkit/pkg/wire"
)

// DefaultHandshakeTimeout bounds one key-encapsulation handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// Sender transmits signaling envelopes. Satisfied by connection.Manager.
type Sender interface {
	Send(env wire.Envelope) error
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Sender transmits key-exchange envelopes. Required.
	Sender Sender

	// LocalAlgorithms is the local capability list, strongest first.
	// Default: DefaultAlgorithms().
	LocalAlgorithms []Algorithm

	// PreferredAlgorithm, when set, is moved to the front of the local
	// capability list.
	PreferredAlgorithm Algorithm

	// HandshakeTimeout bounds each handshake.
	// Default: DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// LoggerFactory creates the coordinator's logger.
	// Default: logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

func (c *CoordinatorConfig) applyDefaults() {
	if len(c.LocalAlgorithms) == 0 {
		c.LocalAlgorithms = DefaultAlgorithms()
	}
	if c.PreferredAlgorithm != AlgorithmNone && c.PreferredAlgorithm.IsValid() {
		front := []Algorithm{c.PreferredAlgorithm}
		for _, a := range c.LocalAlgorithms {
			if a != c.PreferredAlgorithm {
				front = append(front, a)
			}
		}
		c.LocalAlgorithms = front
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// Coordinator keeps every joined participant's key material consistent and
// purges material of participants that left.
//
// All key-exchange work is serialized on one mutex: simultaneous joins are
// processed one at a time in arrival order, and a scheduled rotation that
// finds a membership re-key in flight is skipped rather than queued. A
// leave arriving while a join handshake for the same participant is in
// flight cancels it; the superseded join's result is discarded.
//
// Handshake failures degrade the participant (one retry, then the
// classical fallback, then membership without key material) and are
// reported but never fatal to the session.
type Coordinator struct {
	sender           Sender
	localAlgorithms  []Algorithm
	handshakeTimeout time.Duration
	log              logging.LeveledLogger

	registry *Registry

	// mu serializes membership re-keys and rotations.
	mu       sync.Mutex
	keyPairs map[Algorithm]*KeyPair

	// inflightMu guards the in-flight handshake cancel functions so a
	// leave can cancel a join without waiting for it.
	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc
}

// NewCoordinator creates a key-exchange coordinator.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Sender == nil {
		return nil, ErrSenderRequired
	}
	config.applyDefaults()

	return &Coordinator{
		sender:           config.Sender,
		localAlgorithms:  config.LocalAlgorithms,
		handshakeTimeout: config.HandshakeTimeout,
		log:              config.LoggerFactory.NewLogger("e2ee"),
		registry:         NewRegistry(),
		keyPairs:         make(map[Algorithm]*KeyPair),
		inflight:         make(map[string]context.CancelFunc),
	}, nil
}

// Registry returns the participant key registry. Callers may read it
// concurrently; only the coordinator writes.
func (c *Coordinator) Registry() *Registry { return c.registry }

// OnParticipantJoined performs the key-encapsulation handshake with a new
// participant and re-keys the existing membership at a fresh epoch.
//
// On handshake failure the participant remains in the session with
// QuantumCapable=false and an ErrKeyExchangeFailed-wrapped error is
// returned for reporting; the session itself never fails.
func (c *Coordinator) OnParticipantJoined(ctx context.Context, participantID string, caps Capabilities) error {
	hctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()
	c.trackInflight(participantID, cancel)
	defer c.untrackInflight(participantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	epoch := c.registry.AdvanceEpoch()

	alg, err := Negotiate(c.localAlgorithms, caps)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrKeyExchangeFailed, participantID, err)
	}

	rec, hsErr := c.establishLocked(hctx, participantID, caps, alg, epoch)
	if rec == nil {
		// Superseded by a leave while the handshake was in flight:
		// discard the result.
		c.log.Infof("join of %s superseded, result discarded", participantID)
		return nil
	}
	c.registry.Put(rec)

	// Existing members advance to the new epoch with their algorithm
	// choice unchanged.
	if err := c.rekeyMembersLocked(ctx, epoch, participantID); err != nil {
		c.log.Warnf("re-key after join of %s: %v", participantID, err)
	}

	if hsErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrKeyExchangeFailed, participantID, hsErr)
	}
	c.log.Infof("established %s link with %s at epoch %d", rec.Algorithm, participantID, epoch)
	return nil
}

// OnParticipantLeft cancels any in-flight handshake with the participant
// and purges its key record synchronously. If other participants remain,
// the membership is re-keyed at a fresh epoch so the leaver cannot use
// old material.
func (c *Coordinator) OnParticipantLeft(ctx context.Context, participantID string) {
	c.cancelInflight(participantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.Remove(participantID) {
		return
	}
	c.log.Infof("purged key material for %s", participantID)

	if c.registry.Count() == 0 {
		return
	}
	epoch := c.registry.AdvanceEpoch()
	if err := c.rekeyMembersLocked(ctx, epoch, ""); err != nil {
		c.log.Warnf("re-key after leave of %s: %v", participantID, err)
	}
}

// Rotate advances the epoch and re-runs the handshake for every registered
// participant, keeping each algorithm choice unchanged. Returns
// ErrRekeyInFlight, without queueing, if a membership-triggered re-key is
// in progress; the next scheduled tick rotates instead.
func (c *Coordinator) Rotate(ctx context.Context) error {
	if !c.mu.TryLock() {
		c.log.Debug("rotation skipped: re-key in flight")
		return ErrRekeyInFlight
	}
	defer c.mu.Unlock()

	if c.registry.Count() == 0 {
		return nil
	}

	epoch := c.registry.AdvanceEpoch()
	err := c.rekeyMembersLocked(ctx, epoch, "")
	if err != nil {
		return err
	}
	c.log.Infof("rotated %d participants to epoch %d", c.registry.Count(), epoch)
	return nil
}

// Close abandons all in-flight handshakes and purges the registry.
func (c *Coordinator) Close() {
	c.inflightMu.Lock()
	for id, cancel := range c.inflight {
		cancel()
		delete(c.inflight, id)
	}
	c.inflightMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.Clear()
}

// LocalCapabilities builds this device's capability metadata, generating
// (or reusing) the session key pair for each local algorithm so peers can
// encapsulate toward us.
func (c *Coordinator) LocalCapabilities(deviceID, platform, browser string) (Capabilities, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	caps := Capabilities{
		DeviceID:            deviceID,
		Platform:            platform,
		Browser:             browser,
		SupportedAlgorithms: append([]Algorithm(nil), c.localAlgorithms...),
		PublicKeys:          make(map[Algorithm][]byte, len(c.localAlgorithms)),
	}
	for _, alg := range c.localAlgorithms {
		kp, err := c.localKeyPairLocked(alg)
		if err != nil {
			return Capabilities{}, err
		}
		caps.PublicKeys[alg] = kp.PublicKey()
		if alg.IsPostQuantum() {
			caps.QuantumCapable = true
		}
	}
	return caps, nil
}

// HandleRemoteKeyExchange processes an inbound key-exchange payload: it
// decapsulates the ciphertext with the session key pair for the declared
// algorithm and derives the shared secret both ends now hold.
func (c *Coordinator) HandleRemoteKeyExchange(payload wire.KeyExchangePayload) ([]byte, error) {
	alg := Algorithm(payload.Algorithm)
	suite, err := SuiteFor(alg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	kp, ok := c.keyPairs[alg]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLocalKeyPair, alg)
	}

	raw, err := suite.Decapsulate(kp, payload.Ciphertext)
	if err != nil {
		return nil, err
	}
	return DeriveSharedSecret(raw, nil, handshakeInfo(payload.ParticipantID, Epoch(payload.Epoch), alg), SharedSecretSize)
}

// establishLocked runs the handshake with one participant at the given
// epoch: one retry on failure, then degrade from post-quantum to the
// classical fallback, then to a membership-only record. A nil record means
// the handshake was superseded by a leave.
func (c *Coordinator) establishLocked(ctx context.Context, participantID string, caps Capabilities, alg Algorithm, epoch Epoch) (*ParticipantKeyRecord, error) {
	if alg == AlgorithmNone {
		// Permanently degraded participant: fresh membership-only
		// record at the new epoch, no handshake.
		return degradedRecord(participantID, caps, epoch), nil
	}

	rec, err := c.handshakeLocked(ctx, participantID, caps, alg, epoch)
	if err == nil {
		return rec, nil
	}
	if superseded(ctx, err) {
		return nil, err
	}

	// Bounded retry: one more attempt with the negotiated algorithm.
	c.log.Warnf("handshake with %s (%s) failed, retrying once: %v", participantID, alg, err)
	rec, retryErr := c.handshakeLocked(ctx, participantID, caps, alg, epoch)
	if retryErr == nil {
		return rec, nil
	}
	if superseded(ctx, retryErr) {
		return nil, retryErr
	}

	// Permanent degrade: classical fallback if the failed algorithm
	// was post-quantum, then membership-only.
	if alg.IsPostQuantum() {
		c.log.Warnf("degrading %s to %s: %v", participantID, AlgorithmX25519, retryErr)
		rec, fbErr := c.handshakeLocked(ctx, participantID, caps, AlgorithmX25519, epoch)
		if fbErr == nil {
			return rec, err
		}
		if superseded(ctx, fbErr) {
			return nil, fbErr
		}
	}

	return degradedRecord(participantID, caps, epoch), err
}

// handshakeLocked performs one encapsulation round with a participant and
// transmits the resulting ciphertext over the signaling channel.
func (c *Coordinator) handshakeLocked(ctx context.Context, participantID string, caps Capabilities, alg Algorithm, epoch Epoch) (*ParticipantKeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	suite, err := SuiteFor(alg)
	if err != nil {
		return nil, err
	}

	peerPub, ok := caps.PublicKey(alg)
	if !ok {
		return nil, fmt.Errorf("%w: %s declared no %s key", ErrMissingPublicKey, participantID, alg)
	}

	// The session key pair lets the peer encapsulate toward us with
	// the same algorithm; generated once and reused.
	if _, err := c.localKeyPairLocked(alg); err != nil {
		return nil, err
	}

	ciphertext, raw, err := suite.Encapsulate(peerPub)
	if err != nil {
		return nil, err
	}

	secret, err := DeriveSharedSecret(raw, nil, handshakeInfo(participantID, epoch, alg), SharedSecretSize)
	if err != nil {
		return nil, err
	}

	env, err := wire.NewEnvelope(wire.TypeKeyExchange, wire.KeyExchangePayload{
		ParticipantID: participantID,
		Algorithm:     string(alg),
		Epoch:         uint64(epoch),
		Ciphertext:    ciphertext,
	})
	if err != nil {
		return nil, err
	}
	if err := c.sender.Send(env); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &ParticipantKeyRecord{
		ParticipantID:  participantID,
		PublicKey:      append([]byte(nil), peerPub...),
		SharedSecret:   secret,
		Algorithm:      alg,
		Epoch:          epoch,
		QuantumCapable: alg.IsPostQuantum(),
		LastRotatedAt:  time.Now(),
		Capabilities:   caps,
	}, nil
}

// rekeyMembersLocked refreshes every registered participant except skip at
// the given epoch, keeping each record's algorithm choice unchanged.
func (c *Coordinator) rekeyMembersLocked(ctx context.Context, epoch Epoch, skip string) error {
	var firstErr error
	for _, rec := range c.registry.Snapshot() {
		if rec.ParticipantID == skip || rec.Epoch == epoch {
			continue
		}

		hctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
		fresh, err := c.establishLocked(hctx, rec.ParticipantID, rec.Capabilities, rec.Algorithm, epoch)
		cancel()

		if fresh != nil {
			c.registry.Put(fresh)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Coordinator) localKeyPairLocked(alg Algorithm) (*KeyPair, error) {
	if kp, ok := c.keyPairs[alg]; ok {
		return kp, nil
	}
	suite, err := SuiteFor(alg)
	if err != nil {
		return nil, err
	}
	kp, err := suite.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	c.keyPairs[alg] = kp
	return kp, nil
}

func (c *Coordinator) trackInflight(participantID string, cancel context.CancelFunc) {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	c.inflight[participantID] = cancel
}

func (c *Coordinator) untrackInflight(participantID string) {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	delete(c.inflight, participantID)
}

func (c *Coordinator) cancelInflight(participantID string) {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if cancel, ok := c.inflight[participantID]; ok {
		cancel()
	}
}

// superseded reports whether a handshake error means the join was
// cancelled by a leave (as opposed to failing or timing out).
func superseded(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func degradedRecord(participantID string, caps Capabilities, epoch Epoch) *ParticipantKeyRecord {
	return &ParticipantKeyRecord{
		ParticipantID:  participantID,
		Algorithm:      AlgorithmNone,
		Epoch:          epoch,
		QuantumCapable: false,
		LastRotatedAt:  time.Now(),
		Capabilities:   caps,
	}
}
