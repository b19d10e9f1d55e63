package e2ee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parleyhq/sessionkit/pkg/wire"
)

// captureSender records key-exchange envelopes. Setting failures makes the
// first N sends fail, to exercise retry and degradation paths.
type captureSender struct {
	mu        sync.Mutex
	envelopes []wire.Envelope
	failures  int
}

func (s *captureSender) Send(env wire.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("transport down")
	}
	s.envelopes = append(s.envelopes, env)
	return nil
}

func (s *captureSender) sent() []wire.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Envelope(nil), s.envelopes...)
}

// blockingSender parks Send until released, to hold the coordinator mutex
// across a test's observation window.
type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingSender() *blockingSender {
	return &blockingSender{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *blockingSender) Send(env wire.Envelope) error {
	s.started <- struct{}{}
	<-s.release
	return nil
}

// peerCaps builds a capability record with real key material for each
// algorithm.
func peerCaps(t *testing.T, deviceID string, algs ...Algorithm) Capabilities {
	t.Helper()
	caps := Capabilities{
		DeviceID:            deviceID,
		Platform:            "linux",
		SupportedAlgorithms: algs,
		PublicKeys:          make(map[Algorithm][]byte, len(algs)),
	}
	for _, alg := range algs {
		suite, err := SuiteFor(alg)
		if err != nil {
			t.Fatalf("SuiteFor(%s) error = %v", alg, err)
		}
		kp, err := suite.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair(%s) error = %v", alg, err)
		}
		caps.PublicKeys[alg] = kp.PublicKey()
		if alg.IsPostQuantum() {
			caps.QuantumCapable = true
		}
	}
	return caps
}

func newTestCoordinator(t *testing.T, sender Sender) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(CoordinatorConfig{Sender: sender})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewCoordinatorRequiresSender(t *testing.T) {
	if _, err := NewCoordinator(CoordinatorConfig{}); !errors.Is(err, ErrSenderRequired) {
		t.Errorf("NewCoordinator() error = %v, want ErrSenderRequired", err)
	}
}

func TestCoordinatorJoinEstablishesRecord(t *testing.T) {
	sender := &captureSender{}
	c := newTestCoordinator(t, sender)

	caps := peerCaps(t, "p1", AlgorithmMLKEM768, AlgorithmX25519)
	if err := c.OnParticipantJoined(context.Background(), "p1", caps); err != nil {
		t.Fatalf("OnParticipantJoined() error = %v", err)
	}

	rec, ok := c.Registry().Get("p1")
	if !ok {
		t.Fatal("no record for p1")
	}
	if rec.Algorithm != AlgorithmMLKEM768 {
		t.Errorf("Algorithm = %v, want %v", rec.Algorithm, AlgorithmMLKEM768)
	}
	if !rec.QuantumCapable {
		t.Error("QuantumCapable = false, want true")
	}
	if rec.Epoch != 1 {
		t.Errorf("Epoch = %d, want 1", rec.Epoch)
	}
	if len(rec.SharedSecret) != SharedSecretSize {
		t.Errorf("len(SharedSecret) = %d, want %d", len(rec.SharedSecret), SharedSecretSize)
	}

	envs := sender.sent()
	if len(envs) != 1 {
		t.Fatalf("sent %d envelopes, want 1", len(envs))
	}
	if envs[0].Type != wire.TypeKeyExchange {
		t.Errorf("envelope type = %q, want %q", envs[0].Type, wire.TypeKeyExchange)
	}
	var payload wire.KeyExchangePayload
	if err := json.Unmarshal(envs[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ParticipantID != "p1" || payload.Algorithm != string(AlgorithmMLKEM768) || payload.Epoch != 1 {
		t.Errorf("payload = %+v, want p1/ML-KEM-768/epoch 1", payload)
	}
	if len(payload.Ciphertext) == 0 {
		t.Error("payload carries no ciphertext")
	}
}

func TestCoordinatorTwoCoordinatorsAgree(t *testing.T) {
	senderA := &captureSender{}
	a := newTestCoordinator(t, senderA)
	b := newTestCoordinator(t, &captureSender{})

	capsB, err := b.LocalCapabilities("dev-b", "linux", "")
	if err != nil {
		t.Fatalf("LocalCapabilities() error = %v", err)
	}
	if !capsB.QuantumCapable {
		t.Error("local capabilities not quantum capable with default algorithms")
	}

	if err := a.OnParticipantJoined(context.Background(), "dev-b", capsB); err != nil {
		t.Fatalf("OnParticipantJoined() error = %v", err)
	}

	envs := senderA.sent()
	if len(envs) != 1 {
		t.Fatalf("sent %d envelopes, want 1", len(envs))
	}
	var payload wire.KeyExchangePayload
	if err := json.Unmarshal(envs[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	secretB, err := b.HandleRemoteKeyExchange(payload)
	if err != nil {
		t.Fatalf("HandleRemoteKeyExchange() error = %v", err)
	}
	recA, _ := a.Registry().Get("dev-b")
	if !bytes.Equal(recA.SharedSecret, secretB) {
		t.Error("coordinators derived different shared secrets")
	}
}

func TestCoordinatorRetryThenClassicalFallback(t *testing.T) {
	// First attempt and retry both fail, so the post-quantum choice
	// degrades to the classical fallback.
	sender := &captureSender{failures: 2}
	c := newTestCoordinator(t, sender)

	caps := peerCaps(t, "p1", AlgorithmMLKEM768, AlgorithmX25519)
	err := c.OnParticipantJoined(context.Background(), "p1", caps)
	if !errors.Is(err, ErrKeyExchangeFailed) {
		t.Fatalf("OnParticipantJoined() error = %v, want ErrKeyExchangeFailed", err)
	}

	rec, ok := c.Registry().Get("p1")
	if !ok {
		t.Fatal("degraded participant lost its membership record")
	}
	if rec.Algorithm != AlgorithmX25519 {
		t.Errorf("Algorithm = %v, want %v", rec.Algorithm, AlgorithmX25519)
	}
	if rec.QuantumCapable {
		t.Error("QuantumCapable = true after classical fallback")
	}
	if len(rec.SharedSecret) != SharedSecretSize {
		t.Errorf("len(SharedSecret) = %d, want %d", len(rec.SharedSecret), SharedSecretSize)
	}
}

func TestCoordinatorPermanentDegrade(t *testing.T) {
	// Classical-only participant whose handshake fails twice keeps a
	// membership-only record.
	sender := &captureSender{failures: 2}
	c := newTestCoordinator(t, sender)

	caps := peerCaps(t, "p1", AlgorithmX25519)
	err := c.OnParticipantJoined(context.Background(), "p1", caps)
	if !errors.Is(err, ErrKeyExchangeFailed) {
		t.Fatalf("OnParticipantJoined() error = %v, want ErrKeyExchangeFailed", err)
	}

	rec, ok := c.Registry().Get("p1")
	if !ok {
		t.Fatal("degraded participant lost its membership record")
	}
	if rec.Algorithm != AlgorithmNone {
		t.Errorf("Algorithm = %v, want none", rec.Algorithm)
	}
	if len(rec.SharedSecret) != 0 {
		t.Error("degraded record holds key material")
	}
}

func TestCoordinatorLeavePurges(t *testing.T) {
	c := newTestCoordinator(t, &captureSender{})

	caps := peerCaps(t, "p1", AlgorithmMLKEM768, AlgorithmX25519)
	if err := c.OnParticipantJoined(context.Background(), "p1", caps); err != nil {
		t.Fatalf("OnParticipantJoined() error = %v", err)
	}

	c.OnParticipantLeft(context.Background(), "p1")
	if got := c.Registry().Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}

	// Leaving an unknown participant is a no-op.
	c.OnParticipantLeft(context.Background(), "ghost")
}

func TestCoordinatorMembershipRekey(t *testing.T) {
	c := newTestCoordinator(t, &captureSender{})
	ctx := context.Background()

	if err := c.OnParticipantJoined(ctx, "p1", peerCaps(t, "p1", AlgorithmMLKEM768, AlgorithmX25519)); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if err := c.OnParticipantJoined(ctx, "p2", peerCaps(t, "p2", AlgorithmX25519)); err != nil {
		t.Fatalf("join p2: %v", err)
	}

	// p2's join re-keyed p1 into the new epoch without renegotiating.
	rec1, _ := c.Registry().Get("p1")
	if rec1.Epoch != 2 {
		t.Errorf("p1 Epoch after second join = %d, want 2", rec1.Epoch)
	}
	if rec1.Algorithm != AlgorithmMLKEM768 {
		t.Errorf("p1 Algorithm after re-key = %v, want %v", rec1.Algorithm, AlgorithmMLKEM768)
	}

	// p1's leave re-keys the remaining membership once more.
	c.OnParticipantLeft(ctx, "p1")
	rec2, _ := c.Registry().Get("p2")
	if rec2.Epoch != 3 {
		t.Errorf("p2 Epoch after leave = %d, want 3", rec2.Epoch)
	}
	if rec2.Algorithm != AlgorithmX25519 {
		t.Errorf("p2 Algorithm after re-key = %v, want %v", rec2.Algorithm, AlgorithmX25519)
	}
}

func TestCoordinatorRotate(t *testing.T) {
	c := newTestCoordinator(t, &captureSender{})
	ctx := context.Background()

	if err := c.OnParticipantJoined(ctx, "p1", peerCaps(t, "p1", AlgorithmMLKEM768, AlgorithmX25519)); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if err := c.OnParticipantJoined(ctx, "p2", peerCaps(t, "p2", AlgorithmX25519)); err != nil {
		t.Fatalf("join p2: %v", err)
	}
	before1, _ := c.Registry().Get("p1")

	if err := c.Rotate(ctx); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	if got := c.Registry().CurrentEpoch(); got != 3 {
		t.Errorf("CurrentEpoch() after rotation = %d, want 3", got)
	}
	rec1, _ := c.Registry().Get("p1")
	rec2, _ := c.Registry().Get("p2")
	if rec1.Epoch != 3 || rec2.Epoch != 3 {
		t.Errorf("epochs after rotation = %d/%d, want 3/3", rec1.Epoch, rec2.Epoch)
	}
	if rec1.Algorithm != AlgorithmMLKEM768 || rec2.Algorithm != AlgorithmX25519 {
		t.Errorf("algorithms changed by rotation: %v/%v", rec1.Algorithm, rec2.Algorithm)
	}
	if bytes.Equal(before1.SharedSecret, rec1.SharedSecret) {
		t.Error("rotation did not refresh p1's shared secret")
	}
}

func TestCoordinatorRotateEmptySession(t *testing.T) {
	c := newTestCoordinator(t, &captureSender{})
	if err := c.Rotate(context.Background()); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if got := c.Registry().CurrentEpoch(); got != 0 {
		t.Errorf("CurrentEpoch() = %d, want 0 (no rotation without participants)", got)
	}
}

func TestCoordinatorRotateSkipsDuringRekey(t *testing.T) {
	sender := newBlockingSender()
	c := newTestCoordinator(t, sender)

	joinDone := make(chan error, 1)
	go func() {
		joinDone <- c.OnParticipantJoined(context.Background(), "p1",
			peerCaps(t, "p1", AlgorithmMLKEM768, AlgorithmX25519))
	}()
	<-sender.started

	if err := c.Rotate(context.Background()); !errors.Is(err, ErrRekeyInFlight) {
		t.Errorf("Rotate() during re-key error = %v, want ErrRekeyInFlight", err)
	}

	close(sender.release)
	if err := <-joinDone; err != nil {
		t.Fatalf("OnParticipantJoined() error = %v", err)
	}
}

func TestCoordinatorLeaveSupersedesJoin(t *testing.T) {
	sender := newBlockingSender()
	c := newTestCoordinator(t, sender)

	joinDone := make(chan error, 1)
	go func() {
		joinDone <- c.OnParticipantJoined(context.Background(), "p1",
			peerCaps(t, "p1", AlgorithmMLKEM768, AlgorithmX25519))
	}()
	<-sender.started

	leaveDone := make(chan struct{})
	go func() {
		c.OnParticipantLeft(context.Background(), "p1")
		close(leaveDone)
	}()

	// Give the leave time to cancel the in-flight handshake before the
	// blocked send returns.
	time.Sleep(50 * time.Millisecond)
	close(sender.release)

	if err := <-joinDone; err != nil {
		t.Fatalf("superseded join returned error = %v, want nil", err)
	}
	<-leaveDone

	if got := c.Registry().Count(); got != 0 {
		t.Errorf("Count() = %d, want 0 (superseded join must not register)", got)
	}
}

func TestCoordinatorPreferredAlgorithmLeadsCapabilities(t *testing.T) {
	c, err := NewCoordinator(CoordinatorConfig{
		Sender:             &captureSender{},
		PreferredAlgorithm: AlgorithmMLKEM768,
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	defer c.Close()

	caps, err := c.LocalCapabilities("dev", "linux", "")
	if err != nil {
		t.Fatalf("LocalCapabilities() error = %v", err)
	}
	if caps.SupportedAlgorithms[0] != AlgorithmMLKEM768 {
		t.Errorf("SupportedAlgorithms[0] = %v, want %v", caps.SupportedAlgorithms[0], AlgorithmMLKEM768)
	}
	if len(caps.SupportedAlgorithms) != len(DefaultAlgorithms()) {
		t.Errorf("len(SupportedAlgorithms) = %d, want %d", len(caps.SupportedAlgorithms), len(DefaultAlgorithms()))
	}
}

func TestCoordinatorHandleRemoteKeyExchangeErrors(t *testing.T) {
	c := newTestCoordinator(t, &captureSender{})

	_, err := c.HandleRemoteKeyExchange(wire.KeyExchangePayload{Algorithm: "ROT13"})
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("unknown algorithm error = %v, want ErrUnsupportedAlgorithm", err)
	}

	_, err = c.HandleRemoteKeyExchange(wire.KeyExchangePayload{Algorithm: string(AlgorithmMLKEM768)})
	if !errors.Is(err, ErrNoLocalKeyPair) {
		t.Errorf("no session key pair error = %v, want ErrNoLocalKeyPair", err)
	}
}

func TestCoordinatorClose(t *testing.T) {
	c := newTestCoordinator(t, &captureSender{})
	if err := c.OnParticipantJoined(context.Background(), "p1",
		peerCaps(t, "p1", AlgorithmX25519)); err != nil {
		t.Fatalf("OnParticipantJoined() error = %v", err)
	}
	c.Close()
	if got := c.Registry().Count(); got != 0 {
		t.Errorf("Count() after Close = %d, want 0", got)
	}
}
