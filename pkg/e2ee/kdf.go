package e2ee

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SharedSecretSize is the length of a derived per-participant secret.
const SharedSecretSize = 32

// kdfLabel domain-separates this protocol's key derivation.
const kdfLabel = "sessionkit/e2ee/v1"

// DeriveSharedSecret expands a raw suite secret into the session secret
// with HKDF-SHA256 (RFC 5869).
func DeriveSharedSecret(raw, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, raw, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("e2ee: derive shared secret: %w", err)
	}
	return out, nil
}

// handshakeInfo binds a derived secret to the participant, the epoch, and
// the negotiated algorithm. Both ends of a handshake compute the same info
// from the key-exchange payload.
func handshakeInfo(participantID string, epoch Epoch, alg Algorithm) []byte {
	return fmt.Appendf(nil, "%s|%s|%d|%s", kdfLabel, participantID, epoch, alg)
}
