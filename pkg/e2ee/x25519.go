package e2ee

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
)

// x25519Suite implements Suite over an ephemeral X25519 agreement, framed
// as encapsulate/decapsulate: the ciphertext is the ephemeral public key.
// This is the classical fallback when no post-quantum algorithm is shared.
type x25519Suite struct{}

func (x25519Suite) Algorithm() Algorithm { return AlgorithmX25519 }

func (x25519Suite) GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("e2ee: generate X25519 key: %w", err)
	}
	return &KeyPair{
		alg:     AlgorithmX25519,
		public:  priv.PublicKey().Bytes(),
		private: priv,
	}, nil
}

func (x25519Suite) Encapsulate(peerPublic []byte) ([]byte, []byte, error) {
	pub, err := ecdh.X25519().NewPublicKey(peerPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	eph, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("e2ee: generate ephemeral X25519 key: %w", err)
	}

	secret, err := eph.ECDH(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("e2ee: X25519 agreement: %w", err)
	}
	return eph.PublicKey().Bytes(), secret, nil
}

func (x25519Suite) Decapsulate(kp *KeyPair, ciphertext []byte) ([]byte, error) {
	priv, ok := kp.private.(*ecdh.PrivateKey)
	if !ok {
		return nil, ErrAlgorithmMismatch
	}

	ephPub, err := ecdh.X25519().NewPublicKey(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	secret, err := priv.ECDH(ephPub)
	if err != nil {
		return nil, fmt.Errorf("e2ee: X25519 agreement: %w", err)
	}
	return secret, nil
}
