package e2ee

// KeyPair holds one locally generated key pair. The private half never
// leaves the package.
type KeyPair struct {
	alg     Algorithm
	public  []byte
	private any
}

// Algorithm returns the key pair's algorithm.
func (k *KeyPair) Algorithm() Algorithm { return k.alg }

// PublicKey returns the encapsulation (public) key bytes.
func (k *KeyPair) PublicKey() []byte { return k.public }

// Suite is one pluggable key-encapsulation algorithm. Encapsulate produces
// a ciphertext for the peer plus the raw shared secret; Decapsulate
// recovers the same secret from the ciphertext using the local key pair.
//
// Raw suite output is never used directly as key material: the coordinator
// expands it through the HKDF in kdf.go first.
type Suite interface {
	// Algorithm identifies the suite.
	Algorithm() Algorithm

	// GenerateKeyPair creates a fresh key pair.
	GenerateKeyPair() (*KeyPair, error)

	// Encapsulate derives a shared secret against the peer's public key
	// and returns the ciphertext to transmit along with the secret.
	Encapsulate(peerPublic []byte) (ciphertext, secret []byte, err error)

	// Decapsulate recovers the shared secret from a peer's ciphertext.
	Decapsulate(kp *KeyPair, ciphertext []byte) (secret []byte, err error)
}

// SuiteFor returns the Suite implementing the algorithm.
func SuiteFor(alg Algorithm) (Suite, error) {
	switch alg {
	case AlgorithmMLKEM1024:
		return mlkem1024Suite{}, nil
	case AlgorithmMLKEM768:
		return mlkem768Suite{}, nil
	case AlgorithmX25519:
		return x25519Suite{}, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}
