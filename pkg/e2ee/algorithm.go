// Package e2ee implements the end-to-end-encryption key-exchange layer of a
// group session: key-encapsulation suites with per-participant algorithm
// negotiation, a registry of per-participant key material versioned by
// epoch, a coordinator that reacts to membership changes, and a scheduler
// for periodic re-keying.
//
// The protocol shape is fixed; the algorithms plug in behind the Suite
// interface. A post-quantum handshake failure degrades that participant to
// the classical fallback (or to no key material at all) without ever
// failing the session.
package e2ee

// Algorithm identifies a key-encapsulation algorithm. The names are the
// ones participants declare in their capability lists.
type Algorithm string

const (
	// AlgorithmMLKEM1024 is ML-KEM-1024 (FIPS 203, NIST category 5).
	AlgorithmMLKEM1024 Algorithm = "ML-KEM-1024"

	// AlgorithmMLKEM768 is ML-KEM-768 (FIPS 203, NIST category 3).
	AlgorithmMLKEM768 Algorithm = "ML-KEM-768"

	// AlgorithmX25519 is the classical elliptic-curve fallback: an
	// ephemeral X25519 agreement framed as encapsulate/decapsulate.
	AlgorithmX25519 Algorithm = "X25519"

	// AlgorithmNone marks a participant with no negotiated key
	// material. Such records are membership-only.
	AlgorithmNone Algorithm = ""
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	if a == AlgorithmNone {
		return "none"
	}
	return string(a)
}

// IsValid returns true if the algorithm is one this package implements.
func (a Algorithm) IsValid() bool {
	switch a {
	case AlgorithmMLKEM1024, AlgorithmMLKEM768, AlgorithmX25519:
		return true
	default:
		return false
	}
}

// IsPostQuantum reports whether the algorithm is a post-quantum KEM.
func (a Algorithm) IsPostQuantum() bool {
	return a == AlgorithmMLKEM1024 || a == AlgorithmMLKEM768
}

// DefaultAlgorithms is the local capability list, ordered strongest first.
func DefaultAlgorithms() []Algorithm {
	return []Algorithm{AlgorithmMLKEM1024, AlgorithmMLKEM768, AlgorithmX25519}
}

// Capabilities is the metadata a participant attaches to its presence
// record. SupportedAlgorithms is ordered strongest first; PublicKeys holds
// the participant's encapsulation key per declared algorithm.
type Capabilities struct {
	DeviceID            string               `json:"deviceId"`
	Platform            string               `json:"platform"`
	Browser             string               `json:"browser,omitempty"`
	QuantumCapable      bool                 `json:"quantumCapable"`
	SupportedAlgorithms []Algorithm          `json:"supportedAlgorithms"`
	PublicKeys          map[Algorithm][]byte `json:"publicKeys,omitempty"`
}

// PublicKey returns the declared public key for the algorithm.
func (c Capabilities) PublicKey(alg Algorithm) ([]byte, bool) {
	key, ok := c.PublicKeys[alg]
	if !ok || len(key) == 0 {
		return nil, false
	}
	return key, true
}

// Supports reports whether the capability list declares the algorithm.
func (c Capabilities) Supports(alg Algorithm) bool {
	for _, a := range c.SupportedAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// Negotiate selects the algorithm for one participant: the first mutually
// supported post-quantum algorithm in the remote capability list. The
// remote list is strongest-first by contract, so its declaration order is
// the tie-break between mutually supported algorithms. With no shared
// post-quantum algorithm the classical fallback is chosen.
//
// The choice is per participant: one session may hold quantum-secured and
// classically-secured links at the same time.
func Negotiate(local []Algorithm, remote Capabilities) (Algorithm, error) {
	if len(local) == 0 {
		return AlgorithmNone, ErrNoLocalAlgorithms
	}

	supported := make(map[Algorithm]bool, len(local))
	for _, a := range local {
		supported[a] = true
	}

	for _, a := range remote.SupportedAlgorithms {
		if a.IsPostQuantum() && supported[a] {
			return a, nil
		}
	}

	return AlgorithmX25519, nil
}
