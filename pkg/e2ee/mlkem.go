package e2ee

import (
	"crypto/mlkem"
	"fmt"
)

// mlkem1024Suite implements Suite over ML-KEM-1024 (FIPS 203).
type mlkem1024Suite struct{}

func (mlkem1024Suite) Algorithm() Algorithm { return AlgorithmMLKEM1024 }

func (mlkem1024Suite) GenerateKeyPair() (*KeyPair, error) {
	dk, err := mlkem.GenerateKey1024()
	if err != nil {
		return nil, fmt.Errorf("e2ee: generate ML-KEM-1024 key: %w", err)
	}
	return &KeyPair{
		alg:     AlgorithmMLKEM1024,
		public:  dk.EncapsulationKey().Bytes(),
		private: dk,
	}, nil
}

func (mlkem1024Suite) Encapsulate(peerPublic []byte) ([]byte, []byte, error) {
	ek, err := mlkem.NewEncapsulationKey1024(peerPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	secret, ciphertext := ek.Encapsulate()
	return ciphertext, secret, nil
}

func (mlkem1024Suite) Decapsulate(kp *KeyPair, ciphertext []byte) ([]byte, error) {
	dk, ok := kp.private.(*mlkem.DecapsulationKey1024)
	if !ok {
		return nil, ErrAlgorithmMismatch
	}
	secret, err := dk.Decapsulate(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("e2ee: ML-KEM-1024 decapsulate: %w", err)
	}
	return secret, nil
}

// mlkem768Suite implements Suite over ML-KEM-768 (FIPS 203).
type mlkem768Suite struct{}

func (mlkem768Suite) Algorithm() Algorithm { return AlgorithmMLKEM768 }

func (mlkem768Suite) GenerateKeyPair() (*KeyPair, error) {
	dk, err := mlkem.GenerateKey768()
	if err != nil {
		return nil, fmt.Errorf("e2ee: generate ML-KEM-768 key: %w", err)
	}
	return &KeyPair{
		alg:     AlgorithmMLKEM768,
		public:  dk.EncapsulationKey().Bytes(),
		private: dk,
	}, nil
}

func (mlkem768Suite) Encapsulate(peerPublic []byte) ([]byte, []byte, error) {
	ek, err := mlkem.NewEncapsulationKey768(peerPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	secret, ciphertext := ek.Encapsulate()
	return ciphertext, secret, nil
}

func (mlkem768Suite) Decapsulate(kp *KeyPair, ciphertext []byte) ([]byte, error) {
	dk, ok := kp.private.(*mlkem.DecapsulationKey768)
	if !ok {
		return nil, ErrAlgorithmMismatch
	}
	secret, err := dk.Decapsulate(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("e2ee: ML-KEM-768 decapsulate: %w", err)
	}
	return secret, nil
}
