package qmslicense

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
)

// PublicKey is a raw verification key for the configured SignatureScheme.
type PublicKey []byte

// PrivateKey is a raw signing key for the configured SignatureScheme.
// It is owned by the issuing authority and never embedded in a token.
type PrivateKey []byte

// KeyPair holds a matching public and private key.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// SignatureScheme is the asymmetric signature primitive the issuer and
// verifier are built on. Implementations must be safe for concurrent use.
type SignatureScheme interface {
	GenerateKeyPair() (KeyPair, error)
	Sign(message []byte, priv PrivateKey) ([]byte, error)
	Verify(message, sig []byte, pub PublicKey) error
}

// Ed25519 implements SignatureScheme with crypto/ed25519.
// The zero value reads randomness from crypto/rand.
type Ed25519 struct {
	// Rand overrides the entropy source for key generation.
	Rand io.Reader
}

// DefaultScheme is the scheme used when none is configured.
var DefaultScheme SignatureScheme = Ed25519{}

func (s Ed25519) GenerateKeyPair() (KeyPair, error) {
	r := s.Rand
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return KeyPair{Public: PublicKey(pub), Private: PrivateKey(priv)}, nil
}

func (Ed25519) Sign(message []byte, priv PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, &SignatureError{
			Cause:  ErrPrivateKeyInvalid,
			Reason: fmt.Sprintf("key length %d, expected %d", len(priv), ed25519.PrivateKeySize),
		}
	}
	return ed25519.Sign(ed25519.PrivateKey(priv), message), nil
}

func (Ed25519) Verify(message, sig []byte, pub PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return &SignatureError{
			Cause:  ErrPublicKeyInvalid,
			Reason: fmt.Sprintf("key length %d, expected %d", len(pub), ed25519.PublicKeySize),
		}
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return &SignatureError{Cause: ErrSignatureInvalid}
	}
	return nil
}
