package qmslicense

// Signer produces tokens with one private key. It holds no mutable state and
// may be shared between goroutines.
type Signer struct {
	priv   PrivateKey
	scheme SignatureScheme
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithSignerScheme sets the signature scheme. Default: DefaultScheme.
func WithSignerScheme(s SignatureScheme) SignerOption {
	return func(sg *Signer) {
		sg.scheme = s
	}
}

// NewSigner creates a Signer for priv. The key is copied.
func NewSigner(priv PrivateKey, opts ...SignerOption) *Signer {
	s := &Signer{
		priv:   append(PrivateKey(nil), priv...),
		scheme: DefaultScheme,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign canonicalizes payload and signs the canonical bytes.
func (s *Signer) Sign(payload Payload) (Token, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", err
	}
	sig, err := s.scheme.Sign(canonical, s.priv)
	if err != nil {
		return "", err
	}
	return encodeToken(canonical, sig), nil
}

// Sign signs payload with priv using DefaultScheme.
func Sign(payload Payload, priv PrivateKey) (Token, error) {
	return NewSigner(priv).Sign(payload)
}
