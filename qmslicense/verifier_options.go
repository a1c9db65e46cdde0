package qmslicense

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithCurrentFingerprint sets the fingerprint of the installation doing the
// verification. Bound licenses whose fingerprint differs are rejected with
// FINGERPRINT_MISMATCH. When unset, the binding is not checked.
func WithCurrentFingerprint(fp string) VerifierOption {
	return func(v *Verifier) {
		v.currentFingerprint = fp
	}
}

// WithScheme sets the signature scheme. Default: DefaultScheme.
func WithScheme(s SignatureScheme) VerifierOption {
	return func(v *Verifier) {
		v.scheme = s
	}
}

// WithConcurrency bounds the number of tokens VerifyAll checks at once. Default: 8.
func WithConcurrency(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithMetrics records every verification outcome in m.
func WithMetrics(m *Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = m
	}
}
