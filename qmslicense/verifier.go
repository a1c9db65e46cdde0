package qmslicense

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// maxTokenBytes bounds the size of a token read from disk.
const maxTokenBytes = 64 << 10

// Verifier checks tokens against one trusted public key without any network
// access. It holds no mutable state and may be shared between goroutines.
type Verifier struct {
	pub                PublicKey
	scheme             SignatureScheme
	currentFingerprint string
	concurrency        int
	metrics            *Metrics
}

// NewVerifier creates a Verifier trusting pub. The key is copied.
func NewVerifier(pub PublicKey, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		pub:         append(PublicKey(nil), pub...),
		scheme:      DefaultScheme,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify verifies token with pub using DefaultScheme. currentFingerprint may
// be empty, in which case a bound license is not checked against hardware.
func Verify(token Token, pub PublicKey, now time.Time, currentFingerprint string) VerificationResult {
	return NewVerifier(pub, WithCurrentFingerprint(currentFingerprint)).Verify(token, now)
}

// Verify runs the verification steps in order and stops at the first failure:
//  1. Split and decode both segments, parse the canonical payload (MALFORMED)
//  2. Verify the signature over the decoded payload bytes (INVALID_SIGNATURE)
//  3. Compare the bound fingerprint with the current one (FINGERPRINT_MISMATCH)
//  4. Evaluate time: VALID until exp, GRACE until exp+grace_days, then EXPIRED
func (v *Verifier) Verify(token Token, now time.Time) VerificationResult {
	r := v.verify(token, now)
	v.metrics.observeVerification(r.status)
	return r
}

func (v *Verifier) verify(token Token, now time.Time) VerificationResult {
	canonical, sig, payload, err := parseToken(token)
	if err != nil {
		return newResult(StatusMalformed, nil, err.Reason, err)
	}

	// Nothing in payload is trusted past this point unless the signature holds.
	if err := v.scheme.Verify(canonical, sig, v.pub); err != nil {
		return newResult(StatusInvalidSignature, nil, err.Error(), err)
	}

	if payload.Fingerprint != "" && v.currentFingerprint != "" && payload.Fingerprint != v.currentFingerprint {
		return newResult(StatusFingerprintMismatch, &payload,
			"license is bound to a different installation", ErrFingerprintMismatch)
	}

	now = now.UTC()
	switch {
	case !now.After(payload.ExpiresAt):
		return newResult(StatusValid, &payload,
			fmt.Sprintf("valid until %s", payload.ExpiresAt.Format(time.RFC3339)), nil)
	case !now.After(payload.GraceEndsAt()):
		return newResult(StatusGrace, &payload,
			fmt.Sprintf("expired at %s, grace period ends %s",
				payload.ExpiresAt.Format(time.RFC3339), payload.GraceEndsAt().Format(time.RFC3339)), nil)
	default:
		return newResult(StatusExpired, &payload,
			fmt.Sprintf("expired at %s, grace period ended %s",
				payload.ExpiresAt.Format(time.RFC3339), payload.GraceEndsAt().Format(time.RFC3339)), nil)
	}
}

// parseToken splits and decodes token without checking the signature.
func parseToken(token Token) (canonical, sig []byte, p Payload, err *MalformedTokenError) {
	raw := strings.TrimSpace(string(token))
	if raw == "" {
		return nil, nil, Payload{}, &MalformedTokenError{Reason: "token is empty"}
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return nil, nil, Payload{}, &MalformedTokenError{Reason: "token contains whitespace"}
	}

	parts := strings.Split(raw, tokenSeparator)
	if len(parts) != 2 {
		return nil, nil, Payload{}, &MalformedTokenError{Reason: fmt.Sprintf("expected 2 segments, got %d", len(parts))}
	}

	canonical, decErr := segmentEncoding.DecodeString(parts[0])
	if decErr != nil {
		return nil, nil, Payload{}, &MalformedTokenError{Reason: fmt.Sprintf("payload segment: %v", decErr)}
	}
	sig, decErr = segmentEncoding.DecodeString(parts[1])
	if decErr != nil {
		return nil, nil, Payload{}, &MalformedTokenError{Reason: fmt.Sprintf("signature segment: %v", decErr)}
	}

	p, parseErr := UnmarshalCanonical(canonical)
	if parseErr != nil {
		var mte *MalformedTokenError
		if !errors.As(parseErr, &mte) {
			mte = &MalformedTokenError{Reason: parseErr.Error()}
		}
		return nil, nil, Payload{}, mte
	}
	return canonical, sig, p, nil
}

// Inspect decodes the payload of token WITHOUT verifying its signature.
// The result must not be used for any entitlement decision; it exists for
// support tooling that needs to show what a token claims.
func Inspect(token Token) (Payload, error) {
	_, _, p, err := parseToken(token)
	if err != nil {
		return Payload{}, err
	}
	return p, nil
}

// VerifyFile reads a single-line token file from fs and verifies it.
func (v *Verifier) VerifyFile(fs afero.Fs, path string, now time.Time) (VerificationResult, error) {
	token, err := ReadTokenFile(fs, path)
	if err != nil {
		return VerificationResult{}, err
	}
	return v.Verify(token, now), nil
}

// VerifyAll verifies tokens concurrently. Results are in input order.
// It returns early only if ctx is cancelled.
func (v *Verifier) VerifyAll(ctx context.Context, tokens []Token, now time.Time) ([]VerificationResult, error) {
	results := make([]VerificationResult, len(tokens))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, tok := range tokens {
		i, tok := i, tok
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = v.Verify(tok, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ReadTokenFile reads a token written by WriteTokenFile or the CLI.
func ReadTokenFile(fs afero.Fs, path string) (Token, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return "", &IOError{Op: "stat", Path: path, Err: err}
	}
	if info.Size() > maxTokenBytes {
		return "", &IOError{Op: "read", Path: path, Err: fmt.Errorf("file is %d bytes, limit is %d", info.Size(), maxTokenBytes)}
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", &IOError{Op: "read", Path: path, Err: err}
	}
	return Token(strings.TrimSpace(string(data))), nil
}

// WriteTokenFile writes token to path as a single line.
func WriteTokenFile(fs afero.Fs, path string, token Token) error {
	if err := afero.WriteFile(fs, path, []byte(token.String()+"\n"), 0o644); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
