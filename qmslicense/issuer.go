package qmslicense

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/asvo-qms/qms-license-sdk/qmslicense/ledger"
)

// Issuer is the top-level issuance API: it builds a payload from Params,
// signs it, and records the issuance in a ledger when one is configured.
type Issuer struct {
	builder *Builder
	signer  *Signer
	ledger  ledger.Ledger
	metrics *Metrics
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithBuilder sets the payload builder. Default: NewBuilder().
func WithBuilder(b *Builder) IssuerOption {
	return func(i *Issuer) {
		i.builder = b
	}
}

// WithLedger records every issued token in l.
func WithLedger(l ledger.Ledger) IssuerOption {
	return func(i *Issuer) {
		i.ledger = l
	}
}

// WithIssuerMetrics counts issued tokens by tier in m.
func WithIssuerMetrics(m *Metrics) IssuerOption {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// NewIssuer creates an Issuer signing with signer.
func NewIssuer(signer *Signer, opts ...IssuerOption) *Issuer {
	i := &Issuer{signer: signer}
	for _, opt := range opts {
		opt(i)
	}
	if i.builder == nil {
		i.builder = NewBuilder()
	}
	return i
}

// Issue builds, signs and records a license:
//  1. Validates params and applies tier defaults
//  2. Signs the canonical payload
//  3. Records the issuance in the ledger (if configured)
//
// The token is returned only if every step succeeds, so a token that was
// handed out is always in the ledger.
func (i *Issuer) Issue(ctx context.Context, params Params) (Token, Payload, error) {
	payload, err := i.builder.Build(params)
	if err != nil {
		return "", Payload{}, err
	}

	token, err := i.signer.Sign(payload)
	if err != nil {
		return "", Payload{}, fmt.Errorf("sign license: %w", err)
	}

	if i.ledger != nil {
		if err := i.ledger.Record(ctx, NewLedgerRecord(payload, token)); err != nil {
			return "", Payload{}, fmt.Errorf("record license %s: %w", payload.LicenseID, err)
		}
	}

	i.metrics.observeIssued(payload.Tier)
	return token, payload, nil
}

// NewLedgerRecord converts a signed payload into its ledger entry.
func NewLedgerRecord(p Payload, token Token) ledger.Record {
	return ledger.Record{
		LicenseID:    p.LicenseID,
		Issuer:       p.Issuer,
		Organization: p.Organization,
		Tier:         p.Tier.String(),
		Modules:      append([]string(nil), p.Modules...),
		MaxUsers:     int64(p.Limits.MaxUsers),
		MaxStorageGB: int64(p.Limits.MaxStorageGB),
		IssuedAt:     p.IssuedAt,
		ExpiresAt:    p.ExpiresAt,
		GraceDays:    p.GraceDays,
		Fingerprint:  p.Fingerprint,
		TokenSHA256:  TokenDigest(token),
	}
}

// TokenDigest is the hex SHA-256 of the token text. Ledgers store the digest
// so a token presented later can be matched to its record.
func TokenDigest(token Token) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
