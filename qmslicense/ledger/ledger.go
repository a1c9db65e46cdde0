// Package ledger records issued licenses so that the issuing authority can
// list, audit and re-derive what it has signed. Verification never consults
// the ledger.
package ledger

import (
	"context"
	"errors"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned by Get when no record has the license ID.
	ErrNotFound = errors.New("license record not found")

	// ErrDuplicate is returned by Record when the license ID is already recorded.
	ErrDuplicate = errors.New("license record already exists")
)

// Record is the ledger entry for one signed token. Limits use -1 for
// unlimited. The token itself is not stored, only its SHA-256 digest.
type Record struct {
	LicenseID    string    `json:"license_id" bson:"license_id"`
	Issuer       string    `json:"issuer" bson:"issuer"`
	Organization string    `json:"organization" bson:"organization"`
	Tier         string    `json:"tier" bson:"tier"`
	Modules      []string  `json:"modules" bson:"modules"`
	MaxUsers     int64     `json:"max_users" bson:"max_users"`
	MaxStorageGB int64     `json:"max_storage_gb" bson:"max_storage_gb"`
	IssuedAt     time.Time `json:"issued_at" bson:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at" bson:"expires_at"`
	GraceDays    int       `json:"grace_days" bson:"grace_days"`
	Fingerprint  string    `json:"fingerprint,omitempty" bson:"fingerprint,omitempty"`
	TokenSHA256  string    `json:"token_sha256" bson:"token_sha256"`
	RecordedAt   time.Time `json:"recorded_at" bson:"recorded_at"`
}

// Filter narrows List and Count. Zero fields match everything.
type Filter struct {
	Organization string
	Tier         string
	// ExpiresBefore selects licenses whose exp is strictly before it.
	ExpiresBefore time.Time
}

func (f Filter) match(r Record) bool {
	if f.Organization != "" && r.Organization != f.Organization {
		return false
	}
	if f.Tier != "" && r.Tier != f.Tier {
		return false
	}
	if !f.ExpiresBefore.IsZero() && !r.ExpiresAt.Before(f.ExpiresBefore) {
		return false
	}
	return true
}

// Ledger stores issuance records.
type Ledger interface {
	// Record stores rec. It fails with ErrDuplicate if the license ID exists.
	Record(ctx context.Context, rec Record) error

	// Get returns the record for licenseID or ErrNotFound.
	Get(ctx context.Context, licenseID string) (*Record, error)

	// List returns matching records ordered by issue time.
	List(ctx context.Context, f Filter) ([]Record, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, f Filter) (int, error)

	// Close releases any resources held by the ledger.
	Close(ctx context.Context) error
}

// validIdentifier matches safe table and collection names.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
