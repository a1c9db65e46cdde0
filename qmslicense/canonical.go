package qmslicense

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"time"
)

var (
	fingerprintPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)
	moduleCode         = regexp.MustCompile(`^(\*|[a-z0-9][a-z0-9_-]*(\.[a-z0-9][a-z0-9_-]*)*)$`)
)

// segmentEncoding is unpadded base64url that rejects non-zero trailing bits,
// so every token has exactly one textual form.
var segmentEncoding = base64.RawURLEncoding.Strict()

const tokenSeparator = "."

// wirePayload fixes the field order of the canonical encoding.
// Do not reorder fields without bumping PayloadVersion.
type wirePayload struct {
	Version     *int       `json:"v"`
	Issuer      *string    `json:"iss"`
	LicenseID   *string    `json:"lid"`
	Subject     *string    `json:"sub"`
	Tier        *Tier      `json:"tier"`
	Modules     []string   `json:"modules"`
	Limits      *wireLimit `json:"limits"`
	IssuedAt    *int64     `json:"iat"`
	ExpiresAt   *int64     `json:"exp"`
	GraceDays   *int       `json:"grace_days"`
	Fingerprint string     `json:"fingerprint,omitempty"`
}

type wireLimit struct {
	MaxUsers     *Limit `json:"max_users"`
	MaxStorageGB *Limit `json:"max_storage_gb"`
}

// ValidFingerprint reports whether fp has the form sha256:<64 lowercase hex>.
func ValidFingerprint(fp string) bool {
	return fingerprintPattern.MatchString(fp)
}

// MarshalCanonical returns the single byte encoding of p that is signed and
// verified. Modules are sorted; timestamps are integer seconds since epoch.
func MarshalCanonical(p Payload) ([]byte, error) {
	if err := checkPayload(p); err != nil {
		return nil, err
	}
	modules := make([]string, len(p.Modules))
	copy(modules, p.Modules)
	sort.Strings(modules)

	iat, exp := p.IssuedAt.Unix(), p.ExpiresAt.Unix()
	w := wirePayload{
		Version:   &p.Version,
		Issuer:    &p.Issuer,
		LicenseID: &p.LicenseID,
		Subject:   &p.Organization,
		Tier:      &p.Tier,
		Modules:   modules,
		Limits: &wireLimit{
			MaxUsers:     &p.Limits.MaxUsers,
			MaxStorageGB: &p.Limits.MaxStorageGB,
		},
		IssuedAt:    &iat,
		ExpiresAt:   &exp,
		GraceDays:   &p.GraceDays,
		Fingerprint: p.Fingerprint,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalCanonical parses canonical bytes. It rejects unknown or missing
// fields, and any encoding that MarshalCanonical would not have produced.
func UnmarshalCanonical(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wirePayload
	if err := dec.Decode(&w); err != nil {
		return Payload{}, &MalformedTokenError{Reason: fmt.Sprintf("decode payload: %v", err)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Payload{}, &MalformedTokenError{Reason: "trailing data after payload"}
	}

	missing := ""
	switch {
	case w.Version == nil:
		missing = "v"
	case w.Issuer == nil:
		missing = "iss"
	case w.LicenseID == nil:
		missing = "lid"
	case w.Subject == nil:
		missing = "sub"
	case w.Tier == nil:
		missing = "tier"
	case w.Modules == nil:
		missing = "modules"
	case w.Limits == nil:
		missing = "limits"
	case w.Limits.MaxUsers == nil:
		missing = "limits.max_users"
	case w.Limits.MaxStorageGB == nil:
		missing = "limits.max_storage_gb"
	case w.IssuedAt == nil:
		missing = "iat"
	case w.ExpiresAt == nil:
		missing = "exp"
	case w.GraceDays == nil:
		missing = "grace_days"
	}
	if missing != "" {
		return Payload{}, &MalformedTokenError{Reason: fmt.Sprintf("payload is missing %q", missing)}
	}
	if *w.Version != PayloadVersion {
		return Payload{}, &MalformedTokenError{Reason: fmt.Sprintf("unsupported payload version %d", *w.Version)}
	}

	p := Payload{
		Version:      *w.Version,
		Issuer:       *w.Issuer,
		LicenseID:    *w.LicenseID,
		Organization: *w.Subject,
		Tier:         *w.Tier,
		Modules:      w.Modules,
		Limits:       Limits{MaxUsers: *w.Limits.MaxUsers, MaxStorageGB: *w.Limits.MaxStorageGB},
		IssuedAt:     time.Unix(*w.IssuedAt, 0).UTC(),
		ExpiresAt:    time.Unix(*w.ExpiresAt, 0).UTC(),
		GraceDays:    *w.GraceDays,
		Fingerprint:  w.Fingerprint,
	}

	again, err := MarshalCanonical(p)
	if err != nil {
		return Payload{}, &MalformedTokenError{Reason: err.Error()}
	}
	if !bytes.Equal(again, data) {
		return Payload{}, &MalformedTokenError{Reason: "payload is not in canonical form"}
	}
	return p, nil
}

// checkPayload enforces the invariants every signed payload satisfies.
func checkPayload(p Payload) error {
	switch {
	case p.Version != PayloadVersion:
		return newValidationError("version", "unsupported version %d", p.Version)
	case p.Organization == "":
		return newValidationError("organization", "must not be empty")
	case !p.Tier.Valid():
		return newValidationError("tier", "unknown tier %q", p.Tier)
	case !p.Limits.MaxUsers.Valid():
		return newValidationError("max_users", "invalid limit %d", p.Limits.MaxUsers)
	case !p.Limits.MaxStorageGB.Valid():
		return newValidationError("max_storage_gb", "invalid limit %d", p.Limits.MaxStorageGB)
	case p.IssuedAt.IsZero() || p.ExpiresAt.IsZero():
		return newValidationError("issued_at", "timestamps must be set")
	case !p.ExpiresAt.After(p.IssuedAt):
		return newValidationError("expires_at", "must be after issued_at")
	case p.GraceDays < 0:
		return newValidationError("grace_days", "must not be negative")
	case p.GraceDays > MaxGraceDays:
		return newValidationError("grace_days", "must not exceed %d", MaxGraceDays)
	case p.Fingerprint != "" && !ValidFingerprint(p.Fingerprint):
		return newValidationError("fingerprint", "must match sha256:<64 lowercase hex>")
	}
	seen := make(map[string]bool, len(p.Modules))
	for _, m := range p.Modules {
		if !moduleCode.MatchString(m) {
			return newValidationError("modules", "invalid module code %q", m)
		}
		if seen[m] {
			return newValidationError("modules", "duplicate module %q", m)
		}
		seen[m] = true
	}
	return nil
}

func encodeToken(canonical, sig []byte) Token {
	return Token(segmentEncoding.EncodeToString(canonical) + tokenSeparator + segmentEncoding.EncodeToString(sig))
}
