package qmslicense

import (
	"math"
	"time"
)

// Status is the terminal state of a verification.
type Status int

const (
	StatusMalformed Status = iota
	StatusInvalidSignature
	StatusFingerprintMismatch
	StatusExpired
	StatusGrace
	StatusValid
)

var statusNames = map[Status]string{
	StatusValid:               "VALID",
	StatusGrace:               "GRACE",
	StatusExpired:             "EXPIRED",
	StatusInvalidSignature:    "INVALID_SIGNATURE",
	StatusMalformed:           "MALFORMED",
	StatusFingerprintMismatch: "FINGERPRINT_MISMATCH",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Usable reports whether the license may be used: VALID or GRACE.
func (s Status) Usable() bool {
	return s == StatusValid || s == StatusGrace
}

// VerificationResult is the immutable outcome of verifying one token.
type VerificationResult struct {
	status  Status
	payload *Payload
	reason  string
	err     error
}

func newResult(status Status, payload *Payload, reason string, err error) VerificationResult {
	r := VerificationResult{status: status, reason: reason, err: err}
	if payload != nil {
		p := payload.clone()
		r.payload = &p
	}
	return r
}

// Status returns the verification status.
func (r VerificationResult) Status() Status {
	return r.status
}

// Payload returns a copy of the decoded payload. ok is false for MALFORMED
// and INVALID_SIGNATURE results, which never expose payload fields.
func (r VerificationResult) Payload() (p Payload, ok bool) {
	if r.payload == nil {
		return Payload{}, false
	}
	return r.payload.clone(), true
}

// Reason is a human-readable explanation of the status.
func (r VerificationResult) Reason() string {
	return r.reason
}

// Err returns the typed error behind a rejected token: a *MalformedTokenError,
// a *SignatureError, or ErrFingerprintMismatch. Expiry is a status, not an
// error, so Err is nil for VALID, GRACE and EXPIRED.
func (r VerificationResult) Err() error {
	return r.err
}

// Usable reports whether the license may be used: VALID or GRACE.
func (r VerificationResult) Usable() bool {
	return r.status.Usable()
}

// ReadOnly reports whether an authentic license is past its grace period.
// Deployments switch to read-only mode in that state.
func (r VerificationResult) ReadOnly() bool {
	return r.status == StatusExpired
}

// DaysRemaining is the number of whole or partial days left until expiry
// (VALID) or until the end of the grace period (GRACE). It is 0 otherwise.
func (r VerificationResult) DaysRemaining(now time.Time) int {
	if r.payload == nil {
		return 0
	}
	var until time.Time
	switch r.status {
	case StatusValid:
		until = r.payload.ExpiresAt
	case StatusGrace:
		until = r.payload.GraceEndsAt()
	default:
		return 0
	}
	left := until.Sub(now).Seconds()
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left / secondsPerDay))
}
