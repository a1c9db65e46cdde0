package qmslicense

import (
	"errors"
	"fmt"
)

// Sentinel errors for license issuance.
var (
	ErrValidation = errors.New("invalid license parameters")
	ErrIO         = errors.New("license file i/o failed")
	ErrKeysExist  = errors.New("key files already exist")
)

// Sentinel errors for offline license verification.
var (
	ErrMalformedToken      = errors.New("malformed license token")
	ErrSignatureInvalid    = errors.New("signature verification failed")
	ErrPublicKeyInvalid    = errors.New("invalid public key")
	ErrPrivateKeyInvalid   = errors.New("invalid private key")
	ErrFingerprintMismatch = errors.New("installation fingerprint mismatch")
)

// Sentinel errors for entitlement enforcement.
var (
	ErrUserLimitExceeded    = errors.New("user limit exceeded")
	ErrStorageLimitExceeded = errors.New("storage limit exceeded")
	ErrModuleNotLicensed    = errors.New("module not licensed")
)

// ValidationError reports a bad or missing issuance parameter.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IOError reports a key or token file read, write, or permission failure.
// It matches ErrIO, and whatever Err matches, with errors.Is.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// MalformedTokenError reports a token that could not be parsed.
type MalformedTokenError struct {
	Reason string
}

func (e *MalformedTokenError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedToken, e.Reason)
}

func (e *MalformedTokenError) Is(target error) bool {
	return target == ErrMalformedToken
}

// SignatureError reports a signature that is present but does not verify,
// or a key that cannot be used for the operation. Cause is one of
// ErrSignatureInvalid, ErrPublicKeyInvalid or ErrPrivateKeyInvalid.
type SignatureError struct {
	Cause  error
	Reason string
}

func (e *SignatureError) Error() string {
	if e.Reason == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %s", e.Cause, e.Reason)
}

// Is matches ErrSignatureInvalid for verification failures, including an
// unusable public key. A bad private key only matches ErrPrivateKeyInvalid.
func (e *SignatureError) Is(target error) bool {
	return target == ErrSignatureInvalid && e.Cause == ErrPublicKeyInvalid
}

func (e *SignatureError) Unwrap() error {
	return e.Cause
}
