package qmslicense

import (
	"fmt"
)

// CheckUsers verifies that currentUsers does not exceed the licensed user
// limit. An unlimited limit always passes.
func CheckUsers(limits Limits, currentUsers int64) error {
	if limits.MaxUsers.IsUnlimited() {
		return nil
	}
	if currentUsers > int64(limits.MaxUsers) {
		return fmt.Errorf("%w: %d users active, limit is %d", ErrUserLimitExceeded, currentUsers, limits.MaxUsers)
	}
	return nil
}

// CheckStorage verifies that usedGB does not exceed the licensed storage
// limit. An unlimited limit always passes.
func CheckStorage(limits Limits, usedGB float64) error {
	if limits.MaxStorageGB.IsUnlimited() {
		return nil
	}
	if usedGB > float64(limits.MaxStorageGB) {
		return fmt.Errorf("%w: %.2f GB used, limit is %d GB", ErrStorageLimitExceeded, usedGB, limits.MaxStorageGB)
	}
	return nil
}

// CheckModule verifies that module is part of the license.
func CheckModule(p Payload, module string) error {
	if !p.Allows(module) {
		return fmt.Errorf("%w: %q is not in the %s tier license", ErrModuleNotLicensed, module, p.Tier)
	}
	return nil
}

// Enforce checks a verification result against current usage. Only VALID and
// GRACE results pass; the returned error for other statuses is the result's
// own error, or a generic one for EXPIRED.
func Enforce(r VerificationResult, currentUsers int64, usedGB float64) error {
	if !r.Usable() {
		if err := r.Err(); err != nil {
			return err
		}
		return fmt.Errorf("license is %s: %s", r.Status(), r.Reason())
	}
	p, _ := r.Payload()
	if err := CheckUsers(p.Limits, currentUsers); err != nil {
		return err
	}
	return CheckStorage(p.Limits, usedGB)
}
