package qmslicense

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
)

// FingerprintEnv overrides the computed installation fingerprint. The value
// must already be in sha256:<hex> form.
const FingerprintEnv = "QMS_FINGERPRINT"

const fingerprintPrefix = "sha256:"

// GenerateFingerprint returns a stable identifier of this installation in the
// form sha256:<64 lowercase hex>. It hashes the hostname, the sorted
// non-loopback MAC addresses, OS, architecture and /etc/machine-id (Linux).
//
// Containers often have no stable MACs or hostname. Set QMS_FINGERPRINT to
// pin the value in that case.
func GenerateFingerprint() (string, error) {
	if fp := strings.TrimSpace(os.Getenv(FingerprintEnv)); fp != "" {
		if !ValidFingerprint(fp) {
			return "", newValidationError(FingerprintEnv, "must match sha256:<64 lowercase hex>")
		}
		return fp, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("get hostname: %w", err)
	}
	parts := []string{hostname}

	// best-effort
	if macs, err := getMACAddresses(); err == nil {
		parts = append(parts, macs...)
	}

	parts = append(parts, runtime.GOOS, runtime.GOARCH)

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		parts = append(parts, strings.TrimSpace(string(machineID)))
	}
	return FingerprintOf(parts...), nil
}

// FingerprintOf hashes arbitrary installation attributes into a fingerprint.
// Applications with their own notion of identity (a deployment UUID, a
// cluster ID) can use it instead of GenerateFingerprint.
func FingerprintOf(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fingerprintPrefix + hex.EncodeToString(sum[:])
}

// getMACAddresses returns sorted, non-loopback hardware MAC addresses.
func getMACAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return macs, nil
}
