package qmslicense

import (
	"strconv"
	"strings"
	"time"
)

// PayloadVersion is the canonical encoding version written by this package.
// Any change to canonical.go is a new version.
const PayloadVersion = 1

// DefaultIssuer is written into the iss claim when no issuer is configured.
const DefaultIssuer = "asvo-license-service"

// DefaultGraceDays is the grace period applied when none is requested.
const DefaultGraceDays = 30

// MaxGraceDays is the longest grace period a payload may carry.
const MaxGraceDays = 3650

const secondsPerDay = 24 * 60 * 60

// Tier is a named entitlement level.
type Tier string

const (
	TierStart    Tier = "start"
	TierStandard Tier = "standard"
	TierPro      Tier = "pro"
	TierIndustry Tier = "industry"
	TierCorp     Tier = "corp"
)

// Tiers lists every tier in ascending order of capability.
var Tiers = []Tier{TierStart, TierStandard, TierPro, TierIndustry, TierCorp}

var tierNames = map[Tier]string{
	TierStart:    "Старт",
	TierStandard: "Стандарт",
	TierPro:      "Про",
	TierIndustry: "Индустрия",
	TierCorp:     "Корпорация",
}

// ParseTier returns the Tier named by s, ignoring case and surrounding space.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", newValidationError("tier", "unknown tier %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the five known tiers.
func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

// Rank is the tier's position in Tiers, or -1 for an unknown tier.
func (t Tier) Rank() int {
	for i, known := range Tiers {
		if t == known {
			return i
		}
	}
	return -1
}

// DisplayName is the customer-facing tier name.
func (t Tier) DisplayName() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return string(t)
}

func (t Tier) String() string {
	return string(t)
}

// Limit is a non-negative quota or Unlimited.
type Limit int64

// Unlimited is the sentinel for "no quota".
const Unlimited Limit = -1

// ParseLimit accepts a non-negative integer or the word "unlimited".
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unlimited") {
		return Unlimited, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, newValidationError("limit", "%q must be a non-negative integer or \"unlimited\"", s)
	}
	return Limit(n), nil
}

// IsUnlimited reports whether l is the Unlimited sentinel.
func (l Limit) IsUnlimited() bool {
	return l == Unlimited
}

// Valid reports whether l is non-negative or Unlimited.
func (l Limit) Valid() bool {
	return l >= 0 || l == Unlimited
}

func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// Limits holds the usage quotas granted by a license.
type Limits struct {
	MaxUsers     Limit
	MaxStorageGB Limit
}

// Payload is the signed entitlement record.
type Payload struct {
	Version      int
	Issuer       string
	LicenseID    string
	Organization string
	Tier         Tier
	Modules      []string
	Limits       Limits
	IssuedAt     time.Time
	ExpiresAt    time.Time
	GraceDays    int
	Fingerprint  string
}

// GraceEndsAt is the last instant at which the license reports GRACE.
func (p Payload) GraceEndsAt() time.Time {
	return time.Unix(p.ExpiresAt.Unix()+int64(p.GraceDays)*secondsPerDay, 0).UTC()
}

// Allows reports whether module is licensed. The "*" module grants everything.
func (p Payload) Allows(module string) bool {
	for _, m := range p.Modules {
		if m == module || m == WildcardModule {
			return true
		}
	}
	return false
}

// Bound reports whether the license is tied to an installation fingerprint.
func (p Payload) Bound() bool {
	return p.Fingerprint != ""
}

func (p Payload) clone() Payload {
	out := p
	if p.Modules != nil {
		out.Modules = append([]string(nil), p.Modules...)
	}
	return out
}

// Token is a signed license: base64url(canonical payload) "." base64url(signature).
type Token string

func (t Token) String() string {
	return string(t)
}
