package qmslicense

import (
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// WildcardModule grants every module when present in a payload.
const WildcardModule = "*"

// TierDefaults is what a tier grants when issuance does not override it.
type TierDefaults struct {
	Modules      []string `yaml:"modules"`
	MaxUsers     Limit    `yaml:"max_users"`
	MaxStorageGB Limit    `yaml:"max_storage_gb"`
}

// TierCatalog maps each tier to its default modules and limits.
// A catalog is read-only once constructed.
type TierCatalog struct {
	tiers map[Tier]TierDefaults
}

// NewTierCatalog validates entries and returns a catalog. Every tier must be
// present, and each tier's modules must include all modules of the tier
// below it.
func NewTierCatalog(entries map[Tier]TierDefaults) (*TierCatalog, error) {
	c := &TierCatalog{tiers: make(map[Tier]TierDefaults, len(Tiers))}
	for t := range entries {
		if !t.Valid() {
			return nil, newValidationError("tier", "unknown tier %q in catalog", t)
		}
	}

	var prev Tier
	for _, t := range Tiers {
		d, ok := entries[t]
		if !ok {
			return nil, newValidationError("tier", "catalog has no entry for tier %q", t)
		}
		if !d.MaxUsers.Valid() {
			return nil, newValidationError("max_users", "tier %q: invalid limit %d", t, d.MaxUsers)
		}
		if !d.MaxStorageGB.Valid() {
			return nil, newValidationError("max_storage_gb", "tier %q: invalid limit %d", t, d.MaxStorageGB)
		}
		modules, err := normalizeModules(d.Modules)
		if err != nil {
			return nil, err
		}
		if len(modules) == 0 {
			return nil, newValidationError("modules", "tier %q has no modules", t)
		}
		d.Modules = modules

		if prev != "" {
			if missing := missingModules(c.tiers[prev].Modules, modules); len(missing) > 0 {
				return nil, newValidationError("modules", "tier %q lacks modules of tier %q: %s",
					t, prev, strings.Join(missing, ", "))
			}
		}
		c.tiers[t] = d
		prev = t
	}
	return c, nil
}

// DefaultsFor returns a copy of the defaults for tier.
func (c *TierCatalog) DefaultsFor(tier Tier) (TierDefaults, error) {
	d, ok := c.tiers[tier]
	if !ok {
		return TierDefaults{}, newValidationError("tier", "unknown tier %q", tier)
	}
	d.Modules = append([]string(nil), d.Modules...)
	return d, nil
}

// missingModules returns the entries of lower that upper does not grant.
func missingModules(lower, upper []string) []string {
	granted := make(map[string]bool, len(upper))
	for _, m := range upper {
		granted[m] = true
	}
	if granted[WildcardModule] {
		return nil
	}
	var missing []string
	for _, m := range lower {
		if !granted[m] {
			missing = append(missing, m)
		}
	}
	return missing
}

// normalizeModules trims, de-duplicates and sorts module codes.
func normalizeModules(modules []string) ([]string, error) {
	seen := make(map[string]bool, len(modules))
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, newValidationError("modules", "module code must not be empty")
		}
		if !moduleCode.MatchString(m) {
			return nil, newValidationError("modules", "invalid module code %q", m)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// Module presets per tier.
var (
	startModules = []string{
		"qms.dms", "qms.nc", "qms.dashboard",
		"addon.pdf",
	}
	standardModules = append(append([]string(nil), startModules...),
		"qms.capa", "qms.complaints", "qms.risk",
		"wms.warehouse", "wms.movements",
		"ru.gost",
		"addon.excel",
	)
	proModules = append(append([]string(nil), standardModules...),
		"qms.changes", "qms.supplier", "qms.audit", "qms.training",
		"qms.equipment", "qms.review", "qms.product",
		"core.esign", "core.notifications",
		"wms.analytics", "wms.inventory", "wms.labels", "wms.alerts",
		"ru.rzn",
		"premium.readiness",
		"addon.mobile",
	)
	industryModules = append(append([]string(nil), proModules...),
		"qms.design", "qms.validation", "qms.pms",
		"wms.traceability",
		"mes.routes", "mes.orders", "mes.quality", "mes.dhr", "mes.dmr", "mes.kpi",
		"ru.1c", "ru.metrology",
		"premium.analytics",
	)
	corpModules = append(append([]string(nil), industryModules...),
		"erp.bom", "erp.mrp", "erp.procurement", "erp.costs",
		"premium.ai", "premium.lms", "premium.portal", "premium.multisite",
	)
)

// DefaultCatalog returns the built-in tier catalog.
func DefaultCatalog() *TierCatalog {
	c, err := NewTierCatalog(map[Tier]TierDefaults{
		TierStart:    {Modules: startModules, MaxUsers: 5, MaxStorageGB: 5},
		TierStandard: {Modules: standardModules, MaxUsers: 15, MaxStorageGB: 20},
		TierPro:      {Modules: proModules, MaxUsers: 50, MaxStorageGB: 100},
		TierIndustry: {Modules: industryModules, MaxUsers: 200, MaxStorageGB: 500},
		TierCorp:     {Modules: corpModules, MaxUsers: Unlimited, MaxStorageGB: Unlimited},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// LoadTierCatalog reads a catalog from a YAML file keyed by tier:
//
//	start:
//	  modules: [qms.dms, qms.nc]
//	  max_users: 5
//	  max_storage_gb: 5
//	corp:
//	  modules: ["*"]
//	  max_users: unlimited
//	  max_storage_gb: unlimited
func LoadTierCatalog(fs afero.Fs, path string) (*TierCatalog, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	var entries map[Tier]TierDefaults
	if err := yaml.UnmarshalStrict(data, &entries); err != nil {
		return nil, newValidationError("catalog", "parse %s: %v", path, err)
	}
	return NewTierCatalog(entries)
}

// UnmarshalYAML accepts an integer or the word "unlimited".
func (l *Limit) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseLimit(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
