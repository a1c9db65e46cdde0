package qmslicense

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_Superset(t *testing.T) {
	c := DefaultCatalog()
	for i := 1; i < len(Tiers); i++ {
		lower, err := c.DefaultsFor(Tiers[i-1])
		require.NoError(t, err)
		upper, err := c.DefaultsFor(Tiers[i])
		require.NoError(t, err)
		assert.Empty(t, missingModules(lower.Modules, upper.Modules),
			"%s must include every %s module", Tiers[i], Tiers[i-1])
		assert.Greater(t, len(upper.Modules), len(lower.Modules))
	}
}

func TestDefaultCatalog_Limits(t *testing.T) {
	c := DefaultCatalog()
	tests := []struct {
		tier    Tier
		users   Limit
		storage Limit
	}{
		{TierStart, 5, 5},
		{TierStandard, 15, 20},
		{TierPro, 50, 100},
		{TierIndustry, 200, 500},
		{TierCorp, Unlimited, Unlimited},
	}
	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			d, err := c.DefaultsFor(tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.users, d.MaxUsers)
			assert.Equal(t, tt.storage, d.MaxStorageGB)
		})
	}
}

func TestTierCatalog_DefaultsForReturnsCopy(t *testing.T) {
	c := DefaultCatalog()
	d, err := c.DefaultsFor(TierStart)
	require.NoError(t, err)
	d.Modules[0] = "mutated"

	again, err := c.DefaultsFor(TierStart)
	require.NoError(t, err)
	assert.NotContains(t, again.Modules, "mutated")

	_, err = c.DefaultsFor("gold")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewTierCatalog_Rejects(t *testing.T) {
	full := func() map[Tier]TierDefaults {
		return map[Tier]TierDefaults{
			TierStart:    {Modules: []string{"a"}, MaxUsers: 1, MaxStorageGB: 1},
			TierStandard: {Modules: []string{"a", "b"}, MaxUsers: 2, MaxStorageGB: 2},
			TierPro:      {Modules: []string{"a", "b", "c"}, MaxUsers: 3, MaxStorageGB: 3},
			TierIndustry: {Modules: []string{"a", "b", "c", "d"}, MaxUsers: 4, MaxStorageGB: 4},
			TierCorp:     {Modules: []string{"a", "b", "c", "d", "e"}, MaxUsers: Unlimited, MaxStorageGB: Unlimited},
		}
	}
	_, err := NewTierCatalog(full())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(map[Tier]TierDefaults)
	}{
		{name: "missing tier", mutate: func(m map[Tier]TierDefaults) { delete(m, TierPro) }},
		{name: "unknown tier", mutate: func(m map[Tier]TierDefaults) { m["gold"] = m[TierCorp] }},
		{name: "not a superset", mutate: func(m map[Tier]TierDefaults) {
			m[TierPro] = TierDefaults{Modules: []string{"a", "c"}, MaxUsers: 3, MaxStorageGB: 3}
		}},
		{name: "no modules", mutate: func(m map[Tier]TierDefaults) {
			m[TierStart] = TierDefaults{MaxUsers: 1, MaxStorageGB: 1}
		}},
		{name: "bad limit", mutate: func(m map[Tier]TierDefaults) {
			d := m[TierStart]
			d.MaxUsers = -3
			m[TierStart] = d
		}},
		{name: "bad module code", mutate: func(m map[Tier]TierDefaults) {
			d := m[TierCorp]
			d.Modules = append(d.Modules, "Not Valid")
			m[TierCorp] = d
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := full()
			tt.mutate(m)
			_, err := NewTierCatalog(m)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestLoadTierCatalog(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/qms/tiers.yaml", []byte(`
start:
  modules: [qms.dms]
  max_users: 3
  max_storage_gb: 2
standard:
  modules: [qms.dms, qms.capa]
  max_users: 10
  max_storage_gb: 10
pro:
  modules: [qms.dms, qms.capa]
  max_users: 25
  max_storage_gb: 50
industry:
  modules: [qms.dms, qms.capa, mes.orders]
  max_users: 100
  max_storage_gb: unlimited
corp:
  modules: ["*"]
  max_users: unlimited
  max_storage_gb: unlimited
`), 0o644))

	c, err := LoadTierCatalog(fs, "/etc/qms/tiers.yaml")
	require.NoError(t, err)

	d, err := c.DefaultsFor(TierIndustry)
	require.NoError(t, err)
	assert.Equal(t, []string{"mes.orders", "qms.capa", "qms.dms"}, d.Modules)
	assert.Equal(t, Limit(100), d.MaxUsers)
	assert.Equal(t, Unlimited, d.MaxStorageGB)

	t.Run("unknown key", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fs, "bad.yaml", []byte("start:\n  modulez: [a]\n"), 0o644))
		_, err := LoadTierCatalog(fs, "bad.yaml")
		assert.ErrorIs(t, err, ErrValidation)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTierCatalog(fs, "nope.yaml")
		assert.ErrorIs(t, err, ErrIO)
	})
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" PRO ")
	require.NoError(t, err)
	assert.Equal(t, TierPro, tier)
	assert.Equal(t, "Про", tier.DisplayName())
	assert.Equal(t, 2, tier.Rank())

	_, err = ParseTier("gold")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, -1, Tier("gold").Rank())
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    Limit
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "50", want: 50},
		{in: " unlimited ", want: Unlimited},
		{in: "Unlimited", want: Unlimited},
		{in: "-1", wantErr: true},
		{in: "ten", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLimit(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "unlimited", Unlimited.String())
	assert.Equal(t, "42", Limit(42).String())
}
