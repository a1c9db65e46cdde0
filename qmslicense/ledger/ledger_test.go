package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(id, org, tier string, issued time.Time) Record {
	return Record{
		LicenseID:    id,
		Issuer:       "asvo-license-service",
		Organization: org,
		Tier:         tier,
		Modules:      []string{"documents", "nc"},
		MaxUsers:     5,
		MaxStorageGB: -1,
		IssuedAt:     issued,
		ExpiresAt:    issued.Add(365 * 24 * time.Hour),
		GraceDays:    30,
		TokenSHA256:  "ab" + id,
		RecordedAt:   issued,
	}
}

// runLedgerTests exercises the Ledger contract against l, which must be empty.
func runLedgerTests(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	a := testRecord("lic-a", "Acme", "start", base)
	b := testRecord("lic-b", "Acme", "pro", base.Add(time.Hour))
	c := testRecord("lic-c", "Globex", "start", base.Add(-time.Hour))
	c.ExpiresAt = base.Add(24 * time.Hour)

	for _, r := range []Record{a, b, c} {
		require.NoError(t, l.Record(ctx, r))
	}

	t.Run("duplicate", func(t *testing.T) {
		err := l.Record(ctx, a)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("get", func(t *testing.T) {
		got, err := l.Get(ctx, "lic-b")
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Organization)
		assert.Equal(t, "pro", got.Tier)
		assert.Equal(t, []string{"documents", "nc"}, got.Modules)
		assert.Equal(t, int64(-1), got.MaxStorageGB)
		assert.True(t, got.IssuedAt.Equal(b.IssuedAt))
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := l.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list all ordered by issue time", func(t *testing.T) {
		got, err := l.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"lic-c", "lic-a", "lic-b"},
			[]string{got[0].LicenseID, got[1].LicenseID, got[2].LicenseID})
	})

	t.Run("filter", func(t *testing.T) {
		tests := []struct {
			name   string
			filter Filter
			want   int
		}{
			{name: "organization", filter: Filter{Organization: "Acme"}, want: 2},
			{name: "tier", filter: Filter{Tier: "start"}, want: 2},
			{name: "organization and tier", filter: Filter{Organization: "Acme", Tier: "start"}, want: 1},
			{name: "expiring", filter: Filter{ExpiresBefore: base.Add(48 * time.Hour)}, want: 1},
			{name: "no match", filter: Filter{Organization: "Initech"}, want: 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				n, err := l.Count(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, tt.want, n)

				got, err := l.List(ctx, tt.filter)
				require.NoError(t, err)
				assert.Len(t, got, tt.want)
			})
		}
	})

	require.NoError(t, l.Close(ctx))
}

func TestMemoryLedger(t *testing.T) {
	runLedgerTests(t, NewMemoryLedger())
}

func TestMemoryLedger_SetsRecordedAt(t *testing.T) {
	l := NewMemoryLedger()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	rec := testRecord("lic-x", "Acme", "start", fixed)
	rec.RecordedAt = time.Time{}
	require.NoError(t, l.Record(context.Background(), rec))

	got, err := l.Get(context.Background(), "lic-x")
	require.NoError(t, err)
	assert.Equal(t, fixed, got.RecordedAt)
}

func TestMemoryLedger_ReturnsCopies(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	rec := testRecord("lic-x", "Acme", "start", time.Now())
	require.NoError(t, l.Record(ctx, rec))
	rec.Modules[0] = "changed"

	got, err := l.Get(ctx, "lic-x")
	require.NoError(t, err)
	got.Modules[1] = "changed"

	again, err := l.Get(ctx, "lic-x")
	require.NoError(t, err)
	assert.Equal(t, []string{"documents", "nc"}, again.Modules)
}

func TestFilterWhere(t *testing.T) {
	where, args := Filter{}.sqlWhere()
	assert.Empty(t, where)
	assert.Empty(t, args)

	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args = Filter{Organization: "Acme", ExpiresBefore: exp}.sqlWhere()
	assert.Equal(t, " WHERE organization = $1 AND expires_at < $2", where)
	assert.Equal(t, []any{"Acme", exp}, args)
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	_, err := NewPostgresLedger(ctx, nil, WithTableName("licenses; DROP TABLE x"))
	assert.ErrorContains(t, err, "invalid table name")

	_, err = NewMongoLedger(ctx, nil, WithCollectionName("bad-name"))
	assert.ErrorContains(t, err, "invalid collection name")
}
