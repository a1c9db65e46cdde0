package config

import (
	"os"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		PathEnv, "QMSLIC_KEY_DIR", "QMSLIC_GRACE_DAYS", "QMSLIC_ISSUER", "QMSLIC_LOG_LEVEL",
		"QMSLIC_CATALOG_FILE", "QMSLIC_VERIFY_CONCURRENCY",
		"QMSLIC_LEDGER_POSTGRES_DSN", "QMSLIC_LEDGER_MONGO_URI", "QMSLIC_LEDGER_MONGO_DATABASE",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	t.Setenv("HOME", "/home/tester")
	homedir.DisableCache = true
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(afero.NewMemMapFs())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/qms/license.yaml", []byte(`
key_dir: ~/qms/keys
grace_days: 14
issuer: qms-authority
log_level: debug
catalog_file: /etc/qms/tiers.yaml
ledger:
  postgres_dsn: postgres://localhost/licenses
`), 0o600))
	t.Setenv(PathEnv, "/etc/qms/license.yaml")
	t.Setenv("QMSLIC_GRACE_DAYS", "7")
	t.Setenv("QMSLIC_VERIFY_CONCURRENCY", "2")

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/qms/keys", cfg.KeyDir)
	assert.Equal(t, 7, cfg.GraceDays, "env must override file")
	assert.Equal(t, "qms-authority", cfg.Issuer)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, "/etc/qms/tiers.yaml", cfg.CatalogFile)
	assert.Equal(t, 2, cfg.VerifyConcurrency)
	assert.Equal(t, "postgres://localhost/licenses", cfg.Ledger.PostgresDSN)
	assert.Equal(t, "qms_license", cfg.Ledger.MongoDatabase)
}

func TestLoad_HomeFile(t *testing.T) {
	clearEnv(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/tester/.qms-license.yaml", []byte("issuer: from-home\n"), 0o600))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "from-home", cfg.Issuer)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		env   map[string]string
		errIs string
	}{
		{name: "missing explicit file", env: map[string]string{PathEnv: "/nope.yaml"}, errIs: "does not exist"},
		{name: "unknown file key", file: "key_dirr: x\n", errIs: "key_dirr"},
		{name: "bad env number", env: map[string]string{"QMSLIC_GRACE_DAYS": "soon"}, errIs: "GRACE_DAYS"},
		{name: "negative grace", env: map[string]string{"QMSLIC_GRACE_DAYS": "-1"}, errIs: "grace_days"},
		{name: "grace too long", env: map[string]string{"QMSLIC_GRACE_DAYS": "200000"}, errIs: "grace_days"},
		{name: "grace too long in file", file: "grace_days: 3651\n", errIs: "grace_days"},
		{name: "bad level", env: map[string]string{"QMSLIC_LOG_LEVEL": "loud"}, errIs: "log_level"},
		{name: "zero concurrency", env: map[string]string{"QMSLIC_VERIFY_CONCURRENCY": "0"}, errIs: "verify_concurrency"},
		{name: "two ledgers", env: map[string]string{
			"QMSLIC_LEDGER_POSTGRES_DSN": "postgres://x",
			"QMSLIC_LEDGER_MONGO_URI":    "mongodb://x",
		}, errIs: "not both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			fs := afero.NewMemMapFs()
			if tt.file != "" {
				require.NoError(t, afero.WriteFile(fs, "/home/tester/.qms-license.yaml", []byte(tt.file), 0o600))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(fs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errIs)
		})
	}
}
