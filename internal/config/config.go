// Package config loads qms-license settings from a YAML file and QMSLIC_*
// environment variables. Environment variables take precedence over the file.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"

	"github.com/asvo-qms/qms-license-sdk/qmslicense"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "QMSLIC"

// PathEnv names the environment variable holding the config file path.
const PathEnv = EnvPrefix + "_CONFIG"

// DefaultPath is read when PathEnv is unset. It may be absent.
const DefaultPath = "~/.qms-license.yaml"

// Config is the complete qms-license configuration.
type Config struct {
	KeyDir            string       `yaml:"key_dir" envconfig:"KEY_DIR"`
	GraceDays         int          `yaml:"grace_days" envconfig:"GRACE_DAYS"`
	Issuer            string       `yaml:"issuer" envconfig:"ISSUER"`
	LogLevel          string       `yaml:"log_level" envconfig:"LOG_LEVEL"`
	CatalogFile       string       `yaml:"catalog_file" envconfig:"CATALOG_FILE"`
	VerifyConcurrency int          `yaml:"verify_concurrency" envconfig:"VERIFY_CONCURRENCY"`
	Ledger            LedgerConfig `yaml:"ledger" envconfig:"LEDGER"`
}

// LedgerConfig selects where issued licenses are recorded. At most one
// backend may be configured; with none, issuance is not recorded.
type LedgerConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
	MongoURI      string `yaml:"mongo_uri" envconfig:"MONGO_URI"`
	MongoDatabase string `yaml:"mongo_database" envconfig:"MONGO_DATABASE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		KeyDir:            "./keys",
		GraceDays:         30,
		Issuer:            "asvo-license-service",
		LogLevel:          "info",
		VerifyConcurrency: 8,
		Ledger: LedgerConfig{
			MongoDatabase: "qms_license",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file, then the
// environment. The file named by QMSLIC_CONFIG must exist; the default file
// is optional.
func Load(fs afero.Fs) (*Config, error) {
	cfg := Default()

	path, explicit := os.LookupEnv(PathEnv)
	if !explicit || path == "" {
		path, explicit = DefaultPath, false
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path: %w", err)
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if exists {
		if err := cfg.loadFile(fs, path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s does not exist", path)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, c)
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.KeyDir, &c.CatalogFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate rejects settings the CLI cannot run with.
func (c *Config) Validate() error {
	if c.KeyDir == "" {
		return fmt.Errorf("key_dir must not be empty")
	}
	if c.GraceDays < 0 || c.GraceDays > qmslicense.MaxGraceDays {
		return fmt.Errorf("grace_days must be between 0 and %d: %d", qmslicense.MaxGraceDays, c.GraceDays)
	}
	if c.Issuer == "" {
		return fmt.Errorf("issuer must not be empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.VerifyConcurrency <= 0 {
		return fmt.Errorf("verify_concurrency must be positive: %d", c.VerifyConcurrency)
	}
	if c.Ledger.PostgresDSN != "" && c.Ledger.MongoURI != "" {
		return fmt.Errorf("ledger: configure postgres_dsn or mongo_uri, not both")
	}
	if c.Ledger.MongoURI != "" && c.Ledger.MongoDatabase == "" {
		return fmt.Errorf("ledger: mongo_database is required with mongo_uri")
	}
	return nil
}

// Level returns the parsed log level. Call after Validate.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
