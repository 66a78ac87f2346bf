// Package config provides configuration management for kinmigrate.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/fileutil"
	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Keystore backends.
const (
	BackendMemory  = "memory"
	BackendBadger  = "badger"
	BackendKeyring = "keyring"
)

// Config represents the application configuration.
type Config struct {
	Version int    `yaml:"version"`
	Home    string `yaml:"home"`

	Network string              `yaml:"network"`
	AppID   string              `yaml:"app_id"`
	Custom  chain.CustomNetwork `yaml:"custom"`
	// MigrationURL overrides the migration service of the selected network.
	MigrationURL string `yaml:"migration_url,omitempty"`
	// VersionURL is the app backend answering which version the app runs on.
	VersionURL string `yaml:"version_url,omitempty"`
	// WhitelistURL countersigns Kin SDK transactions so they carry no fee.
	WhitelistURL string `yaml:"whitelist_url,omitempty"`

	Keystore KeystoreConfig    `yaml:"keystore"`
	Retry    chain.RetryConfig `yaml:"retry"`
	HTTP     chain.HTTPConfig  `yaml:"http"`
	Breaker  BreakerConfig     `yaml:"breaker"`
	Logging  LoggingConfig     `yaml:"logging"`
	Output   OutputConfig      `yaml:"output"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

// KeystoreConfig selects where account records live.
type KeystoreConfig struct {
	Backend string              `yaml:"backend"`
	Path    string              `yaml:"path"`
	Service string              `yaml:"service"` // keyring service name
	KDF     kincrypto.KDFParams `yaml:"kdf"`
}

// BreakerConfig tunes the migration service circuit breaker.
type BreakerConfig struct {
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
	OpenTimeout  time.Duration `yaml:"open_timeout"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Verbose       bool   `yaml:"verbose"`
}

// MetricsConfig defines the metrics listener.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, kinerr.Wrap(kinerr.ErrConfigInvalid, "%s: %v", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to Defaults when it does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	return cfg, err
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks the values a client cannot be built without.
func (c *Config) Validate() error {
	if _, err := chain.ParseNetwork(c.Network); err != nil {
		return kinerr.WithSuggestion(err, SuggestNetwork(c.Network))
	}
	if c.AppID != "" {
		if err := chain.ValidateAppID(c.AppID); err != nil {
			return err
		}
	}
	switch c.Keystore.Backend {
	case BackendMemory, BackendBadger, BackendKeyring:
	default:
		return kinerr.WithSuggestion(
			kinerr.WithDetails(kinerr.ErrConfigInvalid, map[string]string{"keystore.backend": c.Keystore.Backend}),
			SuggestBackend(c.Keystore.Backend),
		)
	}
	if !c.Keystore.KDF.Valid() {
		return kinerr.WithDetails(kinerr.ErrConfigInvalid, map[string]string{"keystore.kdf": "costs must be non-zero and within bounds"})
	}
	if c.Retry.MaxAttempts < 1 {
		return kinerr.WithDetails(kinerr.ErrConfigInvalid, map[string]string{"retry.attempts": "must be at least 1"})
	}
	return nil
}

// Provider returns the network selection clients are built for. An
// unknown network name is passed through for the factory to reject.
func (c *Config) Provider() chain.ServiceProvider {
	network, err := chain.ParseNetwork(c.Network)
	if err != nil {
		network = chain.Network(c.Network)
	}
	return chain.ServiceProvider{
		Network:      network,
		AppID:        c.AppID,
		Custom:       c.Custom,
		MigrationURL: c.MigrationURL,
	}
}

// KeystorePath returns the badger directory, expanded against the home.
func (c *Config) KeystorePath() string {
	if c.Keystore.Path == "" {
		return filepath.Join(ExpandHome(c.Home), "keystore")
	}
	return ExpandHome(c.Keystore.Path)
}

// LogFile returns the log file path; by default kinmigrate.log in the home.
func (c *Config) LogFile() string {
	if c.Logging.File == "" {
		return filepath.Join(ExpandHome(c.Home), "kinmigrate.log")
	}
	return ExpandHome(c.Logging.File)
}

// GetHome returns the kinmigrate home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default kinmigrate home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kinmigrate"
	}
	return filepath.Join(home, ".kinmigrate")
}

// ExpandHome replaces a leading "~/" with the user home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
