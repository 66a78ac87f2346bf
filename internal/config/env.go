package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome            = "KIN_HOME"
	EnvNetwork         = "KIN_NETWORK"
	EnvAppID           = "KIN_APP_ID"
	EnvLogLevel        = "KIN_LOG_LEVEL"
	EnvKeystoreBackend = "KIN_KEYSTORE_BACKEND"
	EnvMigrationURL    = "KIN_MIGRATION_URL"
	EnvVersionURL      = "KIN_VERSION_URL"
	EnvOutputFormat    = "KIN_OUTPUT_FORMAT"
	EnvVerbose         = "KIN_VERBOSE"
	EnvRetryAttempts   = "KIN_RETRY_ATTEMPTS"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Network = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvAppID); v != "" {
		cfg.AppID = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvKeystoreBackend); v != "" {
		cfg.Keystore.Backend = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvMigrationURL); v != "" {
		cfg.MigrationURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvVersionURL); v != "" {
		cfg.VersionURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvRetryAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.MaxAttempts = n
		}
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL trims whitespace and drops characters that cannot appear in
// a service URL, such as quotes and line breaks from copy-paste.
func SanitizeURL(raw string) string {
	return sanitize.URL(strings.TrimSpace(raw))
}
