package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBool(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"on", true},
		{"  true  ", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"", false},
		{"random", false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, parseBool(tc.input))
		})
	}
}

func TestSanitizeURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"https://migration.example.com", "https://migration.example.com"},
		{"  https://migration.example.com/v1  ", "https://migration.example.com/v1"},
		{"https://migration.example.com\n", "https://migration.example.com"},
		{"\"https://migration.example.com\"", "https://migration.example.com"},
		{"https://migra tion.example.com", "https://migration.example.com"},
		{"https://example.com/a?b=c&d=e", "https://example.com/a?b=c&d=e"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, SanitizeURL(tc.input), tc.input)
	}
}

func TestApplyEnvironment(t *testing.T) {
	t.Setenv(EnvHome, "/tmp/kinhome")
	t.Setenv(EnvNetwork, " Production ")
	t.Setenv(EnvAppID, "kik")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvKeystoreBackend, "Keyring")
	t.Setenv(EnvMigrationURL, " https://migrate.example.com ")
	t.Setenv(EnvVersionURL, "https://backend.example.com")
	t.Setenv(EnvOutputFormat, "JSON")
	t.Setenv(EnvVerbose, "yes")
	t.Setenv(EnvRetryAttempts, "7")

	cfg := Defaults()
	ApplyEnvironment(cfg)

	assert.Equal(t, "/tmp/kinhome", cfg.Home)
	assert.Equal(t, "production", cfg.Network)
	assert.Equal(t, "kik", cfg.AppID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, BackendKeyring, cfg.Keystore.Backend)
	assert.Equal(t, "https://migrate.example.com", cfg.MigrationURL)
	assert.Equal(t, "https://backend.example.com", cfg.VersionURL)
	assert.Equal(t, "json", cfg.Output.DefaultFormat)
	assert.True(t, cfg.Output.Verbose)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
}

func TestApplyEnvironment_IgnoresBadAttempts(t *testing.T) {
	t.Setenv(EnvRetryAttempts, "-2")
	cfg := Defaults()
	ApplyEnvironment(cfg)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}
