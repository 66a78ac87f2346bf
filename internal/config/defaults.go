package config

import (
	"time"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
)

// DefaultKeyringService is the OS keychain service name account records
// are stored under.
const DefaultKeyringService = "kinmigrate"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.kinmigrate",
		Network: string(chain.NetworkPlayground),
		Keystore: KeystoreConfig{
			Backend: BackendBadger,
			Service: DefaultKeyringService,
			KDF:     kincrypto.DefaultKDFParams(),
		},
		Retry: chain.DefaultRetryConfig(),
		HTTP:  chain.DefaultHTTPConfig(),
		Breaker: BreakerConfig{
			MinRequests:  10,
			FailureRatio: 0.7,
			OpenTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "error",
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
	}
}
