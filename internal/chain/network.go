package chain

import (
	"net/url"
	"strings"

	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Network selects the endpoints a client talks to.
type Network string

// Known networks.
const (
	NetworkProduction Network = "production"
	NetworkPlayground Network = "playground"
	NetworkCustom     Network = "custom"
)

// Networks returns every known network name.
func Networks() []Network {
	return []Network{NetworkProduction, NetworkPlayground, NetworkCustom}
}

// ParseNetwork parses a network name. "mainnet" and "test"/"testnet" are
// accepted as aliases.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "mainnet":
		return NetworkProduction, nil
	case "playground", "test", "testnet":
		return NetworkPlayground, nil
	case "custom":
		return NetworkCustom, nil
	default:
		return "", kinerr.WithDetails(kinerr.ErrInvalidNetwork, map[string]string{"network": s})
	}
}

// Horizon endpoints and network passphrases.
const (
	CoreProductionURL        = "https://horizon-ecosystem.kininfrastructure.com"
	CorePlaygroundURL        = "https://horizon-playground.kininfrastructure.com"
	CoreProductionPassphrase = "Public Global Kin Ecosystem Network ; June 2018"
	CorePlaygroundPassphrase = "Kin Playground Network ; June 2018"
	CoreProductionIssuer     = "GDF42M3IPERQCBLWFEZKQRK77JQ65SCKTU3CW36HZVCX7XX5A5QXZIVK"
	CorePlaygroundIssuer     = "GBC3SG6NGTSZ2OMH3FFGB7UVRQWILW367U4GSOOF4TFSZONV42UJXUH7"

	SDKProductionURL        = "https://horizon.kinfederation.com"
	SDKPlaygroundURL        = "https://horizon-testnet.kininfrastructure.com"
	SDKProductionPassphrase = "Kin Mainnet ; December 2018"
	SDKPlaygroundPassphrase = "Kin Testnet ; December 2018"

	MigrationProductionURL = "https://migration-service.kinecosystem.com"
	MigrationPlaygroundURL = "https://migration-devplatform-playground.developers.kinecosystem.com"
)

// KinAssetCode is the Kin Core asset code.
const KinAssetCode = "KIN"

// Endpoint is the Horizon binding of one blockchain version.
type Endpoint struct {
	NodeURL    string `yaml:"node_url" json:"node_url"`
	Passphrase string `yaml:"passphrase" json:"passphrase"`
	// Issuer of the KIN asset. Only meaningful for Kin Core.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`
}

// CustomNetwork carries explicit endpoints for NetworkCustom.
type CustomNetwork struct {
	Core         Endpoint `yaml:"core"`
	SDK          Endpoint `yaml:"sdk"`
	MigrationURL string   `yaml:"migration_url"`
}

// ServiceProvider is the network selection plus the app identity used in memos.
type ServiceProvider struct {
	Network Network
	AppID   string
	Custom  CustomNetwork
	// MigrationURL overrides the network's migration service when set.
	MigrationURL string
}

// Endpoint resolves the Horizon binding for v.
func (sp ServiceProvider) Endpoint(v Version) (Endpoint, error) {
	if !v.IsValid() {
		return Endpoint{}, kinerr.WithDetails(kinerr.ErrInvalidInput, map[string]string{"version": v.String()})
	}

	switch sp.Network {
	case NetworkProduction:
		if v == KinCore {
			return Endpoint{CoreProductionURL, CoreProductionPassphrase, CoreProductionIssuer}, nil
		}
		return Endpoint{NodeURL: SDKProductionURL, Passphrase: SDKProductionPassphrase}, nil
	case NetworkPlayground:
		if v == KinCore {
			return Endpoint{CorePlaygroundURL, CorePlaygroundPassphrase, CorePlaygroundIssuer}, nil
		}
		return Endpoint{NodeURL: SDKPlaygroundURL, Passphrase: SDKPlaygroundPassphrase}, nil
	case NetworkCustom:
		ep := sp.Custom.SDK
		if v == KinCore {
			ep = sp.Custom.Core
		}
		if err := validateNodeURL(ep.NodeURL); err != nil {
			return Endpoint{}, err
		}
		if ep.Passphrase == "" {
			return Endpoint{}, kinerr.WithDetails(kinerr.ErrInvalidNetwork,
				map[string]string{"network": string(sp.Network), "version": v.String(), "reason": "missing passphrase"})
		}
		if v == KinCore && ep.Issuer == "" {
			return Endpoint{}, kinerr.WithDetails(kinerr.ErrInvalidNetwork,
				map[string]string{"network": string(sp.Network), "version": v.String(), "reason": "missing issuer"})
		}
		return ep, nil
	default:
		return Endpoint{}, kinerr.WithDetails(kinerr.ErrInvalidNetwork, map[string]string{"network": string(sp.Network)})
	}
}

// MigrationBaseURL resolves the migration service base URL.
func (sp ServiceProvider) MigrationBaseURL() (*url.URL, error) {
	raw := sp.MigrationURL
	if raw == "" {
		switch sp.Network {
		case NetworkProduction:
			raw = MigrationProductionURL
		case NetworkPlayground:
			raw = MigrationPlaygroundURL
		case NetworkCustom:
			raw = sp.Custom.MigrationURL
		default:
			return nil, kinerr.WithDetails(kinerr.ErrInvalidNetwork, map[string]string{"network": string(sp.Network)})
		}
	}
	return ParseServiceURL(raw)
}

// ParseServiceURL parses an absolute http(s) URL.
func ParseServiceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, kinerr.WithDetails(kinerr.ErrInvalidMigrationURL, map[string]string{"url": raw})
	}
	return u, nil
}

func validateNodeURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return kinerr.WithDetails(kinerr.ErrInvalidNetwork, map[string]string{"node_url": raw})
	}
	return nil
}
