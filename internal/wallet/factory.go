package wallet

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/chain/core"
	"github.com/kinecosystem/kinmigrate/internal/chain/sdk"
	"github.com/kinecosystem/kinmigrate/internal/chain/stellar"
	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
	"github.com/kinecosystem/kinmigrate/internal/keystore"
	"github.com/kinecosystem/kinmigrate/internal/metrics"
	"github.com/kinecosystem/kinmigrate/internal/storage"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Builder constructs the account client of one version.
type Builder func(address string, cfg stellar.Config, provider chain.ServiceProvider) (chain.Account, error)

// Factory builds one Client per blockchain version. Keystores of the two
// versions share a backend under distinct key prefixes.
type Factory struct {
	provider     chain.ServiceProvider
	backend      storage.Backend
	builders     map[chain.Version]Builder
	horizons     map[chain.Version]chain.Horizon
	httpClient   *http.Client
	passphrase   string
	kdf          kincrypto.KDFParams
	pollInterval time.Duration
	whitelister  chain.Whitelister
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithHTTPClient sets the client Horizon calls go through.
func WithHTTPClient(c *http.Client) FactoryOption {
	return func(f *Factory) { f.httpClient = c }
}

// WithPassphrase sets the keystore passphrase.
func WithPassphrase(p string) FactoryOption {
	return func(f *Factory) { f.passphrase = p }
}

// WithKDFParams sets the Argon2id cost of new seeds.
func WithKDFParams(p kincrypto.KDFParams) FactoryOption {
	return func(f *Factory) { f.kdf = p }
}

// WithPollInterval sets the creation watch poll interval.
func WithPollInterval(d time.Duration) FactoryOption {
	return func(f *Factory) { f.pollInterval = d }
}

// WithHorizon replaces the Horizon client of v.
func WithHorizon(v chain.Version, h chain.Horizon) FactoryOption {
	return func(f *Factory) { f.horizons[v] = h }
}

// WithWhitelister sets the whitelist service of Kin SDK accounts.
func WithWhitelister(w chain.Whitelister) FactoryOption {
	return func(f *Factory) { f.whitelister = w }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) FactoryOption {
	return func(f *Factory) { f.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// NewFactory returns a factory for provider with builders for both
// versions registered.
func NewFactory(provider chain.ServiceProvider, backend storage.Backend, opts ...FactoryOption) *Factory {
	f := &Factory{
		provider: provider,
		backend:  backend,
		builders: make(map[chain.Version]Builder),
		horizons: make(map[chain.Version]chain.Horizon),
		kdf:      kincrypto.DefaultKDFParams(),
		logger:   zerolog.Nop(),
	}
	f.Register(chain.KinCore, buildCore)
	f.Register(chain.KinSDK, f.buildSDK)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func buildCore(address string, cfg stellar.Config, _ chain.ServiceProvider) (chain.Account, error) {
	acct, err := core.NewAccount(address, cfg)
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (f *Factory) buildSDK(address string, cfg stellar.Config, provider chain.ServiceProvider) (chain.Account, error) {
	var opts []sdk.Option
	if f.whitelister != nil {
		opts = append(opts, sdk.WithWhitelister(f.whitelister))
	}
	acct, err := sdk.NewAccount(address, cfg, provider.AppID, opts...)
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Register sets the builder of v.
func (f *Factory) Register(v chain.Version, b Builder) {
	f.builders[v] = b
}

// IsSupported reports whether v has a builder.
func (f *Factory) IsSupported(v chain.Version) bool {
	_, ok := f.builders[v]
	return ok
}

// SupportedVersions returns the versions with a builder, in order.
func (f *Factory) SupportedVersions() []chain.Version {
	out := make([]chain.Version, 0, len(f.builders))
	for v := range f.builders {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Provider returns the service provider the factory resolves against.
func (f *Factory) Provider() chain.ServiceProvider { return f.provider }

// ResolveEndpoint returns the Horizon binding of v on provider.
func ResolveEndpoint(v chain.Version, provider chain.ServiceProvider) (chain.Endpoint, error) {
	return provider.Endpoint(v)
}

// NewKeyStore returns the keystore of v over the factory backend.
func (f *Factory) NewKeyStore(v chain.Version) *keystore.KeyStore {
	return keystore.New(
		storage.NewPrefix(f.backend, v.KeystorePrefix()),
		keystore.WithKDFParams(f.kdf),
		keystore.WithLogger(f.logger),
	)
}

// NewClient returns a Client for v. Each call binds a fresh keystore;
// callers keep one Client per version.
func (f *Factory) NewClient(v chain.Version) (*Client, error) {
	build, ok := f.builders[v]
	if !ok {
		return nil, kinerr.WithDetails(kinerr.ErrNotSupported, map[string]string{"version": v.String()})
	}
	if f.provider.AppID != "" {
		if err := chain.ValidateAppID(f.provider.AppID); err != nil {
			return nil, err
		}
	}
	ep, err := ResolveEndpoint(v, f.provider)
	if err != nil {
		return nil, err
	}

	h, ok := f.horizons[v]
	if !ok {
		h = chain.NewHorizon(ep.NodeURL, f.httpClient)
	}
	ks := f.NewKeyStore(v)
	cfg := stellar.Config{
		Version:      v,
		Endpoint:     ep,
		Horizon:      h,
		KeyStore:     ks,
		Passphrase:   f.passphrase,
		PollInterval: f.pollInterval,
		Metrics:      f.metrics,
		Logger:       f.logger,
	}
	provider := f.provider
	create := func(address string) (chain.Account, error) {
		acct, err := build(address, cfg, provider)
		if err != nil {
			return nil, fmt.Errorf("%s account %s: %w", v, address, err)
		}
		return acct, nil
	}

	f.logger.Debug().
		Str("version", v.String()).
		Str("network", string(f.provider.Network)).
		Str("node_url", ep.NodeURL).
		Msg("wallet client created")
	return NewClient(v, ks, f.passphrase, create, f.logger), nil
}
