package cli

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/chain/sdk"
	"github.com/kinecosystem/kinmigrate/internal/config"
	"github.com/kinecosystem/kinmigrate/internal/metrics"
	"github.com/kinecosystem/kinmigrate/internal/output"
	"github.com/kinecosystem/kinmigrate/internal/storage"
	"github.com/kinecosystem/kinmigrate/internal/wallet"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// EnvPassphrase holds the keystore passphrase for unattended runs.
const EnvPassphrase = "KIN_PASSPHRASE" //nolint:gosec // G101: variable name, not a credential

// CommandContext holds the dependencies of one command invocation.
type CommandContext struct {
	Config    *config.Config
	Logger    *config.Logger
	Formatter *output.Formatter
	Metrics   *metrics.Metrics
	HTTP      *http.Client
	Backend   storage.Backend

	// Passphrase seals keystore seeds. When empty it is read from
	// EnvPassphrase or prompted for.
	Passphrase string
	// FactoryOptions are applied after the defaults, so they win.
	FactoryOptions []wallet.FactoryOption

	factory *wallet.Factory
	clients map[chain.Version]*wallet.Client
}

type cmdContextKey struct{}

// SetCmdContext attaches cc to cmd. Commands with an attached context skip
// building one from the global configuration.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the context attached to cmd, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if cmd.Context() == nil {
		return nil
	}
	cc, _ := cmd.Context().Value(cmdContextKey{}).(*CommandContext)
	return cc
}

// commandContext returns the attached context or builds one from the
// globals set up by initGlobals.
func commandContext(cmd *cobra.Command) (*CommandContext, error) {
	if cc := GetCmdContext(cmd); cc != nil {
		return cc, nil
	}
	if cfg == nil {
		return nil, kinerr.Wrap(kinerr.ErrConfigInvalid, "configuration not loaded")
	}
	backend, err := openBackendFn(cfg)
	if err != nil {
		return nil, err
	}
	m := metrics.Global
	active = &CommandContext{
		Config:    cfg,
		Logger:    logger,
		Formatter: formatter,
		Metrics:   m,
		HTTP:      chain.NewHTTPClient(cfg.HTTP, m, logger.Logger),
		Backend:   backend,
	}
	return active, nil
}

// openBackendFn is replaced in tests.
//
//nolint:gochecknoglobals // test seam
var openBackendFn = openBackend

// openBackend opens the keystore backend named in the configuration.
func openBackend(c *config.Config) (storage.Backend, error) {
	switch c.Keystore.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendKeyring:
		if !storage.ProbeKeyring() {
			return nil, kinerr.WithSuggestion(
				kinerr.WithDetails(kinerr.ErrNotSupported, map[string]string{"backend": config.BackendKeyring}),
				"no OS keychain is reachable; set keystore.backend to badger",
			)
		}
		service := c.Keystore.Service
		if service == "" {
			service = config.DefaultKeyringService
		}
		return storage.NewKeyring(service, nil), nil
	default:
		path := c.KeystorePath()
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, kinerr.WithCause(kinerr.ErrStoreFailed, err, map[string]string{"path": path})
		}
		return storage.NewBadger(path)
	}
}

// passphrase returns the keystore passphrase, prompting once if needed.
func (cc *CommandContext) passphrase() (string, error) {
	if cc.Passphrase != "" {
		return cc.Passphrase, nil
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		cc.Passphrase = v
		return v, nil
	}
	p, err := promptPasswordFn("Keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if len(p) == 0 {
		return "", kinerr.WithSuggestion(kinerr.ErrInvalidInput,
			"a passphrase is required; set "+EnvPassphrase+" for unattended runs")
	}
	cc.Passphrase = string(p)
	zeroBytes(p)
	return cc.Passphrase, nil
}

// Client returns the wallet client of v. With secret set the keystore
// passphrase is resolved first; read-only commands never prompt.
func (cc *CommandContext) Client(v chain.Version, secret bool) (*wallet.Client, error) {
	if c, ok := cc.clients[v]; ok {
		return c, nil
	}
	if cc.factory == nil {
		pass := cc.Passphrase
		if secret {
			var err error
			if pass, err = cc.passphrase(); err != nil {
				return nil, err
			}
		}
		f, err := cc.newFactory(pass)
		if err != nil {
			return nil, err
		}
		cc.factory = f
	}
	c, err := cc.factory.NewClient(v)
	if err != nil {
		return nil, err
	}
	if cc.clients == nil {
		cc.clients = make(map[chain.Version]*wallet.Client)
	}
	cc.clients[v] = c
	return c, nil
}

func (cc *CommandContext) newFactory(pass string) (*wallet.Factory, error) {
	log := cc.Logger.Logger
	opts := []wallet.FactoryOption{
		wallet.WithPassphrase(pass),
		wallet.WithKDFParams(cc.Config.Keystore.KDF),
		wallet.WithHTTPClient(cc.HTTP),
		wallet.WithMetrics(cc.Metrics),
		wallet.WithLogger(log),
	}
	if cc.Config.WhitelistURL != "" {
		wl, err := sdk.NewWhitelistClient(cc.Config.WhitelistURL, cc.HTTP, cc.Config.Retry, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, wallet.WithWhitelister(wl))
	}
	opts = append(opts, cc.FactoryOptions...)
	return wallet.NewFactory(cc.Config.Provider(), cc.Backend, opts...), nil
}

// Close releases the keystore backend.
func (cc *CommandContext) Close() {
	if cc.Backend != nil {
		_ = storage.Close(cc.Backend)
	}
}

// contextWithTimeout returns a timeout context rooted in the command
// context. A zero d means no deadline.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, d)
}
