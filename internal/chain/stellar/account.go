// Package stellar holds the Horizon plumbing shared by the Kin Core and
// Kin SDK account clients: keypair resolution through the keystore,
// transaction building and submission, rejection classification and the
// payment, balance and creation watches.
package stellar

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/keystore"
	"github.com/kinecosystem/kinmigrate/internal/metrics"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// DefaultPollInterval is how often WatchCreation polls the ledger.
const DefaultPollInterval = 2 * time.Second

// Config binds an account to one blockchain version.
type Config struct {
	Version  chain.Version
	Endpoint chain.Endpoint
	Horizon  chain.Horizon
	KeyStore *keystore.KeyStore
	// Passphrase the keystore seeds are sealed under.
	Passphrase string
	// Asset is the balance the account tracks: the KIN credit asset on
	// Kin Core, the native asset on Kin SDK.
	Asset txnbuild.Asset

	PollInterval time.Duration
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// Account is the version-independent part of an account client.
type Account struct {
	cfg     Config
	address string
	deleted atomic.Bool
	logger  zerolog.Logger
}

// NewAccount returns the account with address. The address must have a
// record in cfg.KeyStore.
func NewAccount(address string, cfg Config) (*Account, error) {
	if _, err := keypair.ParseAddress(address); err != nil {
		return nil, kinerr.WithDetails(kinerr.ErrInvalidAddress, map[string]string{"address": address})
	}
	if cfg.Horizon == nil || cfg.KeyStore == nil {
		return nil, kinerr.Wrap(kinerr.ErrInvalidInput, "account %s: horizon and keystore are required", address)
	}
	if cfg.Asset == nil {
		cfg.Asset = txnbuild.NativeAsset{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Account{
		cfg:     cfg,
		address: address,
		logger: cfg.Logger.With().
			Str("component", "account").
			Str("version", cfg.Version.String()).
			Str("address", address).
			Logger(),
	}, nil
}

// PublicAddress returns the G... address.
func (a *Account) PublicAddress() string { return a.address }

// Version returns the blockchain version the account lives on.
func (a *Account) Version() chain.Version { return a.cfg.Version }

// Endpoint returns the Horizon binding.
func (a *Account) Endpoint() chain.Endpoint { return a.cfg.Endpoint }

// Asset returns the tracked asset.
func (a *Account) Asset() txnbuild.Asset { return a.cfg.Asset }

// Logger returns the account logger.
func (a *Account) Logger() *zerolog.Logger { return &a.logger }

// Deleted reports whether the account was removed from its wallet.
func (a *Account) Deleted() bool { return a.deleted.Load() }

// MarkDeleted invalidates the handle. It cannot be undone.
func (a *Account) MarkDeleted() { a.deleted.Store(true) }

// CheckDeleted returns ErrAccountDeleted once MarkDeleted was called.
func (a *Account) CheckDeleted() error {
	if a.deleted.Load() {
		return kinerr.WithDetails(kinerr.ErrAccountDeleted, map[string]string{"address": a.address})
	}
	return nil
}

// Record loads the keystore record of the account.
func (a *Account) Record() (*keystore.AccountRecord, error) {
	if err := a.CheckDeleted(); err != nil {
		return nil, err
	}
	_, rec, err := a.cfg.KeyStore.Find(a.address)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, kinerr.Wrap(kinerr.ErrLoadFailed, "no keystore record for %s", a.address)
	}
	return rec, nil
}

// Keypair decrypts the signing key.
func (a *Account) Keypair() (*keypair.Full, error) {
	rec, err := a.Record()
	if err != nil {
		return nil, err
	}
	return a.cfg.KeyStore.Keypair(rec, a.cfg.Passphrase)
}

// Extra returns the app metadata stored with the record.
func (a *Account) Extra() ([]byte, error) {
	rec, err := a.Record()
	if err != nil {
		return nil, err
	}
	return rec.Extra, nil
}

// SetExtra replaces the app metadata.
func (a *Account) SetExtra(extra []byte) error {
	if err := a.CheckDeleted(); err != nil {
		return err
	}
	return a.cfg.KeyStore.SetExtra(a.address, extra)
}

// Export returns the record as JSON re-sealed under passphrase.
func (a *Account) Export(passphrase string) (string, error) {
	rec, err := a.Record()
	if err != nil {
		return "", err
	}
	out, err := a.cfg.KeyStore.ExportAccount(rec, a.cfg.Passphrase, passphrase)
	if err != nil {
		return "", err
	}
	return out.JSON()
}

// Detail fetches the ledger entry. A missing account is ErrMissingAccount.
func (a *Account) Detail(ctx context.Context) (hProtocol.Account, error) {
	if err := a.CheckDeleted(); err != nil {
		return hProtocol.Account{}, err
	}
	if err := ctx.Err(); err != nil {
		return hProtocol.Account{}, err
	}
	return a.detail(a.address)
}

func (a *Account) detail(address string) (hProtocol.Account, error) {
	detail, err := a.cfg.Horizon.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return hProtocol.Account{}, kinerr.WithDetails(kinerr.ErrMissingAccount, map[string]string{"address": address})
		}
		return hProtocol.Account{}, kinerr.Wrap(kinerr.ErrBalanceQueryFailed, "%s: %v", address, err)
	}
	return detail, nil
}

// AssetBalance returns the balance of the tracked asset in detail.
// ok is false when the account has no line for the asset.
func (a *Account) AssetBalance(detail hProtocol.Account) (balance decimal.Decimal, ok bool, err error) {
	for _, b := range detail.Balances {
		if !a.matches(b.Asset.Type, b.Asset.Code, b.Asset.Issuer) {
			continue
		}
		d, err := chain.ParseHorizonAmount(b.Balance)
		if err != nil {
			return decimal.Zero, false, err
		}
		return d, true, nil
	}
	return decimal.Zero, false, nil
}

func (a *Account) matches(assetType, code, issuer string) bool {
	if a.cfg.Asset.IsNative() {
		return assetType == "native"
	}
	return assetType != "native" && code == a.cfg.Asset.GetCode() && issuer == a.cfg.Asset.GetIssuer()
}

// Balance returns the tracked asset balance. A missing asset line is
// ErrMissingBalance.
func (a *Account) Balance(ctx context.Context) (decimal.Decimal, error) {
	bal, err := a.balance(ctx)
	a.Observe("balance", err)
	return bal, err
}

func (a *Account) balance(ctx context.Context) (decimal.Decimal, error) {
	detail, err := a.Detail(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	bal, ok, err := a.AssetBalance(detail)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, kinerr.WithDetails(kinerr.ErrMissingBalance, map[string]string{
			"address": a.address,
			"asset":   a.cfg.Asset.GetCode(),
		})
	}
	return bal, nil
}

// Status classifies the balance lookup.
func (a *Account) Status(ctx context.Context) (chain.Status, error) {
	_, err := a.Balance(ctx)
	switch {
	case err == nil:
		return chain.StatusCreated, nil
	case kinerr.Is(err, kinerr.ErrMissingAccount):
		return chain.StatusNotCreated, nil
	case kinerr.Is(err, kinerr.ErrMissingBalance):
		return chain.StatusNotActivated, nil
	default:
		return chain.StatusNotCreated, err
	}
}

// Observe records the outcome of op in the account metrics.
func (a *Account) Observe(op string, err error) {
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.RecordAccountOp(a.cfg.Version.String(), op, err)
	}
}
