// Package sdk is the account client for the Kin SDK chain, where Kin is
// the native asset and payments are built, optionally whitelisted, then
// submitted.
package sdk

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/chain/stellar"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Account is a Kin SDK account.
type Account struct {
	*stellar.Account

	appID       string
	whitelister chain.Whitelister
}

// Option configures an Account.
type Option func(*Account)

// WithWhitelister sets the service SendWhitelisted uses.
func WithWhitelister(w chain.Whitelister) Option {
	return func(a *Account) { a.whitelister = w }
}

// NewAccount returns the Kin SDK account with address. appID is prepended
// to every memo; it may be empty.
func NewAccount(address string, cfg stellar.Config, appID string, opts ...Option) (*Account, error) {
	if appID != "" {
		if err := chain.ValidateAppID(appID); err != nil {
			return nil, err
		}
	}
	cfg.Version = chain.KinSDK
	cfg.Asset = txnbuild.NativeAsset{}
	base, err := stellar.NewAccount(address, cfg)
	if err != nil {
		return nil, err
	}
	a := &Account{Account: base, appID: appID}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AppID returns the memo app id.
func (a *Account) AppID() string { return a.appID }

// GenerateTransaction builds and signs a payment of amount Kin to the
// address to without submitting it. fee is per operation in quarks.
func (a *Account) GenerateTransaction(ctx context.Context, to string, amount decimal.Decimal, memo string, fee uint32) (*chain.Envelope, error) {
	env, err := a.generate(ctx, to, amount, memo, fee)
	a.Observe("generate", err)
	return env, err
}

func (a *Account) generate(ctx context.Context, to string, amount decimal.Decimal, memo string, fee uint32) (*chain.Envelope, error) {
	if err := a.CheckDeleted(); err != nil {
		return nil, err
	}
	if _, err := keypair.ParseAddress(to); err != nil {
		return nil, kinerr.WithDetails(kinerr.ErrInvalidAddress, map[string]string{"address": to})
	}
	txAmount, err := chain.KinSDK.TxAmount(amount)
	if err != nil {
		return nil, err
	}
	memo, err = chain.BuildMemo(a.appID, memo)
	if err != nil {
		return nil, err
	}

	tx, err := a.Build(ctx, []txnbuild.Operation{a.Payment(to, txAmount)}, memo, int64(fee))
	if err != nil {
		return nil, err
	}
	return a.Envelope(tx)
}

// SendEnvelope submits an envelope from GenerateTransaction, possibly
// whitelisted, and returns the transaction hash.
func (a *Account) SendEnvelope(ctx context.Context, envelope *chain.Envelope) (string, error) {
	hash, err := a.SubmitEnvelope(ctx, envelope)
	if err != nil {
		err = stellar.PaymentError(err, nil)
	} else {
		a.Logger().Info().Str("hash", hash).Msg("payment sent")
	}
	a.Observe("send", err)
	return hash, err
}

// SendWhitelisted generates a payment, has it whitelisted and submits it.
func (a *Account) SendWhitelisted(ctx context.Context, to string, amount decimal.Decimal, memo string, fee uint32) (string, error) {
	if a.whitelister == nil {
		return "", kinerr.Wrap(kinerr.ErrWhitelistFailed, "no whitelist service configured")
	}
	env, err := a.GenerateTransaction(ctx, to, amount, memo, fee)
	if err != nil {
		return "", err
	}
	env, err = a.whitelister.Whitelist(ctx, env)
	if err != nil {
		return "", err
	}
	return a.SendEnvelope(ctx, env)
}

var (
	_ chain.Account        = (*Account)(nil)
	_ chain.TwoPhaseSender = (*Account)(nil)
)
