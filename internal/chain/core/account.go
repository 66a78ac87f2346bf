// Package core is the account client for the legacy Kin Core chain, where
// Kin is a credit asset that needs a trustline and payments are built and
// submitted in one call.
package core

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/chain/stellar"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Account is a Kin Core account.
type Account struct {
	*stellar.Account
}

// NewAccount returns the Kin Core account with address.
func NewAccount(address string, cfg stellar.Config) (*Account, error) {
	cfg.Version = chain.KinCore
	cfg.Asset = KinAsset(cfg.Endpoint)
	base, err := stellar.NewAccount(address, cfg)
	if err != nil {
		return nil, err
	}
	return &Account{Account: base}, nil
}

// KinAsset returns the KIN credit asset issued on ep.
func KinAsset(ep chain.Endpoint) txnbuild.CreditAsset {
	return txnbuild.CreditAsset{Code: chain.KinAssetCode, Issuer: ep.Issuer}
}

func (a *Account) trustAsset() (txnbuild.ChangeTrustAsset, error) {
	cta, err := KinAsset(a.Endpoint()).ToChangeTrustAsset()
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrTransactionCreationFailed, "trust asset: %v", err)
	}
	return cta, nil
}

// Activate establishes the KIN trustline. Activating an activated account
// succeeds.
func (a *Account) Activate(ctx context.Context) (string, error) {
	hash, err := a.activate(ctx)
	a.Observe("activate", err)
	return hash, err
}

func (a *Account) activate(ctx context.Context) (string, error) {
	cta, err := a.trustAsset()
	if err != nil {
		return "", err
	}
	tx, err := a.Build(ctx, []txnbuild.Operation{&txnbuild.ChangeTrust{Line: cta}}, "", txnbuild.MinBaseFee)
	if err != nil {
		return "", err
	}
	hash, err := a.Submit(ctx, tx)
	if err != nil {
		return "", sendError(err, "")
	}
	a.Logger().Info().Str("hash", hash).Msg("account activated")
	return hash, nil
}

// SendTransaction pays amount Kin to the address to. memo is sent as is
// and must fit chain.MaxMemoLength.
func (a *Account) SendTransaction(ctx context.Context, to string, amount decimal.Decimal, memo string) (string, error) {
	hash, err := a.send(ctx, to, amount, memo)
	a.Observe("send", err)
	return hash, err
}

func (a *Account) send(ctx context.Context, to string, amount decimal.Decimal, memo string) (string, error) {
	if err := a.CheckDeleted(); err != nil {
		return "", err
	}
	if _, err := keypair.ParseAddress(to); err != nil {
		return "", kinerr.WithDetails(kinerr.ErrInvalidAddress, map[string]string{"address": to})
	}
	txAmount, err := chain.KinCore.TxAmount(amount)
	if err != nil {
		return "", err
	}
	memo, err = chain.BuildMemo("", memo)
	if err != nil {
		return "", err
	}

	tx, err := a.Build(ctx, []txnbuild.Operation{a.Payment(to, txAmount)}, memo, txnbuild.MinBaseFee)
	if err != nil {
		return "", err
	}
	hash, err := a.Submit(ctx, tx)
	if err != nil {
		return "", sendError(err, to)
	}
	a.Logger().Info().Str("hash", hash).Str("to", to).Str("amount", amount.String()).Msg("payment sent")
	return hash, nil
}

// sendError maps a ledger rejection onto the payment error kinds. A
// revoked master key means the account was burned for migration.
func sendError(err error, to string) error {
	details := map[string]string{}
	if to != "" {
		details["to"] = to
	}
	if r, ok := stellar.AsRejected(err); ok && (r.Has(stellar.TxBadAuth) || r.Has(stellar.OpBadAuth)) {
		details["result"] = r.Transaction
		return kinerr.WithCause(kinerr.ErrMigrationNeeded, r, details)
	}
	return stellar.PaymentError(err, details)
}

// Burn retires the account for migration: the trustline limit is pinned
// to the current balance and the master key weight is set to zero. A
// missing account, a missing trustline and an earlier burn all succeed
// with the matching reason.
func (a *Account) Burn(ctx context.Context) (*chain.BurnResult, error) {
	res, err := a.burn(ctx)
	a.Observe("burn", err)
	return res, err
}

func (a *Account) burn(ctx context.Context) (*chain.BurnResult, error) {
	detail, err := a.Detail(ctx)
	if kinerr.Is(err, kinerr.ErrMissingAccount) {
		a.Logger().Info().Msg("burn skipped: account not on ledger")
		return &chain.BurnResult{Reason: chain.BurnNoAccount}, nil
	}
	if err != nil {
		return nil, err
	}
	balance, ok, err := a.AssetBalance(detail)
	if err != nil {
		return nil, err
	}
	if !ok {
		a.Logger().Info().Msg("burn skipped: no trustline")
		return &chain.BurnResult{Reason: chain.BurnNoTrustline}, nil
	}

	cta, err := a.trustAsset()
	if err != nil {
		return nil, err
	}
	ops := []txnbuild.Operation{
		&txnbuild.ChangeTrust{Line: cta, Limit: balance.StringFixed(chain.WireDecimals)},
		&txnbuild.SetOptions{MasterWeight: txnbuild.NewThreshold(0)},
	}
	tx, err := a.Build(ctx, ops, "", txnbuild.MinBaseFee)
	if err != nil {
		return nil, err
	}
	hash, err := a.Submit(ctx, tx)
	if err != nil {
		if r, ok := stellar.AsRejected(err); ok && r.Has(stellar.TxBadAuth) {
			a.Logger().Info().Msg("account already burned")
			return &chain.BurnResult{Reason: chain.BurnAlreadyBurned}, nil
		}
		return nil, kinerr.WithCause(kinerr.ErrPaymentFailed, err, map[string]string{"operation": "burn"})
	}
	a.Logger().Info().Str("hash", hash).Str("balance", balance.String()).Msg("account burned")
	return &chain.BurnResult{Reason: chain.BurnDone, Hash: hash}, nil
}

var (
	_ chain.Account      = (*Account)(nil)
	_ chain.AtomicSender = (*Account)(nil)
	_ chain.Burner       = (*Account)(nil)
	_ chain.Activator    = (*Account)(nil)
)
