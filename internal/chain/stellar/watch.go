package stellar

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/protocols/horizon/operations"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// WatchPayments streams payments of the tracked asset that touch the
// account, starting after cursor. An empty cursor starts at "now".
func (a *Account) WatchPayments(ctx context.Context, cursor string) (*chain.Watch[chain.Payment], error) {
	if err := a.CheckDeleted(); err != nil {
		return nil, err
	}
	if cursor == "" {
		cursor = chain.CursorNow
	}
	return chain.NewWatch(ctx, func(ctx context.Context, emit func(chain.Payment) bool) error {
		return a.streamPayments(ctx, cursor, func(p chain.Payment) {
			emit(p)
		})
	}), nil
}

// WatchBalance emits the current balance, then the new balance after
// every payment that touches the account.
func (a *Account) WatchBalance(ctx context.Context) (*chain.Watch[decimal.Decimal], error) {
	if err := a.CheckDeleted(); err != nil {
		return nil, err
	}
	return chain.NewWatch(ctx, func(ctx context.Context, emit func(decimal.Decimal) bool) error {
		last, err := a.balance(ctx)
		if err != nil {
			return err
		}
		if !emit(last) {
			return nil
		}
		return a.streamPayments(ctx, chain.CursorNow, func(chain.Payment) {
			bal, err := a.balance(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Warn().Err(err).Msg("balance refresh failed")
				}
				return
			}
			if !bal.Equal(last) {
				last = bal
				emit(bal)
			}
		})
	}), nil
}

// WatchCreation polls until the account appears on the ledger, emits
// once and ends.
func (a *Account) WatchCreation(ctx context.Context) (*chain.Watch[struct{}], error) {
	if err := a.CheckDeleted(); err != nil {
		return nil, err
	}
	return chain.NewWatch(ctx, func(ctx context.Context, emit func(struct{}) bool) error {
		ticker := time.NewTicker(a.cfg.PollInterval)
		defer ticker.Stop()
		for {
			_, err := a.Detail(ctx)
			switch {
			case err == nil:
				emit(struct{}{})
				return nil
			case !kinerr.Is(err, kinerr.ErrMissingAccount):
				a.logger.Debug().Err(err).Msg("creation poll failed")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}), nil
}

func (a *Account) streamPayments(ctx context.Context, cursor string, handle func(chain.Payment)) error {
	req := horizonclient.OperationRequest{ForAccount: a.address, Cursor: cursor}
	err := a.cfg.Horizon.StreamPayments(ctx, req, func(op operations.Operation) {
		if p, ok := a.toPayment(op); ok {
			handle(p)
		}
	})
	if err != nil && ctx.Err() == nil {
		return kinerr.Wrap(kinerr.ErrNetworkError, "payment stream: %v", err)
	}
	return nil
}

func (a *Account) toPayment(op operations.Operation) (chain.Payment, bool) {
	switch o := op.(type) {
	case operations.Payment:
		return a.fromPayment(o)
	case *operations.Payment:
		return a.fromPayment(*o)
	case operations.CreateAccount:
		return a.fromCreate(o)
	case *operations.CreateAccount:
		return a.fromCreate(*o)
	default:
		return chain.Payment{}, false
	}
}

func (a *Account) fromPayment(p operations.Payment) (chain.Payment, bool) {
	if !a.matches(p.Asset.Type, p.Asset.Code, p.Asset.Issuer) {
		return chain.Payment{}, false
	}
	amount, err := chain.ParseHorizonAmount(p.Amount)
	if err != nil {
		return chain.Payment{}, false
	}
	return chain.Payment{
		Hash:   p.TransactionHash,
		From:   p.From,
		To:     p.To,
		Amount: amount,
		Cursor: p.PagingToken(),
	}, true
}

// fromCreate maps account creation. On Kin SDK the starting balance is
// Kin; on Kin Core it is the native reserve and is not reported.
func (a *Account) fromCreate(c operations.CreateAccount) (chain.Payment, bool) {
	if !a.cfg.Asset.IsNative() {
		return chain.Payment{}, false
	}
	amount, err := chain.ParseHorizonAmount(c.StartingBalance)
	if err != nil {
		return chain.Payment{}, false
	}
	return chain.Payment{
		Hash:    c.TransactionHash,
		From:    c.Funder,
		To:      c.Account,
		Amount:  amount,
		Cursor:  c.PagingToken(),
		Created: true,
	}, true
}
