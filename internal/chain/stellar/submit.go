package stellar

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/txnbuild"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Ledger result codes the clients act on.
const (
	TxBadAuth             = "tx_bad_auth"
	TxFailed              = "tx_failed"
	TxInsufficientBalance = "tx_insufficient_balance"
	TxNoSourceAccount     = "tx_no_source_account"
	OpUnderfunded         = "op_underfunded"
	OpNoDestination       = "op_no_destination"
	OpNoTrust             = "op_no_trust"
	OpLowReserve          = "op_low_reserve"
	OpBadAuth             = "op_bad_auth"
)

// RejectedError is a transaction the ledger refused, with its result codes.
type RejectedError struct {
	Status      int
	Transaction string
	Operations  []string
}

func (e *RejectedError) Error() string {
	if len(e.Operations) == 0 {
		return "transaction rejected: " + e.Transaction
	}
	return fmt.Sprintf("transaction rejected: %s [%s]", e.Transaction, strings.Join(e.Operations, ", "))
}

// Has reports whether code is the transaction code or any operation code.
func (e *RejectedError) Has(code string) bool {
	return e.Transaction == code || slices.Contains(e.Operations, code)
}

// AsRejected extracts a RejectedError from err.
func AsRejected(err error) (*RejectedError, bool) {
	var r *RejectedError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// classifySubmit turns a Horizon submission failure into a RejectedError
// when the ledger returned result codes, or a network error otherwise.
func classifySubmit(err error) error {
	herr := horizonclient.GetError(err)
	if herr == nil {
		return kinerr.Wrap(kinerr.ErrNetworkError, "submit transaction: %v", err)
	}
	codes, cerr := herr.ResultCodes()
	if cerr != nil || codes == nil {
		return kinerr.Wrap(kinerr.ErrNetworkError, "submit transaction: %s (status %d)", herr.Problem.Title, herr.Problem.Status)
	}
	return &RejectedError{
		Status:      herr.Problem.Status,
		Transaction: codes.TransactionCode,
		Operations:  codes.OperationCodes,
	}
}

// Build assembles and signs a transaction with ops, sourced from the
// account at its current sequence. fee is per operation and is raised to
// the network minimum when lower.
func (a *Account) Build(ctx context.Context, ops []txnbuild.Operation, memo string, fee int64) (*txnbuild.Transaction, error) {
	kp, err := a.Keypair()
	if err != nil {
		return nil, err
	}
	detail, err := a.Detail(ctx)
	if err != nil {
		return nil, err
	}

	params := txnbuild.TransactionParams{
		SourceAccount:        &detail,
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              max(fee, txnbuild.MinBaseFee),
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewInfiniteTimeout()},
	}
	if memo != "" {
		params.Memo = txnbuild.MemoText(memo)
	}

	tx, err := txnbuild.NewTransaction(params)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrTransactionCreationFailed, "%v", err)
	}
	tx, err = tx.Sign(a.cfg.Endpoint.Passphrase, kp)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrTransactionCreationFailed, "sign: %v", err)
	}
	return tx, nil
}

// Envelope encodes a signed transaction.
func (a *Account) Envelope(tx *txnbuild.Transaction) (*chain.Envelope, error) {
	xdr, err := tx.Base64()
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrTransactionCreationFailed, "encode: %v", err)
	}
	hash, err := tx.HashHex(a.cfg.Endpoint.Passphrase)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrTransactionCreationFailed, "hash: %v", err)
	}
	return &chain.Envelope{XDR: xdr, Hash: hash, Network: a.cfg.Endpoint.Passphrase}, nil
}

// Submit sends a signed transaction and returns its hash. A ledger
// rejection is returned as *RejectedError.
func (a *Account) Submit(ctx context.Context, tx *txnbuild.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := a.cfg.Horizon.SubmitTransaction(tx)
	if err != nil {
		err = classifySubmit(err)
		a.logger.Debug().Err(err).Msg("transaction rejected")
		return "", err
	}
	a.logger.Debug().Str("hash", resp.Hash).Msg("transaction submitted")
	return resp.Hash, nil
}

// SubmitEnvelope sends an encoded transaction and returns its hash.
func (a *Account) SubmitEnvelope(ctx context.Context, envelope *chain.Envelope) (string, error) {
	if err := a.CheckDeleted(); err != nil {
		return "", err
	}
	if envelope == nil || envelope.XDR == "" {
		return "", kinerr.Wrap(kinerr.ErrInvalidInput, "empty envelope")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := a.cfg.Horizon.SubmitTransactionXDR(envelope.XDR)
	if err != nil {
		err = classifySubmit(err)
		a.logger.Debug().Err(err).Msg("envelope rejected")
		return "", err
	}
	a.logger.Debug().Str("hash", resp.Hash).Msg("envelope submitted")
	return resp.Hash, nil
}

// Payment returns a payment operation of the tracked asset.
func (a *Account) Payment(to, amount string) *txnbuild.Payment {
	return &txnbuild.Payment{Destination: to, Amount: amount, Asset: a.cfg.Asset}
}

// PaymentError maps a payment rejection onto the payment error kinds.
// Errors that are not ledger rejections are returned unchanged.
func PaymentError(err error, details map[string]string) error {
	r, ok := AsRejected(err)
	if !ok {
		return err
	}
	if details == nil {
		details = map[string]string{}
	}
	details["result"] = r.Transaction
	switch {
	case r.Has(OpUnderfunded), r.Has(TxInsufficientBalance):
		return kinerr.WithCause(kinerr.ErrInsufficientFunds, r, details)
	case r.Has(OpNoDestination):
		return kinerr.WithCause(kinerr.ErrMissingAccount, r, details)
	default:
		return kinerr.WithCause(kinerr.ErrPaymentFailed, r, details)
	}
}
