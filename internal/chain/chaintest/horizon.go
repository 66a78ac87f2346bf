// Package chaintest provides an in-memory Horizon ledger for tests. It
// applies payments, trustlines, account creation and master key revocation
// with the result codes a real ledger returns.
package chaintest

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/support/render/problem"
	"github.com/stellar/go/txnbuild"

	"github.com/kinecosystem/kinmigrate/internal/chain"
)

const notFoundType = "https://stellar.org/horizon-errors/not_found"

// coreReserve is the native balance Fund gives Kin Core accounts.
const coreReserve = "100"

type ledgerAccount struct {
	native decimal.Decimal
	kin    *decimal.Decimal
	burned bool
}

func (l *ledgerAccount) clone() *ledgerAccount {
	c := *l
	if l.kin != nil {
		k := *l.kin
		c.kin = &k
	}
	return &c
}

// Horizon is a fake chain.Horizon for one blockchain version.
type Horizon struct {
	// SubmitHook runs before a submission is applied. A non-nil error is
	// returned to the caller and nothing is applied.
	SubmitHook func(ops []txnbuild.Operation) error
	// DetailHook runs before an account lookup. A non-nil error is returned.
	DetailHook func(address string) error

	version  chain.Version
	endpoint chain.Endpoint

	mu       sync.Mutex
	accounts map[string]*ledgerAccount
	history  []operations.Operation
	changed  chan struct{}
	submits  int
	streams  int
}

// New returns an empty ledger for v with endpoint ep.
func New(v chain.Version, ep chain.Endpoint) *Horizon {
	return &Horizon{
		version:  v,
		endpoint: ep,
		accounts: make(map[string]*ledgerAccount),
		changed:  make(chan struct{}),
	}
}

// NewCore returns a Kin Core ledger on the playground endpoint.
func NewCore() *Horizon {
	ep, _ := chain.ServiceProvider{Network: chain.NetworkPlayground}.Endpoint(chain.KinCore)
	return New(chain.KinCore, ep)
}

// NewSDK returns a Kin SDK ledger on the playground endpoint.
func NewSDK() *Horizon {
	ep, _ := chain.ServiceProvider{Network: chain.NetworkPlayground}.Endpoint(chain.KinSDK)
	return New(chain.KinSDK, ep)
}

// Endpoint returns the endpoint the ledger signs against.
func (h *Horizon) Endpoint() chain.Endpoint { return h.endpoint }

// Fund creates address holding amount Kin. On Kin Core the account also
// gets a native reserve and a KIN trustline.
func (h *Horizon) Fund(address, amount string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d := decimal.RequireFromString(amount)
	if h.version.IsLegacy() {
		h.accounts[address] = &ledgerAccount{native: decimal.RequireFromString(coreReserve), kin: &d}
	} else {
		h.accounts[address] = &ledgerAccount{native: d}
	}
	h.notifyLocked()
}

// CreateBare creates address without Kin. On Kin Core it has no trustline.
func (h *Horizon) CreateBare(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.version.IsLegacy() {
		h.accounts[address] = &ledgerAccount{native: decimal.RequireFromString(coreReserve)}
	} else {
		h.accounts[address] = &ledgerAccount{native: decimal.Zero}
	}
	h.notifyLocked()
}

// Exists reports whether address is on the ledger.
func (h *Horizon) Exists(address string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.accounts[address]
	return ok
}

// KinBalance returns the Kin balance of address. ok is false when the
// account or its trustline is missing.
func (h *Horizon) KinBalance(address string) (balance decimal.Decimal, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	acct, found := h.accounts[address]
	if !found {
		return decimal.Zero, false
	}
	if h.version.IsLegacy() {
		if acct.kin == nil {
			return decimal.Zero, false
		}
		return *acct.kin, true
	}
	return acct.native, true
}

// Burned reports whether the master key of address was revoked.
func (h *Horizon) Burned(address string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	acct, ok := h.accounts[address]
	return ok && acct.burned
}

// Submissions returns how many submissions reached the ledger, rejected
// ones included.
func (h *Horizon) Submissions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submits
}

// Streams returns the number of open payment streams.
func (h *Horizon) Streams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.streams
}

// NotFound returns the error Horizon gives for a missing resource.
func NotFound() error {
	return &horizonclient.Error{Problem: problem.P{
		Type:   notFoundType,
		Title:  "Resource Missing",
		Status: http.StatusNotFound,
	}}
}

// Rejection returns the error Horizon gives for a failed transaction.
func Rejection(txCode string, opCodes ...string) error {
	if opCodes == nil {
		opCodes = []string{}
	}
	return &horizonclient.Error{Problem: problem.P{
		Type:   "https://stellar.org/horizon-errors/transaction_failed",
		Title:  "Transaction Failed",
		Status: http.StatusBadRequest,
		Extras: map[string]interface{}{
			"result_codes": map[string]interface{}{
				"transaction": txCode,
				"operations":  opCodes,
			},
		},
	}}
}

// AccountDetail implements chain.Horizon.
func (h *Horizon) AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error) {
	if h.DetailHook != nil {
		if err := h.DetailHook(request.AccountID); err != nil {
			return hProtocol.Account{}, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	acct, ok := h.accounts[request.AccountID]
	if !ok {
		return hProtocol.Account{}, NotFound()
	}

	detail := hProtocol.Account{AccountID: request.AccountID}
	detail.Balances = append(detail.Balances, hProtocol.Balance{
		Balance: acct.native.StringFixed(h.version.Decimals()),
		Asset:   base.Asset{Type: "native"},
	})
	if acct.kin != nil {
		detail.Balances = append(detail.Balances, hProtocol.Balance{
			Balance: acct.kin.StringFixed(chain.WireDecimals),
			Asset:   base.Asset{Type: "credit_alphanum4", Code: chain.KinAssetCode, Issuer: h.endpoint.Issuer},
		})
	}
	return detail, nil
}

// SubmitTransaction implements chain.Horizon.
func (h *Horizon) SubmitTransaction(tx *txnbuild.Transaction) (hProtocol.Transaction, error) {
	hash, err := tx.HashHex(h.endpoint.Passphrase)
	if err != nil {
		return hProtocol.Transaction{}, err
	}
	return h.apply(tx.SourceAccount().AccountID, hash, tx.Operations())
}

// SubmitTransactionXDR implements chain.Horizon.
func (h *Horizon) SubmitTransactionXDR(transactionXdr string) (hProtocol.Transaction, error) {
	gtx, err := txnbuild.TransactionFromXDR(transactionXdr)
	if err != nil {
		return hProtocol.Transaction{}, Rejection("tx_malformed")
	}
	tx, ok := gtx.Transaction()
	if !ok {
		return hProtocol.Transaction{}, Rejection("tx_malformed")
	}
	return h.SubmitTransaction(tx)
}

// StreamPayments implements chain.Horizon. It replays recorded payments
// after the cursor, then follows new ones until ctx ends.
func (h *Horizon) StreamPayments(ctx context.Context, request horizonclient.OperationRequest, handler horizonclient.OperationHandler) error {
	h.mu.Lock()
	h.streams++
	pos := len(h.history)
	if request.Cursor != chain.CursorNow {
		if n, err := strconv.Atoi(request.Cursor); err == nil {
			pos = min(n, len(h.history))
		} else {
			pos = 0
		}
	}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.streams--
		h.mu.Unlock()
	}()

	for {
		h.mu.Lock()
		pending := append([]operations.Operation(nil), h.history[pos:]...)
		pos = len(h.history)
		changed := h.changed
		h.mu.Unlock()

		for _, op := range pending {
			if touches(op, request.ForAccount) {
				handler(op)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

func touches(op operations.Operation, address string) bool {
	switch o := op.(type) {
	case operations.Payment:
		return o.From == address || o.To == address
	case operations.CreateAccount:
		return o.Funder == address || o.Account == address
	}
	return false
}

func (h *Horizon) notifyLocked() {
	close(h.changed)
	h.changed = make(chan struct{})
}

func (h *Horizon) apply(source, hash string, ops []txnbuild.Operation) (hProtocol.Transaction, error) {
	if h.SubmitHook != nil {
		if err := h.SubmitHook(ops); err != nil {
			return hProtocol.Transaction{}, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.submits++

	src, ok := h.accounts[source]
	if !ok {
		return hProtocol.Transaction{}, Rejection("tx_no_source_account")
	}
	if src.burned {
		return hProtocol.Transaction{}, Rejection("tx_bad_auth")
	}

	state := make(map[string]*ledgerAccount, len(h.accounts))
	for k, v := range h.accounts {
		state[k] = v.clone()
	}
	var records []operations.Operation
	codes := make([]string, len(ops))
	failed := false
	for i, op := range ops {
		rec, code := h.applyOp(state, source, op)
		codes[i] = code
		if code != "op_success" {
			failed = true
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	if failed {
		return hProtocol.Transaction{}, Rejection("tx_failed", codes...)
	}

	h.accounts = state
	for _, rec := range records {
		h.history = append(h.history, withBase(rec, len(h.history)+1, hash))
	}
	h.notifyLocked()
	return hProtocol.Transaction{Hash: hash, Successful: true}, nil
}

func withBase(op operations.Operation, token int, hash string) operations.Operation {
	b := operations.Base{PT: strconv.Itoa(token), ID: strconv.Itoa(token), TransactionHash: hash, TransactionSuccessful: true}
	switch o := op.(type) {
	case operations.Payment:
		b.Type = "payment"
		o.Base = b
		return o
	case operations.CreateAccount:
		b.Type = "create_account"
		o.Base = b
		return o
	}
	return op
}

func (h *Horizon) kinAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	if !h.version.IsLegacy() {
		d = d.Shift(chain.WireDecimals - chain.QuarkDecimals)
	}
	return d, true
}

func (h *Horizon) applyOp(state map[string]*ledgerAccount, source string, op txnbuild.Operation) (operations.Operation, string) {
	src := state[source]
	switch o := op.(type) {
	case *txnbuild.Payment:
		amount, ok := h.kinAmount(o.Amount)
		if !ok {
			return nil, "op_malformed"
		}
		dst, ok := state[o.Destination]
		if !ok {
			return nil, "op_no_destination"
		}
		rec := operations.Payment{From: source, To: o.Destination, Amount: amount.StringFixed(h.version.Decimals())}
		if o.Asset.IsNative() {
			if h.version.IsLegacy() {
				return nil, "op_not_supported"
			}
			if src.native.LessThan(amount) {
				return nil, "op_underfunded"
			}
			src.native = src.native.Sub(amount)
			dst.native = dst.native.Add(amount)
			rec.Asset = base.Asset{Type: "native"}
			return rec, "op_success"
		}
		if o.Asset.GetCode() != chain.KinAssetCode || o.Asset.GetIssuer() != h.endpoint.Issuer {
			return nil, "op_no_issuer"
		}
		if src.kin == nil {
			return nil, "op_src_no_trust"
		}
		if dst.kin == nil {
			return nil, "op_no_trust"
		}
		if src.kin.LessThan(amount) {
			return nil, "op_underfunded"
		}
		*src.kin = src.kin.Sub(amount)
		*dst.kin = dst.kin.Add(amount)
		rec.Asset = base.Asset{Type: "credit_alphanum4", Code: chain.KinAssetCode, Issuer: h.endpoint.Issuer}
		return rec, "op_success"

	case *txnbuild.ChangeTrust:
		if !h.version.IsLegacy() {
			return nil, "op_not_supported"
		}
		if src.kin == nil {
			zero := decimal.Zero
			src.kin = &zero
		}
		if o.Limit != "" {
			limit, err := decimal.NewFromString(o.Limit)
			if err != nil || limit.LessThan(*src.kin) {
				return nil, "op_invalid_limit"
			}
		}
		return nil, "op_success"

	case *txnbuild.SetOptions:
		if o.MasterWeight != nil && *o.MasterWeight == 0 {
			src.burned = true
		}
		return nil, "op_success"

	case *txnbuild.CreateAccount:
		if _, exists := state[o.Destination]; exists {
			return nil, "op_already_exists"
		}
		amount, err := decimal.NewFromString(o.Amount)
		if err != nil || amount.IsNegative() {
			return nil, "op_malformed"
		}
		if !h.version.IsLegacy() {
			amount = amount.Shift(chain.WireDecimals - chain.QuarkDecimals)
		}
		if src.native.LessThan(amount) {
			return nil, "op_underfunded"
		}
		src.native = src.native.Sub(amount)
		state[o.Destination] = &ledgerAccount{native: amount}
		return operations.CreateAccount{
			StartingBalance: amount.StringFixed(h.version.Decimals()),
			Funder:          source,
			Account:         o.Destination,
		}, "op_success"
	}
	return nil, "op_not_supported"
}

var _ chain.Horizon = (*Horizon)(nil)
