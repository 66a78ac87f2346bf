package chain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Status is the on-ledger state of an account.
type Status int

// Account statuses.
const (
	// StatusNotCreated means the account does not exist on the ledger.
	StatusNotCreated Status = iota
	// StatusNotActivated means a Kin Core account exists without a KIN trustline.
	StatusNotActivated
	// StatusCreated means the account can hold and move Kin.
	StatusCreated
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNotCreated:
		return "notCreated"
	case StatusNotActivated:
		return "notActivated"
	case StatusCreated:
		return "created"
	default:
		return "unknown"
	}
}

// Payment is one Kin payment touching a watched account.
type Payment struct {
	Hash    string          `json:"hash"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Amount  decimal.Decimal `json:"amount"`
	Cursor  string          `json:"cursor"`
	Created bool            `json:"created,omitempty"` // account-creation operation
}

// Envelope is a signed, not yet submitted transaction.
type Envelope struct {
	XDR     string `json:"envelope"`
	Hash    string `json:"hash"`
	Network string `json:"network_id"`
}

// BurnReason tells why a burn call succeeded.
type BurnReason int

// Burn outcomes that count as success for migration.
const (
	// BurnDone means a burn transaction was submitted; the hash is set.
	BurnDone BurnReason = iota
	// BurnAlreadyBurned means the account's master key was already revoked.
	BurnAlreadyBurned
	// BurnNoAccount means the account never existed on the ledger.
	BurnNoAccount
	// BurnNoTrustline means the account exists without a KIN trustline.
	BurnNoTrustline
)

// String returns the reason name.
func (r BurnReason) String() string {
	switch r {
	case BurnDone:
		return "burned"
	case BurnAlreadyBurned:
		return "alreadyBurned"
	case BurnNoAccount:
		return "noAccount"
	case BurnNoTrustline:
		return "noTrustline"
	default:
		return "unknown"
	}
}

// BurnResult is the outcome of Burner.Burn.
type BurnResult struct {
	Reason BurnReason
	Hash   string
}

// Account is the operation set every account client provides.
// Every method fails with ErrAccountDeleted once the account is deleted.
type Account interface {
	PublicAddress() string
	Version() Version

	Balance(ctx context.Context) (decimal.Decimal, error)
	Status(ctx context.Context) (Status, error)

	// Extra returns the app metadata stored with the keystore record.
	Extra() ([]byte, error)
	SetExtra(extra []byte) error

	// Export returns the account JSON re-encrypted under passphrase.
	Export(passphrase string) (string, error)

	WatchBalance(ctx context.Context) (*Watch[decimal.Decimal], error)
	WatchPayments(ctx context.Context, cursor string) (*Watch[Payment], error)
	// WatchCreation yields once, when the account is first seen on the ledger.
	WatchCreation(ctx context.Context) (*Watch[struct{}], error)

	Deleted() bool
	MarkDeleted()
}

// AtomicSender builds, signs and submits a payment in one call (Kin Core).
type AtomicSender interface {
	SendTransaction(ctx context.Context, to string, amount decimal.Decimal, memo string) (string, error)
}

// TwoPhaseSender separates building from submission (Kin SDK).
type TwoPhaseSender interface {
	GenerateTransaction(ctx context.Context, to string, amount decimal.Decimal, memo string, fee uint32) (*Envelope, error)
	SendEnvelope(ctx context.Context, envelope *Envelope) (string, error)
}

// Whitelister countersigns an envelope so it is exempt from fees.
type Whitelister interface {
	Whitelist(ctx context.Context, envelope *Envelope) (*Envelope, error)
}

// Burner retires a legacy account as the migration commitment.
type Burner interface {
	Burn(ctx context.Context) (*BurnResult, error)
}

// Activator establishes the Kin Core trustline.
type Activator interface {
	Activate(ctx context.Context) (string, error)
}
