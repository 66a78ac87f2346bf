package chain

import (
	"strings"

	"github.com/shopspring/decimal"

	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Amount precision.
const (
	// WireDecimals is the fixed-point precision of Stellar amount strings.
	WireDecimals = 7
	// QuarkDecimals is the precision of the Kin SDK chain: 1 Kin = 100000 quarks.
	QuarkDecimals = 5
)

// ParseKin parses a positive decimal Kin amount such as "12.5".
func ParseKin(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, kinerr.WithDetails(kinerr.ErrInvalidAmount, map[string]string{"amount": s})
	}
	if !d.IsPositive() {
		return decimal.Zero, kinerr.WithDetails(kinerr.ErrInvalidAmount, map[string]string{"amount": s})
	}
	return d, nil
}

// ValidateAmount checks that amount is positive and representable on v.
func (v Version) ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return kinerr.WithDetails(kinerr.ErrInvalidAmount, map[string]string{"amount": amount.String()})
	}
	if !amount.Equal(amount.Truncate(v.Decimals())) {
		return kinerr.WithDetails(kinerr.ErrInvalidAmount, map[string]string{
			"amount":  amount.String(),
			"version": v.String(),
			"reason":  "too many decimal places",
		})
	}
	return nil
}

// TxAmount formats amount for a payment operation on v.
//
// Kin Core amounts are ordinary 7-decimal asset amounts. The Kin SDK chain
// counts quarks where Stellar counts stroops, so the quark count is written
// in the 7-decimal stroop notation the encoder expects.
func (v Version) TxAmount(amount decimal.Decimal) (string, error) {
	if err := v.ValidateAmount(amount); err != nil {
		return "", err
	}
	if v == KinSDK {
		return amount.Shift(-(WireDecimals - QuarkDecimals)).StringFixed(WireDecimals), nil
	}
	return amount.StringFixed(WireDecimals), nil
}

// ParseHorizonAmount parses an amount string reported by Horizon
// (balances, payment records). Both chains report Kin units.
func ParseHorizonAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, kinerr.WithDetails(kinerr.ErrBalanceQueryFailed, map[string]string{"amount": s})
	}
	return d, nil
}

// ToQuarks converts Kin to the Kin SDK's smallest unit.
func ToQuarks(amount decimal.Decimal) (int64, error) {
	q := amount.Shift(QuarkDecimals)
	if !q.Equal(q.Truncate(0)) {
		return 0, kinerr.WithDetails(kinerr.ErrInvalidAmount, map[string]string{"amount": amount.String()})
	}
	return q.IntPart(), nil
}

// FromQuarks converts quarks to Kin.
func FromQuarks(quarks int64) decimal.Decimal {
	return decimal.New(quarks, -QuarkDecimals)
}
