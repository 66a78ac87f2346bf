package backup

import (
	"unicode"

	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// MinPassphraseLength is the shortest accepted backup passphrase.
const MinPassphraseLength = 9

// ValidatePassphrase enforces the backup passphrase rules: at least
// MinPassphraseLength characters with an upper case letter, a lower case
// letter, a digit and a symbol.
func ValidatePassphrase(p string) error {
	var upper, lower, digit, symbol bool
	n := 0
	for _, r := range p {
		n++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	missing := ""
	switch {
	case n < MinPassphraseLength:
		missing = "length"
	case !upper:
		missing = "upper case letter"
	case !lower:
		missing = "lower case letter"
	case !digit:
		missing = "digit"
	case !symbol:
		missing = "symbol"
	default:
		return nil
	}
	return kinerr.WithSuggestion(
		kinerr.WithDetails(kinerr.ErrWeakPassphrase, map[string]string{"missing": missing}),
		"use at least 9 characters mixing upper and lower case letters, digits and symbols",
	)
}
