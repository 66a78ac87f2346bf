package chain

import (
	"regexp"
	"strconv"

	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// MaxMemoLength is the byte limit of a text memo.
const MaxMemoLength = 28

//nolint:gochecknoglobals // Compiled once
var (
	appIDPattern      = regexp.MustCompile(`^[a-zA-Z0-9]{3,4}$`)
	memoPrefixPattern = regexp.MustCompile(`^1-[a-zA-Z0-9]{3,4}-`)
)

// ValidateAppID checks the 3-4 character alphanumeric app id.
func ValidateAppID(appID string) error {
	if !appIDPattern.MatchString(appID) {
		return kinerr.WithDetails(kinerr.ErrInvalidAppID, map[string]string{"app_id": appID})
	}
	return nil
}

// PrependAppID returns memo prefixed with "1-<appID>-" unless it already
// carries an app id prefix.
func PrependAppID(appID, memo string) string {
	if memoPrefixPattern.MatchString(memo) {
		return memo
	}
	return "1-" + appID + "-" + memo
}

// BuildMemo returns the final memo text for a payment. With an app id the
// prefix is applied first; the result must fit MaxMemoLength bytes.
func BuildMemo(appID, memo string) (string, error) {
	if appID != "" {
		if err := ValidateAppID(appID); err != nil {
			return "", err
		}
		memo = PrependAppID(appID, memo)
	}
	if len(memo) > MaxMemoLength {
		return "", kinerr.WithDetails(kinerr.ErrMemoTooLong, map[string]string{
			"length": strconv.Itoa(len(memo)),
			"max":    strconv.Itoa(MaxMemoLength),
		})
	}
	return memo, nil
}
