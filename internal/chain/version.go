// Package chain holds the blockchain-version-neutral vocabulary shared by
// the Kin Core and Kin SDK account clients: versions, networks, amounts,
// memos, the Horizon capability and the account capability interfaces.
package chain

import (
	"fmt"
	"strings"

	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Version identifies a Kin blockchain generation.
type Version int

// Supported blockchain versions.
const (
	// KinCore is the legacy asset-based chain (Kin 2).
	KinCore Version = iota + 1
	// KinSDK is the native-balance chain accounts migrate to (Kin 3).
	KinSDK
)

// Versions returns every supported version, legacy first.
func Versions() []Version {
	return []Version{KinCore, KinSDK}
}

// String returns the version name.
func (v Version) String() string {
	switch v {
	case KinCore:
		return "kin-core"
	case KinSDK:
		return "kin-sdk"
	default:
		return fmt.Sprintf("version(%d)", int(v))
	}
}

// IsValid reports whether v is a known version.
func (v Version) IsValid() bool {
	return v == KinCore || v == KinSDK
}

// IsLegacy reports whether v is the version accounts migrate away from.
func (v Version) IsLegacy() bool {
	return v == KinCore
}

// KeystorePrefix returns the storage namespace for v's keystore.
func (v Version) KeystorePrefix() string {
	switch v {
	case KinCore:
		return "kin_core_"
	case KinSDK:
		return "kin_sdk_"
	default:
		return ""
	}
}

// Decimals returns the number of fractional digits a Kin amount may carry.
func (v Version) Decimals() int32 {
	if v == KinSDK {
		return QuarkDecimals
	}
	return WireDecimals
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("invalid version %d", int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVersion accepts "kin-core", "core", "kin2", "2" and the Kin SDK
// equivalents "kin-sdk", "sdk", "kin3", "3".
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kin-core", "core", "kin2", "2":
		return KinCore, nil
	case "kin-sdk", "sdk", "kin3", "3":
		return KinSDK, nil
	default:
		return 0, kinerr.WithDetails(kinerr.ErrInvalidInput, map[string]string{"version": s})
	}
}
