package keystore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// HexBytes marshals to and from a lowercase hex JSON string.
type HexBytes []byte

// MarshalJSON encodes the bytes as hex.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON decodes a hex string.
func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*h = b
	return nil
}

// AccountRecord is one persisted keystore entry and also the exported
// account JSON: {"pkey", "seed", "salt", "extra"}.
type AccountRecord struct {
	PublicKey     string   `json:"pkey"`
	EncryptedSeed HexBytes `json:"seed"`
	Salt          HexBytes `json:"salt"`
	Extra         []byte   `json:"extra,omitempty"`
}

// Clone returns a deep copy of r.
func (r *AccountRecord) Clone() *AccountRecord {
	if r == nil {
		return nil
	}
	c := &AccountRecord{PublicKey: r.PublicKey}
	c.EncryptedSeed = append(HexBytes(nil), r.EncryptedSeed...)
	c.Salt = append(HexBytes(nil), r.Salt...)
	if r.Extra != nil {
		c.Extra = append([]byte{}, r.Extra...)
	}
	return c
}

// Validate checks that the record carries everything needed to decrypt it.
func (r *AccountRecord) Validate() error {
	if r.PublicKey == "" {
		return kinerr.Wrap(kinerr.ErrLoadFailed, "record has no public key")
	}
	if len(r.Salt) == 0 {
		return kinerr.ErrMissingSalt
	}
	if len(r.EncryptedSeed) == 0 {
		return kinerr.ErrMissingSeed
	}
	return nil
}

// JSON encodes the record in the export format.
func (r *AccountRecord) JSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseRecord decodes an exported account JSON document.
func ParseRecord(data string) (*AccountRecord, error) {
	var r AccountRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, kinerr.Wrap(kinerr.ErrLoadFailed, "decode account json: %v", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
