// Package backup exports accounts under a user passphrase and restores
// them into a wallet client. A backup is the account JSON, optionally
// rendered as a QR code or wrapped in an age-encrypted file.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// BackupVersion is the current backup file format version.
const BackupVersion = 1

// Backup is the on-disk backup file.
type Backup struct {
	Version  int      `json:"version"`
	Manifest Manifest `json:"manifest"`
	// EncryptedData is the age-encrypted account JSON.
	EncryptedData []byte `json:"encrypted_data"`
	// Checksum is the SHA256 hash of EncryptedData.
	Checksum string `json:"checksum"`
}

// Manifest describes a backup without decrypting it.
type Manifest struct {
	Address          string        `json:"address"`
	Blockchain       chain.Version `json:"blockchain"`
	CreatedAt        time.Time     `json:"created_at"`
	EncryptionMethod string        `json:"encryption_method"`
	HostInfo         string        `json:"host_info,omitempty"`
}

// NewManifest returns a manifest for address on v.
func NewManifest(address string, v chain.Version) Manifest {
	return Manifest{
		Address:          address,
		Blockchain:       v,
		CreatedAt:        time.Now().UTC(),
		EncryptionMethod: "age",
	}
}

// CalculateChecksum computes the SHA256 checksum of data.
func CalculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyChecksum verifies that data matches the expected checksum.
func VerifyChecksum(data []byte, expected string) error {
	actual := CalculateChecksum(data)
	if actual != expected {
		return kinerr.WithDetails(kinerr.ErrBackupCorrupted, map[string]string{
			"expected": expected,
			"actual":   actual,
		})
	}
	return nil
}

// NewBackup wraps encrypted data with manifest and checksum.
func NewBackup(manifest Manifest, encryptedData []byte) *Backup {
	return &Backup{
		Version:       BackupVersion,
		Manifest:      manifest,
		EncryptedData: encryptedData,
		Checksum:      CalculateChecksum(encryptedData),
	}
}

// Validate checks the backup for consistency.
func (b *Backup) Validate() error {
	if b.Version != BackupVersion {
		return kinerr.Wrap(kinerr.ErrBackupCorrupted, "unsupported version %d", b.Version)
	}
	if b.Manifest.Address == "" {
		return kinerr.Wrap(kinerr.ErrBackupCorrupted, "missing address")
	}
	if len(b.EncryptedData) == 0 {
		return kinerr.Wrap(kinerr.ErrBackupCorrupted, "no encrypted data")
	}
	return VerifyChecksum(b.EncryptedData, b.Checksum)
}
