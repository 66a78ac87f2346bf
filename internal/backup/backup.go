package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/fileutil"
	"github.com/kinecosystem/kinmigrate/internal/keystore"
	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

const (
	// BackupExtension is the file extension for backups.
	BackupExtension = ".kinbackup"

	// BackupFilePermissions is the permission mode for backup files.
	BackupFilePermissions = 0o600
)

// Importer is the wallet side of a restore.
type Importer interface {
	Version() chain.Version
	ImportAccount(data, passphrase string) (chain.Account, error)
}

// Export returns the account JSON of acct sealed under passphrase, after
// checking the passphrase rules.
func Export(acct chain.Account, passphrase string) (string, error) {
	if err := ValidatePassphrase(passphrase); err != nil {
		return "", err
	}
	return acct.Export(passphrase)
}

// Import restores an account JSON sealed under passphrase into w.
func Import(w Importer, data, passphrase string) (chain.Account, error) {
	if _, err := keystore.ParseRecord(data); err != nil {
		return nil, kinerr.WithCause(kinerr.ErrBackupCorrupted, err, nil)
	}
	return w.ImportAccount(data, passphrase)
}

// Service writes and reads age-encrypted backup files.
type Service struct {
	backupDir string
	logger    zerolog.Logger
}

// NewService creates a backup service storing files in backupDir.
func NewService(backupDir string, logger zerolog.Logger) *Service {
	return &Service{
		backupDir: backupDir,
		logger:    logger.With().Str("component", "backup").Logger(),
	}
}

// Create exports acct under passphrase and writes it as an age-encrypted
// backup file under the same passphrase.
func (s *Service) Create(acct chain.Account, passphrase string) (*Backup, string, error) {
	exported, err := Export(acct, passphrase)
	if err != nil {
		return nil, "", err
	}

	encrypted, err := kincrypto.Encrypt([]byte(exported), passphrase)
	if err != nil {
		return nil, "", kinerr.WithCause(kinerr.ErrEncryptionFailed, err, nil)
	}

	b := NewBackup(NewManifest(acct.PublicAddress(), acct.Version()), encrypted)
	path, err := s.write(b)
	if err != nil {
		return nil, "", fmt.Errorf("writing backup: %w", err)
	}
	s.logger.Info().Str("address", acct.PublicAddress()).Str("path", path).Msg("backup created")
	return b, path, nil
}

// Verify checks a backup file's integrity without decrypting it.
func (s *Service) Verify(path string) (*Manifest, error) {
	b, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b.Manifest, nil
}

// Open verifies and decrypts a backup file, returning the account JSON.
func (s *Service) Open(path, passphrase string) (*Manifest, string, error) {
	b, err := s.read(path)
	if err != nil {
		return nil, "", err
	}
	if err := b.Validate(); err != nil {
		return nil, "", err
	}
	plain, err := kincrypto.Decrypt(b.EncryptedData, passphrase)
	if err != nil {
		return nil, "", kinerr.WithCause(kinerr.ErrDecryptionFailed, err, map[string]string{"path": path})
	}
	defer kincrypto.Zero(plain)
	return &b.Manifest, string(plain), nil
}

// Restore imports the account of a backup file into w.
func (s *Service) Restore(path, passphrase string, w Importer) (chain.Account, error) {
	manifest, data, err := s.Open(path, passphrase)
	if err != nil {
		return nil, err
	}
	if manifest.Blockchain.IsValid() && manifest.Blockchain != w.Version() {
		s.logger.Warn().
			Str("backup", manifest.Blockchain.String()).
			Str("wallet", w.Version().String()).
			Msg("restoring into a different blockchain version")
	}
	acct, err := Import(w, data, passphrase)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("address", acct.PublicAddress()).Msg("backup restored")
	return acct, nil
}

// List returns the backup file names in the backup directory.
func (s *Service) List() ([]string, error) {
	entries, err := os.ReadDir(s.backupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == BackupExtension {
			backups = append(backups, entry.Name())
		}
	}
	return backups, nil
}

// BackupPath returns the path to a backup file.
func (s *Service) BackupPath(filename string) string {
	return filepath.Join(s.backupDir, filename)
}

func (s *Service) write(b *Backup) (string, error) {
	timestamp := b.Manifest.CreatedAt.Format("2006-01-02-150405")
	name := fmt.Sprintf("%s-%s%s", b.Manifest.Address, timestamp, BackupExtension)
	path := filepath.Join(s.backupDir, name)

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing backup: %w", err)
	}
	if err := fileutil.WriteAtomic(path, data, BackupFilePermissions); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Service) read(path string) (*Backup, error) {
	// #nosec G304 -- path is from user input
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kinerr.WithDetails(kinerr.ErrBackupNotFound, map[string]string{"path": path})
		}
		return nil, fmt.Errorf("reading backup file: %w", err)
	}

	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, kinerr.WithCause(kinerr.ErrBackupCorrupted, err, map[string]string{"path": path})
	}
	return &b, nil
}
