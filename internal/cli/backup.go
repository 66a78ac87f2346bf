package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kinecosystem/kinmigrate/internal/backup"
	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/config"
)

// backupCmd is the parent command for backup operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage account backups",
	Long:  `Create, list and restore encrypted account backups.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupCreateCmd = &cobra.Command{
	Use:   "create <index|address>",
	Short: "Back up an account",
	Long: `Export an account under a backup passphrase and store it, encrypted
again under the same passphrase, in ~/.kinmigrate/backups/.

Example:
  kinmigrate backup create 0 -b core`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupCreate,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Restore an account from a backup",
	Long: `Decrypt a backup file and import its account. The blockchain recorded
in the backup is used unless --blockchain is given.

Example:
  kinmigrate backup restore ~/.kinmigrate/backups/GABC...-2024-01-15-120000.kinbackup`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List backups",
	Args:    cobra.NoArgs,
	RunE:    runBackupList,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupRestoreCmd, backupListCmd)
	backupCmd.PersistentFlags().StringVarP(&blockchainFlag, "blockchain", "b", "", "blockchain: core or sdk")
}

func backupService(cc *CommandContext) *backup.Service {
	dir := filepath.Join(config.ExpandHome(cc.Config.Home), "backups")
	return backup.NewService(dir, cc.Logger.Logger)
}

// backupResult describes one backup file.
type backupResult struct {
	Path       string        `json:"path"`
	Address    string        `json:"address"`
	Blockchain chain.Version `json:"blockchain"`
	CreatedAt  time.Time     `json:"created_at"`
}

// WriteText implements output.Texter.
func (r backupResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Backup of %s (%s) written to %s\n", r.Address, r.Blockchain, r.Path)
	return err
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	v, err := selectedVersion()
	if err != nil {
		return err
	}
	c, err := cc.Client(v, true)
	if err != nil {
		return err
	}
	acct, _, err := resolveAccount(c, args[0])
	if err != nil {
		return err
	}
	pass, err := promptNewPassphraseFn()
	if err != nil {
		return err
	}

	b, path, err := backupService(cc).Create(acct, pass)
	if err != nil {
		return err
	}
	return cc.Formatter.Print(backupResult{
		Path:       path,
		Address:    b.Manifest.Address,
		Blockchain: b.Manifest.Blockchain,
		CreatedAt:  b.Manifest.CreatedAt,
	})
}

// restoreResult is the output of backup restore.
type restoreResult struct {
	Address    string        `json:"address"`
	Blockchain chain.Version `json:"blockchain"`
	Index      int           `json:"index"`
}

// WriteText implements output.Texter.
func (r restoreResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Restored %s into the %s keystore at index %d\n", r.Address, r.Blockchain, r.Index)
	return err
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	svc := backupService(cc)
	manifest, err := svc.Verify(args[0])
	if err != nil {
		return err
	}

	v := manifest.Blockchain
	if blockchainFlag != "" || !v.IsValid() {
		if v, err = selectedVersion(); err != nil {
			return err
		}
	}
	c, err := cc.Client(v, true)
	if err != nil {
		return err
	}
	pass, err := promptPasswordFn("Backup passphrase: ")
	if err != nil {
		return err
	}
	defer zeroBytes(pass)

	acct, err := svc.Restore(args[0], string(pass), c)
	if err != nil {
		return err
	}
	_, i, err := c.Find(acct.PublicAddress())
	if err != nil {
		return err
	}
	return cc.Formatter.Print(restoreResult{Address: acct.PublicAddress(), Blockchain: v, Index: i})
}

type backupListing []backupResult

// WriteText implements output.Texter.
func (l backupListing) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No backups found. Create one with: kinmigrate backup create <account>")
		return err
	}
	for _, r := range l {
		if _, err := fmt.Fprintf(w, "%s  %s  %s\n", r.CreatedAt.Format(time.RFC3339), r.Blockchain, r.Path); err != nil {
			return err
		}
	}
	return nil
}

func runBackupList(cmd *cobra.Command, _ []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	svc := backupService(cc)
	names, err := svc.List()
	if err != nil {
		return err
	}
	list := backupListing{}
	for _, name := range names {
		path := svc.BackupPath(name)
		manifest, err := svc.Verify(path)
		if err != nil {
			cc.Logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable backup")
			continue
		}
		list = append(list, backupResult{
			Path:       path,
			Address:    manifest.Address,
			Blockchain: manifest.Blockchain,
			CreatedAt:  manifest.CreatedAt,
		})
	}
	return cc.Formatter.Print(list)
}
