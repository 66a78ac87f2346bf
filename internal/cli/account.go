package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kinecosystem/kinmigrate/internal/backup"
	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/output"
	"github.com/kinecosystem/kinmigrate/internal/wallet"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// blockchainFlag selects the blockchain: core or sdk.
	blockchainFlag string
	// importSeed is a secret seed to import.
	importSeed string
	// importFile is an exported account JSON file to import.
	importFile string
	// exportQR renders the exported JSON as a terminal QR code.
	exportQR bool
	// exportPNG writes the exported JSON as a QR PNG file.
	exportPNG string
	// extraSet replaces the extra data of an account.
	extraSet string
	// assumeYes skips confirmation prompts.
	assumeYes bool
)

// accountCmd is the parent command for keystore account operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"accounts"},
	Short:   "Manage keystore accounts",
	Long:    `Create, list, import, export and delete the accounts of either blockchain.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List accounts",
	Long: `List the accounts of both blockchains, or of the one given with --blockchain.

Example:
  kinmigrate account list
  kinmigrate account list -b core -o json`,
	Args: cobra.NoArgs,
	RunE: runAccountList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	Long: `Generate a keypair and append it to the keystore. The account exists
only locally until it is funded on the ledger.

Example:
  kinmigrate account create --blockchain core`,
	Args: cobra.NoArgs,
	RunE: runAccountCreate,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountDeleteCmd = &cobra.Command{
	Use:   "delete <index|address>",
	Short: "Delete an account from the keystore",
	Long: `Remove an account from the keystore. Accounts above it move down one index.
The ledger account is not touched; without a backup its funds are lost.

Example:
  kinmigrate account delete 0 --blockchain core
  kinmigrate account delete GABC... --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountDelete,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an account",
	Long: `Import an account from a secret seed or from exported account JSON.

Example:
  kinmigrate account import --seed SB...
  kinmigrate account import --file account.json`,
	Args: cobra.NoArgs,
	RunE: runAccountImport,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountExportCmd = &cobra.Command{
	Use:   "export <index|address>",
	Short: "Export an account as encrypted JSON",
	Long: `Export an account re-encrypted under a new passphrase. The JSON can be
imported into any kinmigrate keystore of the same blockchain.

Example:
  kinmigrate account export 0 --qr
  kinmigrate account export GABC... --png account.png`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountExport,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountExtraCmd = &cobra.Command{
	Use:   "extra <index|address>",
	Short: "Show or set the extra data of an account",
	Long: `Show the app data stored with an account, or replace it with --set.

Example:
  kinmigrate account extra 0
  kinmigrate account extra 0 --set '{"user":"42"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountExtra,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountListCmd, accountCreateCmd, accountDeleteCmd,
		accountImportCmd, accountExportCmd, accountExtraCmd)

	accountCmd.PersistentFlags().StringVarP(&blockchainFlag, "blockchain", "b", "", "blockchain: core or sdk (default sdk)")

	accountDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	accountImportCmd.Flags().StringVar(&importSeed, "seed", "", "secret seed (S...)")
	accountImportCmd.Flags().StringVar(&importFile, "file", "", "exported account JSON, - for stdin")
	accountImportCmd.MarkFlagsMutuallyExclusive("seed", "file")
	accountImportCmd.MarkFlagsOneRequired("seed", "file")

	accountExportCmd.Flags().BoolVar(&exportQR, "qr", false, "render the JSON as a QR code")
	accountExportCmd.Flags().StringVar(&exportPNG, "png", "", "write the JSON as a QR PNG file")

	accountExtraCmd.Flags().StringVar(&extraSet, "set", "", "replace the extra data")
}

// accountEntry is one account in listings.
type accountEntry struct {
	Index      int           `json:"index"`
	Blockchain chain.Version `json:"blockchain"`
	Address    string        `json:"address"`
}

type accountList []accountEntry

// WriteText implements output.Texter.
func (l accountList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No accounts. Create one with: kinmigrate account create")
		return err
	}
	t := output.NewTable("BLOCKCHAIN", "INDEX", "ADDRESS").AlignRight(1)
	for _, e := range l {
		t.AddRow(e.Blockchain.String(), strconv.Itoa(e.Index), e.Address)
	}
	return t.WriteText(w)
}

// selectedVersions returns the blockchain named by --blockchain, or all
// versions when the flag is empty.
func selectedVersions() ([]chain.Version, error) {
	if blockchainFlag == "" {
		return chain.Versions(), nil
	}
	v, err := parseBlockchain(blockchainFlag)
	if err != nil {
		return nil, err
	}
	return []chain.Version{v}, nil
}

// selectedVersion returns the blockchain named by --blockchain, or Kin SDK.
func selectedVersion() (chain.Version, error) {
	if blockchainFlag == "" {
		return chain.KinSDK, nil
	}
	return parseBlockchain(blockchainFlag)
}

func parseBlockchain(s string) (chain.Version, error) {
	v, err := chain.ParseVersion(s)
	if err != nil {
		return 0, kinerr.WithSuggestion(err, "use --blockchain core or --blockchain sdk")
	}
	return v, nil
}

// resolveAccount finds ref, an index or a public address, in c.
func resolveAccount(c *wallet.Client, ref string) (chain.Account, int, error) {
	if i, err := strconv.Atoi(ref); err == nil {
		acct, err := c.Account(i)
		if err != nil {
			return nil, -1, err
		}
		if acct == nil {
			return nil, -1, kinerr.WithSuggestion(
				kinerr.WithDetails(kinerr.ErrNotFound, map[string]string{"index": ref, "blockchain": c.Version().String()}),
				"list accounts with: kinmigrate account list",
			)
		}
		return acct, i, nil
	}
	acct, i, err := c.Find(strings.TrimSpace(ref))
	if err != nil {
		return nil, -1, err
	}
	if acct == nil {
		return nil, -1, kinerr.WithSuggestion(
			kinerr.WithDetails(kinerr.ErrInvalidPublicAddress, map[string]string{"address": ref, "blockchain": c.Version().String()}),
			"list accounts with: kinmigrate account list",
		)
	}
	return acct, i, nil
}

func runAccountList(cmd *cobra.Command, _ []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	versions, err := selectedVersions()
	if err != nil {
		return err
	}

	list := accountList{}
	for _, v := range versions {
		c, err := cc.Client(v, false)
		if err != nil {
			return err
		}
		accts, err := c.Accounts()
		if err != nil {
			return err
		}
		for i, a := range accts {
			list = append(list, accountEntry{Index: i, Blockchain: v, Address: a.PublicAddress()})
		}
	}
	return cc.Formatter.Print(list)
}

func runAccountCreate(cmd *cobra.Command, _ []string) error {
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
	acct, err := c.AddAccount()
	if err != nil {
		return err
	}
	n, err := c.Count()
	if err != nil {
		return err
	}
	return cc.Formatter.Print(accountList{{Index: n - 1, Blockchain: v, Address: acct.PublicAddress()}})
}

func runAccountDelete(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	v, err := selectedVersion()
	if err != nil {
		return err
	}
	c, err := cc.Client(v, false)
	if err != nil {
		return err
	}
	acct, i, err := resolveAccount(c, args[0])
	if err != nil {
		return err
	}
	address := acct.PublicAddress()
	if !assumeYes && !promptConfirmFn(fmt.Sprintf("Delete %s account %s?", v, address)) {
		return kinerr.WithSuggestion(kinerr.ErrInvalidInput, "deletion canceled")
	}
	if err := c.DeleteAccount(i); err != nil {
		return err
	}
	return output.FormatSuccess(cc.Formatter.Writer(), "Deleted "+address, cc.Formatter.Format())
}

func runAccountImport(cmd *cobra.Command, _ []string) error {
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

	var acct chain.Account
	if importSeed != "" {
		acct, err = c.ImportSecretSeed(strings.TrimSpace(importSeed))
	} else {
		var data []byte
		data, err = readInput(cmd, importFile)
		if err != nil {
			return err
		}
		var pass []byte
		pass, err = promptPasswordFn("Export passphrase: ")
		if err != nil {
			return err
		}
		acct, err = backup.Import(c, string(data), string(pass))
		zeroBytes(pass)
	}
	if err != nil {
		return err
	}
	n, err := c.Count()
	if err != nil {
		return err
	}
	return cc.Formatter.Print(accountList{{Index: n - 1, Blockchain: v, Address: acct.PublicAddress()}})
}

// readInput reads path, or the command input for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: user supplied path is the point
	if err != nil {
		return nil, kinerr.WithCause(kinerr.ErrLoadFailed, err, map[string]string{"path": path})
	}
	return data, nil
}

// exportResult is the output of account export.
type exportResult struct {
	Address string `json:"address"`
	Account string `json:"account"`
	PNG     string `json:"png,omitempty"`
}

// WriteText implements output.Texter.
func (r exportResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.Account)
	if err == nil && r.PNG != "" {
		_, err = fmt.Fprintf(w, "QR code written to %s\n", r.PNG)
	}
	return err
}

func runAccountExport(cmd *cobra.Command, args []string) error {
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
	data, err := backup.Export(acct, pass)
	if err != nil {
		return err
	}

	res := exportResult{Address: acct.PublicAddress(), Account: data}
	if exportPNG != "" {
		if err := writeQRPNG(exportPNG, data); err != nil {
			return err
		}
		res.PNG = exportPNG
	}
	if err := cc.Formatter.Print(res); err != nil {
		return err
	}
	if exportQR && !cc.Formatter.IsJSON() {
		output.RenderQR(cc.Formatter.Writer(), data, output.DefaultQRConfig())
	}
	return nil
}

func writeQRPNG(path, data string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // G304: user supplied path
	if err != nil {
		return kinerr.WithCause(kinerr.ErrStoreFailed, err, map[string]string{"path": path})
	}
	if err := backup.WriteQRPNG(f, data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// extraResult is the output of account extra.
type extraResult struct {
	Address string `json:"address"`
	Extra   string `json:"extra"`
}

// WriteText implements output.Texter.
func (r extraResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.Extra)
	return err
}

func runAccountExtra(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	v, err := selectedVersion()
	if err != nil {
		return err
	}
	c, err := cc.Client(v, false)
	if err != nil {
		return err
	}
	acct, _, err := resolveAccount(c, args[0])
	if err != nil {
		return err
	}
	if extraSet != "" {
		if err := acct.SetExtra([]byte(extraSet)); err != nil {
			return err
		}
	}
	extra, err := acct.Extra()
	if err != nil {
		return err
	}
	return cc.Formatter.Print(extraResult{Address: acct.PublicAddress(), Extra: string(extra)})
}
