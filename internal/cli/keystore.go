package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "Manage the keystore",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keystoreResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every account of a blockchain",
	Long: `Remove all accounts from the keystore of both blockchains, or of the one
given with --blockchain. Ledger accounts are untouched; back them up first.

Example:
  kinmigrate keystore reset -b core --yes`,
	Args: cobra.NoArgs,
	RunE: runKeystoreReset,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(keystoreCmd)
	keystoreCmd.AddCommand(keystoreResetCmd)
	keystoreResetCmd.Flags().StringVarP(&blockchainFlag, "blockchain", "b", "", "blockchain: core or sdk (default both)")
	keystoreResetCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
}

// resetResult counts the removed accounts per blockchain.
type resetResult struct {
	Removed map[chain.Version]int `json:"removed"`
}

// WriteText implements output.Texter.
func (r resetResult) WriteText(w io.Writer) error {
	for _, v := range chain.Versions() {
		n, ok := r.Removed[v]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "Removed %d %s account(s)\n", n, v); err != nil {
			return err
		}
	}
	return nil
}

func runKeystoreReset(cmd *cobra.Command, _ []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	versions, err := selectedVersions()
	if err != nil {
		return err
	}
	if !assumeYes && !promptConfirmFn("Delete every account of the selected keystores?") {
		return kinerr.WithSuggestion(kinerr.ErrInvalidInput, "reset canceled")
	}

	res := resetResult{Removed: make(map[chain.Version]int, len(versions))}
	for _, v := range versions {
		c, err := cc.Client(v, false)
		if err != nil {
			return err
		}
		n, err := c.Count()
		if err != nil {
			return err
		}
		if err := c.DeleteKeystore(); err != nil {
			return err
		}
		res.Removed[v] = n
	}
	return cc.Formatter.Print(res)
}
