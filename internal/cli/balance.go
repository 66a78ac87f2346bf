package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/output"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// balanceTimeout bounds all ledger lookups of one invocation.
	balanceTimeout time.Duration
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Show account balances",
	Long: `Query the ledger for the status and Kin balance of keystore accounts.
Accounts that were never funded show as notCreated; Kin Core accounts
without a KIN trustline show as notActivated.

Example:
  kinmigrate balance
  kinmigrate balance GABC... -b core`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&blockchainFlag, "blockchain", "b", "", "blockchain: core or sdk (default both)")
	balanceCmd.Flags().DurationVar(&balanceTimeout, "timeout", 30*time.Second, "overall lookup timeout")
}

// balanceEntry is the ledger state of one account.
type balanceEntry struct {
	Blockchain chain.Version    `json:"blockchain"`
	Address    string           `json:"address"`
	Status     string           `json:"status"`
	Balance    *decimal.Decimal `json:"balance,omitempty"`
}

type balanceList []balanceEntry

// WriteText implements output.Texter.
func (l balanceList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No accounts. Create one with: kinmigrate account create")
		return err
	}
	t := output.NewTable("BLOCKCHAIN", "ADDRESS", "STATUS", "BALANCE").AlignRight(3)
	for _, e := range l {
		amount := "-"
		if e.Balance != nil {
			amount = e.Balance.StringFixed(e.Blockchain.Decimals())
		}
		t.AddRow(e.Blockchain.String(), e.Address, e.Status, amount)
	}
	return t.WriteText(w)
}

func runBalance(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	versions, err := selectedVersions()
	if err != nil {
		return err
	}
	ctx, cancel := contextWithTimeout(cmd, balanceTimeout)
	defer cancel()

	list := balanceList{}
	for _, v := range versions {
		c, err := cc.Client(v, false)
		if err != nil {
			return err
		}
		var accts []chain.Account
		if len(args) == 1 {
			acct, _, err := c.Find(args[0])
			if err != nil {
				return err
			}
			if acct != nil {
				accts = append(accts, acct)
			}
		} else if accts, err = c.Accounts(); err != nil {
			return err
		}

		for _, acct := range accts {
			status, err := acct.Status(ctx)
			if err != nil {
				return err
			}
			entry := balanceEntry{Blockchain: v, Address: acct.PublicAddress(), Status: status.String()}
			if status == chain.StatusCreated {
				b, err := acct.Balance(ctx)
				if err != nil {
					return err
				}
				entry.Balance = &b
			}
			list = append(list, entry)
		}
	}
	if len(args) == 1 && len(list) == 0 {
		return kinerr.WithSuggestion(
			kinerr.WithDetails(kinerr.ErrInvalidPublicAddress, map[string]string{"address": args[0]}),
			"list accounts with: kinmigrate account list",
		)
	}
	return cc.Formatter.Print(list)
}
