package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/config"
	"github.com/kinecosystem/kinmigrate/internal/migration"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// migrateTo skips the version check and forces the target blockchain.
	migrateTo string
	// migrateTimeout bounds one migration attempt.
	migrateTimeout time.Duration
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var migrateCmd = &cobra.Command{
	Use:   "migrate [address]",
	Short: "Migrate a Kin Core account to the Kin SDK blockchain",
	Long: `Run one migration attempt for a legacy account.

The app backend at version_url decides which blockchain the app runs on;
--to overrides it. When the answer is the Kin SDK blockchain the legacy
account is burned, the migration service recreates it on the new
blockchain and the keystore record is copied across. Every step can be
retried: an interrupted attempt resumes from the burned account.

Without an address the migration only checks which blockchain to use.

Example:
  kinmigrate migrate GABC...
  kinmigrate migrate GABC... --to sdk -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "skip the version check: core or sdk")
	migrateCmd.Flags().DurationVar(&migrateTimeout, "timeout", 2*time.Minute, "attempt timeout")
}

// migrateResult is the output of a successful attempt.
type migrateResult struct {
	AttemptID  string        `json:"attempt_id"`
	Address    string        `json:"address,omitempty"`
	Blockchain chain.Version `json:"blockchain"`
	Reason     string        `json:"reason"`
	Burn       string        `json:"burn,omitempty"`
	BurnHash   string        `json:"burn_hash,omitempty"`
	Service    string        `json:"service,omitempty"`
}

func newMigrateResult(address string, o *migration.Outcome) migrateResult {
	r := migrateResult{
		AttemptID:  o.AttemptID,
		Address:    address,
		Blockchain: o.Version,
		Reason:     o.Reason.String(),
	}
	if o.Burn != nil {
		r.Burn = o.Burn.Reason.String()
		r.BurnHash = o.Burn.Hash
	}
	if o.Service != nil {
		r.Service = o.Service.String()
	}
	return r
}

// WriteText implements output.Texter.
func (r migrateResult) WriteText(w io.Writer) error {
	var msg string
	switch r.Reason {
	case migration.ReasonMigrated.String():
		msg = fmt.Sprintf("Migrated %s to %s.", r.Address, r.Blockchain)
	case migration.ReasonAlreadyMigrated.String():
		msg = fmt.Sprintf("%s is already on %s.", r.Address, r.Blockchain)
	case migration.ReasonNoAccountToMigrate.String():
		msg = fmt.Sprintf("No legacy account to migrate; using %s.", r.Blockchain)
	default:
		msg = fmt.Sprintf("The app runs on %s; nothing to migrate.", r.Blockchain)
	}
	if _, err := fmt.Fprintln(w, msg); err != nil {
		return err
	}
	if r.Burn != "" {
		if _, err := fmt.Fprintf(w, "  burn:    %s %s\n", r.Burn, r.BurnHash); err != nil {
			return err
		}
	}
	if r.Service != "" {
		if _, err := fmt.Fprintf(w, "  service: %s\n", r.Service); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "  attempt: %s\n", r.AttemptID)
	return err
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	var address string
	if len(args) == 1 {
		address = args[0]
	}

	legacy, err := cc.Client(chain.KinCore, true)
	if err != nil {
		return err
	}
	current, err := cc.Client(chain.KinSDK, true)
	if err != nil {
		return err
	}
	service, err := newMigrationService(cc)
	if err != nil {
		return err
	}
	resolver, err := newVersionResolver(cc, address)
	if err != nil {
		return err
	}

	log := cc.Logger.Logger
	delegate := migration.DelegateFuncs{
		Resolver: resolver,
		OnStart: func() {
			_ = cc.Formatter.Printf("Checking migration of %s...\n", displayAddress(address))
		},
	}
	manager, err := migration.NewManager(legacy, current, service,
		migration.WithDelegate(delegate),
		migration.WithObserver(migration.Observers{
			migration.MetricsObserver{Metrics: cc.Metrics},
			migration.LogObserver{Logger: log},
		}),
		migration.WithLogger(log),
		migration.WithTransferPassphrase(cc.Passphrase),
	)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, migrateTimeout)
	defer cancel()
	outcome, err := manager.Run(ctx, address)
	if err != nil {
		return migrateSuggestion(err)
	}
	return cc.Formatter.Print(newMigrateResult(address, outcome))
}

func displayAddress(address string) string {
	if address == "" {
		return "this app"
	}
	return address
}

// newMigrationService builds the migration service client from the
// configured network, retry and breaker settings.
func newMigrationService(cc *CommandContext) (*migration.Service, error) {
	base, err := cc.Config.Provider().MigrationBaseURL()
	if err != nil {
		return nil, err
	}
	return migration.NewService(base,
		migration.WithServiceHTTPClient(cc.HTTP),
		migration.WithServiceRetry(cc.Config.Retry),
		migration.WithServiceBreaker(breakerSettings(cc.Config.Breaker)),
		migration.WithServiceLogger(cc.Logger.Logger),
	)
}

func breakerSettings(b config.BreakerConfig) migration.BreakerSettings {
	s := migration.DefaultBreakerSettings()
	if b.MinRequests > 0 {
		s.MinRequests = b.MinRequests
	}
	if b.FailureRatio > 0 {
		s.FailureRatio = b.FailureRatio
	}
	if b.OpenTimeout > 0 {
		s.OpenTimeout = b.OpenTimeout
	}
	return s
}

// newVersionResolver picks --to, then the configured app backend, and
// falls back to the Kin SDK blockchain.
func newVersionResolver(cc *CommandContext, address string) (migration.VersionResolver, error) {
	if migrateTo != "" {
		v, err := parseBlockchain(migrateTo)
		if err != nil {
			return nil, err
		}
		return migration.FixedVersion(v), nil
	}
	if cc.Config.VersionURL == "" {
		cc.Logger.Debug().Msg("no version_url configured, migrating to the Kin SDK blockchain")
		return migration.FixedVersion(chain.KinSDK), nil
	}
	base, err := chain.ParseServiceURL(cc.Config.VersionURL)
	if err != nil {
		return nil, kinerr.WithDetails(kinerr.ErrInvalidMigrationURL, map[string]string{"version_url": cc.Config.VersionURL})
	}
	return migration.NewHTTPResolver(base, cc.Config.AppID, address, cc.HTTP, cc.Config.Retry, cc.Logger.Logger)
}

func migrateSuggestion(err error) error {
	switch {
	case kinerr.Is(err, kinerr.ErrInvalidPublicAddress):
		return kinerr.WithSuggestion(err, "the address must be in the Kin Core keystore; see: kinmigrate account list -b core")
	case kinerr.Is(err, kinerr.ErrResponseFailed):
		return kinerr.WithSuggestion(err, "the migration service is unavailable; run the same command again later")
	default:
		return err
	}
}
