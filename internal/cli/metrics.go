package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/metrics"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// metricsListen overrides metrics.listen.
	metricsListen string
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Expose prometheus metrics",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var metricsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /metrics until interrupted",
	Long: `Serve the prometheus collectors on metrics.listen. Each scrape also
refreshes the keystore account gauges.

Example:
  kinmigrate metrics serve --listen :9464`,
	Args: cobra.NoArgs,
	RunE: runMetricsServe,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.AddCommand(metricsServeCmd)
	metricsServeCmd.Flags().StringVar(&metricsListen, "listen", "", "listen address (default from config)")
}

func runMetricsServe(cmd *cobra.Command, _ []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	addr := metricsListen
	if addr == "" {
		addr = cc.Config.Metrics.Listen
	}
	for _, v := range chain.Versions() {
		c, err := cc.Client(v, false)
		if err != nil {
			return err
		}
		if err := cc.Metrics.TrackAccounts(v.String(), c.Count); err != nil {
			return err
		}
	}

	base, cancel := contextWithTimeout(cmd, 0)
	defer cancel()
	ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cc.Logger.Info().Str("listen", addr).Msg("serving metrics")
	_ = cc.Formatter.Printf("Serving metrics on http://%s/metrics\n", addr)
	return serveMetrics(cc.Metrics, ctx, addr)
}

// serveMetrics is replaced in tests.
//
//nolint:gochecknoglobals // test seam
var serveMetrics = (*metrics.Metrics).Serve
