package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/chain/chaintest"
	"github.com/kinecosystem/kinmigrate/internal/config"
	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
	"github.com/kinecosystem/kinmigrate/internal/metrics"
	"github.com/kinecosystem/kinmigrate/internal/output"
	"github.com/kinecosystem/kinmigrate/internal/storage"
	"github.com/kinecosystem/kinmigrate/internal/wallet"
)

const backupPassphrase = "Kin-Backup-2024"

func TestMain(m *testing.M) {
	kincrypto.SetScryptWorkFactor(10)
	os.Exit(m.Run())
}

// testEnv is one CLI invocation environment over fake ledgers.
type testEnv struct {
	cc   *CommandContext
	core *chaintest.Horizon
	sdk  *chaintest.Horizon
	out  *bytes.Buffer
	home string
}

func newTestEnv(t *testing.T, format output.Format) *testEnv {
	t.Helper()
	resetFlags(t)

	home := t.TempDir()
	c := config.Defaults()
	c.Home = home
	c.AppID = "test"
	c.Keystore.Backend = config.BackendMemory
	c.Keystore.KDF = chaintest.FastKDF()
	c.Retry = chain.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	env := &testEnv{
		core: chaintest.NewCore(),
		sdk:  chaintest.NewSDK(),
		out:  &bytes.Buffer{},
		home: home,
	}
	env.cc = &CommandContext{
		Config:     c,
		Logger:     config.NullLogger(),
		Formatter:  output.NewFormatter(format, env.out),
		Metrics:    metrics.New(),
		HTTP:       http.DefaultClient,
		Backend:    storage.NewMemory(),
		Passphrase: chaintest.Passphrase,
		FactoryOptions: []wallet.FactoryOption{
			wallet.WithHorizon(chain.KinCore, env.core),
			wallet.WithHorizon(chain.KinSDK, env.sdk),
		},
	}
	return env
}

// cmd returns a command carrying the environment.
func (e *testEnv) cmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	SetCmdContext(cmd, e.cc)
	cmd.SetOut(e.out)
	return cmd
}

// decode parses the JSON output and resets the buffer.
func (e *testEnv) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.out.Bytes(), v), e.out.String())
	e.out.Reset()
}

// client returns the wallet client of v.
func (e *testEnv) client(t *testing.T, v chain.Version) *wallet.Client {
	t.Helper()
	c, err := e.cc.Client(v, false)
	require.NoError(t, err)
	return c
}

// addAccount creates an account of v and returns its address.
func (e *testEnv) addAccount(t *testing.T, v chain.Version) string {
	t.Helper()
	acct, err := e.client(t, v).AddAccount()
	require.NoError(t, err)
	return acct.PublicAddress()
}

// resetFlags restores the flag globals and prompt seams after the test.
func resetFlags(t *testing.T) {
	t.Helper()
	saved := struct {
		blockchain, seed, file, png, extra, to, listen string
		qr, yes, force                                 bool
		migrate, balance                               time.Duration
		pw                                             func(string) ([]byte, error)
		newPass                                        func() (string, error)
		confirm                                        func(string) bool
		serve                                          func(*metrics.Metrics, context.Context, string) error
	}{
		blockchainFlag, importSeed, importFile, exportPNG, extraSet, migrateTo, metricsListen,
		exportQR, assumeYes, configForce,
		migrateTimeout, balanceTimeout,
		promptPasswordFn, promptNewPassphraseFn, promptConfirmFn, serveMetrics,
	}
	t.Cleanup(func() {
		blockchainFlag, importSeed, importFile, exportPNG, extraSet, migrateTo, metricsListen =
			saved.blockchain, saved.seed, saved.file, saved.png, saved.extra, saved.to, saved.listen
		exportQR, assumeYes, configForce = saved.qr, saved.yes, saved.force
		migrateTimeout, balanceTimeout = saved.migrate, saved.balance
		promptPasswordFn, promptNewPassphraseFn, promptConfirmFn = saved.pw, saved.newPass, saved.confirm
		serveMetrics = saved.serve
	})

	blockchainFlag, importSeed, importFile, exportPNG, extraSet, migrateTo, metricsListen = "", "", "", "", "", "", ""
	exportQR, assumeYes, configForce = false, false, false
	migrateTimeout, balanceTimeout = 10*time.Second, 10*time.Second
	withPrompts(t, backupPassphrase, true)
}

// withPrompts answers every prompt with secret and confirm.
func withPrompts(t *testing.T, secret string, confirm bool) {
	t.Helper()
	promptPasswordFn = func(string) ([]byte, error) { return []byte(secret), nil }
	promptNewPassphraseFn = func() (string, error) { return secret, nil }
	promptConfirmFn = func(string) bool { return confirm }
}
