package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/config"
	"github.com/kinecosystem/kinmigrate/internal/metrics"
	"github.com/kinecosystem/kinmigrate/internal/output"
	"github.com/kinecosystem/kinmigrate/internal/storage"
	"github.com/kinecosystem/kinmigrate/internal/version"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// withGlobals restores the root flags and global state after the test.
func withGlobals(t *testing.T) {
	t.Helper()
	h, o, v, n, a := homeDir, outputFormat, verbose, networkFlag, appIDFlag
	c, l, f := cfg, logger, formatter
	t.Cleanup(func() {
		cleanup()
		homeDir, outputFormat, verbose, networkFlag, appIDFlag = h, o, v, n, a
		cfg, logger, formatter = c, l, f
	})
	for _, key := range []string{
		config.EnvHome, config.EnvNetwork, config.EnvAppID, config.EnvLogLevel,
		config.EnvKeystoreBackend, config.EnvOutputFormat, config.EnvVerbose,
	} {
		t.Setenv(key, "")
	}
}

func TestInitGlobals(t *testing.T) {
	withGlobals(t)
	homeDir = t.TempDir()
	outputFormat = "json"
	networkFlag = "production"
	appIDFlag = "abcd"
	verbose = true

	require.NoError(t, initGlobals())
	assert.Equal(t, homeDir, cfg.Home)
	assert.Equal(t, "production", cfg.Network)
	assert.Equal(t, "abcd", cfg.AppID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, formatter.IsJSON())
	require.NotNil(t, logger)
	assert.Equal(t, filepath.Join(homeDir, "kinmigrate.log"), logger.Path())
}

func TestInitGlobals_ConfigFile(t *testing.T) {
	withGlobals(t)
	homeDir = t.TempDir()
	outputFormat = "text"

	c := config.Defaults()
	c.AppID = "wxyz"
	c.Network = "production"
	require.NoError(t, config.Save(c, config.Path(homeDir)))

	require.NoError(t, initGlobals())
	assert.Equal(t, "wxyz", cfg.AppID)
	assert.Equal(t, "production", cfg.Network)
	assert.False(t, formatter.IsJSON())
}

func TestInitGlobals_Invalid(t *testing.T) {
	withGlobals(t)
	homeDir = t.TempDir()
	networkFlag = "prodution"

	err := initGlobals()
	require.ErrorIs(t, err, kinerr.ErrInvalidNetwork)
	assert.Contains(t, output.Describe(err).Suggestion, "production")
}

func TestApplyFlags(t *testing.T) {
	withGlobals(t)
	c := config.Defaults()

	outputFormat = "auto"
	applyFlags(c)
	assert.Equal(t, "auto", c.Output.DefaultFormat)
	assert.Equal(t, "error", c.Logging.Level)

	homeDir, networkFlag, appIDFlag, outputFormat = "/tmp/kin", "custom", "ab12", "json"
	applyFlags(c)
	assert.Equal(t, "/tmp/kin", c.Home)
	assert.Equal(t, "custom", c.Network)
	assert.Equal(t, "ab12", c.AppID)
	assert.Equal(t, "json", c.Output.DefaultFormat)
}

func TestCommandTree(t *testing.T) {
	paths := [][]string{
		{"migrate"},
		{"balance"},
		{"account", "list"},
		{"account", "create"},
		{"account", "delete"},
		{"account", "import"},
		{"account", "export"},
		{"account", "extra"},
		{"backup", "create"},
		{"backup", "restore"},
		{"backup", "list"},
		{"config", "show"},
		{"config", "init"},
		{"metrics", "serve"},
		{"keystore", "reset"},
		{"version"},
		{"completion"},
	}
	for _, p := range paths {
		cmd, _, err := rootCmd.Find(p)
		require.NoError(t, err, p)
		assert.Equal(t, p[len(p)-1], cmd.Name())
	}

	ls, _, err := rootCmd.Find([]string{"account", "ls"})
	require.NoError(t, err)
	assert.Equal(t, "list", ls.Name())
}

func TestEnrichParentLong(t *testing.T) {
	parent := &cobra.Command{Use: "parent", Long: "Parent command."}
	parent.AddCommand(&cobra.Command{Use: "child", Short: "Child command", Run: func(*cobra.Command, []string) {}})
	root := &cobra.Command{Use: "root"}
	root.AddCommand(parent)

	walkCommands(root, enrichParentLong)
	assert.Contains(t, parent.Long, "child")
	assert.Empty(t, root.Long)
}

func TestOpenBackend(t *testing.T) {
	c := config.Defaults()
	c.Keystore.Backend = config.BackendMemory
	b, err := openBackend(c)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryBackend{}, b)

	c.Keystore.Backend = config.BackendBadger
	c.Home = t.TempDir()
	b, err = openBackend(c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(b) })
	assert.DirExists(t, filepath.Join(c.Home, "keystore"))
}

func TestCommandContext_FromGlobals(t *testing.T) {
	withGlobals(t)
	homeDir = t.TempDir()
	outputFormat = "json"
	t.Setenv(config.EnvKeystoreBackend, config.BackendMemory)
	require.NoError(t, initGlobals())

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cc, err := commandContext(cmd)
	require.NoError(t, err)
	assert.Same(t, cfg, cc.Config)
	assert.Same(t, active, cc)
	assert.IsType(t, &storage.MemoryBackend{}, cc.Backend)
}

func TestCommandContext_NotLoaded(t *testing.T) {
	withGlobals(t)
	cfg = nil
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	_, err := commandContext(cmd)
	require.ErrorIs(t, err, kinerr.ErrConfigInvalid)
}

func TestPassphrase(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	env.cc.Passphrase = ""
	t.Setenv(EnvPassphrase, "from-env")
	p, err := env.cc.passphrase()
	require.NoError(t, err)
	assert.Equal(t, "from-env", p)

	env = newTestEnv(t, output.FormatJSON)
	env.cc.Passphrase = ""
	t.Setenv(EnvPassphrase, "")
	withPrompts(t, "typed", true)
	p, err = env.cc.passphrase()
	require.NoError(t, err)
	assert.Equal(t, "typed", p)

	env = newTestEnv(t, output.FormatJSON)
	env.cc.Passphrase = ""
	withPrompts(t, "", true)
	_, err = env.cc.passphrase()
	require.ErrorIs(t, err, kinerr.ErrInvalidInput)
}

func TestClient_Cached(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	a, err := env.cc.Client(chain.KinCore, true)
	require.NoError(t, err)
	b, err := env.cc.Client(chain.KinCore, false)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, chain.KinCore, a.Version())
}

func TestConfigInitShow(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	path := config.Path(env.home)

	require.NoError(t, runConfigInit(env.cmd(), nil))
	var msg map[string]string
	env.decode(t, &msg)
	assert.Equal(t, "success", msg["status"])
	assert.FileExists(t, path)

	err := runConfigInit(env.cmd(), nil)
	require.ErrorIs(t, err, kinerr.ErrInvalidInput)
	assert.Contains(t, output.Describe(err).Suggestion, "--force")

	configForce = true
	require.NoError(t, runConfigInit(env.cmd(), nil))
	env.out.Reset()

	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", saved.AppID)

	require.NoError(t, runConfigShow(env.cmd(), nil))
	var doc map[string]any
	env.decode(t, &doc)
	assert.Equal(t, "test", doc["app_id"])
	assert.Equal(t, "playground", doc["network"])
	keystore, ok := doc["keystore"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, config.BackendMemory, keystore["backend"])
}

func TestConfigShow_Text(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	require.NoError(t, runConfigShow(env.cmd(), nil))
	assert.Contains(t, env.out.String(), "app_id: test\n")
	assert.Contains(t, env.out.String(), "network: playground\n")
}

func TestVersionCommand(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	require.NoError(t, versionCmd.RunE(env.cmd(), nil))
	var info version.Info
	env.decode(t, &info)
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)

	text := newTestEnv(t, output.FormatText)
	require.NoError(t, versionCmd.RunE(text.cmd(), nil))
	assert.Contains(t, text.out.String(), "kinmigrate ")
}

func TestMetricsServe(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.addAccount(t, chain.KinCore)
	env.addAccount(t, chain.KinSDK)
	env.addAccount(t, chain.KinSDK)

	var gotAddr string
	serveMetrics = func(m *metrics.Metrics, ctx context.Context, addr string) error {
		assert.NoError(t, ctx.Err())
		gotAddr = addr
		var buf bytes.Buffer
		rec, err := m.Registry().Gather()
		require.NoError(t, err)
		for _, mf := range rec {
			if mf.GetName() != "kinmigrate_keystore_accounts" {
				continue
			}
			for _, metric := range mf.GetMetric() {
				buf.WriteString(metric.GetLabel()[0].GetValue())
				buf.WriteString("=")
				buf.WriteString(strconv.FormatFloat(metric.GetGauge().GetValue(), 'f', -1, 64))
				buf.WriteString(" ")
			}
		}
		assert.Equal(t, "kin-core=1 kin-sdk=2 ", buf.String())
		return nil
	}

	metricsListen = "127.0.0.1:0"
	require.NoError(t, runMetricsServe(env.cmd(), nil))
	assert.Equal(t, "127.0.0.1:0", gotAddr)
	assert.Contains(t, env.out.String(), "Serving metrics on http://127.0.0.1:0/metrics")

	metricsListen = ""
	env2 := newTestEnv(t, output.FormatJSON)
	serveMetrics = func(_ *metrics.Metrics, _ context.Context, addr string) error {
		gotAddr = addr
		return nil
	}
	require.NoError(t, runMetricsServe(env2.cmd(), nil))
	assert.Equal(t, env2.cc.Config.Metrics.Listen, gotAddr)
	assert.Empty(t, env2.out.String())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, kinerr.ExitCode(kinerr.ErrMissingAccount), ExitCode(kinerr.ErrMissingAccount))
	assert.Equal(t, kinerr.ExitGeneral, ExitCode(os.ErrNotExist))
}
