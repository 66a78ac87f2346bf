package cli

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/config"
	"github.com/kinecosystem/kinmigrate/internal/migration"
	"github.com/kinecosystem/kinmigrate/internal/output"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// migrationServer answers every migration request with status and body
// and counts the requests.
func migrationServer(t *testing.T, env *testEnv, status int, body string) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/migrate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	env.cc.Config.MigrationURL = srv.URL
	env.cc.HTTP = srv.Client()
	return &calls
}

func TestMigrate(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	calls := migrationServer(t, env, http.StatusOK, `{"code":200,"message":"OK"}`)
	address := env.addAccount(t, chain.KinCore)
	env.core.Fund(address, "100")

	require.NoError(t, runMigrate(env.cmd(), []string{address}))
	var res migrateResult
	env.decode(t, &res)

	assert.Equal(t, migration.ReasonMigrated.String(), res.Reason)
	assert.Equal(t, chain.KinSDK, res.Blockchain)
	assert.Equal(t, chain.BurnDone.String(), res.Burn)
	assert.NotEmpty(t, res.BurnHash)
	assert.Equal(t, migration.ResultMigrated.String(), res.Service)
	assert.NotEmpty(t, res.AttemptID)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, env.core.Burned(address))

	ok, err := env.client(t, chain.KinSDK).Contains(address)
	require.NoError(t, err)
	assert.True(t, ok)

	snap := env.cc.Metrics.Snapshot()
	assert.Equal(t, int64(1), snap.MigrationsTotal)
	assert.Zero(t, snap.MigrationsFailed)

	// A second run finds the account on the new blockchain.
	require.NoError(t, runMigrate(env.cmd(), []string{address}))
	env.decode(t, &res)
	assert.Equal(t, migration.ReasonAlreadyMigrated.String(), res.Reason)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMigrate_KeptOnLegacy(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	calls := migrationServer(t, env, http.StatusOK, `{"code":200}`)
	address := env.addAccount(t, chain.KinCore)

	migrateTo = "core"
	require.NoError(t, runMigrate(env.cmd(), []string{address}))
	assert.Contains(t, env.out.String(), "nothing to migrate")
	assert.Zero(t, calls.Load())
	assert.False(t, env.core.Burned(address))
}

func TestMigrate_NoLegacyAccount(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	migrationServer(t, env, http.StatusOK, `{"code":200}`)

	require.NoError(t, runMigrate(env.cmd(), nil))
	var res migrateResult
	env.decode(t, &res)
	assert.Equal(t, migration.ReasonNoAccountToMigrate.String(), res.Reason)
	assert.Equal(t, chain.KinSDK, res.Blockchain)
}

func TestMigrate_ServiceUnavailable(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	calls := migrationServer(t, env, http.StatusServiceUnavailable, ``)
	address := env.addAccount(t, chain.KinCore)
	env.core.Fund(address, "5")

	err := runMigrate(env.cmd(), []string{address})
	require.ErrorIs(t, err, kinerr.ErrResponseFailed)
	assert.Contains(t, output.Describe(err).Suggestion, "again later")
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, env.core.Burned(address))

	ok, err := env.client(t, chain.KinSDK).Contains(address)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), env.cc.Metrics.Snapshot().MigrationsFailed)
}

func TestMigrate_UnknownAddress(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	migrationServer(t, env, http.StatusOK, `{"code":200}`)
	env.addAccount(t, chain.KinCore)

	err := runMigrate(env.cmd(), []string{keypair.MustRandom().Address()})
	require.ErrorIs(t, err, kinerr.ErrInvalidPublicAddress)
	assert.Contains(t, output.Describe(err).Suggestion, "account list")
}

func TestMigrate_VersionFromBackend(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	calls := migrationServer(t, env, http.StatusOK, `{"code":200}`)
	address := env.addAccount(t, chain.KinCore)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/migration/info/test/"+address, r.URL.Path)
		_, _ = w.Write([]byte(`{"version": 2}`))
	}))
	t.Cleanup(backend.Close)
	env.cc.Config.VersionURL = backend.URL

	require.NoError(t, runMigrate(env.cmd(), []string{address}))
	var res migrateResult
	env.decode(t, &res)
	assert.Equal(t, migration.ReasonAPICheck.String(), res.Reason)
	assert.Equal(t, chain.KinCore, res.Blockchain)
	assert.Zero(t, calls.Load())
}

func TestNewVersionResolver(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)

	r, err := newVersionResolver(env.cc, "")
	require.NoError(t, err)
	assert.Equal(t, migration.FixedVersion(chain.KinSDK), r)

	env.cc.Config.VersionURL = "https://backend.example.com"
	r, err = newVersionResolver(env.cc, "GA")
	require.NoError(t, err)
	assert.IsType(t, &migration.HTTPResolver{}, r)

	migrateTo = "core"
	r, err = newVersionResolver(env.cc, "")
	require.NoError(t, err)
	assert.Equal(t, migration.FixedVersion(chain.KinCore), r)

	migrateTo = "kin4"
	_, err = newVersionResolver(env.cc, "")
	require.ErrorIs(t, err, kinerr.ErrInvalidInput)

	migrateTo = ""
	env.cc.Config.VersionURL = "not a url"
	_, err = newVersionResolver(env.cc, "")
	require.ErrorIs(t, err, kinerr.ErrInvalidMigrationURL)
}

func TestBreakerSettings(t *testing.T) {
	assert.Equal(t, migration.DefaultBreakerSettings(), breakerSettings(config.BreakerConfig{}))
	assert.Equal(t, migration.BreakerSettings{MinRequests: 3, FailureRatio: 0.5, OpenTimeout: time.Second},
		breakerSettings(config.BreakerConfig{MinRequests: 3, FailureRatio: 0.5, OpenTimeout: time.Second}))
}

func TestMigrateResult_Text(t *testing.T) {
	svc := migration.ResultAlreadyMigrated
	res := newMigrateResult("GA", &migration.Outcome{
		AttemptID: "id-1",
		Version:   chain.KinSDK,
		Reason:    migration.ReasonMigrated,
		Burn:      &chain.BurnResult{Reason: chain.BurnAlreadyBurned},
		Service:   &svc,
	})
	out, err := renderText(res)
	require.NoError(t, err)
	assert.Equal(t, "Migrated GA to kin-sdk.\n"+
		"  burn:    alreadyBurned \n"+
		"  service: alreadyMigrated\n"+
		"  attempt: id-1\n", out)
}

func renderText(v output.Texter) (string, error) {
	var sb strings.Builder
	err := v.WriteText(&sb)
	return sb.String(), err
}
