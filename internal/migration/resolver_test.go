package migration_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/migration"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

func newResolver(t *testing.T, handler http.HandlerFunc) *migration.HTTPResolver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	r, err := migration.NewHTTPResolver(base, "test", testAddress, srv.Client(), fastRetry(), zerolog.Nop())
	require.NoError(t, err)
	return r
}

func TestHTTPResolver(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		want   chain.Version
		err    error
	}{
		{"json core", http.StatusOK, `{"version": 2}`, chain.KinCore, nil},
		{"json sdk", http.StatusOK, `{"version": 3}`, chain.KinSDK, nil},
		{"bare number", http.StatusOK, "3\n", chain.KinSDK, nil},
		{"unknown version", http.StatusOK, `{"version": 4}`, 0, kinerr.ErrUnexpectedCondition},
		{"empty", http.StatusOK, "", 0, kinerr.ErrResponseEmpty},
		{"garbage", http.StatusOK, "kin", 0, kinerr.ErrResponseDecodingFailed},
		{"not found", http.StatusNotFound, "", 0, kinerr.ErrResponseFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var path string
			r := newResolver(t, func(w http.ResponseWriter, req *http.Request) {
				path = req.URL.Path
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := r.ResolveVersion(context.Background())
			assert.Equal(t, "/migration/info/test/"+testAddress, path)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPResolver_Retries(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	r := newResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"version":3}`))
	})
	got, err := r.ResolveVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chain.KinSDK, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewHTTPResolver_Validates(t *testing.T) {
	t.Parallel()
	base, err := url.Parse("https://backend.example.com")
	require.NoError(t, err)

	_, err = migration.NewHTTPResolver(nil, "test", testAddress, nil, fastRetry(), zerolog.Nop())
	require.ErrorIs(t, err, kinerr.ErrInvalidMigrationURL)
	_, err = migration.NewHTTPResolver(base, "toolong", testAddress, nil, fastRetry(), zerolog.Nop())
	require.ErrorIs(t, err, kinerr.ErrInvalidAppID)
}

func TestFixedVersion(t *testing.T) {
	t.Parallel()
	v, err := migration.FixedVersion(chain.KinCore).ResolveVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chain.KinCore, v)
}

func TestDelegateFuncs_NoResolver(t *testing.T) {
	t.Parallel()
	d := migration.DelegateFuncs{}
	_, err := d.NeedsVersion(context.Background())
	require.ErrorIs(t, err, kinerr.ErrMissingDelegate)
	d.DidStart()
	d.Ready(migration.Outcome{})
	d.Error(nil)
}
