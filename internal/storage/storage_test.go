package storage_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/kinecosystem/kinmigrate/internal/storage"
)

var errKeychainLocked = errors.New("keychain locked")

type mockKeyring struct {
	mu     sync.Mutex
	store  map[string]string
	setErr error
}

func newMockKeyring() *mockKeyring {
	return &mockKeyring{store: make(map[string]string)}
}

func (m *mockKeyring) Set(service, user, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.store[service+":"+user] = password
	return nil
}

func (m *mockKeyring) Get(service, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.store[service+":"+user]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (m *mockKeyring) Delete(service, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[service+":"+user]; !ok {
		return keyring.ErrNotFound
	}
	delete(m.store, service+":"+user)
	return nil
}

func backends(t *testing.T) map[string]storage.Backend {
	t.Helper()

	disk, err := storage.NewBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })

	mem, err := storage.NewBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	return map[string]storage.Backend{
		"memory":          storage.NewMemory(),
		"badger":          disk,
		"badger-inmemory": mem,
		"keyring":         storage.NewKeyring("kinmigrate-test", newMockKeyring()),
		"prefix":          storage.NewPrefix(storage.NewMemory(), "kin_sdk_"),
	}
}

func TestBackend_Contract(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get("000000")
			require.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, b.Set("000000", []byte(`{"pkey":"GA"}`)))
			got, err := b.Get("000000")
			require.NoError(t, err)
			assert.JSONEq(t, `{"pkey":"GA"}`, string(got))

			require.NoError(t, b.Set("000000", []byte("replaced")))
			got, err = b.Get("000000")
			require.NoError(t, err)
			assert.Equal(t, "replaced", string(got))

			require.NoError(t, b.Delete("000000"))
			_, err = b.Get("000000")
			require.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, b.Delete("missing"))
		})
	}
}

func TestPrefixBackend_Isolation(t *testing.T) {
	t.Parallel()

	inner := storage.NewMemory()
	core := storage.NewPrefix(inner, "kin_core_")
	sdk := storage.NewPrefix(inner, "kin_sdk_")

	require.NoError(t, core.Set("000000", []byte("core")))
	require.NoError(t, sdk.Set("000000", []byte("sdk")))

	got, err := core.Get("000000")
	require.NoError(t, err)
	assert.Equal(t, "core", string(got))

	got, err = inner.Get("kin_sdk_000000")
	require.NoError(t, err)
	assert.Equal(t, "sdk", string(got))
	assert.Equal(t, 2, inner.Len())
	assert.Equal(t, "kin_core_", core.Prefix())
}

func TestMemoryBackend_CopiesValues(t *testing.T) {
	t.Parallel()

	m := storage.NewMemory()
	v := []byte("abc")
	require.NoError(t, m.Set("k", v))
	v[0] = 'x'

	got, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestKeyringBackend_Errors(t *testing.T) {
	t.Parallel()

	ring := newMockKeyring()
	b := storage.NewKeyring("svc", ring)

	ring.setErr = errKeychainLocked
	err := b.Set("000000", []byte("x"))
	require.ErrorIs(t, err, errKeychainLocked)

	ring.setErr = nil
	ring.store["svc:bad"] = "%%%not-base64"
	_, err = b.Get("bad")
	require.Error(t, err)
	require.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestClose(t *testing.T) {
	t.Parallel()

	require.NoError(t, storage.Close(storage.NewMemory()))

	b, err := storage.NewBadgerInMemory()
	require.NoError(t, err)
	require.NoError(t, storage.Close(b))
}

func TestBatch(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		batcher, ok := b.(storage.Batcher)
		if !ok {
			continue
		}
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Set("000000", []byte("a")))
			require.NoError(t, b.Set("000001", []byte("b")))

			require.NoError(t, batcher.Batch([]storage.Op{
				{Key: "000000", Value: []byte("b")},
				{Key: "000001", Delete: true},
			}))

			got, err := b.Get("000000")
			require.NoError(t, err)
			assert.Equal(t, "b", string(got))
			_, err = b.Get("000001")
			require.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestPrefixBackend_BatchNeedsBatcher(t *testing.T) {
	t.Parallel()

	p := storage.NewPrefix(storage.NewKeyring("kinmigrate-test", newMockKeyring()), "kin_core_")
	err := p.Batch([]storage.Op{{Key: "000000", Value: []byte("a")}})
	require.ErrorIs(t, err, storage.ErrNoBatch)
}
