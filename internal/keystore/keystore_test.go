package keystore_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
	"github.com/kinecosystem/kinmigrate/internal/keystore"
	"github.com/kinecosystem/kinmigrate/internal/storage"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

var errBackendDown = errors.New("backend down")

func fastParams() kincrypto.KDFParams {
	return kincrypto.KDFParams{Memory: 64, Iterations: 1, Parallelism: 1}
}

func newStore(t *testing.T) (*keystore.KeyStore, *storage.MemoryBackend) {
	t.Helper()
	mem := storage.NewMemory()
	return keystore.New(mem, keystore.WithKDFParams(fastParams())), mem
}

func TestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "000000", keystore.Key(0))
	assert.Equal(t, "000042", keystore.Key(42))
}

func TestNewAccount(t *testing.T) {
	t.Parallel()
	ks, mem := newStore(t)

	rec, err := ks.NewAccount("")
	require.NoError(t, err)
	assert.Equal(t, byte('G'), rec.PublicKey[0])
	assert.Len(t, rec.Salt, kincrypto.SaltSize)
	assert.NotEmpty(t, rec.EncryptedSeed)

	n, err := ks.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, err := mem.Get("000000")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pkey":"`+rec.PublicKey+`"`)

	kp, err := ks.Keypair(rec, "")
	require.NoError(t, err)
	assert.Equal(t, rec.PublicKey, kp.Address())
}

func TestNewAccount_NoSeed(t *testing.T) {
	orig := kincrypto.Reader
	kincrypto.Reader = bytes.NewReader(nil)
	defer func() { kincrypto.Reader = orig }()

	ks, _ := newStore(t)
	_, err := ks.NewAccount("")
	require.ErrorIs(t, err, kinerr.ErrNoSeed)
}

func TestNewAccount_EncryptionFailed(t *testing.T) {
	orig := kincrypto.Reader
	// 32 bytes for the seed, nothing left for the salt.
	kincrypto.Reader = bytes.NewReader(bytes.Repeat([]byte{1}, 32))
	defer func() { kincrypto.Reader = orig }()

	ks, _ := newStore(t)
	_, err := ks.NewAccount("")
	require.ErrorIs(t, err, kinerr.ErrEncryptionFailed)
}

func TestImportSecretSeed(t *testing.T) {
	t.Parallel()
	ks, _ := newStore(t)

	kp, err := keypair.Random()
	require.NoError(t, err)

	rec, err := ks.ImportSecretSeed(kp.Seed(), "pass")
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), rec.PublicKey)

	signer, err := ks.Keypair(rec, "pass")
	require.NoError(t, err)
	assert.Equal(t, kp.Seed(), signer.Seed())

	_, err = ks.ImportSecretSeed("not-a-seed", "")
	require.ErrorIs(t, err, kinerr.ErrInvalidSeed)

	_, err = ks.ImportSecretSeed(kp.Address(), "")
	require.ErrorIs(t, err, kinerr.ErrInvalidSeed)
}

func TestAccount_OutOfRange(t *testing.T) {
	t.Parallel()
	ks, _ := newStore(t)
	_, err := ks.NewAccount("")
	require.NoError(t, err)

	for _, i := range []int{-1, 1, 100} {
		rec, err := ks.Account(i)
		require.NoError(t, err)
		assert.Nil(t, rec)
	}
}

func TestRemove_ShiftsIndices(t *testing.T) {
	t.Parallel()
	ks, _ := newStore(t)

	addrs := make([]string, 4)
	for i := range addrs {
		rec, err := ks.NewAccount("")
		require.NoError(t, err)
		addrs[i] = rec.PublicKey
	}

	ok, err := ks.Remove(1)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := ks.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want := []string{addrs[0], addrs[2], addrs[3]}
	for i, addr := range want {
		rec, err := ks.Account(i)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, addr, rec.PublicKey, "index %d", i)
	}

	rec, err := ks.Account(3)
	require.NoError(t, err)
	assert.Nil(t, rec)

	idx, found, err := ks.Find(addrs[1])
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
	assert.Nil(t, found)
}

func TestRemove_OutOfRange(t *testing.T) {
	t.Parallel()
	ks, _ := newStore(t)

	ok, err := ks.Remove(0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ks.NewAccount("")
	require.NoError(t, err)
	ok, err = ks.Remove(-1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExportImport_RoundTrip(t *testing.T) {
	t.Parallel()
	src, _ := newStore(t)
	dst, _ := newStore(t)

	orig, err := src.NewAccount("p1")
	require.NoError(t, err)
	origKey, err := src.Keypair(orig, "p1")
	require.NoError(t, err)

	exported, err := src.ExportAccount(orig, "p1", "p2")
	require.NoError(t, err)
	assert.Equal(t, orig.PublicKey, exported.PublicKey)
	assert.NotEqual(t, orig.Salt, exported.Salt)

	n, err := src.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "export must not persist")

	imported, err := dst.ImportAccount(exported, "p2", "p2")
	require.NoError(t, err)
	assert.Equal(t, orig.PublicKey, imported.PublicKey)

	key, err := dst.Keypair(imported, "p2")
	require.NoError(t, err)
	assert.Equal(t, origKey.Seed(), key.Seed())

	_, err = dst.Keypair(imported, "p1")
	require.ErrorIs(t, err, kinerr.ErrDecryptionFailed)
}

func TestImportAccount_PersistsExtra(t *testing.T) {
	t.Parallel()
	src, _ := newStore(t)
	dst, _ := newStore(t)

	orig, err := src.NewAccount("p1")
	require.NoError(t, err)
	require.NoError(t, src.SetExtra(orig.PublicKey, []byte("app data")))
	orig, err = src.Account(0)
	require.NoError(t, err)

	data, err := orig.JSON()
	require.NoError(t, err)
	parsed, err := keystore.ParseRecord(data)
	require.NoError(t, err)

	_, err = dst.ImportAccount(parsed, "p1", "p2")
	require.NoError(t, err)
	stored, err := dst.Account(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("app data"), stored.Extra)
}

func TestImportAccount_WrongPassphrase(t *testing.T) {
	t.Parallel()
	ks, _ := newStore(t)

	rec, err := ks.NewAccount("right")
	require.NoError(t, err)

	_, err = ks.ImportAccount(rec, "wrong", "")
	require.ErrorIs(t, err, kinerr.ErrDecryptionFailed)

	n, err := ks.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExportAccount_InvalidRecords(t *testing.T) {
	t.Parallel()
	ks, _ := newStore(t)

	tests := []struct {
		name string
		rec  *keystore.AccountRecord
		want error
	}{
		{"nil", nil, kinerr.ErrLoadFailed},
		{"no public key", &keystore.AccountRecord{Salt: []byte{1}, EncryptedSeed: []byte{1}}, kinerr.ErrLoadFailed},
		{"no salt", &keystore.AccountRecord{PublicKey: "GA", EncryptedSeed: []byte{1}}, kinerr.ErrMissingSalt},
		{"no seed", &keystore.AccountRecord{PublicKey: "GA", Salt: []byte{1}}, kinerr.ErrMissingSeed},
		{"garbage seed", &keystore.AccountRecord{PublicKey: "GA", Salt: []byte{1}, EncryptedSeed: []byte{1}}, kinerr.ErrDecryptionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ks.ExportAccount(tt.rec, "", "")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtra(t *testing.T) {
	t.Parallel()
	ks, _ := newStore(t)

	rec, err := ks.NewAccount("")
	require.NoError(t, err)
	require.NoError(t, ks.SetExtra(rec.PublicKey, []byte(`{"backedUp":true}`)))

	_, got, err := ks.Find(rec.PublicKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"backedUp":true}`, string(got.Extra))

	exported, err := ks.ExportAccount(got, "", "")
	require.NoError(t, err)
	assert.Equal(t, got.Extra, exported.Extra)

	err = ks.SetExtra("GNOPE", nil)
	require.ErrorIs(t, err, kinerr.ErrLoadFailed)
}

func TestRecordJSON(t *testing.T) {
	t.Parallel()
	rec := &keystore.AccountRecord{
		PublicKey:     "GABC",
		EncryptedSeed: []byte{0xde, 0xad},
		Salt:          []byte{0xbe, 0xef},
		Extra:         []byte("hi"),
	}

	s, err := rec.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"pkey":"GABC","seed":"dead","salt":"beef","extra":"aGk="}`, s)

	parsed, err := keystore.ParseRecord(s)
	require.NoError(t, err)
	assert.Equal(t, rec, parsed)

	_, err = keystore.ParseRecord(`{"pkey":"GABC","seed":"zz","salt":"00"}`)
	require.ErrorIs(t, err, kinerr.ErrLoadFailed)

	_, err = keystore.ParseRecord(`{"pkey":"GABC","seed":"00"}`)
	require.ErrorIs(t, err, kinerr.ErrMissingSalt)
}

type failingBackend struct{ storage.Backend }

func (failingBackend) Get(string) ([]byte, error) { return nil, errBackendDown }

func TestCount_BackendFailure(t *testing.T) {
	t.Parallel()
	ks := keystore.New(failingBackend{storage.NewMemory()}, keystore.WithKDFParams(fastParams()))

	_, err := ks.Count()
	require.ErrorIs(t, err, kinerr.ErrLoadFailed)

	_, err = ks.NewAccount("")
	require.ErrorIs(t, err, kinerr.ErrLoadFailed)
}

// diskFullBackend fails every Set of failKey while armed. It only embeds
// storage.Backend, so it is not a Batcher.
type diskFullBackend struct {
	storage.Backend
	failKey string
	armed   bool
}

func (d *diskFullBackend) Set(key string, value []byte) error {
	if d.armed && key == d.failKey {
		return errors.New("disk full")
	}
	return d.Backend.Set(key, value)
}

func TestRemove_WriteFailureKeepsRecords(t *testing.T) {
	t.Parallel()
	backend := &diskFullBackend{Backend: storage.NewMemory(), failKey: keystore.Key(2)}
	ks := keystore.New(backend, keystore.WithKDFParams(fastParams()))

	before := make([]*keystore.AccountRecord, 4)
	for i := range before {
		rec, err := ks.NewAccount("")
		require.NoError(t, err)
		before[i] = rec
	}

	// Moving record 3 down to key 000002 fails after record 2 already
	// overwrote key 000001.
	backend.armed = true
	ok, err := ks.Remove(1)
	require.ErrorIs(t, err, kinerr.ErrStoreFailed)
	assert.False(t, ok)

	after, err := ks.Accounts()
	require.NoError(t, err)
	require.Len(t, after, 4)
	for i, rec := range after {
		assert.Equal(t, before[i].PublicKey, rec.PublicKey, "index %d", i)
		assert.Equal(t, before[i].EncryptedSeed, rec.EncryptedSeed, "index %d", i)
	}

	backend.armed = false
	ok, err = ks.Remove(1)
	require.NoError(t, err)
	assert.True(t, ok)
	n, err := ks.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRemove_BatchBackend(t *testing.T) {
	t.Parallel()
	prefixed := storage.NewPrefix(storage.NewMemory(), "kin_core_")
	ks := keystore.New(prefixed, keystore.WithKDFParams(fastParams()))

	addrs := make([]string, 3)
	for i := range addrs {
		rec, err := ks.NewAccount("")
		require.NoError(t, err)
		addrs[i] = rec.PublicKey
	}

	ok, err := ks.Remove(0)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := ks.Accounts()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, addrs[1], all[0].PublicKey)
	assert.Equal(t, addrs[2], all[1].PublicKey)
}
