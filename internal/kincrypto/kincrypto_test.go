package kincrypto_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
)

var errShortRead = errors.New("short read")

func TestMain(m *testing.M) {
	kincrypto.SetScryptWorkFactor(10)
	os.Exit(m.Run())
}

func testParams() kincrypto.KDFParams {
	return kincrypto.KDFParams{Memory: 64, Iterations: 1, Parallelism: 1}
}

func TestSeal_RoundTrip(t *testing.T) {
	t.Parallel()

	salt := bytes.Repeat([]byte{7}, kincrypto.SaltSize)
	seed := bytes.Repeat([]byte{0xAB}, 32)

	tests := []struct {
		name       string
		passphrase string
	}{
		{"empty passphrase", ""},
		{"user passphrase", "correct horse battery staple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sealed, err := kincrypto.Seal(seed, tt.passphrase, salt, testParams())
			require.NoError(t, err)
			assert.NotContains(t, string(sealed), string(seed))

			opened, err := kincrypto.Open(sealed, tt.passphrase, salt)
			require.NoError(t, err)
			defer opened.Destroy()
			assert.Equal(t, seed, opened.Bytes())
		})
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	t.Parallel()
	salt := bytes.Repeat([]byte{1}, kincrypto.SaltSize)

	a, err := kincrypto.Seal([]byte("seed"), "", salt, testParams())
	require.NoError(t, err)
	b, err := kincrypto.Seal([]byte("seed"), "", salt, testParams())
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpen_Failures(t *testing.T) {
	t.Parallel()
	salt := bytes.Repeat([]byte{2}, kincrypto.SaltSize)
	sealed, err := kincrypto.Seal([]byte("seed"), "p1", salt, testParams())
	require.NoError(t, err)

	t.Run("wrong passphrase", func(t *testing.T) {
		t.Parallel()
		_, err := kincrypto.Open(sealed, "p2", salt)
		require.Error(t, err)
	})

	t.Run("wrong salt", func(t *testing.T) {
		t.Parallel()
		_, err := kincrypto.Open(sealed, "p1", bytes.Repeat([]byte{3}, kincrypto.SaltSize))
		require.Error(t, err)
	})

	t.Run("empty salt", func(t *testing.T) {
		t.Parallel()
		_, err := kincrypto.Open(sealed, "p1", nil)
		require.ErrorIs(t, err, kincrypto.ErrEmptySalt)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		_, err := kincrypto.Open(sealed[:10], "p1", salt)
		require.ErrorIs(t, err, kincrypto.ErrSealedTooShort)
	})

	t.Run("zeroed header", func(t *testing.T) {
		t.Parallel()
		broken := append([]byte{}, sealed...)
		copy(broken[:9], make([]byte, 9))
		_, err := kincrypto.Open(broken, "p1", salt)
		require.ErrorIs(t, err, kincrypto.ErrInvalidKDFParams)
	})

	oversized := []struct {
		name   string
		offset int
		value  uint32
	}{
		{"memory", 0, 0xFFFFFFFF},
		{"iterations", 4, 20000},
	}
	for _, tc := range oversized {
		t.Run("oversized "+tc.name, func(t *testing.T) {
			t.Parallel()
			broken := append([]byte{}, sealed...)
			binary.LittleEndian.PutUint32(broken[tc.offset:], tc.value)
			_, err := kincrypto.Open(broken, "p1", salt)
			require.ErrorIs(t, err, kincrypto.ErrInvalidKDFParams)
		})
	}

	t.Run("oversized parallelism", func(t *testing.T) {
		t.Parallel()
		broken := append([]byte{}, sealed...)
		broken[8] = kincrypto.MaxKDFParallelism + 1
		_, err := kincrypto.Open(broken, "p1", salt)
		require.ErrorIs(t, err, kincrypto.ErrInvalidKDFParams)
	})
}

func TestKDFParams_Valid(t *testing.T) {
	t.Parallel()
	assert.True(t, kincrypto.DefaultKDFParams().Valid())
	assert.True(t, kincrypto.KDFParams{Memory: kincrypto.MaxKDFMemory, Iterations: kincrypto.MaxKDFIterations, Parallelism: kincrypto.MaxKDFParallelism}.Valid())
	assert.False(t, kincrypto.KDFParams{Memory: kincrypto.MaxKDFMemory + 1, Iterations: 1, Parallelism: 1}.Valid())
	assert.False(t, kincrypto.KDFParams{Memory: 64, Iterations: kincrypto.MaxKDFIterations + 1, Parallelism: 1}.Valid())
	assert.False(t, kincrypto.KDFParams{Memory: 64, Iterations: 1}.Valid())
}

func TestSeal_EmptySalt(t *testing.T) {
	t.Parallel()
	_, err := kincrypto.Seal([]byte("seed"), "", nil, testParams())
	require.ErrorIs(t, err, kincrypto.ErrEmptySalt)
}

func TestSecureBytes(t *testing.T) {
	t.Parallel()

	sb, err := kincrypto.SecureBytesFromSlice(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	assert.Equal(t, 32, sb.Len())

	seed, ok := sb.Seed()
	require.True(t, ok)
	assert.Equal(t, byte(9), seed[31])

	sb.Destroy()
	assert.Nil(t, sb.Bytes())
	assert.Equal(t, 0, sb.Len())
	sb.Destroy()

	short, err := kincrypto.SecureBytesFromSlice([]byte{1, 2, 3})
	require.NoError(t, err)
	_, ok = short.Seed()
	assert.False(t, ok)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errShortRead }

//nolint:paralleltest // Swaps the package RNG
func TestRandomBytes_ReaderFailure(t *testing.T) {
	orig := kincrypto.Reader
	kincrypto.Reader = failingReader{}
	defer func() { kincrypto.Reader = orig }()

	_, err := kincrypto.RandomBytes(16)
	require.ErrorIs(t, err, errShortRead)

	_, err = kincrypto.SecureRandomBytes(32)
	require.ErrorIs(t, err, errShortRead)
}

func TestAge_RoundTrip(t *testing.T) {
	t.Parallel()
	plaintext := []byte(`{"pkey":"GABC","seed":"00","salt":"00"}`)

	ciphertext, err := kincrypto.Encrypt(plaintext, "backup-password") // gitleaks:allow
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := kincrypto.Decrypt(ciphertext, "backup-password")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	_, err = kincrypto.Decrypt(ciphertext, "wrong")
	require.Error(t, err)
}

func TestAge_EmptyPassword(t *testing.T) {
	t.Parallel()
	_, err := kincrypto.Encrypt([]byte("data"), "")
	require.Error(t, err)
}
