// Package keystore persists encrypted account seeds for one blockchain
// version. Records live under sequential zero-padded keys ("000000",
// "000001", ...) in a storage.Backend that the caller namespaces.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"

	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
	"github.com/kinecosystem/kinmigrate/internal/storage"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

const seedSize = 32

// Key returns the storage key for record index i.
func Key(i int) string {
	return fmt.Sprintf("%06d", i)
}

// KeyStore is the encrypted seed store of one blockchain version.
// Compound operations (append, remove with renumbering) are serialized
// by an internal mutex; the backend only has to be atomic per key.
type KeyStore struct {
	backend storage.Backend
	params  kincrypto.KDFParams
	logger  zerolog.Logger

	mu sync.Mutex
}

// Option configures a KeyStore.
type Option func(*KeyStore)

// WithKDFParams sets the Argon2id cost for newly sealed seeds.
func WithKDFParams(p kincrypto.KDFParams) Option {
	return func(ks *KeyStore) {
		if p.Valid() {
			ks.params = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(ks *KeyStore) {
		ks.logger = l.With().Str("component", "keystore").Logger()
	}
}

// New returns a KeyStore over backend.
func New(backend storage.Backend, opts ...Option) *KeyStore {
	ks := &KeyStore{
		backend: backend,
		params:  kincrypto.DefaultKDFParams(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(ks)
	}
	return ks
}

// Count returns the number of records.
func (ks *KeyStore) Count() (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.count()
}

func (ks *KeyStore) count() (int, error) {
	for i := 0; ; i++ {
		_, err := ks.backend.Get(Key(i))
		if errors.Is(err, storage.ErrNotFound) {
			return i, nil
		}
		if err != nil {
			return 0, kinerr.Wrap(kinerr.ErrLoadFailed, "probe record %d: %v", i, err)
		}
	}
}

// Account returns the record at index i, or nil when i is out of range.
func (ks *KeyStore) Account(i int) (*AccountRecord, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.load(i)
}

func (ks *KeyStore) load(i int) (*AccountRecord, error) {
	if i < 0 {
		return nil, nil
	}
	raw, err := ks.backend.Get(Key(i))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrLoadFailed, "read record %d: %v", i, err)
	}

	var rec AccountRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, kinerr.Wrap(kinerr.ErrLoadFailed, "decode record %d: %v", i, err)
	}
	return &rec, nil
}

func (ks *KeyStore) store(i int, rec *AccountRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return kinerr.Wrap(kinerr.ErrStoreFailed, "encode record %d: %v", i, err)
	}
	if err := ks.backend.Set(Key(i), raw); err != nil {
		return kinerr.Wrap(kinerr.ErrStoreFailed, "write record %d: %v", i, err)
	}
	return nil
}

// Accounts returns every record in index order.
func (ks *KeyStore) Accounts() ([]*AccountRecord, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	n, err := ks.count()
	if err != nil {
		return nil, err
	}
	out := make([]*AccountRecord, 0, n)
	for i := 0; i < n; i++ {
		rec, err := ks.load(i)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Find returns the index and record whose public key is publicKey,
// or -1 and nil when no such record exists.
func (ks *KeyStore) Find(publicKey string) (int, *AccountRecord, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.find(publicKey)
}

func (ks *KeyStore) find(publicKey string) (int, *AccountRecord, error) {
	n, err := ks.count()
	if err != nil {
		return -1, nil, err
	}
	for i := 0; i < n; i++ {
		rec, err := ks.load(i)
		if err != nil {
			return -1, nil, err
		}
		if rec != nil && rec.PublicKey == publicKey {
			return i, rec, nil
		}
	}
	return -1, nil, nil
}

// NewAccount generates a random seed, seals it under passphrase and
// appends the record.
func (ks *KeyStore) NewAccount(passphrase string) (*AccountRecord, error) {
	seed, err := kincrypto.SecureRandomBytes(seedSize)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrNoSeed, "%v", err)
	}
	defer seed.Destroy()

	rec, err := ks.seal(seed, passphrase)
	if err != nil {
		return nil, err
	}
	if err := ks.appendRecord(rec); err != nil {
		return nil, err
	}
	ks.logger.Debug().Str("address", rec.PublicKey).Msg("account created")
	return rec, nil
}

// ImportSecretSeed appends a record for a strkey-encoded secret seed ("S...").
func (ks *KeyStore) ImportSecretSeed(seed, passphrase string) (*AccountRecord, error) {
	raw, err := strkey.Decode(strkey.VersionByteSeed, seed)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrInvalidSeed, "%v", err)
	}
	sb, err := kincrypto.SecureBytesFromSlice(raw)
	kincrypto.Zero(raw)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrNoSeed, "%v", err)
	}
	defer sb.Destroy()

	rec, err := ks.seal(sb, passphrase)
	if err != nil {
		return nil, err
	}
	if err := ks.appendRecord(rec); err != nil {
		return nil, err
	}
	ks.logger.Debug().Str("address", rec.PublicKey).Msg("secret seed imported")
	return rec, nil
}

// ImportAccount decrypts rec with passphrase, re-seals the seed under
// newPassphrase with a fresh salt and appends it. A wrong passphrase
// fails the whole operation.
func (ks *KeyStore) ImportAccount(rec *AccountRecord, passphrase, newPassphrase string) (*AccountRecord, error) {
	out, err := ks.ExportAccount(rec, passphrase, newPassphrase)
	if err != nil {
		return nil, err
	}
	if err := ks.appendRecord(out); err != nil {
		return nil, err
	}
	ks.logger.Debug().Str("address", out.PublicKey).Msg("account imported")
	return out, nil
}

// ExportAccount returns rec re-sealed under newPassphrase without
// persisting it. Extra is carried over unchanged.
func (ks *KeyStore) ExportAccount(rec *AccountRecord, passphrase, newPassphrase string) (*AccountRecord, error) {
	seed, err := ks.Seed(rec, passphrase)
	if err != nil {
		return nil, err
	}
	defer seed.Destroy()

	out, err := ks.seal(seed, newPassphrase)
	if err != nil {
		return nil, err
	}
	if out.PublicKey != rec.PublicKey {
		return nil, kinerr.Wrap(kinerr.ErrInternalInconsistency, "re-sealed key %s does not match %s", out.PublicKey, rec.PublicKey)
	}
	if rec.Extra != nil {
		out.Extra = append([]byte{}, rec.Extra...)
	}
	return out, nil
}

// Remove deletes record i and renumbers the records above it so indices
// stay dense. It returns false when i is out of range. On a write error
// the records are left as they were before the call.
func (ks *KeyStore) Remove(i int) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	n, err := ks.count()
	if err != nil {
		return false, err
	}
	if i < 0 || i >= n {
		return false, nil
	}

	// Snapshot i..n-1 before touching anything so a failed write can be
	// rolled back to the original records.
	snapshot := make([][]byte, n-i)
	for j := i; j < n; j++ {
		raw, err := ks.backend.Get(Key(j))
		if err != nil {
			return false, kinerr.Wrap(kinerr.ErrLoadFailed, "read record %d: %v", j, err)
		}
		snapshot[j-i] = raw
	}

	ops := make([]storage.Op, 0, n-i)
	for j := i + 1; j < n; j++ {
		ops = append(ops, storage.Op{Key: Key(j - 1), Value: snapshot[j-i]})
	}
	ops = append(ops, storage.Op{Key: Key(n - 1), Delete: true})

	if done, err := ks.apply(ops); err != nil {
		if rerr := ks.restore(i, snapshot[:done]); rerr != nil {
			ks.logger.Error().Err(rerr).Int("index", i).Msg("rollback of record removal failed")
			return false, kinerr.Wrap(kinerr.ErrInternalInconsistency, "%v; rollback: %v", err, rerr)
		}
		return false, err
	}
	ks.logger.Debug().Int("index", i).Int("count", n-1).Msg("record removed")
	return true, nil
}

// apply writes ops in one batch when the backend supports it and one at a
// time otherwise. It returns the number of ops written before a failure;
// a failed batch writes none.
func (ks *KeyStore) apply(ops []storage.Op) (int, error) {
	if b, ok := ks.backend.(storage.Batcher); ok {
		err := b.Batch(ops)
		if err == nil {
			return len(ops), nil
		}
		if !errors.Is(err, storage.ErrNoBatch) {
			return 0, kinerr.Wrap(kinerr.ErrStoreFailed, "batch: %v", err)
		}
	}
	for k, op := range ops {
		if op.Delete {
			if err := ks.backend.Delete(op.Key); err != nil {
				return k, kinerr.Wrap(kinerr.ErrStoreFailed, "delete record %s: %v", op.Key, err)
			}
			continue
		}
		if err := ks.backend.Set(op.Key, op.Value); err != nil {
			return k, kinerr.Wrap(kinerr.ErrStoreFailed, "move record to %s: %v", op.Key, err)
		}
	}
	return len(ops), nil
}

// restore rewrites the first len(snapshot) records from index i.
func (ks *KeyStore) restore(i int, snapshot [][]byte) error {
	for k, raw := range snapshot {
		if err := ks.backend.Set(Key(i+k), raw); err != nil {
			return err
		}
	}
	return nil
}

// SetExtra replaces the extra metadata of the record with publicKey.
func (ks *KeyStore) SetExtra(publicKey string, extra []byte) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	i, rec, err := ks.find(publicKey)
	if err != nil {
		return err
	}
	if rec == nil {
		return kinerr.Wrap(kinerr.ErrLoadFailed, "no record for %s", publicKey)
	}
	rec.Extra = extra
	return ks.store(i, rec)
}

// Seed decrypts the seed of rec. The caller must Destroy the result.
func (ks *KeyStore) Seed(rec *AccountRecord, passphrase string) (*kincrypto.SecureBytes, error) {
	if rec == nil {
		return nil, kinerr.Wrap(kinerr.ErrLoadFailed, "no record")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	seed, err := kincrypto.Open(rec.EncryptedSeed, passphrase, rec.Salt)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrDecryptionFailed, "%s: %v", rec.PublicKey, err)
	}
	if seed.Len() != seedSize {
		seed.Destroy()
		return nil, kinerr.Wrap(kinerr.ErrMissingSecretKey, "%s: seed is %d bytes", rec.PublicKey, seed.Len())
	}
	return seed, nil
}

// Keypair decrypts rec and returns its signing keypair.
func (ks *KeyStore) Keypair(rec *AccountRecord, passphrase string) (*keypair.Full, error) {
	seed, err := ks.Seed(rec, passphrase)
	if err != nil {
		return nil, err
	}
	defer seed.Destroy()

	kp, err := fromSeed(seed)
	if err != nil {
		return nil, err
	}
	if kp.Address() != rec.PublicKey {
		return nil, kinerr.Wrap(kinerr.ErrInternalInconsistency, "seed does not match %s", rec.PublicKey)
	}
	return kp, nil
}

func fromSeed(seed *kincrypto.SecureBytes) (*keypair.Full, error) {
	raw, ok := seed.Seed()
	if !ok {
		return nil, kinerr.ErrMissingSecretKey
	}
	kp, err := keypair.FromRawSeed(raw)
	kincrypto.Zero(raw[:])
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrKeypairGenerationFailed, "%v", err)
	}
	return kp, nil
}

func (ks *KeyStore) seal(seed *kincrypto.SecureBytes, passphrase string) (*AccountRecord, error) {
	kp, err := fromSeed(seed)
	if err != nil {
		return nil, err
	}

	salt, err := kincrypto.RandomBytes(kincrypto.SaltSize)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrEncryptionFailed, "generate salt: %v", err)
	}
	sealed, err := kincrypto.Seal(seed.Bytes(), passphrase, salt, ks.params)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrEncryptionFailed, "%v", err)
	}

	return &AccountRecord{
		PublicKey:     kp.Address(),
		EncryptedSeed: sealed,
		Salt:          salt,
	}, nil
}

func (ks *KeyStore) appendRecord(rec *AccountRecord) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	n, err := ks.count()
	if err != nil {
		return err
	}
	return ks.store(n, rec)
}
