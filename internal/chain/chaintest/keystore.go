package chaintest

import (
	"github.com/kinecosystem/kinmigrate/internal/kincrypto"
	"github.com/kinecosystem/kinmigrate/internal/keystore"
	"github.com/kinecosystem/kinmigrate/internal/storage"
)

// Passphrase is the keystore passphrase test accounts are sealed under.
const Passphrase = "correct horse battery staple"

// FastKDF returns Argon2id parameters cheap enough for tests.
func FastKDF() kincrypto.KDFParams {
	return kincrypto.KDFParams{Memory: 64, Iterations: 1, Parallelism: 1}
}

// NewKeyStore returns an in-memory keystore with FastKDF.
func NewKeyStore() *keystore.KeyStore {
	return keystore.New(storage.NewMemory(), keystore.WithKDFParams(FastKDF()))
}
