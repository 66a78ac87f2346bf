package kincrypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// SaltSize is the length of the per-record KDF salt.
const SaltSize = 16

// Sealed layout: memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext.
const sealHeaderSize = 4 + 4 + 1

var (
	// ErrSealedTooShort is returned when a sealed blob cannot hold a header and tag.
	ErrSealedTooShort = errors.New("sealed data too short")

	// ErrEmptySalt is returned when sealing or opening without a salt.
	ErrEmptySalt = errors.New("salt is empty")

	// ErrInvalidKDFParams is returned when a sealed header carries zero or
	// out-of-bounds costs.
	ErrInvalidKDFParams = errors.New("invalid kdf parameters in sealed data")
)

// KDFParams are the Argon2id cost parameters used to derive the seed key.
type KDFParams struct {
	Memory      uint32 `yaml:"memory"` // KiB
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
}

// DefaultKDFParams returns the production cost parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

// Upper bounds on the Argon2id costs. Sealed headers come from imported
// and restored files, so Open refuses anything above them.
const (
	MaxKDFMemory      = 1 << 20 // KiB, 1 GiB
	MaxKDFIterations  = 64
	MaxKDFParallelism = 16
)

// Valid reports whether every cost parameter is non-zero and within the
// MaxKDF bounds.
func (p KDFParams) Valid() bool {
	return p.Memory > 0 && p.Memory <= MaxKDFMemory &&
		p.Iterations > 0 && p.Iterations <= MaxKDFIterations &&
		p.Parallelism > 0 && p.Parallelism <= MaxKDFParallelism
}

func deriveKey(passphrase string, salt []byte, params KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, params.Iterations, params.Memory,
		params.Parallelism, chacha20poly1305.KeySize)
}

// Seal encrypts plaintext with a key derived from passphrase and salt.
// The KDF parameters are written into the output so Open does not need them.
// An empty passphrase is allowed.
func Seal(plaintext []byte, passphrase string, salt []byte, params KDFParams) ([]byte, error) {
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}
	if !params.Valid() {
		params = DefaultKDFParams()
	}

	key := deriveKey(passphrase, salt, params)
	defer Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce, err := RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, sealHeaderSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = binary.LittleEndian.AppendUint32(out, params.Memory)
	out = binary.LittleEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)

	return out, nil
}

// Open reverses Seal. The plaintext is returned in a SecureBytes buffer.
func Open(sealed []byte, passphrase string, salt []byte) (*SecureBytes, error) {
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}

	nonceSize := chacha20poly1305.NonceSizeX
	minSize := sealHeaderSize + nonceSize + chacha20poly1305.Overhead
	if len(sealed) < minSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrSealedTooShort, len(sealed), minSize)
	}

	params := KDFParams{
		Memory:      binary.LittleEndian.Uint32(sealed[0:]),
		Iterations:  binary.LittleEndian.Uint32(sealed[4:]),
		Parallelism: sealed[8],
	}
	if !params.Valid() {
		return nil, ErrInvalidKDFParams
	}

	nonce := sealed[sealHeaderSize : sealHeaderSize+nonceSize]
	ciphertext := sealed[sealHeaderSize+nonceSize:]

	key := deriveKey(passphrase, salt, params)
	defer Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	defer Zero(plaintext)

	return SecureBytesFromSlice(plaintext)
}
