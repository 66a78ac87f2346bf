package storage

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring is the subset of an OS keychain the keyring backend uses.
type Keyring interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// OSKeyring talks to the platform keychain through go-keyring.
type OSKeyring struct{}

// Set stores a secret in the OS keyring.
func (OSKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// Get retrieves a secret from the OS keyring.
func (OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Delete removes a secret from the OS keyring.
func (OSKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// KeyringBackend stores each record as one keychain item under service.
// Values are base64 encoded because keychains hold strings.
type KeyringBackend struct {
	service string
	ring    Keyring
}

// NewKeyring returns a backend over ring. A nil ring uses the OS keychain.
func NewKeyring(service string, ring Keyring) *KeyringBackend {
	if ring == nil {
		ring = OSKeyring{}
	}
	return &KeyringBackend{service: service, ring: ring}
}

// Get retrieves and decodes the item for key.
func (k *KeyringBackend) Get(key string) ([]byte, error) {
	s, err := k.ring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	val, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("keyring item %s: %w", key, err)
	}
	return val, nil
}

// Set encodes and stores value under key.
func (k *KeyringBackend) Set(key string, value []byte) error {
	if err := k.ring.Set(k.service, key, base64.StdEncoding.EncodeToString(value)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Delete removes the item for key.
func (k *KeyringBackend) Delete(key string) error {
	err := k.ring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// ProbeKeyring reports whether the OS keychain accepts a set/get/delete cycle.
func ProbeKeyring() bool {
	const (
		service = "kinmigrate-probe"
		user    = "probe"
		value   = "ok"
	)

	if err := keyring.Set(service, user, value); err != nil {
		return false
	}
	got, err := keyring.Get(service, user)
	_ = keyring.Delete(service, user)
	return err == nil && got == value
}
