// Package storage provides the key-value backends that persist keystore
// records. Keys are strings, values are opaque bytes, and every backend
// guarantees single-key atomicity only.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Backend is the persistence capability the keystore needs.
type Backend interface {
	// Get returns the value for key or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// Op is one write of a batch. Delete removes Key and ignores Value.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Batcher is implemented by backends that can apply several writes
// atomically: either every op lands or none does.
type Batcher interface {
	Batch(ops []Op) error
}

// Closer is implemented by backends holding resources such as file locks.
type Closer interface {
	Close() error
}

// Close closes b if it implements Closer.
func Close(b Backend) error {
	if c, ok := b.(Closer); ok {
		return c.Close()
	}
	return nil
}
