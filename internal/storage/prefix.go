package storage

import "errors"

// ErrNoBatch is returned by Batch when the inner backend is not a Batcher.
var ErrNoBatch = errors.New("backend does not support batches")

// PrefixBackend namespaces every key of an inner Backend. The keystore uses
// one per blockchain version so equal indices never collide.
type PrefixBackend struct {
	inner  Backend
	prefix string
}

// NewPrefix wraps inner so every key is stored as prefix+key.
func NewPrefix(inner Backend, prefix string) *PrefixBackend {
	return &PrefixBackend{inner: inner, prefix: prefix}
}

// Prefix returns the namespace prefix.
func (p *PrefixBackend) Prefix() string { return p.prefix }

// Get retrieves a value by key.
func (p *PrefixBackend) Get(key string) ([]byte, error) {
	return p.inner.Get(p.prefix + key)
}

// Set stores a value.
func (p *PrefixBackend) Set(key string, value []byte) error {
	return p.inner.Set(p.prefix+key, value)
}

// Delete removes a key.
func (p *PrefixBackend) Delete(key string) error {
	return p.inner.Delete(p.prefix + key)
}

// Batch forwards ops with prefixed keys when the inner backend is a
// Batcher, and returns ErrNoBatch otherwise.
func (p *PrefixBackend) Batch(ops []Op) error {
	b, ok := p.inner.(Batcher)
	if !ok {
		return ErrNoBatch
	}
	prefixed := make([]Op, len(ops))
	for i, op := range ops {
		op.Key = p.prefix + op.Key
		prefixed[i] = op
	}
	return b.Batch(prefixed)
}
