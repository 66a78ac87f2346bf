package chain

import (
	"context"
	"errors"
	"sync"
)

// Watch is a running observation producing values on C. C is closed when
// the producer stops; Err then reports why.
type Watch[T any] struct {
	C <-chan T

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewWatch starts run in a goroutine. run emits values through emit, which
// blocks until the value is received or the watch is stopped, and returns
// false once the watch is stopped.
func NewWatch[T any](ctx context.Context, run func(ctx context.Context, emit func(T) bool) error) *Watch[T] {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan T)
	w := &Watch[T]{C: ch, cancel: cancel, done: make(chan struct{})}

	emit := func(v T) bool {
		select {
		case ch <- v:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(w.done)
		defer close(ch)
		err := run(ctx, emit)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			err = nil
		}
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}()

	return w
}

// Stop ends the watch and waits for the producer to exit.
func (w *Watch[T]) Stop() {
	w.cancel()
	<-w.done
}

// Done is closed after the producer exits.
func (w *Watch[T]) Done() <-chan struct{} {
	return w.done
}

// Err returns the producer's terminal error, nil while running or after a
// clean stop.
func (w *Watch[T]) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
