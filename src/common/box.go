package common

import "sync"

// Box holds a value that can only be reached while holding its mutex. All reads
// and writes go through Locked, so callers can't forget to take the lock.
type Box[T any] struct {
	mu    sync.Mutex
	value T
}

// NewBox wraps value in a Box.
func NewBox[T any](value T) *Box[T] {
	return &Box[T]{value: value}
}

// Locked runs fn with exclusive access to the boxed value. The pointer must not
// escape fn.
func (b *Box[T]) Locked(fn func(v *T)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fn(&b.value)
}

// LockedGet is like Locked but returns whatever fn computes.
func LockedGet[T any, R any](b *Box[T], fn func(v *T) R) R {
	b.mu.Lock()
	defer b.mu.Unlock()

	return fn(&b.value)
}
