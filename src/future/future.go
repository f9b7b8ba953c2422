// Package future implements single-assignment results that can be composed
// without blocking the caller.
//
// A Future is completed exactly once, either with a value, an error, or by
// cancellation. Map and FlatMap chain work onto a Future, All fans several
// Futures in. Blocking only happens at explicit Get calls.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is the error of a Future that was cancelled before it completed.
var ErrCancelled = errors.New("future cancelled")

// Future is a value of type T that becomes available at some point.
type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    T
	err      error
	onCancel []func()
}

// New returns an incomplete Future. The creator completes it with Set or
// SetError.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a Future that already holds v.
func Completed[T any](v T) *Future[T] {
	f := New[T]()
	f.Set(v)
	return f
}

// Failed returns a Future that already failed with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.SetError(err)
	return f
}

func (f *Future[T]) complete(v T, err error) ([]func(), bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.done:
		return nil, false
	default:
	}

	f.value = v
	f.err = err
	close(f.done)

	hooks := f.onCancel
	f.onCancel = nil
	return hooks, true
}

// Set completes the Future with v. It reports false if the Future was already
// complete.
func (f *Future[T]) Set(v T) bool {
	_, ok := f.complete(v, nil)
	return ok
}

// SetError fails the Future with err.
func (f *Future[T]) SetError(err error) bool {
	var zero T
	_, ok := f.complete(zero, err)
	return ok
}

// Cancel fails the Future with ErrCancelled and runs the hooks registered with
// OnCancel. Cancelling a completed Future does nothing.
func (f *Future[T]) Cancel() bool {
	var zero T
	hooks, ok := f.complete(zero, ErrCancelled)
	if !ok {
		return false
	}
	for _, h := range hooks {
		h()
	}
	return true
}

// OnCancel registers fn to run if the Future gets cancelled. It is dropped when
// the Future completes any other way.
func (f *Future[T]) OnCancel(fn func()) {
	f.mu.Lock()
	select {
	case <-f.done:
		cancelled := errors.Is(f.err, ErrCancelled)
		f.mu.Unlock()
		if cancelled {
			fn()
		}
		return
	default:
	}
	f.onCancel = append(f.onCancel, fn)
	f.mu.Unlock()
}

// Done is closed once the Future is complete.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the Future is complete.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether the Future was cancelled.
func (f *Future[T]) IsCancelled() bool {
	if !f.IsDone() {
		return false
	}
	_, err := f.Result()
	return errors.Is(err, ErrCancelled)
}

// Result returns the outcome without waiting. Before completion it returns the
// zero value and a nil error, so check IsDone first.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.value, f.err
}

// Get waits for the Future or for ctx to end, whichever happens first.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the Future is complete.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.Result()
}
