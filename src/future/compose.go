package future

// Map returns a Future holding fn applied to the value of f. A failure of f, or
// an error from fn, fails the result.
func Map[A, B any](f *Future[A], fn func(A) (B, error)) *Future[B] {
	out := New[B]()
	go func() {
		a, err := f.Wait()
		if err != nil {
			out.SetError(err)
			return
		}
		b, err := fn(a)
		if err != nil {
			out.SetError(err)
			return
		}
		out.Set(b)
	}()
	return out
}

// FlatMap chains an asynchronous step onto f.
func FlatMap[A, B any](f *Future[A], fn func(A) *Future[B]) *Future[B] {
	out := New[B]()
	go func() {
		a, err := f.Wait()
		if err != nil {
			out.SetError(err)
			return
		}
		b, err := fn(a).Wait()
		if err != nil {
			out.SetError(err)
			return
		}
		out.Set(b)
	}()
	return out
}

// All completes with every value, in order, once all of fs have succeeded. The
// first failure fails the result without waiting for the rest.
func All[T any](fs []*Future[T]) *Future[[]T] {
	out := New[[]T]()
	if len(fs) == 0 {
		out.Set([]T{})
		return out
	}

	remaining := make(chan struct{}, len(fs))
	for _, f := range fs {
		go func(f *Future[T]) {
			if _, err := f.Wait(); err != nil {
				out.SetError(err)
				return
			}
			remaining <- struct{}{}
		}(f)
	}

	go func() {
		for range fs {
			select {
			case <-remaining:
			case <-out.Done():
				return
			}
		}
		values := make([]T, len(fs))
		for i, f := range fs {
			values[i], _ = f.Result()
		}
		out.Set(values)
	}()

	return out
}

// Ignore drops the value of f, keeping only its outcome.
func Ignore[T any](f *Future[T]) *Future[struct{}] {
	return Map(f, func(T) (struct{}, error) { return struct{}{}, nil })
}
