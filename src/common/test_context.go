package common

import (
	"context"
	"testing"
	"time"
)

// TimeoutContext returns a context that expires after d and is cancelled when
// the test ends.
func TimeoutContext(t testing.TB, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
