package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletedIsDone(t *testing.T) {
	f := Completed(42)
	require.True(t, f.IsDone())

	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSetOnlyOnce(t *testing.T) {
	f := New[string]()
	assert.True(t, f.Set("a"))
	assert.False(t, f.Set("b"))
	assert.False(t, f.SetError(errors.New("late")))

	v, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestCancelRunsHooks(t *testing.T) {
	f := New[int]()
	called := 0
	f.OnCancel(func() { called++ })

	require.True(t, f.Cancel())
	assert.False(t, f.Cancel())
	assert.Equal(t, 1, called)
	assert.True(t, f.IsCancelled())

	// registering after the fact still fires
	f.OnCancel(func() { called++ })
	assert.Equal(t, 2, called)
}

func TestOnCancelDroppedOnSuccess(t *testing.T) {
	f := New[int]()
	f.OnCancel(func() { t.Fatal("hook must not run") })
	f.Set(1)
	f.Cancel()
	f.OnCancel(func() { t.Fatal("hook must not run") })
}

func TestGetHonoursContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMapAndFlatMap(t *testing.T) {
	src := New[int]()
	doubled := Map(src, func(v int) (int, error) { return v * 2, nil })
	chained := FlatMap(doubled, func(v int) *Future[string] {
		return Completed(time.Duration(v).String())
	})

	src.Set(21)

	v, err := chained.Wait()
	require.NoError(t, err)
	assert.Equal(t, "42ns", v)
}

func TestMapPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	f := Map(Failed[int](boom), func(v int) (int, error) {
		t.Fatal("mapper must not run")
		return 0, nil
	})
	_, err := f.Wait()
	assert.ErrorIs(t, err, boom)

	g := Map(Completed(1), func(v int) (int, error) { return 0, boom })
	_, err = g.Wait()
	assert.ErrorIs(t, err, boom)
}

func TestAllKeepsOrder(t *testing.T) {
	fs := []*Future[int]{New[int](), New[int](), New[int]()}
	all := All(fs)

	fs[2].Set(3)
	fs[0].Set(1)
	assert.False(t, all.IsDone())
	fs[1].Set(2)

	v, err := all.Wait()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, v)
}

func TestAllShortCircuitsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	pending := New[int]()
	all := All([]*Future[int]{pending, Failed[int](boom)})

	_, err := all.Wait()
	assert.ErrorIs(t, err, boom)
	assert.False(t, pending.IsDone())
}

func TestAllEmpty(t *testing.T) {
	v, err := All[int](nil).Wait()
	require.NoError(t, err)
	assert.Empty(t, v)
}
