package shutdown

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/ledgerdriver/src/common"
	"github.com/mosaicnetworks/ledgerdriver/src/executor"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) action(name string, err error) Action {
	return func() error {
		r.mu.Lock()
		r.order = append(r.order, name)
		r.mu.Unlock()
		return err
	}
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func newTestManager(t *testing.T, clk clock.Clock) *Manager {
	logger := common.NewTestEntry(t, "shutdown")
	exec := executor.New(2, clk, logger)
	t.Cleanup(exec.Shutdown)
	return NewManager(exec, logger)
}

func TestShutdownReverseOrder(t *testing.T) {
	m := newTestManager(t, nil)
	r := &recorder{}

	m.RegisterShutdown(r.action("a", nil))
	m.RegisterShutdown(r.action("b", nil))
	m.RegisterShutdown(r.action("c", nil))

	m.Shutdown()
	assert.Equal(t, []string{"c", "b", "a"}, r.calls())
}

func TestShutdownIsolatesFailures(t *testing.T) {
	m := newTestManager(t, nil)
	r := &recorder{}

	m.RegisterShutdown(r.action("a", nil))
	m.RegisterShutdown(r.action("b", errors.New("b failed")))
	m.RegisterShutdown(r.action("c", nil))

	m.Shutdown()
	assert.Equal(t, []string{"c", "b", "a"}, r.calls())
}

func TestShutdownIsIdempotent(t *testing.T) {
	m := newTestManager(t, nil)
	r := &recorder{}

	m.RegisterShutdown(r.action("a", nil))
	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, []string{"a"}, r.calls())
	assert.True(t, m.IsShutdown())
}

func TestRegisterAfterShutdownPanics(t *testing.T) {
	m := newTestManager(t, nil)
	m.Shutdown()

	assert.Panics(t, func() { m.RegisterShutdown(Noop) })
}

func TestTryRegisterAfterShutdown(t *testing.T) {
	m := newTestManager(t, nil)
	r := &recorder{}

	require.NoError(t, m.TryRegisterShutdown(r.action("a", nil)))
	m.Shutdown()

	assert.ErrorIs(t, m.TryRegisterShutdown(r.action("b", nil)), ErrShutdown)
	assert.ErrorIs(t, m.TryRegisterProcessShutdown(future.Completed[process.Process](process.NewStub(1))), ErrShutdown)
	assert.Equal(t, []string{"a"}, r.calls())
}

func TestShutdownSkipsUnfinishedFutures(t *testing.T) {
	m := newTestManager(t, nil)
	r := &recorder{}

	m.RegisterShutdown(r.action("a", nil))
	m.RegisterShutdownFuture(future.New[Action]())
	m.RegisterShutdownFuture(future.Failed[Action](errors.New("never acquired")))
	m.RegisterShutdown(r.action("b", nil))

	start := time.Now()
	m.Shutdown()

	assert.Equal(t, []string{"b", "a"}, r.calls())
	assert.Less(t, time.Since(start), 3*FutureTimeout)
}

func TestShutdownAwaitsPendingFutures(t *testing.T) {
	m := newTestManager(t, nil)
	r := &recorder{}

	pending := future.New[Action]()
	m.RegisterShutdownFuture(pending)
	go func() {
		time.Sleep(50 * time.Millisecond)
		pending.Set(r.action("late", nil))
	}()

	m.Shutdown()
	assert.Equal(t, []string{"late"}, r.calls())
}

func TestRegisterProcessShutdownTerminates(t *testing.T) {
	m := newTestManager(t, nil)

	stub := process.NewStub(10)
	m.RegisterProcessShutdown(future.Completed[process.Process](stub))
	m.Shutdown()

	terminated, killed := stub.Signals()
	assert.Equal(t, 1, terminated)
	assert.Equal(t, 0, killed)
	assert.False(t, stub.Alive())
}

func TestRegisterProcessShutdownKillsStubbornProcess(t *testing.T) {
	mock := clock.NewMock()
	m := newTestManager(t, mock)

	stub := process.NewStub(11)
	stub.IgnoreTerminate = true
	m.RegisterProcessShutdown(future.Completed[process.Process](stub))

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()

	require.Eventually(t, func() bool {
		mock.Add(ProcessGracePeriod)
		_, killed := stub.Signals()
		return killed == 1
	}, 5*time.Second, 10*time.Millisecond)

	<-done
	assert.Equal(t, 137, stub.ExitCode())
}

func TestRunAlwaysShutsDown(t *testing.T) {
	logger := common.NewTestEntry(t, "shutdown")
	exec := executor.New(1, nil, logger)
	defer exec.Shutdown()

	r := &recorder{}
	boom := errors.New("boom")
	err := Run(exec, logger, func(m *Manager) error {
		m.RegisterShutdown(r.action("a", nil))
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, r.calls())
}
