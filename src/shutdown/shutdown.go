// Package shutdown collects teardown actions as resources are acquired and runs
// them in reverse order when the owner goes away.
package shutdown

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/common"
	"github.com/mosaicnetworks/ledgerdriver/src/executor"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/process"
	"github.com/sirupsen/logrus"
)

const (
	// FutureTimeout bounds how long Shutdown waits for a registered action
	// that is still being produced.
	FutureTimeout = time.Second

	// ProcessGracePeriod is how long a terminated process gets before it is
	// killed.
	ProcessGracePeriod = 5 * time.Second
)

// ErrShutdown is returned by the TryRegister functions once the Manager was
// shut down.
var ErrShutdown = errors.New("shutdown manager already shut down")

// Action releases one resource.
type Action func() error

// Noop is the inert action left behind by a Follower.
func Noop() error { return nil }

type state struct {
	registered []*future.Future[Action]
	isShutdown bool
}

// Manager is an ordered registry of teardown actions.
type Manager struct {
	exec   *executor.Executor
	logger *logrus.Entry
	state  *common.Box[state]
}

// NewManager returns an empty Manager. Process teardown waits on exec's clock.
func NewManager(exec *executor.Executor, logger *logrus.Entry) *Manager {
	return &Manager{
		exec:   exec,
		logger: logger,
		state:  common.NewBox(state{}),
	}
}

// once wraps a so it runs at most one time, whoever triggers it.
func once(a Action) Action {
	var (
		o   sync.Once
		err error
	)
	return func() error {
		o.Do(func() { err = a() })
		return err
	}
}

// RegisterShutdown registers an action that is already known.
func (m *Manager) RegisterShutdown(a Action) {
	m.RegisterShutdownFuture(future.Completed(a))
}

// RegisterShutdownFuture registers an action that will only be known once
// the resource it releases has been acquired.
//
// Registering on a Manager that was shut down is a programming error and
// panics. Code that may race Shutdown uses TryRegisterShutdownFuture.
func (m *Manager) RegisterShutdownFuture(f *future.Future[Action]) {
	if err := m.TryRegisterShutdownFuture(f); err != nil {
		panic("cannot register shutdown actions after shutdown")
	}
}

// TryRegisterShutdown is RegisterShutdown returning ErrShutdown instead of
// panicking.
func (m *Manager) TryRegisterShutdown(a Action) error {
	return m.TryRegisterShutdownFuture(future.Completed(a))
}

// TryRegisterShutdownFuture is RegisterShutdownFuture returning ErrShutdown
// instead of panicking. The action is not registered in that case and the
// caller owns the resource.
func (m *Manager) TryRegisterShutdownFuture(f *future.Future[Action]) error {
	var err error
	m.state.Locked(func(s *state) {
		if s.isShutdown {
			err = ErrShutdown
			return
		}
		s.registered = append(s.registered, future.Map(f, func(a Action) (Action, error) {
			return once(a), nil
		}))
	})
	return err
}

// RegisterProcessShutdown registers the teardown of a process: ask it to
// terminate, give it ProcessGracePeriod, then kill it.
func (m *Manager) RegisterProcessShutdown(f *future.Future[process.Process]) {
	if err := m.TryRegisterProcessShutdown(f); err != nil {
		panic("cannot register shutdown actions after shutdown")
	}
}

// TryRegisterProcessShutdown is RegisterProcessShutdown returning ErrShutdown
// instead of panicking.
func (m *Manager) TryRegisterProcessShutdown(f *future.Future[process.Process]) error {
	return m.TryRegisterShutdownFuture(future.Map(f, func(p process.Process) (Action, error) {
		return func() error {
			return m.StopProcess(p)
		}, nil
	}))
}

// StopProcess asks p to terminate and kills it if it is still alive after
// ProcessGracePeriod.
func (m *Manager) StopProcess(p process.Process) error {
	if !p.Alive() {
		return nil
	}
	if err := p.Terminate(); err != nil {
		m.logger.WithError(err).WithField("pid", p.Pid()).Debug("Terminate failed")
	}

	timer := m.exec.Clock().Timer(ProcessGracePeriod)
	defer timer.Stop()

	select {
	case <-p.Exited():
		return nil
	case <-timer.C:
	}

	m.logger.WithField("pid", p.Pid()).Warn("Process did not exit in time, killing it")
	if err := p.Kill(); err != nil {
		return err
	}
	<-p.Exited()
	return nil
}

// Shutdown runs every registered action, newest first. A failing action is
// logged and does not stop the others. Calls after the first do nothing.
func (m *Manager) Shutdown() {
	var registered []*future.Future[Action]
	m.state.Locked(func(s *state) {
		if s.isShutdown {
			return
		}
		s.isShutdown = true
		registered = s.registered
	})

	actions := make([]Action, 0, len(registered))
	for _, f := range registered {
		ctx, cancel := context.WithTimeout(context.Background(), FutureTimeout)
		a, err := f.Get(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				m.logger.Warn("Shutdown action not ready in time, skipping it")
			} else {
				m.logger.WithError(err).Debug("Resource was never acquired, nothing to release")
			}
			continue
		}
		actions = append(actions, a)
	}

	for i := len(actions) - 1; i >= 0; i-- {
		if err := actions[i](); err != nil {
			m.logger.WithError(err).Error("Exception while shutting down")
		}
	}
}

// IsShutdown reports whether Shutdown has been called.
func (m *Manager) IsShutdown() bool {
	return common.LockedGet(m.state, func(s *state) bool { return s.isShutdown })
}

// Run creates a Manager, hands it to fn and shuts it down whatever fn does.
func Run(exec *executor.Executor, logger *logrus.Entry, fn func(*Manager) error) error {
	m := NewManager(exec, logger)
	defer m.Shutdown()

	return fn(m)
}
