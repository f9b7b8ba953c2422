// Package poll repeats a check until it yields a result, and builds the
// address liveness checks of the driver on top of it.
package poll

import (
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/executor"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/sirupsen/logrus"
)

// Defaults used when the caller has no opinion.
const (
	DefaultInterval  = 500 * time.Millisecond
	DefaultWarnCount = 120
)

// Check is probed by Poll. It returns ok=false while the awaited condition does
// not hold yet. A non-nil error ends polling.
type Check[A any] func() (value A, ok bool, err error)

// Poller bundles the executor and logger every poll needs.
type Poller struct {
	exec   *executor.Executor
	logger *logrus.Entry
}

// NewPoller returns a Poller scheduling on exec.
func NewPoller(exec *executor.Executor, logger *logrus.Entry) *Poller {
	return &Poller{exec: exec, logger: logger}
}

// Executor returns the executor p schedules on.
func (p *Poller) Executor() *executor.Executor {
	return p.exec
}

// Poll calls check once straight away and, while it is not ready, again every
// interval. After warnCount scheduled attempts a single warning is logged.
//
// There is no timeout: cancel the returned Future to stop polling. The Future
// fails with executor.ErrShutdown if the executor shuts down first.
func Poll[A any](p *Poller, name string, interval time.Duration, warnCount int, check Check[A]) *future.Future[A] {
	result := future.New[A]()

	value, ok, err := check()
	if err != nil {
		result.SetError(err)
		return result
	}
	if ok {
		result.Set(value)
		return result
	}

	var (
		mu      sync.Mutex
		counter int
		stop    func() bool
	)

	result.OnCancel(func() {
		mu.Lock()
		defer mu.Unlock()
		if stop != nil {
			stop()
		}
	})

	go func() {
		select {
		case <-result.Done():
		case <-p.exec.Done():
			result.SetError(executor.ErrShutdown)
		}
	}()

	var schedule func()
	schedule = func() {
		mu.Lock()
		defer mu.Unlock()

		if result.IsDone() {
			return
		}

		cancel, err := p.exec.Schedule(interval, func() {
			if result.IsDone() {
				return
			}

			mu.Lock()
			counter++
			attempt := counter
			mu.Unlock()

			if attempt == warnCount {
				p.logger.WithFields(logrus.Fields{
					"poll":     name,
					"duration": interval * time.Duration(warnCount),
				}).Warn("Been polling for a while...")
			}

			value, ok, err := check()
			switch {
			case err != nil:
				result.SetError(err)
			case ok:
				result.Set(value)
			default:
				schedule()
			}
		})
		if err != nil {
			result.SetError(err)
			return
		}
		stop = cancel
	}
	schedule()

	return result
}

// Default is Poll with DefaultInterval and DefaultWarnCount.
func Default[A any](p *Poller, name string, check Check[A]) *future.Future[A] {
	return Poll(p, name, DefaultInterval, DefaultWarnCount, check)
}

// UntilTrue polls check until it reports true.
func UntilTrue(p *Poller, name string, interval time.Duration, warnCount int, check func() (bool, error)) *future.Future[struct{}] {
	return Poll(p, name, interval, warnCount, func() (struct{}, bool, error) {
		ok, err := check()
		return struct{}{}, ok, err
	})
}
